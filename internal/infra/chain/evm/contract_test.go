package evm

import (
	"context"
	"errors"
	"math/big"
	"slices"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/chainsub/internal/core/domain"
)

const erc20ABI = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":false,"name":"value","type":"uint256"}
	],"name":"Transfer","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"owner","type":"address"},
		{"indexed":true,"name":"spender","type":"address"},
		{"indexed":false,"name":"value","type":"uint256"}
	],"name":"Approval","type":"event"}
]`

var tokenAddress = common.HexToAddress("0x1f9840a85d5af5bf1d1762f925bdaddc4201f984")

func transferLog(t *testing.T, c *Contract, block uint64, from, to common.Address, value *big.Int) types.Log {
	t.Helper()
	ev := c.abi.Events["Transfer"]
	data, err := ev.Inputs.NonIndexed().Pack(value)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return types.Log{
		Address:     c.address,
		Topics:      []common.Hash{ev.ID, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
	}
}

func recvLog(t *testing.T, ch <-chan *domain.ContractLog) *domain.ContractLog {
	t.Helper()
	select {
	case l := <-ch:
		return l
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for log")
		return nil
	}
}

func TestContract_Metadata(t *testing.T) {
	p := NewProvider(NewMockBackend(1), testConfig, nil)
	c, err := p.Contract(tokenAddress, erc20ABI)
	if err != nil {
		t.Fatalf("contract: %v", err)
	}

	if names := c.EventNames(); !slices.Equal(names, []string{"Approval", "Transfer"}) {
		t.Errorf("unexpected event names: %v", names)
	}
	topic, ok := c.EventTopic("Transfer")
	if !ok {
		t.Fatal("expected Transfer topic")
	}
	// keccak256("Transfer(address,address,uint256)")
	if topic != "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef" {
		t.Errorf("unexpected Transfer topic %s", topic)
	}
	if _, ok := c.EventTopic("Mint"); ok {
		t.Error("Mint should not be declared")
	}
	if _, err := c.WatchEvent("Mint", make(chan *domain.ContractLog)); err == nil {
		t.Error("expected error watching an undeclared event")
	}
}

func TestContract_InvalidABI(t *testing.T) {
	p := NewProvider(NewMockBackend(1), testConfig, nil)
	if _, err := p.Contract(tokenAddress, "{not json"); err == nil {
		t.Error("expected abi parse error")
	}
}

func TestContract_WatchEventDecodes(t *testing.T) {
	backend := NewMockBackend(100)
	p := NewProvider(backend, testConfig, nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Close()

	c, _ := p.Contract(tokenAddress, erc20ABI)
	sink := make(chan *domain.ContractLog, 4)
	sub, err := c.WatchEvent("Transfer", sink)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer sub.Unsubscribe()

	from := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	to := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	backend.AddLog(transferLog(t, c, 101, from, to, big.NewInt(7)))

	removed := transferLog(t, c, 101, from, to, big.NewInt(8))
	removed.Removed = true
	backend.AddLog(removed)

	backend.SetHead(101)
	_ = p.poll(context.Background())

	got := recvLog(t, sink)
	if got.Event != "Transfer" {
		t.Errorf("expected Transfer, got %s", got.Event)
	}
	if len(got.Args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(got.Args))
	}
	if got.Args[0].(common.Address) != from {
		t.Errorf("expected from %s, got %v", from.Hex(), got.Args[0])
	}
	if got.Args[1].(common.Address) != to {
		t.Errorf("expected to %s, got %v", to.Hex(), got.Args[1])
	}
	if got.Args[2].(*big.Int).Int64() != 7 {
		t.Errorf("expected value 7, got %v", got.Args[2])
	}

	select {
	case l := <-sink:
		t.Errorf("removed log must not be delivered: %+v", l)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestContract_WatchEventRetriesFailedRange(t *testing.T) {
	backend := NewMockBackend(100)
	p := NewProvider(backend, testConfig, nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Close()

	c, _ := p.Contract(tokenAddress, erc20ABI)
	sink := make(chan *domain.ContractLog, 4)
	sub, _ := c.WatchEvent("Transfer", sink)
	defer sub.Unsubscribe()

	from := common.HexToAddress("0x01")
	to := common.HexToAddress("0x02")
	backend.AddLog(transferLog(t, c, 101, from, to, big.NewInt(1)))

	backend.SetLogsErr(errors.New("upstream timeout"))
	backend.SetHead(101)
	_ = p.poll(context.Background())

	// Wait for the failed fetch before recovering
	deadline := time.Now().Add(2 * time.Second)
	for {
		backend.mu.Lock()
		calls := backend.filterCalls
		backend.mu.Unlock()
		if calls > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	backend.SetLogsErr(nil)
	backend.SetHead(102)
	_ = p.poll(context.Background())

	got := recvLog(t, sink)
	if got.Log.BlockNumber != 101 {
		t.Errorf("expected log from block 101 after retry, got %d", got.Log.BlockNumber)
	}
}

func TestDecode_TopicMismatch(t *testing.T) {
	p := NewProvider(NewMockBackend(1), testConfig, nil)
	c, _ := p.Contract(tokenAddress, erc20ABI)

	l := transferLog(t, c, 1, common.HexToAddress("0x01"), common.HexToAddress("0x02"), big.NewInt(1))
	l.Topics[0] = c.abi.Events["Approval"].ID

	if _, err := c.decode(c.abi.Events["Transfer"], l); err == nil {
		t.Error("expected topic mismatch error")
	}
}

// Inputs without names are renamed argN by the ABI parser, so the first
// input's explicit "arg1" collides with the second input.
const swapABI = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"arg1","type":"uint256"},
		{"indexed":true,"name":"","type":"address"},
		{"indexed":false,"name":"","type":"uint256"},
		{"indexed":false,"name":"","type":"uint256"}
	],"name":"Swap","type":"event"}
]`

func TestDecode_UnnamedInputsKeepDeclaredOrder(t *testing.T) {
	p := NewProvider(NewMockBackend(1), testConfig, nil)
	c, err := p.Contract(tokenAddress, swapABI)
	if err != nil {
		t.Fatalf("contract: %v", err)
	}
	ev := c.abi.Events["Swap"]

	trader := common.HexToAddress("0x00000000000000000000000000000000000000c3")
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(10), big.NewInt(20))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	l := types.Log{
		Address: tokenAddress,
		Topics:  []common.Hash{ev.ID, common.BigToHash(big.NewInt(5)), common.BytesToHash(trader.Bytes())},
		Data:    data,
	}

	got, err := c.decode(ev, l)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Args) != 4 {
		t.Fatalf("expected 4 args, got %v", got.Args)
	}
	if v, ok := got.Args[0].(*big.Int); !ok || v.Int64() != 5 {
		t.Errorf("arg 0: expected 5, got %v", got.Args[0])
	}
	if a, ok := got.Args[1].(common.Address); !ok || a != trader {
		t.Errorf("arg 1: expected %s, got %v", trader.Hex(), got.Args[1])
	}
	if v, ok := got.Args[2].(*big.Int); !ok || v.Int64() != 10 {
		t.Errorf("arg 2: expected 10, got %v", got.Args[2])
	}
	if v, ok := got.Args[3].(*big.Int); !ok || v.Int64() != 20 {
		t.Errorf("arg 3: expected 20, got %v", got.Args[3])
	}
}

func TestDecode_TopicCountMismatch(t *testing.T) {
	p := NewProvider(NewMockBackend(1), testConfig, nil)
	c, _ := p.Contract(tokenAddress, erc20ABI)

	l := transferLog(t, c, 1, common.HexToAddress("0x01"), common.HexToAddress("0x02"), big.NewInt(1))
	l.Topics = l.Topics[:2]

	if _, err := c.decode(c.abi.Events["Transfer"], l); err == nil {
		t.Error("expected missing topic error")
	}
}
