package evm

import (
	"context"
	"fmt"
	"maps"
	"math/big"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/vietddude/chainsub/internal/core/domain"
	"github.com/vietddude/chainsub/internal/infra/chain"
)

// Contract watches the events of one deployed contract.
type Contract struct {
	provider *Provider
	address  common.Address
	abi      abi.ABI
	names    []string
}

var _ chain.ContractHandle = (*Contract)(nil)

// Contract binds address to the given JSON ABI.
func (p *Provider) Contract(address common.Address, abiJSON string) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	return &Contract{
		provider: p,
		address:  address,
		abi:      parsed,
		names:    slices.Sorted(maps.Keys(parsed.Events)),
	}, nil
}

func (c *Contract) Address() common.Address {
	return c.address
}

func (c *Contract) EventNames() []string {
	return slices.Clone(c.names)
}

func (c *Contract) EventTopic(name string) (string, bool) {
	ev, ok := c.abi.Events[name]
	if !ok {
		return "", false
	}
	return ev.ID.Hex(), true
}

// WatchEvent fetches the event's logs for every new block and delivers them
// decoded on sink. A failed fetch is retried with the next block.
func (c *Contract) WatchEvent(name string, sink chan<- *domain.ContractLog) (event.Subscription, error) {
	ev, ok := c.abi.Events[name]
	if !ok {
		return nil, fmt.Errorf("event %q not declared by %s", name, c.address.Hex())
	}

	blocks := make(chan uint64, 16)
	bsub := c.provider.SubscribeNewBlocks(blocks)

	sub := event.NewSubscription(func(quit <-chan struct{}) error {
		defer bsub.Unsubscribe()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-quit:
				cancel()
			case <-ctx.Done():
			}
		}()

		log := c.provider.log.With("contract", c.address.Hex(), "event", name)
		var next uint64
		for {
			select {
			case <-quit:
				return nil
			case err := <-bsub.Err():
				return err
			case n := <-blocks:
				from := next
				if from == 0 || from > n || n-from >= c.provider.cfg.MaxCatchup {
					from = n
				}

				logs, err := c.fetch(ctx, ev, from, n)
				if err != nil {
					log.Warn("Fetch logs failed, retrying with next block", "from", from, "to", n, "error", err)
					next = from
					continue
				}
				next = n + 1

				for _, l := range logs {
					if l.Removed {
						continue
					}
					decoded, err := c.decode(ev, l)
					if err != nil {
						log.Warn("Decode log failed", "tx", l.TxHash.Hex(), "index", l.Index, "error", err)
						continue
					}
					select {
					case sink <- decoded:
					case <-quit:
						return nil
					}
				}
			}
		}
	})
	return sub, nil
}

func (c *Contract) fetch(ctx context.Context, ev abi.Event, from, to uint64) ([]types.Log, error) {
	ctx, cancel := context.WithTimeout(ctx, c.provider.cfg.RequestTimeout)
	defer cancel()

	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.address},
	}
	if !ev.Anonymous {
		q.Topics = [][]common.Hash{{ev.ID}}
	}
	return c.provider.client.FilterLogs(ctx, q)
}

// decode returns the event arguments in declared order. Values are matched
// to inputs by position, never by name.
func (c *Contract) decode(ev abi.Event, l types.Log) (*domain.ContractLog, error) {
	data, err := ev.Inputs.Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack data: %w", err)
	}

	topics := l.Topics
	if !ev.Anonymous {
		if len(topics) == 0 || topics[0] != ev.ID {
			return nil, fmt.Errorf("topic mismatch for %s", ev.Name)
		}
		topics = topics[1:]
	}

	args := make([]any, 0, len(ev.Inputs))
	var ti, di int
	for _, in := range ev.Inputs {
		if !in.Indexed {
			if di >= len(data) {
				return nil, fmt.Errorf("missing data value for %s input %d", ev.Name, len(args))
			}
			args = append(args, data[di])
			di++
			continue
		}

		if ti >= len(topics) {
			return nil, fmt.Errorf("parse topics: missing topic for %s input %d", ev.Name, len(args))
		}
		v, err := parseTopic(in, topics[ti])
		if err != nil {
			return nil, fmt.Errorf("parse topics: %w", err)
		}
		args = append(args, v)
		ti++
	}
	if ti != len(topics) {
		return nil, fmt.Errorf("parse topics: %s expects %d topics, got %d", ev.Name, ti, len(topics))
	}

	return &domain.ContractLog{
		Event: ev.Name,
		Args:  args,
		Log:   l,
	}, nil
}

// parseTopic decodes one indexed input. Dynamic types come back as the
// topic hash.
func parseTopic(in abi.Argument, topic common.Hash) (any, error) {
	out := make(map[string]any, 1)
	if err := abi.ParseTopicsIntoMap(out, abi.Arguments{in}, []common.Hash{topic}); err != nil {
		return nil, err
	}
	return out[in.Name], nil
}
