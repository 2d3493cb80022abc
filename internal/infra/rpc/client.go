package rpc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of the node API the transport uses.
// *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Client adds retries and call metrics to a Backend.
type Client struct {
	backend Backend
	retry   RetryConfig
	closer  func()
}

var _ Backend = (*Client)(nil)

// NewClient wraps backend.
func NewClient(backend Backend, retry RetryConfig) *Client {
	return &Client{backend: backend, retry: retry}
}

// Dial connects to a JSON-RPC endpoint.
func Dial(ctx context.Context, url string, retry RetryConfig) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := NewClient(ec, retry)
	c.closer = ec.Close
	return c, nil
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return Call(ctx, "eth_chainId", c.retry, c.backend.ChainID)
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return Call(ctx, "eth_blockNumber", c.retry, c.backend.BlockNumber)
}

func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return Call(ctx, "eth_getTransactionReceipt", c.retry, func(ctx context.Context) (*types.Receipt, error) {
		return c.backend.TransactionReceipt(ctx, hash)
	})
}

func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return Call(ctx, "eth_getLogs", c.retry, func(ctx context.Context) ([]types.Log, error) {
		return c.backend.FilterLogs(ctx, q)
	})
}

// Close releases the underlying connection when the client was dialed.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}
