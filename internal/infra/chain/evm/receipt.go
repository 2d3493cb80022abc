package evm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/chainsub/internal/core/domain"
)

// TransactionReceipt returns the receipt of hash with its confirmation count,
// or nil when the transaction is not in the canonical chain.
func (p *Provider) TransactionReceipt(ctx context.Context, hash common.Hash) (*domain.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	var (
		raw  *types.Receipt
		head uint64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := p.client.TransactionReceipt(gctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("eth_getTransactionReceipt: %w", err)
		}
		raw = r
		return nil
	})
	g.Go(func() error {
		h, err := p.head.Latest(gctx)
		if err != nil {
			return fmt.Errorf("eth_blockNumber: %w", err)
		}
		head = h
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if raw == nil {
		return nil, nil
	}
	return toReceipt(raw, head), nil
}

// WaitForTransaction blocks until hash is mined, checking on every new block.
func (p *Provider) WaitForTransaction(ctx context.Context, hash common.Hash) (*domain.Receipt, error) {
	sink := make(chan uint64, 16)
	sub := p.SubscribeNewBlocks(sink)
	defer sub.Unsubscribe()

	for {
		r, err := p.TransactionReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if r != nil {
			return r, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = ErrClosed
			}
			return nil, err
		case <-sink:
		}
	}
}

// toReceipt counts the receipt's own block as the first confirmation.
func toReceipt(r *types.Receipt, head uint64) *domain.Receipt {
	var number uint64
	if r.BlockNumber != nil {
		number = r.BlockNumber.Uint64()
	}
	if head < number {
		head = number
	}

	status := domain.TxStatusSuccess
	if r.Status == types.ReceiptStatusFailed {
		status = domain.TxStatusReverted
	}

	return &domain.Receipt{
		TxHash:        r.TxHash,
		BlockNumber:   number,
		BlockHash:     r.BlockHash,
		Status:        status,
		GasUsed:       r.GasUsed,
		Confirmations: head - number + 1,
	}
}
