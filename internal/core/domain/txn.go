package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type TxStatus string

const (
	TxStatusSuccess  TxStatus = "success"
	TxStatusReverted TxStatus = "reverted"
)

// Receipt is a mined transaction as seen at a given chain head.
type Receipt struct {
	TxHash        common.Hash `json:"tx_hash"`
	BlockNumber   uint64      `json:"block_number"`
	BlockHash     common.Hash `json:"block_hash"`
	Status        TxStatus    `json:"status"`
	GasUsed       uint64      `json:"gas_used"`
	Confirmations uint64      `json:"confirmations"`
}

// PendingTx is a submitted transaction whose hash may not be known yet.
type PendingTx interface {
	Hash(ctx context.Context) (common.Hash, error)
}

// KnownTx is a PendingTx with an already known hash.
type KnownTx common.Hash

func (t KnownTx) Hash(context.Context) (common.Hash, error) {
	return common.Hash(t), nil
}

// PendingTxFunc adapts a function to PendingTx.
type PendingTxFunc func(ctx context.Context) (common.Hash, error)

func (f PendingTxFunc) Hash(ctx context.Context) (common.Hash, error) {
	return f(ctx)
}
