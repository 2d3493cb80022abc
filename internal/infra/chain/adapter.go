package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/vietddude/chainsub/internal/core/domain"
)

// TopicNewBlock is the transport-level name of the new-block notification.
const TopicNewBlock = "block"

// BlockSource publishes the number of every new block.
type BlockSource interface {
	// SubscribeNewBlocks delivers block numbers on sink until the returned
	// subscription is unsubscribed
	SubscribeNewBlocks(sink chan<- uint64) event.Subscription
}

// ReceiptSource looks up mined transactions.
type ReceiptSource interface {
	// TransactionReceipt returns the receipt with its current confirmation
	// count, or nil when the transaction is not in the canonical chain
	TransactionReceipt(ctx context.Context, hash common.Hash) (*domain.Receipt, error)

	// WaitForTransaction blocks until the transaction is mined
	WaitForTransaction(ctx context.Context, hash common.Hash) (*domain.Receipt, error)
}

// Transport is the node connection a transaction tracker needs.
type Transport interface {
	BlockSource
	ReceiptSource
}

// ContractHandle is a deployed contract with a known ABI.
type ContractHandle interface {
	// Address returns the contract address
	Address() common.Address

	// EventNames lists the events the contract declares
	EventNames() []string

	// EventTopic returns the topic hash used to filter logs of an event
	EventTopic(name string) (string, bool)

	// WatchEvent delivers decoded logs of the named event on sink
	WatchEvent(name string, sink chan<- *domain.ContractLog) (event.Subscription, error)
}
