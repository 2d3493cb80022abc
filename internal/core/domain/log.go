package domain

import "github.com/ethereum/go-ethereum/core/types"

// ContractLog is one decoded contract event as published by a contract handle.
// Args follow the event's declared input order.
type ContractLog struct {
	Event string
	Args  []any
	Log   types.Log
}
