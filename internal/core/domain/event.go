package domain

import (
	"github.com/ethereum/go-ethereum/core/types"
)

// EventName identifies a listener slot on a subscription.
type EventName string

const (
	// EventConfirmation fires on every block while a transaction is mined.
	EventConfirmation EventName = "confirmation"
	// EventError is the reserved error channel of every subscription.
	EventError EventName = "error"
)

// Data is the payload of a delivered message.
type Data struct {
	Confirmations uint64     `json:"confirmations,omitempty"`
	Args          []any      `json:"args,omitempty"`
	Receipt       *Receipt   `json:"-"`
	Log           *types.Log `json:"-"`
}

// Message is what listeners receive. Confirmation and contract-event
// listeners read Data, error listeners read Error and EventName.
type Message struct {
	Data      Data
	Error     error
	EventName EventName
}

// ConfirmationMessage builds the message delivered to confirmation listeners.
func ConfirmationMessage(r *Receipt) Message {
	return Message{
		Data:      Data{Confirmations: r.Confirmations, Receipt: r},
		EventName: EventConfirmation,
	}
}

// EventMessage builds the message delivered to contract-event listeners.
func EventMessage(name EventName, args []any, log *types.Log) Message {
	return Message{
		Data:      Data{Args: args, Log: log},
		EventName: name,
	}
}

// ErrorMessage builds the message delivered to error listeners.
func ErrorMessage(err error, name EventName) Message {
	return Message{Error: err, EventName: name}
}
