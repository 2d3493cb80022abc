package domain

import "time"

type OutcomeKind string

const (
	OutcomeConfirmation OutcomeKind = "confirmation"
	OutcomeEvent        OutcomeKind = "event"
	OutcomeError        OutcomeKind = "error"
)

// Outcome is a journal entry for something a subscription delivered.
type Outcome struct {
	ID             int64       `json:"id"               db:"id"`
	SubscriptionID string      `json:"subscription_id"  db:"subscription_id"`
	Kind           OutcomeKind `json:"kind"             db:"kind"`
	EventName      string      `json:"event_name"       db:"event_name"`
	TxHash         string      `json:"tx_hash"          db:"tx_hash"`
	BlockNumber    uint64      `json:"block_number"     db:"block_number"`
	Confirmations  uint64      `json:"confirmations"    db:"confirmations"`
	Error          string      `json:"error,omitempty"  db:"error"`
	CreatedAt      time.Time   `json:"created_at"       db:"created_at"`
}

// NewOutcome turns a delivered message into a journal entry.
func NewOutcome(subscriptionID string, msg Message) *Outcome {
	o := &Outcome{
		SubscriptionID: subscriptionID,
		EventName:      string(msg.EventName),
		CreatedAt:      time.Now().UTC(),
	}
	switch {
	case msg.Error != nil:
		o.Kind = OutcomeError
		o.Error = msg.Error.Error()
	case msg.EventName == EventConfirmation:
		o.Kind = OutcomeConfirmation
		o.Confirmations = msg.Data.Confirmations
	default:
		o.Kind = OutcomeEvent
	}
	if r := msg.Data.Receipt; r != nil {
		o.TxHash = r.TxHash.Hex()
		o.BlockNumber = r.BlockNumber
	}
	if l := msg.Data.Log; l != nil {
		o.TxHash = l.TxHash.Hex()
		o.BlockNumber = l.BlockNumber
	}
	return o
}
