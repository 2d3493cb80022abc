package txconfirm

import (
	"github.com/vietddude/chainsub/internal/core/domain"
	"github.com/vietddude/chainsub/internal/infra/chain"
)

// Trigger is an event kind a transaction subscription accepts.
type Trigger int

const (
	TriggerConfirmation Trigger = iota + 1
	TriggerError
)

var triggers = map[domain.EventName]Trigger{
	domain.EventConfirmation: TriggerConfirmation,
	domain.EventError:        TriggerError,
}

// transportNames maps triggers to the notification they are attached to.
// The error trigger has no transport attachment.
var transportNames = map[Trigger]string{
	TriggerConfirmation: chain.TopicNewBlock,
}

// ParseTrigger resolves an event name to its trigger.
func ParseTrigger(name domain.EventName) (Trigger, bool) {
	t, ok := triggers[name]
	return t, ok
}

func (t Trigger) String() string {
	switch t {
	case TriggerConfirmation:
		return string(domain.EventConfirmation)
	case TriggerError:
		return string(domain.EventError)
	default:
		return "unknown"
	}
}
