package subscription

import (
	"errors"
	"fmt"

	"github.com/vietddude/chainsub/internal/core/domain"
	"github.com/vietddude/chainsub/internal/subscription/registry"
)

var (
	// ErrReservedName is returned when "error" is registered through the generic path
	ErrReservedName = errors.New("event name is reserved")

	// ErrDuplicateListener is returned when an event name already has a listener
	ErrDuplicateListener = registry.ErrDuplicate

	// ErrInvalidTrigger is returned for unsupported event names or once("error")
	ErrInvalidTrigger = errors.New("invalid trigger")

	// ErrUnknownEvent is returned when a contract does not declare the event
	ErrUnknownEvent = errors.New("unknown event")

	// ErrListenerExecution wraps failures raised by caller listeners
	ErrListenerExecution = errors.New("listener execution failed")

	// ErrTransactionDisplaced is emitted when a mined transaction disappears
	ErrTransactionDisplaced = errors.New("transaction was included in a stale or orphaned block")

	// ErrTimeout is emitted when the confirmation window elapses
	ErrTimeout = errors.New("timed out waiting for transaction confirmation")
)

// ListenerError reports a listener that returned an error or panicked.
type ListenerError struct {
	EventName domain.EventName
	Err       error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("%s listener: %v", e.EventName, e.Err)
}

func (e *ListenerError) Unwrap() []error {
	return []error{ErrListenerExecution, e.Err}
}

// errorType labels an error for metrics.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrTransactionDisplaced):
		return "displaced"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrListenerExecution):
		return "listener"
	default:
		return "transport"
	}
}
