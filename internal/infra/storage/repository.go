package storage

import (
	"context"
	"time"

	"github.com/vietddude/chainsub/internal/core/domain"
)

// OutcomeRepository journals what subscriptions delivered.
type OutcomeRepository interface {
	// Save appends an outcome and assigns its ID
	Save(ctx context.Context, o *domain.Outcome) error

	// ListBySubscription returns a subscription's outcomes oldest first
	ListBySubscription(ctx context.Context, subscriptionID string, limit int) ([]*domain.Outcome, error)

	// DeleteOlderThan removes outcomes created before t and reports how many
	DeleteOlderThan(ctx context.Context, t time.Time) (int64, error)
}
