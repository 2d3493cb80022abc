package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/chainsub/internal/core/domain"
	"github.com/vietddude/chainsub/internal/infra/storage"
)

// OutcomeRepo journals outcomes in the subscription_outcomes table.
type OutcomeRepo struct {
	db *DB
}

var _ storage.OutcomeRepository = (*OutcomeRepo)(nil)

func NewOutcomeRepo(db *DB) *OutcomeRepo {
	return &OutcomeRepo{db: db}
}

func (r *OutcomeRepo) Save(ctx context.Context, o *domain.Outcome) error {
	query, args, err := r.db.BindNamed(`
		INSERT INTO subscription_outcomes
			(subscription_id, kind, event_name, tx_hash, block_number, confirmations, error, created_at)
		VALUES
			(:subscription_id, :kind, :event_name, :tx_hash, :block_number, :confirmations, :error, :created_at)
		RETURNING id`, o)
	if err != nil {
		return fmt.Errorf("bind outcome: %w", err)
	}
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&o.ID); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

func (r *OutcomeRepo) ListBySubscription(ctx context.Context, subscriptionID string, limit int) ([]*domain.Outcome, error) {
	if limit <= 0 {
		limit = 1000
	}
	var out []*domain.Outcome
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT id, subscription_id, kind, event_name, tx_hash, block_number, confirmations, error, created_at
		FROM subscription_outcomes
		WHERE subscription_id = ?
		ORDER BY id
		LIMIT ?`), subscriptionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	return out, nil
}

func (r *OutcomeRepo) DeleteOlderThan(ctx context.Context, t time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM subscription_outcomes WHERE created_at < ?`), t)
	if err != nil {
		return 0, fmt.Errorf("delete outcomes: %w", err)
	}
	return res.RowsAffected()
}
