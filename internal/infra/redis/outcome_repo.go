package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/chainsub/internal/core/domain"
	"github.com/vietddude/chainsub/internal/infra/storage"
)

// DefaultTTL bounds how long a subscription's journal is kept.
const DefaultTTL = 24 * time.Hour

// OutcomeRepo journals outcomes as a JSON list per subscription.
type OutcomeRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ storage.OutcomeRepository = (*OutcomeRepo)(nil)

func NewOutcomeRepo(client *Client, ttl time.Duration) *OutcomeRepo {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &OutcomeRepo{rdb: client.rdb, ttl: ttl}
}

// Key helpers
func outcomesKey(subscriptionID string) string {
	return fmt.Sprintf("outcomes:%s", subscriptionID)
}

func outcomeSeqKey() string {
	return "outcomes:seq"
}

func (r *OutcomeRepo) Save(ctx context.Context, o *domain.Outcome) error {
	id, err := r.rdb.Incr(ctx, outcomeSeqKey()).Result()
	if err != nil {
		return fmt.Errorf("incr failed: %w", err)
	}
	o.ID = id

	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	key := outcomesKey(o.SubscriptionID)
	pipe := r.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rpush failed: %w", err)
	}
	return nil
}

func (r *OutcomeRepo) ListBySubscription(ctx context.Context, subscriptionID string, limit int) ([]*domain.Outcome, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	items, err := r.rdb.LRange(ctx, outcomesKey(subscriptionID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}

	out := make([]*domain.Outcome, 0, len(items))
	for _, item := range items {
		var o domain.Outcome
		if err := json.Unmarshal([]byte(item), &o); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outcome: %w", err)
		}
		out = append(out, &o)
	}
	return out, nil
}

// DeleteOlderThan is a no-op: each subscription list expires with its key TTL.
func (r *OutcomeRepo) DeleteOlderThan(ctx context.Context, t time.Time) (int64, error) {
	return 0, nil
}
