package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/chainsub/internal/core/domain"
	"github.com/vietddude/chainsub/internal/infra/storage"
)

// OutcomeRepo keeps outcomes in process memory.
type OutcomeRepo struct {
	mu     sync.RWMutex
	nextID int64
	bySub  map[string][]*domain.Outcome
}

var _ storage.OutcomeRepository = (*OutcomeRepo)(nil)

func NewOutcomeRepo() *OutcomeRepo {
	return &OutcomeRepo{bySub: make(map[string][]*domain.Outcome)}
}

func (r *OutcomeRepo) Save(ctx context.Context, o *domain.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	o.ID = r.nextID
	cp := *o
	r.bySub[o.SubscriptionID] = append(r.bySub[o.SubscriptionID], &cp)
	return nil
}

func (r *OutcomeRepo) ListBySubscription(ctx context.Context, subscriptionID string, limit int) ([]*domain.Outcome, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.bySub[subscriptionID]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]*domain.Outcome, 0, len(all))
	for _, o := range all {
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (r *OutcomeRepo) DeleteOlderThan(ctx context.Context, t time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for sub, list := range r.bySub {
		kept := list[:0]
		for _, o := range list {
			if o.CreatedAt.Before(t) {
				deleted++
				continue
			}
			kept = append(kept, o)
		}
		if len(kept) == 0 {
			delete(r.bySub, sub)
			continue
		}
		r.bySub[sub] = kept
	}
	return deleted, nil
}
