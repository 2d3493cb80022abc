package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/chainsub/internal/infra/storage"
)

// Pruner deletes journaled outcomes past the retention period.
type Pruner struct {
	retention time.Duration
	repo      storage.OutcomeRepository
	log       *slog.Logger
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, repo storage.OutcomeRepository, log *slog.Logger) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		retention: retention,
		repo:      repo,
		log:       log.With("worker", "pruner"),
		now:       time.Now,
	}
}

// Interval is how often Start prunes: a tenth of the retention period,
// clamped to [1m, 1h].
func (p *Pruner) Interval() time.Duration {
	interval := min(p.retention/10, time.Hour)
	return max(interval, time.Minute)
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune runs one deletion pass.
func (p *Pruner) Prune(ctx context.Context) {
	threshold := p.now().Add(-p.retention)

	deleted, err := p.repo.DeleteOlderThan(ctx, threshold)
	if err != nil {
		p.log.Error("Failed to prune outcomes", "before", threshold, "error", err)
		return
	}
	if deleted > 0 {
		p.log.Info("Pruned outcomes", "deleted", deleted, "before", threshold)
	}
}
