package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/vietddude/chainsub/internal/core/config"
	redisclient "github.com/vietddude/chainsub/internal/infra/redis"
	"github.com/vietddude/chainsub/internal/infra/storage"
	"github.com/vietddude/chainsub/internal/infra/storage/memory"
	"github.com/vietddude/chainsub/internal/infra/storage/postgres"
)

// ErrJournalDisabled is returned when no journal backend is configured.
var ErrJournalDisabled = errors.New("outcome journal disabled")

// Journal is an opened outcome journal and the connection behind it.
type Journal struct {
	storage.OutcomeRepository

	Backend string
	db      *postgres.DB
	redis   *redisclient.Client
}

// OpenJournal connects the configured backend. Postgres migrations are
// applied on open.
func OpenJournal(ctx context.Context, cfg *config.AppConfig) (*Journal, error) {
	j := &Journal{Backend: cfg.Journal.Backend}

	switch cfg.Journal.Backend {
	case config.JournalNone, "":
		return nil, ErrJournalDisabled

	case config.JournalMemory:
		j.OutcomeRepository = memory.NewOutcomeRepo()

	case config.JournalRedis:
		client, err := redisclient.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		j.redis = client
		j.OutcomeRepository = redisclient.NewOutcomeRepo(client, cfg.Redis.TTL)

	case config.JournalPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		j.db = db
		j.OutcomeRepository = postgres.NewOutcomeRepo(db)

	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Journal.Backend)
	}

	return j, nil
}

// Ping checks the backend connection.
func (j *Journal) Ping(ctx context.Context) error {
	switch {
	case j.db != nil:
		return j.db.Health(ctx)
	case j.redis != nil:
		return j.redis.Ping(ctx)
	default:
		return nil
	}
}

// Close releases the backend connection.
func (j *Journal) Close() error {
	var errs []error
	if j.redis != nil {
		errs = append(errs, j.redis.Close())
	}
	if j.db != nil {
		errs = append(errs, j.db.Close())
	}
	return errors.Join(errs...)
}
