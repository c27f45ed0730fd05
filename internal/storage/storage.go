package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/goran-ethernal/GovIndexor/internal/db"
	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/internal/registry"
	"github.com/goran-ethernal/GovIndexor/pkg/checkpoint"
	"github.com/goran-ethernal/GovIndexor/pkg/config"
	"github.com/goran-ethernal/GovIndexor/pkg/entity"
)

const (
	// DefaultListLimit is used by ListEntities when no limit is given.
	DefaultListLimit = 100
	// MaxListLimit caps ListEntities.
	MaxListLimit = 1000
)

// Batch is the unit of work of one block. Writes made through an atomic batch become
// visible together on Commit; a non-atomic batch writes through immediately and its
// Commit and Rollback only release it.
type Batch interface {
	Entities() entity.Store
	Checkpoints() checkpoint.Store
	SaveInstance(ctx context.Context, inst registry.Instance) error
	Commit() error
	Rollback() error
}

// Backend is a storage backend shared by every namespace.
type Backend interface {
	// Begin opens the batch of the block at height.
	Begin(ctx context.Context, height uint64, atomic bool) (Batch, error)

	Checkpoints() checkpoint.Store
	Entities() entity.Store

	// Instances returns the persisted template instances of namespace in creation order.
	Instances(ctx context.Context, namespace string) ([]registry.Instance, error)

	// ListEntities returns up to limit entities of a type ordered by id, starting after the
	// given id.
	ListEntities(ctx context.Context, namespace, typ, after string, limit int) ([]*entity.Entity, error)

	// Start launches background work such as database maintenance.
	Start(ctx context.Context) error

	Close() error
}

// Open creates the backend selected by cfg.Driver and applies its schema migrations.
func Open(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (Backend, error) {
	switch cfg.Driver {
	case config.StorageDriverSQLite, "":
		return OpenSQLite(cfg.SQLite, log)
	case config.StorageDriverPostgres:
		if cfg.Postgres == nil {
			return nil, fmt.Errorf("postgres configuration is missing")
		}
		return OpenPostgres(ctx, *cfg.Postgres, log)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// observe records a storage operation once the enclosing function has set *err.
func observe(backend, operation string, start time.Time, err *error) {
	db.ObserveQuery(backend, operation, start, *err)
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}

	return min(limit, MaxListLimit)
}
