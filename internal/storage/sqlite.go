package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/GovIndexor/internal/db"
	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/internal/migrations"
	"github.com/goran-ethernal/GovIndexor/internal/registry"
	"github.com/goran-ethernal/GovIndexor/pkg/checkpoint"
	"github.com/goran-ethernal/GovIndexor/pkg/config"
	"github.com/goran-ethernal/GovIndexor/pkg/entity"
	"github.com/russross/meddler"
)

const backendSQLite = "sqlite"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	meddler.DB
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// entityRow is the sqlite row of an entity.
type entityRow struct {
	Namespace     string         `meddler:"namespace"`
	Type          string         `meddler:"type"`
	ID            string         `meddler:"id"`
	Fields        map[string]any `meddler:"fields,fields"`
	UpdatedHeight uint64         `meddler:"updated_height"`
}

func (r *entityRow) toEntity() *entity.Entity {
	e := entity.New(r.Type, r.ID, r.Namespace)
	if r.Fields != nil {
		e.Fields = r.Fields
	}

	return e
}

// SQLite is the sqlite storage backend.
type SQLite struct {
	db          *sql.DB
	maintenance db.Maintenance
	log         *logger.Logger
}

var _ Backend = (*SQLite)(nil)

// OpenSQLite opens the database described by cfg and migrates it.
func OpenSQLite(cfg config.DatabaseConfig, log *logger.Logger) (*SQLite, error) {
	sqlDB, err := db.NewSQLiteDBFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	if err := migrations.RunSQLite(log, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLite{
		db:          sqlDB,
		maintenance: db.NewMaintenanceCoordinator(cfg.Path, sqlDB, cfg.Maintenance, log),
		log:         log,
	}, nil
}

// Begin opens the batch of the block at height. The batch holds the maintenance
// operation lock until it is committed or rolled back.
func (s *SQLite) Begin(ctx context.Context, height uint64, atomic bool) (Batch, error) {
	release := s.maintenance.AcquireOperationLock()

	if !atomic {
		return newSQLiteBatch(s.db, nil, height, release), nil
	}

	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	db.ObserveQuery(backendSQLite, "begin", start, err)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return newSQLiteBatch(tx, tx, height, release), nil
}

// Checkpoints returns a checkpoint store writing outside of any batch.
func (s *SQLite) Checkpoints() checkpoint.Store {
	return &sqliteCheckpoints{q: s.db}
}

// Entities returns an entity store writing outside of any batch.
func (s *SQLite) Entities() entity.Store {
	return &sqliteEntities{q: s.db}
}

// Instances returns the persisted template instances of namespace.
func (s *SQLite) Instances(ctx context.Context, namespace string) (instances []registry.Instance, err error) {
	defer observe(backendSQLite, "instances", time.Now(), &err)

	var rows []*registry.Instance
	err = meddler.QueryAll(s.db, &rows,
		`SELECT * FROM source_instances WHERE namespace = ? ORDER BY seq ASC, created_at ASC`, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	instances = make([]registry.Instance, len(rows))
	for i, row := range rows {
		instances[i] = *row
	}

	return instances, nil
}

// ListEntities returns a page of entities of one type.
func (s *SQLite) ListEntities(ctx context.Context, namespace, typ, after string, limit int) ([]*entity.Entity, error) {
	start := time.Now()

	var rows []*entityRow
	err := meddler.QueryAll(s.db, &rows,
		`SELECT * FROM entities WHERE namespace = ? AND type = ? AND id > ? ORDER BY id ASC LIMIT ?`,
		namespace, typ, after, listLimit(limit))
	db.ObserveQuery(backendSQLite, "list_entities", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	out := make([]*entity.Entity, len(rows))
	for i, row := range rows {
		out[i] = row.toEntity()
	}

	return out, nil
}

// Start launches background database maintenance when configured.
func (s *SQLite) Start(ctx context.Context) error {
	return s.maintenance.Start(ctx)
}

// Close stops maintenance and closes the database.
func (s *SQLite) Close() error {
	if err := s.maintenance.Stop(); err != nil {
		s.log.Warnf("failed to stop maintenance: %v", err)
	}

	return s.db.Close()
}

type sqliteBatch struct {
	q       querier
	tx      *sql.Tx
	height  uint64
	release func()
	once    sync.Once
}

func newSQLiteBatch(q querier, tx *sql.Tx, height uint64, release func()) *sqliteBatch {
	return &sqliteBatch{q: q, tx: tx, height: height, release: release}
}

func (b *sqliteBatch) Entities() entity.Store {
	return &sqliteEntities{q: b.q, height: b.height}
}

func (b *sqliteBatch) Checkpoints() checkpoint.Store {
	return &sqliteCheckpoints{q: b.q}
}

func (b *sqliteBatch) SaveInstance(ctx context.Context, inst registry.Instance) (err error) {
	defer observe(backendSQLite, "save_instance", time.Now(), &err)

	_, err = b.q.ExecContext(ctx, `
		INSERT INTO source_instances (namespace, template, address, start, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (namespace, template, address) DO NOTHING`,
		inst.Namespace, inst.Template, inst.Address.Hex(), inst.Start, inst.CreatedAt, inst.Seq)
	if err != nil {
		return fmt.Errorf("failed to save instance: %w", err)
	}

	return nil
}

func (b *sqliteBatch) Commit() (err error) {
	defer b.once.Do(b.release)

	if b.tx == nil {
		return nil
	}

	start := time.Now()
	err = b.tx.Commit()
	db.ObserveQuery(backendSQLite, "commit", start, err)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (b *sqliteBatch) Rollback() error {
	defer b.once.Do(b.release)

	if b.tx == nil {
		return nil
	}

	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	return nil
}

type sqliteEntities struct {
	q      querier
	height uint64
}

func (s *sqliteEntities) Load(ctx context.Context, typ, id, namespace string) (*entity.Entity, error) {
	start := time.Now()

	var row entityRow
	err := meddler.QueryRow(s.q, &row,
		`SELECT * FROM entities WHERE namespace = ? AND type = ? AND id = ?`, namespace, typ, id)
	if errors.Is(err, sql.ErrNoRows) {
		db.ObserveQuery(backendSQLite, "load_entity", start, nil)
		return nil, nil
	}
	db.ObserveQuery(backendSQLite, "load_entity", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", typ, id, err)
	}

	return row.toEntity(), nil
}

func (s *sqliteEntities) Save(ctx context.Context, e *entity.Entity) (err error) {
	defer observe(backendSQLite, "save_entity", time.Now(), &err)

	fields, err := db.EncodeFields(e.Fields)
	if err != nil {
		return err
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO entities (namespace, type, id, fields, updated_height)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (namespace, type, id) DO UPDATE SET
			fields = json_patch(entities.fields, excluded.fields),
			updated_height = excluded.updated_height`,
		e.Namespace, e.Type, e.ID, fields, s.height)
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", e.Type, e.ID, err)
	}

	return nil
}

func (s *sqliteEntities) Insert(ctx context.Context, e *entity.Entity) (inserted bool, err error) {
	defer observe(backendSQLite, "insert_entity", time.Now(), &err)

	fields, err := db.EncodeFields(e.Fields)
	if err != nil {
		return false, err
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO entities (namespace, type, id, fields, updated_height)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (namespace, type, id) DO NOTHING`,
		e.Namespace, e.Type, e.ID, fields, s.height)
	if err != nil {
		return false, fmt.Errorf("failed to insert %s %s: %w", e.Type, e.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

type sqliteCheckpoints struct {
	q querier
}

func (s *sqliteCheckpoints) Get(ctx context.Context, namespace string) (*checkpoint.Checkpoint, error) {
	start := time.Now()

	var cp checkpoint.Checkpoint
	err := meddler.QueryRow(s.q, &cp, `SELECT * FROM checkpoints WHERE namespace = ?`, namespace)
	if errors.Is(err, sql.ErrNoRows) {
		db.ObserveQuery(backendSQLite, "get_checkpoint", start, nil)
		return nil, nil
	}
	db.ObserveQuery(backendSQLite, "get_checkpoint", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	return &cp, nil
}

func (s *sqliteCheckpoints) Advance(ctx context.Context, namespace string, height uint64, blockHash common.Hash) (err error) {
	defer observe(backendSQLite, "advance_checkpoint", time.Now(), &err)

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO checkpoints (namespace, height, block_hash, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace) DO UPDATE SET
			height = excluded.height,
			block_hash = excluded.block_hash,
			updated_at = excluded.updated_at
		WHERE excluded.height > checkpoints.height`,
		namespace, height, blockHash.Hex(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to advance checkpoint: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: namespace %s is already at or above %d", checkpoint.ErrRegression, namespace, height)
	}

	return nil
}

func (s *sqliteCheckpoints) Reset(ctx context.Context, namespace string, height uint64) (err error) {
	defer observe(backendSQLite, "reset_checkpoint", time.Now(), &err)

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO checkpoints (namespace, height, block_hash, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace) DO UPDATE SET
			height = excluded.height,
			block_hash = excluded.block_hash,
			updated_at = excluded.updated_at`,
		namespace, height, common.Hash{}.Hex(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}

	return nil
}
