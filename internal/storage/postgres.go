package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/GovIndexor/internal/db"
	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/internal/migrations"
	"github.com/goran-ethernal/GovIndexor/internal/registry"
	"github.com/goran-ethernal/GovIndexor/pkg/checkpoint"
	"github.com/goran-ethernal/GovIndexor/pkg/config"
	"github.com/goran-ethernal/GovIndexor/pkg/entity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

const backendPostgres = "postgres"

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the postgres storage backend. One pool serves every namespace; rows are
// partitioned by their namespace column.
type Postgres struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

var _ Backend = (*Postgres)(nil)

// OpenPostgres connects to the database described by cfg and migrates it.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig, log *logger.Logger) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	err = migrations.RunPostgres(log, sqlDB)
	sqlDB.Close()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Postgres{pool: pool, log: log}, nil
}

// Begin opens the batch of the block at height.
func (p *Postgres) Begin(ctx context.Context, height uint64, atomic bool) (Batch, error) {
	if !atomic {
		return &pgBatch{ctx: ctx, q: p.pool, height: height}, nil
	}

	start := time.Now()
	tx, err := p.pool.Begin(ctx)
	db.ObserveQuery(backendPostgres, "begin", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &pgBatch{ctx: ctx, q: tx, tx: tx, height: height}, nil
}

func (p *Postgres) Checkpoints() checkpoint.Store {
	return &pgCheckpoints{q: p.pool}
}

func (p *Postgres) Entities() entity.Store {
	return &pgEntities{q: p.pool}
}

// Instances returns the persisted template instances of namespace.
func (p *Postgres) Instances(ctx context.Context, namespace string) (instances []registry.Instance, err error) {
	defer observe(backendPostgres, "instances", time.Now(), &err)

	rows, err := p.pool.Query(ctx, `
		SELECT namespace, template, address, start, created_at, seq
		FROM source_instances WHERE namespace = $1
		ORDER BY seq ASC, created_at ASC`, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			inst    registry.Instance
			address string
		)
		if err := rows.Scan(&inst.Namespace, &inst.Template, &address, &inst.Start, &inst.CreatedAt, &inst.Seq); err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		inst.Address = common.HexToAddress(address)
		instances = append(instances, inst)
	}

	return instances, rows.Err()
}

// ListEntities returns a page of entities of one type.
func (p *Postgres) ListEntities(ctx context.Context, namespace, typ, after string, limit int) (out []*entity.Entity, err error) {
	defer observe(backendPostgres, "list_entities", time.Now(), &err)

	rows, err := p.pool.Query(ctx, `
		SELECT id, fields::text FROM entities
		WHERE namespace = $1 AND type = $2 AND id > $3
		ORDER BY id ASC LIMIT $4`, namespace, typ, after, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, fields string
		if err := rows.Scan(&id, &fields); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}

		e, err := decodeEntity(typ, id, namespace, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	return out, rows.Err()
}

// Start is a no-op; postgres needs no in-process maintenance.
func (p *Postgres) Start(context.Context) error {
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func decodeEntity(typ, id, namespace, fields string) (*entity.Entity, error) {
	decoded, err := db.DecodeFields([]byte(fields))
	if err != nil {
		return nil, fmt.Errorf("entity %s %s: %w", typ, id, err)
	}

	e := entity.New(typ, id, namespace)
	e.Fields = decoded

	return e, nil
}

type pgBatch struct {
	// ctx is the context of the block the batch belongs to; pgx needs it to commit.
	ctx    context.Context
	q      pgQuerier
	tx     pgx.Tx
	height uint64
}

func (b *pgBatch) Entities() entity.Store {
	return &pgEntities{q: b.q, height: b.height}
}

func (b *pgBatch) Checkpoints() checkpoint.Store {
	return &pgCheckpoints{q: b.q}
}

func (b *pgBatch) SaveInstance(ctx context.Context, inst registry.Instance) (err error) {
	defer observe(backendPostgres, "save_instance", time.Now(), &err)

	_, err = b.q.Exec(ctx, `
		INSERT INTO source_instances (namespace, template, address, start, created_at, seq)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (namespace, template, address) DO NOTHING`,
		inst.Namespace, inst.Template, inst.Address.Hex(), inst.Start, inst.CreatedAt, inst.Seq)
	if err != nil {
		return fmt.Errorf("failed to save instance: %w", err)
	}

	return nil
}

func (b *pgBatch) Commit() (err error) {
	if b.tx == nil {
		return nil
	}

	defer observe(backendPostgres, "commit", time.Now(), &err)

	if err = b.tx.Commit(b.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (b *pgBatch) Rollback() error {
	if b.tx == nil {
		return nil
	}

	err := b.tx.Rollback(context.WithoutCancel(b.ctx))
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	return nil
}

type pgEntities struct {
	q      pgQuerier
	height uint64
}

func (s *pgEntities) Load(ctx context.Context, typ, id, namespace string) (e *entity.Entity, err error) {
	defer observe(backendPostgres, "load_entity", time.Now(), &err)

	var fields string
	err = s.q.QueryRow(ctx,
		`SELECT fields::text FROM entities WHERE namespace = $1 AND type = $2 AND id = $3`,
		namespace, typ, id).Scan(&fields)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", typ, id, err)
	}

	return decodeEntity(typ, id, namespace, fields)
}

func (s *pgEntities) Save(ctx context.Context, e *entity.Entity) (err error) {
	defer observe(backendPostgres, "save_entity", time.Now(), &err)

	fields, err := db.EncodeFields(e.Fields)
	if err != nil {
		return err
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO entities (namespace, type, id, fields, updated_height)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (namespace, type, id) DO UPDATE SET
			fields = entities.fields || EXCLUDED.fields,
			updated_height = EXCLUDED.updated_height`,
		e.Namespace, e.Type, e.ID, fields, s.height)
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", e.Type, e.ID, err)
	}

	return nil
}

func (s *pgEntities) Insert(ctx context.Context, e *entity.Entity) (inserted bool, err error) {
	defer observe(backendPostgres, "insert_entity", time.Now(), &err)

	fields, err := db.EncodeFields(e.Fields)
	if err != nil {
		return false, err
	}

	tag, err := s.q.Exec(ctx, `
		INSERT INTO entities (namespace, type, id, fields, updated_height)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (namespace, type, id) DO NOTHING`,
		e.Namespace, e.Type, e.ID, fields, s.height)
	if err != nil {
		return false, fmt.Errorf("failed to insert %s %s: %w", e.Type, e.ID, err)
	}

	return tag.RowsAffected() > 0, nil
}

type pgCheckpoints struct {
	q pgQuerier
}

func (s *pgCheckpoints) Get(ctx context.Context, namespace string) (cp *checkpoint.Checkpoint, err error) {
	defer observe(backendPostgres, "get_checkpoint", time.Now(), &err)

	var (
		row  checkpoint.Checkpoint
		hash string
	)
	err = s.q.QueryRow(ctx,
		`SELECT namespace, height, block_hash, updated_at FROM checkpoints WHERE namespace = $1`, namespace).
		Scan(&row.Namespace, &row.Height, &hash, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	row.BlockHash = common.HexToHash(hash)

	return &row, nil
}

func (s *pgCheckpoints) Advance(ctx context.Context, namespace string, height uint64, blockHash common.Hash) (err error) {
	defer observe(backendPostgres, "advance_checkpoint", time.Now(), &err)

	tag, err := s.q.Exec(ctx, `
		INSERT INTO checkpoints (namespace, height, block_hash, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace) DO UPDATE SET
			height = EXCLUDED.height,
			block_hash = EXCLUDED.block_hash,
			updated_at = EXCLUDED.updated_at
		WHERE EXCLUDED.height > checkpoints.height`,
		namespace, height, blockHash.Hex(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to advance checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: namespace %s is already at or above %d", checkpoint.ErrRegression, namespace, height)
	}

	return nil
}

func (s *pgCheckpoints) Reset(ctx context.Context, namespace string, height uint64) (err error) {
	defer observe(backendPostgres, "reset_checkpoint", time.Now(), &err)

	_, err = s.q.Exec(ctx, `
		INSERT INTO checkpoints (namespace, height, block_hash, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace) DO UPDATE SET
			height = EXCLUDED.height,
			block_hash = EXCLUDED.block_hash,
			updated_at = EXCLUDED.updated_at`,
		namespace, height, common.Hash{}.Hex(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}

	return nil
}
