package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/internal/registry"
	"github.com/goran-ethernal/GovIndexor/pkg/checkpoint"
	"github.com/goran-ethernal/GovIndexor/pkg/config"
	"github.com/goran-ethernal/GovIndexor/pkg/entity"
	"github.com/stretchr/testify/require"
)

const postgresURLEnv = "GOVINDEXOR_TEST_POSTGRES_URL"

func newTestSQLite(t *testing.T) Backend {
	t.Helper()

	cfg := config.StorageConfig{
		Driver: config.StorageDriverSQLite,
		SQLite: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "storage.db")},
	}
	cfg.ApplyDefaults()

	backend, err := Open(context.Background(), cfg, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, backend.Close()) })

	return backend
}

func newTestPostgres(t *testing.T) Backend {
	t.Helper()

	url := os.Getenv(postgresURLEnv)
	if url == "" {
		t.Skipf("%s is not set", postgresURLEnv)
	}

	cfg := config.StorageConfig{
		Driver:   config.StorageDriverPostgres,
		Postgres: &config.PostgresConfig{URL: url},
	}
	cfg.ApplyDefaults()

	backend, err := Open(context.Background(), cfg, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, backend.Close()) })

	return backend
}

func TestSQLiteBackend(t *testing.T) {
	runBackendSuite(t, newTestSQLite)
}

func TestPostgresBackend(t *testing.T) {
	runBackendSuite(t, newTestPostgres)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StorageConfig{Driver: "mongo"}, logger.NewNopLogger())
	require.ErrorContains(t, err, `unsupported storage driver "mongo"`)

	_, err = Open(context.Background(), config.StorageConfig{Driver: config.StorageDriverPostgres}, logger.NewNopLogger())
	require.ErrorContains(t, err, "postgres configuration is missing")
}

func TestListLimit(t *testing.T) {
	require.Equal(t, DefaultListLimit, listLimit(0))
	require.Equal(t, DefaultListLimit, listLimit(-3))
	require.Equal(t, 7, listLimit(7))
	require.Equal(t, MaxListLimit, listLimit(MaxListLimit+1))
}

// runBackendSuite exercises the Backend contract. Every case uses its own namespace so
// the suite can run against a shared database.
func runBackendSuite(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Helper()

	backend := newBackend(t)
	ctx := context.Background()
	run := time.Now().UnixNano()
	namespace := func(name string) string { return fmt.Sprintf("%s-%d", name, run) }

	t.Run("checkpoints", func(t *testing.T) {
		ns := namespace("checkpoints")
		store := backend.Checkpoints()

		cp, err := store.Get(ctx, ns)
		require.NoError(t, err)
		require.Nil(t, cp)

		height, err := checkpoint.ResumeHeight(ctx, store, ns, 100)
		require.NoError(t, err)
		require.Equal(t, uint64(100), height)

		hash := common.HexToHash("0xabc")
		require.NoError(t, store.Advance(ctx, ns, 120, hash))

		cp, err = store.Get(ctx, ns)
		require.NoError(t, err)
		require.Equal(t, ns, cp.Namespace)
		require.Equal(t, uint64(120), cp.Height)
		require.Equal(t, hash, cp.BlockHash)
		require.Positive(t, cp.UpdatedAt)

		height, err = checkpoint.ResumeHeight(ctx, store, ns, 100)
		require.NoError(t, err)
		require.Equal(t, uint64(121), height)

		require.ErrorIs(t, store.Advance(ctx, ns, 120, hash), checkpoint.ErrRegression)
		require.ErrorIs(t, store.Advance(ctx, ns, 119, hash), checkpoint.ErrRegression)
		require.NoError(t, store.Advance(ctx, ns, 121, hash))

		require.NoError(t, store.Reset(ctx, ns, 50))
		cp, err = store.Get(ctx, ns)
		require.NoError(t, err)
		require.Equal(t, uint64(50), cp.Height)
		require.Equal(t, common.Hash{}, cp.BlockHash)

		other, err := store.Get(ctx, namespace("checkpoints-other"))
		require.NoError(t, err)
		require.Nil(t, other)
	})

	t.Run("entity merge", func(t *testing.T) {
		ns := namespace("entities")
		store := backend.Entities()

		loaded, err := store.Load(ctx, "proposal", "1", ns)
		require.NoError(t, err)
		require.Nil(t, loaded)

		e := entity.New("proposal", "1", ns)
		e.SetString("title", "first")
		e.SetString("state", "created")
		e.SetInt64("votes", 3)
		require.NoError(t, store.Save(ctx, e))

		update := entity.New("proposal", "1", ns)
		update.SetString("state", "executed")
		update.SetBool("final", true)
		require.NoError(t, store.Save(ctx, update))

		loaded, err = store.Load(ctx, "proposal", "1", ns)
		require.NoError(t, err)
		require.Equal(t, "first", stringField(t, loaded, "title"))
		require.Equal(t, "executed", stringField(t, loaded, "state"))
		final, err := loaded.GetBool("final")
		require.NoError(t, err)
		require.True(t, final)

		votes, err := loaded.GetInt64("votes")
		require.NoError(t, err)
		require.Equal(t, int64(3), votes)

		// same key in another namespace is a different entity
		foreign, err := store.Load(ctx, "proposal", "1", namespace("entities-other"))
		require.NoError(t, err)
		require.Nil(t, foreign)
	})

	t.Run("entity insert and increment", func(t *testing.T) {
		ns := namespace("insert")
		store := backend.Entities()

		meta := entity.New("metadata", "0xhash", ns)
		meta.SetString("body", "hello")

		inserted, err := store.Insert(ctx, meta)
		require.NoError(t, err)
		require.True(t, inserted)

		meta.SetString("body", "changed")
		inserted, err = store.Insert(ctx, meta)
		require.NoError(t, err)
		require.False(t, inserted)

		loaded, err := store.Load(ctx, "metadata", "0xhash", ns)
		require.NoError(t, err)
		require.Equal(t, "hello", stringField(t, loaded, "body"))

		for range 3 {
			_, err := entity.Increment(ctx, store, "user", "alice", ns, 1, "votes")
			require.NoError(t, err)
		}
		user, err := store.Load(ctx, "user", "alice", ns)
		require.NoError(t, err)
		count, err := user.GetUint64("votes")
		require.NoError(t, err)
		require.Equal(t, uint64(3), count)
	})

	t.Run("atomic batch", func(t *testing.T) {
		ns := namespace("atomic")
		hash := common.HexToHash("0x01")
		inst := registry.Instance{
			Namespace: ns,
			Template:  "Governor",
			Address:   common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
			Start:     10,
			CreatedAt: 10,
		}

		write := func(batch Batch) {
			e := entity.New("space", "s1", ns)
			e.SetString("name", "dao")
			require.NoError(t, batch.Entities().Save(ctx, e))
			require.NoError(t, batch.SaveInstance(ctx, inst))
			require.NoError(t, batch.Checkpoints().Advance(ctx, ns, 10, hash))

			// the batch sees its own writes
			loaded, err := batch.Entities().Load(ctx, "space", "s1", ns)
			require.NoError(t, err)
			require.NotNil(t, loaded)
		}

		batch, err := backend.Begin(ctx, 10, true)
		require.NoError(t, err)
		write(batch)
		require.NoError(t, batch.Rollback())
		// rolling back twice is harmless
		require.NoError(t, batch.Rollback())

		loaded, err := backend.Entities().Load(ctx, "space", "s1", ns)
		require.NoError(t, err)
		require.Nil(t, loaded)
		cp, err := backend.Checkpoints().Get(ctx, ns)
		require.NoError(t, err)
		require.Nil(t, cp)
		instances, err := backend.Instances(ctx, ns)
		require.NoError(t, err)
		require.Empty(t, instances)

		batch, err = backend.Begin(ctx, 10, true)
		require.NoError(t, err)
		write(batch)
		require.NoError(t, batch.Commit())

		loaded, err = backend.Entities().Load(ctx, "space", "s1", ns)
		require.NoError(t, err)
		require.Equal(t, "dao", stringField(t, loaded, "name"))
		cp, err = backend.Checkpoints().Get(ctx, ns)
		require.NoError(t, err)
		require.Equal(t, uint64(10), cp.Height)
		instances, err = backend.Instances(ctx, ns)
		require.NoError(t, err)
		require.Equal(t, []registry.Instance{inst}, instances)
	})

	t.Run("non-atomic batch writes through", func(t *testing.T) {
		ns := namespace("nonatomic")

		batch, err := backend.Begin(ctx, 7, false)
		require.NoError(t, err)

		e := entity.New("vote", "v1", ns)
		e.SetString("choice", "for")
		require.NoError(t, batch.Entities().Save(ctx, e))

		loaded, err := backend.Entities().Load(ctx, "vote", "v1", ns)
		require.NoError(t, err)
		require.NotNil(t, loaded)

		require.NoError(t, batch.Rollback())

		loaded, err = backend.Entities().Load(ctx, "vote", "v1", ns)
		require.NoError(t, err)
		require.NotNil(t, loaded, "non-atomic writes survive a rollback")
	})

	t.Run("instances", func(t *testing.T) {
		ns := namespace("instances")
		first := registry.Instance{
			Namespace: ns, Template: "Governor",
			Address: common.HexToAddress("0x01"), Start: 5, CreatedAt: 5, Seq: 0,
		}
		second := registry.Instance{
			Namespace: ns, Template: "Governor",
			Address: common.HexToAddress("0x02"), Start: 6, CreatedAt: 6, Seq: 1,
		}

		batch, err := backend.Begin(ctx, 6, true)
		require.NoError(t, err)
		require.NoError(t, batch.SaveInstance(ctx, second))
		require.NoError(t, batch.SaveInstance(ctx, first))
		// redelivery of the registering event
		require.NoError(t, batch.SaveInstance(ctx, first))
		require.NoError(t, batch.Commit())

		instances, err := backend.Instances(ctx, ns)
		require.NoError(t, err)
		require.Equal(t, []registry.Instance{first, second}, instances)
	})

	t.Run("list entities", func(t *testing.T) {
		ns := namespace("list")
		store := backend.Entities()

		for _, id := range []string{"c", "a", "b", "d"} {
			e := entity.New("space", id, ns)
			e.SetString("id", id)
			require.NoError(t, store.Save(ctx, e))
		}
		other := entity.New("proposal", "a", ns)
		require.NoError(t, store.Save(ctx, other))

		page, err := backend.ListEntities(ctx, ns, "space", "", 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		require.Equal(t, "a", page[0].ID)
		require.Equal(t, "b", page[1].ID)
		require.Equal(t, "a", stringField(t, page[0], "id"))

		page, err = backend.ListEntities(ctx, ns, "space", "b", 0)
		require.NoError(t, err)
		require.Len(t, page, 2)
		require.Equal(t, "c", page[0].ID)
		require.Equal(t, "d", page[1].ID)
	})
}

func stringField(t *testing.T, e *entity.Entity, key string) string {
	t.Helper()

	v, err := e.GetString(key)
	require.NoError(t, err)

	return v
}
