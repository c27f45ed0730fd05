package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goran-ethernal/GovIndexor/internal/common"
	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/pkg/config"
	"github.com/stretchr/testify/require"
)

func setupMaintenanceTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "maintenance.db")

	dbConfig := config.DatabaseConfig{
		Path:        dbPath,
		JournalMode: "WAL",
		Synchronous: "NORMAL",
		BusyTimeout: 5000,
		CacheSize:   10000,
	}
	dbConfig.ApplyDefaults()

	db, err := NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS test_data (id INTEGER PRIMARY KEY, data TEXT)`)
	require.NoError(t, err)

	return db, dbPath
}

func testMaintenanceConfig(enabled bool, interval time.Duration) *config.MaintenanceConfig {
	return &config.MaintenanceConfig{
		Enabled:           enabled,
		CheckInterval:     common.NewDuration(interval),
		WALCheckpointMode: "TRUNCATE",
	}
}

func TestNewMaintenanceCoordinator(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)
	log := logger.NewNopLogger()

	m := NewMaintenanceCoordinator(dbPath, db, nil, log)
	require.IsType(t, NoOpMaintenance{}, m)

	m = NewMaintenanceCoordinator(dbPath, db, testMaintenanceConfig(true, time.Minute), log)
	coordinator, ok := m.(*MaintenanceCoordinator)
	require.True(t, ok)
	require.Equal(t, "TRUNCATE", coordinator.config.WALCheckpointMode)
	require.Equal(t, common.ComponentStorage, coordinator.log.GetComponent())
}

func TestMaintenanceCoordinator_RunMaintenance(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)

	for i := range 200 {
		_, err := db.Exec(`INSERT INTO test_data (id, data) VALUES (?, ?)`, i, "payload payload payload")
		require.NoError(t, err)
	}
	_, err := db.Exec(`DELETE FROM test_data`)
	require.NoError(t, err)

	m := NewMaintenanceCoordinator(dbPath, db, testMaintenanceConfig(true, time.Minute), logger.NewNopLogger())
	require.NoError(t, m.RunMaintenance(context.Background()))

	size, err := DBTotalSize(dbPath)
	require.NoError(t, err)
	require.Positive(t, size)
}

func TestMaintenanceCoordinator_RunMaintenanceCanceled(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)

	m := NewMaintenanceCoordinator(dbPath, db, testMaintenanceConfig(true, time.Minute), logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, m.RunMaintenance(ctx), context.Canceled)
}

func TestMaintenanceCoordinator_WaitsForOperations(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)

	m := NewMaintenanceCoordinator(dbPath, db, testMaintenanceConfig(true, time.Minute), logger.NewNopLogger())

	unlock := m.AcquireOperationLock()

	var finished atomic.Bool
	done := make(chan error, 1)
	go func() {
		err := m.RunMaintenance(context.Background())
		finished.Store(true)
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	require.False(t, finished.Load(), "maintenance must wait for the in-flight operation")

	unlock()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("maintenance did not complete after the operation lock was released")
	}
}

func TestMaintenanceCoordinator_StartStop(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)

	t.Run("disabled", func(t *testing.T) {
		m := NewMaintenanceCoordinator(dbPath, db, testMaintenanceConfig(false, time.Minute), logger.NewNopLogger())
		require.NoError(t, m.Start(context.Background()))
		require.NoError(t, m.Stop())
	})

	t.Run("periodic", func(t *testing.T) {
		cfg := testMaintenanceConfig(true, 20*time.Millisecond)
		cfg.VacuumOnStartup = true

		m := NewMaintenanceCoordinator(dbPath, db, cfg, logger.NewNopLogger())
		require.NoError(t, m.Start(context.Background()))

		time.Sleep(100 * time.Millisecond)

		// operations still get through between runs
		unlock := m.AcquireOperationLock()
		unlock()

		require.NoError(t, m.Stop())
		// second stop is harmless
		require.NoError(t, m.Stop())
	})
}

func TestNoOpMaintenance(t *testing.T) {
	var m Maintenance = NoOpMaintenance{}

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.RunMaintenance(context.Background()))
	m.AcquireOperationLock()()
	require.NoError(t, m.Stop())
}
