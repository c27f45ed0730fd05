package db

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/pkg/config"
	"github.com/russross/meddler"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T, journal string) (*sql.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	dbConfig := config.DatabaseConfig{Path: dbPath, JournalMode: journal}
	dbConfig.ApplyDefaults()

	sqlDB, err := NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return sqlDB, dbPath
}

func TestNewSQLiteDBFromConfig(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{"WAL", "DELETE"} {
		t.Run(mode, func(t *testing.T) {
			t.Parallel()

			sqlDB, _ := setupTestDB(t, mode)

			var journal string
			require.NoError(t, sqlDB.QueryRow("PRAGMA journal_mode").Scan(&journal))
			require.True(t, strings.EqualFold(mode, journal), "journal mode %s", journal)
		})
	}
}

func TestDBTotalSize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mainPath := filepath.Join(dir, "main.db")

	size, err := DBTotalSize(mainPath)
	require.NoError(t, err)
	require.Zero(t, size)

	require.NoError(t, os.WriteFile(mainPath, []byte("main-db"), 0o644))
	size, err = DBTotalSize(mainPath)
	require.NoError(t, err)
	require.Equal(t, int64(len("main-db")), size)

	require.NoError(t, os.WriteFile(mainPath+"-wal", []byte("wal-content"), 0o644))
	require.NoError(t, os.WriteFile(mainPath+"-shm", []byte("shm"), 0o644))
	size, err = DBTotalSize(mainPath)
	require.NoError(t, err)
	require.Equal(t, int64(len("main-db")+len("wal-content")+len("shm")), size)
}

const testMigration = `
-- +migrate Down
DROP TABLE IF EXISTS records;

-- +migrate Up
CREATE TABLE records (
    id      TEXT PRIMARY KEY,
    owner   TEXT NOT NULL,
    tx_hash TEXT NOT NULL,
    fields  TEXT NOT NULL DEFAULT '{}'
);
`

type record struct {
	ID     string         `meddler:"id"`
	Owner  common.Address `meddler:"owner,address"`
	TxHash *common.Hash   `meddler:"tx_hash,hash"`
	Fields map[string]any `meddler:"fields,fields"`
}

func TestRunMigrationsAndMeddlers(t *testing.T) {
	t.Parallel()

	sqlDB, _ := setupTestDB(t, "WAL")
	log := logger.NewNopLogger()

	migrations := []Migration{{ID: "001_records.sql", SQL: testMigration}}
	require.NoError(t, RunMigrationsDB(log, sqlDB, DialectSQLite, migrations))
	// idempotent
	require.NoError(t, RunMigrationsDB(log, sqlDB, DialectSQLite, migrations))

	txHash := common.HexToHash("0xff")
	in := &record{
		ID:     "r1",
		Owner:  common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		TxHash: &txHash,
		Fields: map[string]any{"votes": "18446744073709551616", "count": 3, "title": "hi"},
	}
	require.NoError(t, meddler.Insert(sqlDB, "records", in))

	var owner string
	require.NoError(t, sqlDB.QueryRow(`SELECT owner FROM records WHERE id = ?`, "r1").Scan(&owner))
	require.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", owner)

	var out record
	require.NoError(t, meddler.QueryRow(sqlDB, &out, `SELECT * FROM records WHERE id = ?`, "r1"))

	require.Equal(t, in.Owner, out.Owner)
	require.NotNil(t, out.TxHash)
	require.Equal(t, txHash, *out.TxHash)
	require.Equal(t, "18446744073709551616", out.Fields["votes"])
	require.Equal(t, json.Number("3"), out.Fields["count"])
	require.Equal(t, "hi", out.Fields["title"])
}

func TestRunMigrations_MissingSeparator(t *testing.T) {
	t.Parallel()

	sqlDB, _ := setupTestDB(t, "WAL")

	err := RunMigrationsDB(logger.NewNopLogger(), sqlDB, DialectSQLite,
		[]Migration{{ID: "bad.sql", SQL: "CREATE TABLE x (id INTEGER);"}})
	require.ErrorContains(t, err, "missing '-- +migrate Up' separator")
}

func TestHexMeddler_Null(t *testing.T) {
	t.Parallel()

	m := hexMeddler[common.Hash]{decode: common.HexToHash}

	saved, err := m.PreWrite((*common.Hash)(nil))
	require.NoError(t, err)
	require.Nil(t, saved)

	_, err = m.PreWrite("0x01")
	require.Error(t, err)

	var ptr *common.Hash
	target, err := m.PreRead(&ptr)
	require.NoError(t, err)
	require.NoError(t, m.PostRead(&ptr, target))
	require.Nil(t, ptr)

	var addr common.Address
	require.Error(t, m.PostRead(&addr, target))
}

func TestFieldsMeddler(t *testing.T) {
	t.Parallel()

	m := FieldsMeddler{}

	saved, err := m.PreWrite(map[string]any{"a": "1"})
	require.NoError(t, err)
	require.JSONEq(t, `{"a":"1"}`, saved.(string))

	saved, err = m.PreWrite(map[string]any(nil))
	require.NoError(t, err)
	require.Equal(t, "{}", saved)

	_, err = m.PreWrite("nope")
	require.Error(t, err)

	var fields map[string]any
	target, err := m.PreRead(&fields)
	require.NoError(t, err)
	target.(*sql.NullString).String = `{"n":12345678901234567890}`
	target.(*sql.NullString).Valid = true
	require.NoError(t, m.PostRead(&fields, target))
	require.Equal(t, json.Number("12345678901234567890"), fields["n"])

	empty, err := DecodeFields(nil)
	require.NoError(t, err)
	require.Empty(t, empty)

	_, err = DecodeFields([]byte("[1,2]"))
	require.Error(t, err)
}
