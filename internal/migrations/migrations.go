package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/goran-ethernal/GovIndexor/internal/db"
	"github.com/goran-ethernal/GovIndexor/internal/logger"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// SQLite returns the sqlite schema migrations in order.
func SQLite() ([]db.Migration, error) {
	return load("sqlite")
}

// Postgres returns the postgres schema migrations in order.
func Postgres() ([]db.Migration, error) {
	return load("postgres")
}

func load(dir string) ([]db.Migration, error) {
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s migrations: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	migrations := make([]db.Migration, 0, len(names))
	for _, name := range names {
		data, err := files.ReadFile(path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		migrations = append(migrations, db.Migration{ID: name, SQL: string(data)})
	}

	return migrations, nil
}

// RunSQLite applies the sqlite schema to sqlDB.
func RunSQLite(log *logger.Logger, sqlDB *sql.DB) error {
	migs, err := SQLite()
	if err != nil {
		return err
	}

	return db.RunMigrationsDB(log, sqlDB, db.DialectSQLite, migs)
}

// RunPostgres applies the postgres schema to sqlDB.
func RunPostgres(log *logger.Logger, sqlDB *sql.DB) error {
	migs, err := Postgres()
	if err != nil {
		return err
	}

	return db.RunMigrationsDB(log, sqlDB, db.DialectPostgres, migs)
}
