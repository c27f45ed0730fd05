package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/goran-ethernal/GovIndexor/internal/logger"
	migrate "github.com/rubenv/sql-migrate"
)

const (
	UpDownSeparator     = "-- +migrate Up"
	downMarker          = "-- +migrate Down"
	NoLimitMigrations   = 0 // indicate that there is no limit on the number of migrations to run
	migrationDirections = 2

	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

type Migration struct {
	ID  string
	SQL string
}

// RunMigrationsDB applies every pending migration upwards.
func RunMigrationsDB(logger *logger.Logger, db *sql.DB, dialect string, migrationsParam []Migration) error {
	return RunMigrationsDBExtended(logger, db, dialect, migrationsParam, migrate.Up, NoLimitMigrations)
}

// buildMigrationSource splits each migration into its Down and Up sections.
// The Down section comes first and may start with the "-- +migrate Down" marker.
func buildMigrationSource(migrationsParam []Migration) (*migrate.MemoryMigrationSource, error) {
	migs := &migrate.MemoryMigrationSource{Migrations: []*migrate.Migration{}}

	for _, m := range migrationsParam {
		splitted := strings.Split(m.SQL, UpDownSeparator)
		if len(splitted) < migrationDirections {
			return nil, fmt.Errorf("migration %s missing '%s' separator", m.ID, UpDownSeparator)
		}

		downSQL := splitted[0]
		if idx := strings.Index(downSQL, downMarker); idx != -1 {
			downSQL = downSQL[idx+len(downMarker):]
		}

		migs.Migrations = append(migs.Migrations, &migrate.Migration{
			Id:   m.ID,
			Up:   []string{strings.TrimSpace(splitted[1])},
			Down: []string{strings.TrimSpace(downSQL)},
		})
	}

	return migs, nil
}

// RunMigrationsDBExtended is an extended version of RunMigrationsDB that allows
// dir: can be migrate.Up or migrate.Down
// maxMigrations: Will apply at most `max` migrations. Pass 0 for no limit (or use Exec)
func RunMigrationsDBExtended(logger *logger.Logger,
	db *sql.DB,
	dialect string,
	migrationsParam []Migration,
	dir migrate.MigrationDirection,
	maxMigrations int) error {
	migs, err := buildMigrationSource(migrationsParam)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(migs.Migrations))
	for _, m := range migs.Migrations {
		ids = append(ids, m.Id)
	}
	listMigrations := strings.Join(ids, ", ")

	logger.Debugf("running %s migrations: (max %d/%d) migrations: %s", dialect, maxMigrations,
		len(migs.Migrations), listMigrations)

	nMigrations, err := migrate.ExecMax(db, dialect, migs, dir, maxMigrations)
	if err != nil {
		return fmt.Errorf("error executing migration (max %d/%d) migrations: %s . Err: %w",
			maxMigrations, len(migs.Migrations), listMigrations, err)
	}

	logger.Infof("successfully ran %d migrations from migrations: %s", nMigrations, listMigrations)
	return nil
}
