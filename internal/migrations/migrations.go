// Package migrations holds the compilation cache schema and applies it with
// golang-migrate.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	bkfs "github.com/bundlekit/bundlekit/internal/fs"
	"github.com/bundlekit/bundlekit/internal/logging"
)

// compilations holds one row per successful compiler invocation, keyed by
// the fingerprint of its inputs. Rows are never updated in place by a
// migration: add a new one instead.
var compilations = createSQLTable("compilations").
	VarCharPrimaryKeyColumn("cache_key").
	BlobNonNullColumn("text").
	TextColumn("warnings").
	TimestampDefaultCurrentTimeColumn("created_at")

func kindOf(dialect string) (int, error) {
	switch dialect {
	case "sqlite":
		return sqlite, nil
	case "postgresql":
		return postgres, nil
	case "mysql":
		return mysql, nil
	}
	return 0, fmt.Errorf("unsupported dialect %q", dialect)
}

// Migrations returns the migration files for dialect, named the way
// golang-migrate expects them.
func Migrations(dialect string) (fs.FS, error) {
	kind, err := kindOf(dialect)
	if err != nil {
		return nil, err
	}

	return bkfs.MapFS(map[string]string{
		"001_compilations.up.sql":            compilations.SQL(kind),
		"002_compilations_created_at.up.sql": `CREATE INDEX compilations_created_at ON compilations (created_at);`,
	}), nil
}

// Up applies all pending migrations to db. Cancelling ctx stops after the
// migration in progress.
func Up(ctx context.Context, db *sql.DB, dialect string, log *logging.Logger) error {
	fsys, err := Migrations(dialect)
	if err != nil {
		return err
	}

	src, err := iofs.New(fsys, ".")
	if err != nil {
		return err
	}
	defer src.Close()

	var drv database.Driver
	switch dialect {
	case "sqlite":
		drv, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case "postgresql":
		drv, err = pgx.WithInstance(db, &pgx.Config{})
	case "mysql":
		drv, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	}
	if err != nil {
		return fmt.Errorf("failed to prepare %s migrations: %w", dialect, err)
	}

	// NB: m.Close() would close db along with the driver, so it is never called.
	m, err := migrate.NewWithInstance("iofs", src, dialect, drv)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debugf("cache schema is up to date")
			return nil
		}
		return fmt.Errorf("failed to migrate cache schema: %w", err)
	}

	if version, _, err := m.Version(); err == nil {
		log.Debugf("cache schema migrated to version %d", version)
	}
	return nil
}
