// Package database implements the compilation cache. It hides the
// differences between the supported SQL databases from the rest of the
// codebase.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/achille-roussel/sqlrange"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql compatible driver for pgx
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/simukti/sqldb-logger/logadapter/zerologadapter"
	_ "modernc.org/sqlite"

	"github.com/bundlekit/bundlekit/internal/compiler"
	"github.com/bundlekit/bundlekit/internal/config"
	"github.com/bundlekit/bundlekit/internal/logging"
	"github.com/bundlekit/bundlekit/internal/migrations"
)

const (
	sqlite = iota
	postgres
	mysql
)

const SQLiteMemoryOnlyDSN = "file::memory:?cache=shared"

// Compilation is a cached successful compiler result.
type Compilation struct {
	Text     string
	Warnings []compiler.Diagnostic
}

type compilationRow struct {
	Text     []byte `sql:"text"`
	Warnings string `sql:"warnings"`
}

// Database is the compilation cache store.
type Database struct {
	db     *sql.DB
	config *config.Cache
	kind   int
	log    *logging.Logger
}

func (d *Database) DB() *sql.DB {
	return d.db
}

func (d *Database) Dialect() (string, error) {
	switch d.kind {
	case sqlite:
		return "sqlite", nil
	case postgres:
		return "postgresql", nil
	case mysql:
		return "mysql", nil
	default:
		return "", fmt.Errorf("unknown kind: %d", d.kind)
	}
}

func (d *Database) WithConfig(config *config.Cache) *Database {
	d.config = config
	return d
}

func (d *Database) WithLogger(log *logging.Logger) *Database {
	d.log = log
	return d
}

// InitDB connects to the configured database and brings its schema up to
// date. Without a configuration the cache lives in memory.
func (d *Database) InitDB(ctx context.Context) error {
	if d.log == nil {
		d.log = logging.NewNop()
	}

	driver, dsn := "sqlite", SQLiteMemoryOnlyDSN
	if d.config != nil {
		driver = d.config.Driver
		if d.config.DSN != "" {
			dsn = os.ExpandEnv(d.config.DSN)
		}
	}

	var err error
	switch driver {
	case "", "sqlite", "sqlite3":
		d.kind = sqlite
		if dsn == ":memory:" {
			dsn = SQLiteMemoryOnlyDSN
		} else if !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return fmt.Errorf("failed to create cache directory: %w", err)
			}
		}
		if d.db, err = d.open("sqlite", dsn); err != nil {
			return err
		}
		if _, err := d.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			return err
		}

	case "postgres", "pgx":
		d.kind = postgres
		if _, err := pgx.ParseConfig(dsn); err != nil {
			return err
		}
		if d.db, err = d.open("pgx", dsn); err != nil {
			return err
		}

	case "mysql":
		d.kind = mysql
		cfg, err := mysqldriver.ParseDSN(dsn)
		if err != nil {
			return err
		}
		cfg.ParseTime = true
		if d.db, err = d.open("mysql", cfg.FormatDSN()); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unsupported cache driver: %s", driver)
	}

	if err := d.db.PingContext(ctx); err != nil {
		d.db.Close()
		return fmt.Errorf("failed to connect to cache database: %w", err)
	}

	dialect, _ := d.Dialect()
	d.log.Debugf("Connected to %s compilation cache", dialect)

	if err := migrations.Up(ctx, d.db, dialect, d.log); err != nil {
		d.db.Close()
		return err
	}
	return nil
}

// open returns a handle for the registered driver. At debug level every
// statement is logged, without its arguments: those carry whole bundles.
func (d *Database) open(driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil || !d.log.Enabled(logging.Debug) {
		return db, err
	}

	drv := db.Driver()
	_ = db.Close()

	return sqldblogger.OpenDriver(dsn, drv, zerologadapter.New(d.log.Zerolog()),
		sqldblogger.WithMinimumLevel(sqldblogger.LevelDebug),
		sqldblogger.WithLogArguments(false),
		sqldblogger.WithSQLQueryAsMessage(true),
	), nil
}

func (d *Database) CloseDB() {
	d.db.Close()
}

// LookupCompilation returns the cached compilation for key, or ErrNotFound.
func (d *Database) LookupCompilation(ctx context.Context, key string) (*Compilation, error) {
	for row, err := range sqlrange.QueryContext[compilationRow](ctx,
		d.db,
		`SELECT text, warnings FROM compilations WHERE cache_key = `+d.arg(0),
		key) {
		if err != nil {
			return nil, err
		}

		c := &Compilation{Text: string(row.Text)}
		if row.Warnings != "" {
			if err := json.Unmarshal([]byte(row.Warnings), &c.Warnings); err != nil {
				return nil, fmt.Errorf("corrupt cache entry %s: %w", key, err)
			}
		}
		return c, nil
	}

	return nil, ErrNotFound
}

// StoreCompilation records entry under key, replacing any previous entry.
func (d *Database) StoreCompilation(ctx context.Context, key string, entry *Compilation) error {
	warnings, err := json.Marshal(entry.Warnings)
	if err != nil {
		return err
	}

	return tx1(ctx, d, func(tx *sql.Tx) error {
		return d.upsert(ctx, tx, "compilations", []string{"cache_key", "text", "warnings", "created_at"}, []string{"cache_key"},
			key, []byte(entry.Text), string(warnings), time.Now().UTC())
	})
}

// PruneCompilations deletes the entries stored before olderThan and
// returns how many were removed.
func (d *Database) PruneCompilations(ctx context.Context, olderThan time.Time) (int64, error) {
	var n int64
	err := tx1(ctx, d, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM compilations WHERE created_at < `+d.arg(0), olderThan.UTC())
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}

	if n > 0 {
		d.log.Debugf("Pruned %d cached compilations", n)
	}
	return n, nil
}

func (d *Database) upsert(ctx context.Context, tx *sql.Tx, table string, columns []string, primaryKey []string, values ...any) error {
	var query string
	switch d.kind {
	case sqlite:
		query = fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) VALUES (%s)`, table, strings.Join(columns, ", "),
			strings.Join(d.args(len(columns)), ", "))

	case postgres:
		set := make([]string, 0, len(columns))
		for _, c := range columns {
			if !slices.Contains(primaryKey, c) { // do not update primary key columns
				set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
			}
		}
		query = fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s`, table, strings.Join(columns, ", "),
			strings.Join(d.args(len(columns)), ", "),
			strings.Join(primaryKey, ", "),
			strings.Join(set, ", "))

	case mysql:
		set := make([]string, 0, len(columns))
		for _, c := range columns {
			set = append(set, fmt.Sprintf("%s = VALUES(%s)", c, c))
		}
		query = fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s`, table, strings.Join(columns, ", "),
			strings.Join(d.args(len(columns)), ", "),
			strings.Join(set, ", "))
	}

	_, err := tx.ExecContext(ctx, query, values...)
	return err
}

func (d *Database) arg(i int) string {
	if d.kind == postgres {
		return "$" + strconv.Itoa(i+1)
	}
	return "?"
}

func (d *Database) args(n int) []string {
	args := make([]string, n)
	for i := range n {
		args[i] = d.arg(i)
	}

	return args
}

func tx1(ctx context.Context, db *Database, f func(*sql.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if err := f(tx); err != nil {
		return err
	}

	return tx.Commit()
}
