package db

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Open connects to the configured backend, applies connection settings and
// brings the schema up to date. driver is "sqlite" or "postgres"; dsn is a
// file path (or ":memory:") for SQLite and a connection URL for Postgres.
func Open(driver, dsn string) (*CompatDB, error) {
	dialect := Dialect(driver)
	var raw *sql.DB
	var err error

	switch dialect {
	case DialectSQLite:
		raw, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// Single connection: prevents concurrent write conflicts
		raw.SetMaxOpenConns(1)
		raw.SetMaxIdleConns(1)
		raw.SetConnMaxLifetime(0)

		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA foreign_keys=ON",
			"PRAGMA synchronous=NORMAL",
		} {
			if _, err := raw.Exec(pragma); err != nil {
				raw.Close()
				return nil, fmt.Errorf("pragma %q: %w", pragma, err)
			}
		}
	case DialectPostgres:
		raw, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		raw.SetMaxOpenConns(10)
		raw.SetMaxIdleConns(5)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	if err := raw.Ping(); err != nil {
		raw.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := RunMigrations(raw, dialect); err != nil {
		raw.Close()
		return nil, err
	}
	return NewCompatDB(raw, dialect), nil
}
