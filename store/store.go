// Package store is the console's local database. It keeps the values of the
// sql session driver, the audit log of operator mutations and the outbox of
// events waiting to be published. SQLite suits a single console; Postgres lets
// several consoles share one session and one audit trail.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/visual-alchemy/blackgate-project/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

type DB struct {
	*sql.DB
	driver string
}

// Open connects to the configured database and creates the console tables
// that are missing. For SQLite the parent directory of the file is created.
func Open(cfg *config.DatabaseConfig) (*DB, error) {
	var (
		sqlDB  *sql.DB
		schema string
		err    error
	)
	switch cfg.Driver {
	case driverSQLite:
		sqlDB, err = openSQLite(cfg.SQLite.Path)
		schema = schemaSQLite
	case driverPostgres:
		sqlDB, err = openPostgres(&cfg.Postgres)
		schema = schemaPostgres
	default:
		return nil, fmt.Errorf("store: unknown driver %q (want sqlite or postgres)", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("store: create %s tables: %w", cfg.Driver, err)
	}
	return &DB{DB: sqlDB, driver: cfg.Driver}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("store: sqlite dir: %w", err)
		}
	}
	// One connection: WAL plus a busy timeout covers the CLI and console
	// sharing a file.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)
	return sqlDB, nil
}

func openPostgres(cfg *config.PostgresConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.SSLMode)
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres %s/%s: %w", cfg.Host, cfg.Database, err)
	}
	return sqlDB, nil
}
