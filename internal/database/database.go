package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite" // SQLite driver
)

// Dialect names a supported SQL engine.
type Dialect string

const (
	SQLite Dialect = "sqlite"
	MySQL  Dialect = "mysql"
)

// ErrSchemaInit marks a failure to create or migrate a schema at startup.
var ErrSchemaInit = errors.New("schema initialization failed")

// New creates a new database connection pool for the given dialect.
func New(dialect Dialect, dataSourceName string) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case SQLite:
		db, err = openSQLite(dataSourceName)
	case MySQL:
		db, err = openMySQL(dataSourceName)
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir data dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_time_format=sqlite", path)
	return sql.Open("sqlite", dsn)
}

func openMySQL(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Migrate creates the db_stats table if it does not exist yet. It is safe to
// run on every startup.
func Migrate(db *sql.DB, dialect Dialect) error {
	var stmts []string
	switch dialect {
	case SQLite:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS db_stats (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				timestamp TIMESTAMP NOT NULL,
				connections INTEGER NOT NULL,
				query_count INTEGER NOT NULL,
				cache_hit_ratio FLOAT NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_db_stats_timestamp ON db_stats(timestamp DESC);`,
		}
	case MySQL:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS db_stats (
				id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				timestamp DATETIME(3) NOT NULL,
				connections INT NOT NULL,
				query_count INT NOT NULL,
				cache_hit_ratio DOUBLE NOT NULL,
				INDEX idx_db_stats_timestamp (timestamp)
			)`,
		}
	default:
		return fmt.Errorf("%w: unsupported dialect %q", ErrSchemaInit, dialect)
	}
	return execAll(db, stmts)
}

// MigrateEvents creates the document tables backing the SQL event store.
// Every collection holds the JSON document next to the columns it is
// ordered and looked up by.
func MigrateEvents(db *sql.DB, collections ...string) error {
	var stmts []string
	for _, c := range collections {
		if !validName(c) {
			return fmt.Errorf("%w: invalid collection name %q", ErrSchemaInit, c)
		}
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				id TEXT NOT NULL UNIQUE,
				timestamp TIMESTAMP NOT NULL,
				document TEXT NOT NULL
			);`, c),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_timestamp ON %s(timestamp);`, c, c),
		)
	}
	return execAll(db, stmts)
}

func execAll(db *sql.DB, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("%w: %w", ErrSchemaInit, err)
		}
	}
	return nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	return strings.IndexFunc(name, func(r rune) bool {
		return !(r == '_' || (r >= 'a' && r <= 'z'))
	}) < 0
}
