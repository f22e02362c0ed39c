package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"waste-portal/config"
)

// Dialect is the SQL flavour of the connected database. Queries are written
// with postgres placeholders and rebound for sqlite.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

func (d Dialect) Rebind(query string) string {
	if d == SQLite {
		return placeholderRe.ReplaceAllString(query, "?$1")
	}
	return query
}

// Open connects to the configured database and pings it.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, Dialect, error) {
	var (
		dialect Dialect
		dsn     string
	)
	switch cfg.Driver {
	case "", string(Postgres):
		dialect = Postgres
		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.DBName,
			cfg.SSLMode,
		)
	case string(SQLite):
		dialect = SQLite
		dsn = cfg.DSN
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// one writer; avoids SQLITE_BUSY between the worker and request handlers
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("ping %s: %w", dialect, err)
	}
	return db, dialect, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS session_tokens (
		session_id TEXT PRIMARY KEY,
		token      TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_messages (
		id           TEXT PRIMARY KEY,
		routing_key  TEXT NOT NULL,
		payload      TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'pending',
		retry_count  INTEGER NOT NULL DEFAULT 0,
		last_error   TEXT,
		created_at   TIMESTAMP NOT NULL,
		published_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_status_created ON outbox_messages (status, created_at)`,
}

// Migrate creates the portal's tables. It is safe to run repeatedly.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
