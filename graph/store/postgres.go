package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore is a PostgreSQL-backed Store using the pgx stdlib driver.
type PostgresStore struct {
	*sqlStore
}

var postgresDialect = dialect{
	name:     "postgres",
	numbered: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS workflow_states (
			work_id TEXT PRIMARY KEY,
			version BIGINT NOT NULL,
			status TEXT NOT NULL,
			current_node TEXT NOT NULL,
			suspension_token TEXT NULL UNIQUE,
			state TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_states_status_updated ON workflow_states(status, updated_at)`,
	},
	insert: `INSERT INTO workflow_states
		(work_id, version, status, current_node, suspension_token, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (work_id) DO NOTHING`,
}

// NewPostgresStore connects to dsn (a postgres:// URL or key=value string)
// and creates the schema if needed.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	return NewPostgresStoreFromDB(ctx, db)
}

// NewPostgresStoreFromDB wraps an existing *sql.DB opened with a PostgreSQL
// driver and creates the schema if needed.
func NewPostgresStoreFromDB(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	base, err := openSQL(ctx, db, postgresDialect)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{sqlStore: base}, nil
}
