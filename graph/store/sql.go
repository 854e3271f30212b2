package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dshills/lexgraph/graph"
)

// dialect captures the SQL differences between backends.
type dialect struct {
	name string

	// schema is executed in order on open.
	schema []string

	// insert adds a row and silently does nothing when work_id exists.
	insert string

	// numbered reports whether placeholders are $1, $2, ... instead of ?.
	numbered bool
}

// bind rewrites ? placeholders for dialects that use numbered ones.
func (d dialect) bind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlStore implements Store over database/sql. SQLiteStore, MySQLStore and
// PostgresStore wrap it with their dialect.
//
// Schema:
//
//	workflow_states(work_id PK, version, status, current_node,
//	                suspension_token UNIQUE NULL, state, created_at, updated_at)
//
// Timestamps are unix nanoseconds so no driver needs time parsing enabled.
type sqlStore struct {
	db      *sql.DB
	dialect dialect

	mu     sync.RWMutex
	closed bool
}

func openSQL(ctx context.Context, db *sql.DB, d dialect) (*sqlStore, error) {
	s := &sqlStore{db: db, dialect: d}
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", d.name, err)
		}
	}
	return s, nil
}

func (s *sqlStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Save implements Store.
func (s *sqlStore) Save(ctx context.Context, st *graph.WorkflowState, expectedVersion int64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	rec, err := encode(st, expectedVersion)
	if err != nil {
		return err
	}

	token := sql.NullString{String: rec.SuspensionToken, Valid: rec.SuspensionToken != ""}
	updated := rec.UpdatedAt.UnixNano()

	var res sql.Result
	if expectedVersion == 0 {
		created := st.CreatedAt.UnixNano()
		if st.CreatedAt.IsZero() {
			created = updated
		}
		res, err = s.db.ExecContext(ctx, s.dialect.bind(s.dialect.insert),
			rec.WorkID, rec.Version, string(rec.Status), rec.CurrentNode, token, string(rec.state), created, updated)
	} else {
		res, err = s.db.ExecContext(ctx, s.dialect.bind(`
			UPDATE workflow_states
			SET version = ?, status = ?, current_node = ?, suspension_token = ?, state = ?, updated_at = ?
			WHERE work_id = ? AND version = ?`),
			rec.Version, string(rec.Status), rec.CurrentNode, token, string(rec.state), updated,
			rec.WorkID, expectedVersion)
	}
	if err != nil {
		return fmt.Errorf("failed to save state %s: %w", rec.WorkID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

// Load implements Store.
func (s *sqlStore) Load(ctx context.Context, workID string) (*graph.WorkflowState, error) {
	return s.loadWhere(ctx, "work_id = ?", workID)
}

// LoadByToken implements Store.
func (s *sqlStore) LoadByToken(ctx context.Context, token string) (*graph.WorkflowState, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.loadWhere(ctx, "suspension_token = ?", token)
}

func (s *sqlStore) loadWhere(ctx context.Context, cond string, arg any) (*graph.WorkflowState, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var state string
	err := s.db.QueryRowContext(ctx, s.dialect.bind("SELECT state FROM workflow_states WHERE "+cond), arg).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return decode([]byte(state))
}

// List implements Store.
func (s *sqlStore) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := "SELECT work_id, version, status, current_node, suspension_token, updated_at FROM workflow_states"
	args := []any{}
	if opts.Status != "" {
		query += " WHERE status = ?"
		args = append(args, string(opts.Status))
	}
	query += " ORDER BY updated_at DESC, work_id ASC LIMIT ?"
	args = append(args, opts.limit())

	rows, err := s.db.QueryContext(ctx, s.dialect.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Summary
	for rows.Next() {
		var (
			sum     Summary
			status  string
			token   sql.NullString
			updated int64
		)
		if err := rows.Scan(&sum.WorkID, &sum.Version, &status, &sum.CurrentNode, &token, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan state summary: %w", err)
		}
		sum.Status = graph.Status(status)
		sum.SuspensionToken = token.String
		sum.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate state summaries: %w", err)
	}
	return out, nil
}

// Delete implements Store.
func (s *sqlStore) Delete(ctx context.Context, workID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.dialect.bind("DELETE FROM workflow_states WHERE work_id = ?"), workID)
	if err != nil {
		return fmt.Errorf("failed to delete state %s: %w", workID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close implements Store. Closing twice is a no-op.
func (s *sqlStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection.
func (s *sqlStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}
