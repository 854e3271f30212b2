// Package store persists workflow states between engine calls.
//
// A workflow spends most of its life suspended, waiting on a reviewer or on
// counsel. The Store keeps each suspended WorkflowState keyed by work ID and
// by suspension token, and guards every write with an optimistic version
// check so two processes can never both resume the same suspension.
//
// Backends:
//   - MemStore: in-process, for tests and single-binary deployments
//   - SQLiteStore: single-file database, zero setup
//   - MySQLStore and PostgresStore: shared databases for multi-worker setups
//   - RedisStore: low-latency shared store with optional expiry
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/lexgraph/graph"
)

// ErrNotFound is returned when no state exists for a work ID or token.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned by Save when the stored version is not the
// one the caller expected: the state was created, changed or deleted by
// someone else since it was loaded.
var ErrVersionConflict = errors.New("version conflict")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store persists workflow states.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Save writes st if the currently stored version equals expectedVersion.
	// An expectedVersion of 0 means st must not exist yet. st.Version must be
	// greater than expectedVersion.
	Save(ctx context.Context, st *graph.WorkflowState, expectedVersion int64) error

	// Load returns the state stored for workID.
	Load(ctx context.Context, workID string) (*graph.WorkflowState, error)

	// LoadByToken returns the suspended state holding token.
	LoadByToken(ctx context.Context, token string) (*graph.WorkflowState, error)

	// List returns summaries ordered by most recent update first.
	List(ctx context.Context, opts ListOptions) ([]Summary, error)

	// Delete removes the state for workID.
	Delete(ctx context.Context, workID string) error

	// Close releases resources held by the store.
	Close() error
}

// ListOptions filters List results.
type ListOptions struct {
	// Status restricts results to one lifecycle phase. Empty lists all.
	Status graph.Status

	// Limit caps the number of results. Zero or negative uses DefaultListLimit.
	Limit int
}

// DefaultListLimit is used when ListOptions.Limit is not set.
const DefaultListLimit = 100

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}

// Summary describes a stored state without its history or data.
type Summary struct {
	WorkID          string       `json:"work_id"`
	Version         int64        `json:"version"`
	Status          graph.Status `json:"status"`
	CurrentNode     string       `json:"current_node"`
	SuspensionToken string       `json:"suspension_token,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// record is the encoded form every backend writes.
type record struct {
	Summary
	state []byte
}

func encode(st *graph.WorkflowState, expectedVersion int64) (record, error) {
	if st == nil || st.WorkID == "" {
		return record{}, fmt.Errorf("%w: state and work ID are required", graph.ErrInvalidState)
	}
	if expectedVersion < 0 {
		return record{}, fmt.Errorf("%w: negative expected version %d", graph.ErrInvalidState, expectedVersion)
	}
	if st.Version <= expectedVersion {
		return record{}, fmt.Errorf("%w: version %d does not advance past %d", graph.ErrInvalidState, st.Version, expectedVersion)
	}

	b, err := json.Marshal(st)
	if err != nil {
		return record{}, fmt.Errorf("failed to marshal state: %w", err)
	}

	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return record{
		Summary: Summary{
			WorkID:          st.WorkID,
			Version:         st.Version,
			Status:          st.Status(),
			CurrentNode:     st.CurrentNode,
			SuspensionToken: st.SuspensionToken,
			UpdatedAt:       updated.UTC(),
		},
		state: b,
	}, nil
}

func decode(b []byte) (*graph.WorkflowState, error) {
	var st graph.WorkflowState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &st, nil
}
