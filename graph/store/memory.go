package store

import (
	"context"
	"sort"
	"sync"

	"github.com/dshills/lexgraph/graph"
)

// MemStore is an in-memory Store.
//
// States are kept in their encoded form, so a loaded state never aliases one
// that was saved, exactly as with the database backends. Everything is lost
// when the process exits.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]record
	tokens  map[string]string
	closed  bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		records: make(map[string]record),
		tokens:  make(map[string]string),
	}
}

// Save implements Store.
func (m *MemStore) Save(ctx context.Context, st *graph.WorkflowState, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := encode(st, expectedVersion)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	prev, exists := m.records[rec.WorkID]
	switch {
	case expectedVersion == 0 && exists:
		return ErrVersionConflict
	case expectedVersion != 0 && (!exists || prev.Version != expectedVersion):
		return ErrVersionConflict
	}

	if prev.SuspensionToken != "" {
		delete(m.tokens, prev.SuspensionToken)
	}
	if rec.SuspensionToken != "" {
		m.tokens[rec.SuspensionToken] = rec.WorkID
	}
	m.records[rec.WorkID] = rec
	return nil
}

// Load implements Store.
func (m *MemStore) Load(ctx context.Context, workID string) (*graph.WorkflowState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	rec, ok := m.records[workID]
	if !ok {
		return nil, ErrNotFound
	}
	return decode(rec.state)
}

// LoadByToken implements Store.
func (m *MemStore) LoadByToken(ctx context.Context, token string) (*graph.WorkflowState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	workID, ok := m.tokens[token]
	if !ok || token == "" {
		return nil, ErrNotFound
	}
	return decode(m.records[workID].state)
}

// List implements Store.
func (m *MemStore) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	out := make([]Summary, 0, len(m.records))
	for _, rec := range m.records {
		if opts.Status != "" && rec.Status != opts.Status {
			continue
		}
		out = append(out, rec.Summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].WorkID < out[j].WorkID
	})
	if n := opts.limit(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Delete implements Store.
func (m *MemStore) Delete(ctx context.Context, workID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	rec, ok := m.records[workID]
	if !ok {
		return ErrNotFound
	}
	if rec.SuspensionToken != "" {
		delete(m.tokens, rec.SuspensionToken)
	}
	delete(m.records, workID)
	return nil
}

// Close implements Store. Closing twice is a no-op.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
