package review

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemQueue is an in-memory Queue.
type MemQueue struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	now   func() time.Time
	newID func() string
}

// MemOption configures a MemQueue.
type MemOption func(*MemQueue)

// WithClock overrides the task timestamp source.
func WithClock(now func() time.Time) MemOption {
	return func(q *MemQueue) { q.now = now }
}

// WithIDSource overrides task ID generation. Defaults to random UUIDs.
func WithIDSource(fn func() string) MemOption {
	return func(q *MemQueue) { q.newID = fn }
}

// NewMemQueue creates an empty queue.
func NewMemQueue(opts ...MemOption) *MemQueue {
	q := &MemQueue{
		tasks: make(map[string]*Task),
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// CreateTask implements Queue.
func (q *MemQueue) CreateTask(ctx context.Context, workID string, priority Priority, reviewContext map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if workID == "" {
		return "", fmt.Errorf("%w: work ID is required", ErrInvalidTask)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	id := q.newID()
	q.tasks[id] = &Task{
		ID:        id,
		WorkID:    workID,
		Priority:  priority,
		Context:   copyMap(reviewContext),
		Status:    StatusOpen,
		CreatedAt: q.now(),
	}
	return id, nil
}

// CompleteTask implements Queue.
func (q *MemQueue) CompleteTask(ctx context.Context, taskID string, decision map[string]any, comments string) (Task, error) {
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	t, err := q.open(taskID)
	if err != nil {
		return Task{}, err
	}
	done := q.now()
	t.Status = StatusCompleted
	t.Decision = copyMap(decision)
	t.Comments = comments
	t.CompletedAt = &done
	return t.snapshot(), nil
}

// Cancel implements Queue.
func (q *MemQueue) Cancel(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	t, err := q.open(taskID)
	if err != nil {
		return err
	}
	done := q.now()
	t.Status = StatusCanceled
	t.CompletedAt = &done
	return nil
}

func (q *MemQueue) open(taskID string) (*Task, error) {
	t, ok := q.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if t.Status != StatusOpen {
		return nil, fmt.Errorf("%w: %s is %s", ErrTaskClosed, taskID, t.Status)
	}
	return t, nil
}

// Get implements Queue.
func (q *MemQueue) Get(ctx context.Context, taskID string) (Task, error) {
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	t, ok := q.tasks[taskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return t.snapshot(), nil
}

// ListOpen implements Queue.
func (q *MemQueue) ListOpen(ctx context.Context, limit int) ([]Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		if t.Status == StatusOpen {
			out = append(out, t.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *Task) snapshot() Task {
	out := *t
	out.Context = copyMap(t.Context)
	out.Decision = copyMap(t.Decision)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		out.CompletedAt = &at
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
