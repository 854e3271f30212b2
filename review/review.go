// Package review is the human review queue that sits behind the pipeline's
// suspension nodes.
//
// A suspension step calls CreateTask when it halts a workflow. A reviewer
// later completes the task with a decision payload; the workflow service
// passes that payload to the engine's Resume.
package review

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrTaskNotFound is returned for unknown task IDs.
	ErrTaskNotFound = errors.New("review task not found")

	// ErrTaskClosed is returned when completing or canceling a task that is
	// no longer open.
	ErrTaskClosed = errors.New("review task is closed")

	// ErrInvalidTask is returned by CreateTask for an empty work ID.
	ErrInvalidTask = errors.New("invalid review task")
)

// Priority orders open tasks. Higher values are reviewed first.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
	PriorityUrgent Priority = 4
)

// String returns the lowercase priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// PriorityFromRisk maps a classification risk level to a review priority.
// Unknown levels are reviewed at normal priority.
func PriorityFromRisk(risk string) Priority {
	switch strings.ToLower(strings.TrimSpace(risk)) {
	case "critical":
		return PriorityUrgent
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Status is the lifecycle phase of a Task.
type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// Task is one request for a human decision.
type Task struct {
	ID       string         `json:"id"`
	WorkID   string         `json:"work_id"`
	Priority Priority       `json:"priority"`
	Context  map[string]any `json:"context,omitempty"`
	Status   Status         `json:"status"`

	// Decision and Comments are set when the task is completed.
	Decision map[string]any `json:"decision,omitempty"`
	Comments string         `json:"comments,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Queue stores review tasks.
//
// Implementations must be safe for concurrent use.
type Queue interface {
	// CreateTask opens a task for workID and returns its ID.
	CreateTask(ctx context.Context, workID string, priority Priority, reviewContext map[string]any) (string, error)

	// CompleteTask closes an open task with a decision and reviewer comments.
	CompleteTask(ctx context.Context, taskID string, decision map[string]any, comments string) (Task, error)

	// Cancel closes an open task without a decision.
	Cancel(ctx context.Context, taskID string) error

	// Get returns a task by ID.
	Get(ctx context.Context, taskID string) (Task, error)

	// ListOpen returns open tasks, highest priority first and oldest first
	// within a priority. A limit of zero or less returns every open task.
	ListOpen(ctx context.Context, limit int) ([]Task, error)
}
