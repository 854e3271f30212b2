// Package workflow runs documents through the legal pipeline on behalf of
// callers that may live in different processes.
//
// The engine itself is stateless between calls. Service loads the current
// WorkflowState from a store, serializes calls per work ID, hands the state
// to the engine and saves the result with an optimistic version check. It
// also bridges the review queue: completing a review task resumes the work
// that created it.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dshills/lexgraph/graph"
	"github.com/dshills/lexgraph/graph/store"
	"github.com/dshills/lexgraph/legal"
	"github.com/dshills/lexgraph/review"
)

var (
	// ErrWorkExists is returned by Submit for a work ID already in the store.
	ErrWorkExists = errors.New("work already exists")

	// ErrTaskMismatch is returned when a review task no longer matches the
	// suspension of the work it was opened for.
	ErrTaskMismatch = errors.New("review task does not match suspended work")
)

// Service coordinates the engine, the store and the review queue.
type Service struct {
	engine  *graph.Engine
	store   store.Store
	reviews review.Queue
	locker  Locker
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLocker replaces the default in-process locker, for example with a
// RedisLocker when several processes share the store.
func WithLocker(l Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Service. reviews may be nil when no review queue is used;
// CompleteReview then always fails with review.ErrTaskNotFound.
func New(engine *graph.Engine, st store.Store, reviews review.Queue, opts ...Option) *Service {
	s := &Service{
		engine:  engine,
		store:   st,
		reviews: reviews,
		locker:  NewLocalLocker(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit starts a new unit of work and persists the state it halts in.
func (s *Service) Submit(ctx context.Context, workID string, input map[string]any) (*graph.WorkflowState, error) {
	var out *graph.WorkflowState
	err := s.withLock(ctx, workID, func() error {
		if _, err := s.store.Load(ctx, workID); err == nil {
			return fmt.Errorf("%w: %s", ErrWorkExists, workID)
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load %s: %w", workID, err)
		}

		st, err := s.engine.Start(ctx, workID, input)
		if err != nil {
			return err
		}
		if err := s.store.Save(ctx, st, 0); err != nil {
			s.engine.Forget(workID)
			if errors.Is(err, store.ErrVersionConflict) {
				return fmt.Errorf("%w: %s", ErrWorkExists, workID)
			}
			return fmt.Errorf("save %s: %w", workID, err)
		}
		out = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "work submitted",
		"work_id", workID, "status", out.Status(), "node", out.CurrentNode)
	return out, nil
}

// Resume applies decision to the suspended work identified by workID.
func (s *Service) Resume(ctx context.Context, workID string, decision map[string]any) (*graph.WorkflowState, error) {
	var out *graph.WorkflowState
	err := s.withLock(ctx, workID, func() error {
		st, err := s.store.Load(ctx, workID)
		if err != nil {
			return fmt.Errorf("load %s: %w", workID, err)
		}
		out, err = s.resume(ctx, st, decision)
		if err == nil {
			s.cancelSuperseded(ctx, st, out)
		}
		return err
	})
	return out, err
}

// ResumeByToken applies decision to the work suspended under token.
func (s *Service) ResumeByToken(ctx context.Context, token string, decision map[string]any) (*graph.WorkflowState, error) {
	found, err := s.store.LoadByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}

	var out *graph.WorkflowState
	err = s.withLock(ctx, found.WorkID, func() error {
		// Reload under the lock; the token may have been consumed meanwhile.
		st, err := s.store.Load(ctx, found.WorkID)
		if err != nil {
			return fmt.Errorf("load %s: %w", found.WorkID, err)
		}
		if !st.Suspended || st.SuspensionToken != token {
			return fmt.Errorf("resolve token: %w", store.ErrNotFound)
		}
		out, err = s.resume(ctx, st, decision)
		if err == nil {
			s.cancelSuperseded(ctx, st, out)
		}
		return err
	})
	return out, err
}

// CompleteReview closes a review task and resumes its work with the
// reviewer's decision. Comments are merged into the decision under
// "comments" unless the decision already carries them.
//
// The task is closed only after the resumed state is saved, so a failed
// resume leaves it open for another attempt.
func (s *Service) CompleteReview(ctx context.Context, taskID string, decision map[string]any, comments string) (*graph.WorkflowState, error) {
	if s.reviews == nil {
		return nil, review.ErrTaskNotFound
	}
	task, err := s.reviews.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	payload := make(map[string]any, len(decision)+1)
	for k, v := range decision {
		payload[k] = v
	}
	if _, ok := payload[legal.KeyComments]; !ok && comments != "" {
		payload[legal.KeyComments] = comments
	}

	var out *graph.WorkflowState
	err = s.withLock(ctx, task.WorkID, func() error {
		task, err := s.reviews.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status != review.StatusOpen {
			return fmt.Errorf("%w: %s is %s", review.ErrTaskClosed, taskID, task.Status)
		}

		st, err := s.store.Load(ctx, task.WorkID)
		if err != nil {
			return fmt.Errorf("load %s: %w", task.WorkID, err)
		}
		if !st.Suspended || st.String(legal.KeyReviewTask) != taskID {
			return fmt.Errorf("%w: task %s, work %s", ErrTaskMismatch, taskID, task.WorkID)
		}

		out, err = s.resume(ctx, st, payload)
		if err != nil {
			return err
		}
		if _, err := s.reviews.CompleteTask(ctx, taskID, payload, comments); err != nil {
			s.logger.WarnContext(ctx, "work resumed but review task not closed",
				"task_id", taskID, "work_id", task.WorkID, "error", err)
		}
		return nil
	})
	return out, err
}

// resume decodes the decision, runs the engine and saves the new state.
func (s *Service) resume(ctx context.Context, st *graph.WorkflowState, raw map[string]any) (*graph.WorkflowState, error) {
	d, err := legal.DecodeDecision(raw)
	if err != nil {
		return nil, err
	}

	next, err := s.engine.Resume(ctx, st, d.Map())
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, next, st.Version); err != nil {
		// The engine remembers next's version; drop it so the stored state
		// is accepted on the next attempt.
		s.engine.Forget(st.WorkID)
		return nil, fmt.Errorf("save %s: %w", st.WorkID, err)
	}

	s.logger.InfoContext(ctx, "work resumed",
		"work_id", st.WorkID,
		"decision", d.Decision,
		"status", next.Status(),
		"node", next.CurrentNode,
	)
	return next, nil
}

// cancelSuperseded cancels the review task prev was waiting on when a resume
// that bypassed the queue moved the work past it.
func (s *Service) cancelSuperseded(ctx context.Context, prev, next *graph.WorkflowState) {
	taskID := prev.String(legal.KeyReviewTask)
	if s.reviews == nil || taskID == "" || (next.Suspended && next.String(legal.KeyReviewTask) == taskID) {
		return
	}
	err := s.reviews.Cancel(ctx, taskID)
	if err != nil && !errors.Is(err, review.ErrTaskClosed) && !errors.Is(err, review.ErrTaskNotFound) {
		s.logger.WarnContext(ctx, "failed to cancel superseded review task",
			"task_id", taskID, "work_id", prev.WorkID, "error", err)
	}
}

// Get returns the stored state for workID.
func (s *Service) Get(ctx context.Context, workID string) (*graph.WorkflowState, error) {
	return s.store.Load(ctx, workID)
}

// List returns stored work summaries.
func (s *Service) List(ctx context.Context, opts store.ListOptions) ([]store.Summary, error) {
	return s.store.List(ctx, opts)
}

// Tasks returns open review tasks, most urgent first.
func (s *Service) Tasks(ctx context.Context, limit int) ([]review.Task, error) {
	if s.reviews == nil {
		return nil, nil
	}
	return s.reviews.ListOpen(ctx, limit)
}

// Task returns one review task.
func (s *Service) Task(ctx context.Context, taskID string) (review.Task, error) {
	if s.reviews == nil {
		return review.Task{}, review.ErrTaskNotFound
	}
	return s.reviews.Get(ctx, taskID)
}

// Delete removes finished work from the store and from the engine's memory.
// Suspended work is refused so no open review task is orphaned.
func (s *Service) Delete(ctx context.Context, workID string) error {
	return s.withLock(ctx, workID, func() error {
		st, err := s.store.Load(ctx, workID)
		if err != nil {
			return err
		}
		if st.Suspended {
			return fmt.Errorf("delete %s: %w", workID, graph.ErrSuspended)
		}
		if err := s.store.Delete(ctx, workID); err != nil {
			return err
		}
		s.engine.Forget(workID)
		return nil
	})
}

// Graph returns the compiled pipeline graph.
func (s *Service) Graph() *graph.Graph { return s.engine.Graph() }

func (s *Service) withLock(ctx context.Context, workID string, fn func() error) error {
	if workID == "" {
		return fmt.Errorf("%w: work ID cannot be empty", graph.ErrInvalidState)
	}
	unlock, err := s.locker.Lock(ctx, workID)
	if err != nil {
		return err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "failed to release work lock", "work_id", workID, "error", err)
		}
	}()
	return fn()
}
