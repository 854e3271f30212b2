package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dshills/lexgraph/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contractBase = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func suspendedState(workID, token string, version int64, at time.Time) *graph.WorkflowState {
	return &graph.WorkflowState{
		WorkID:          workID,
		CurrentNode:     "review",
		Input:           map[string]any{"request_type": "new_contract_request"},
		Data:            map[string]any{"draft": "v1", "risk_level": "high"},
		History:         []graph.HistoryEntry{{Seq: 1, Node: "intake", Timestamp: at, Result: graph.Succeed(nil)}},
		Suspended:       true,
		SuspensionToken: token,
		Version:         version,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}

// runContract exercises the behavior every Store backend must share.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("save and load", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		st := suspendedState("w-1", "tok-1", 3, contractBase)
		require.NoError(t, s.Save(ctx, st, 0))

		got, err := s.Load(ctx, "w-1")
		require.NoError(t, err)
		assert.Equal(t, "w-1", got.WorkID)
		assert.Equal(t, int64(3), got.Version)
		assert.Equal(t, "review", got.CurrentNode)
		assert.Equal(t, "v1", got.String("draft"))
		assert.True(t, got.Suspended)
		assert.Len(t, got.History, 1)
		assert.True(t, got.UpdatedAt.Equal(contractBase))
	})

	t.Run("load missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Load(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("loaded state does not alias saved", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		st := suspendedState("w-1", "tok-1", 1, contractBase)
		require.NoError(t, s.Save(ctx, st, 0))
		st.Data["draft"] = "mutated"

		got, err := s.Load(ctx, "w-1")
		require.NoError(t, err)
		assert.Equal(t, "v1", got.String("draft"))
	})

	t.Run("create conflicts when present", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, suspendedState("w-1", "tok-1", 1, contractBase), 0))
		err := s.Save(ctx, suspendedState("w-1", "tok-2", 1, contractBase), 0)
		assert.ErrorIs(t, err, ErrVersionConflict)
	})

	t.Run("update requires expected version", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, suspendedState("w-1", "tok-1", 3, contractBase), 0))

		stale := suspendedState("w-1", "tok-2", 5, contractBase.Add(time.Second))
		assert.ErrorIs(t, s.Save(ctx, stale, 2), ErrVersionConflict)

		next := suspendedState("w-1", "tok-2", 4, contractBase.Add(time.Second))
		require.NoError(t, s.Save(ctx, next, 3))

		got, err := s.Load(ctx, "w-1")
		require.NoError(t, err)
		assert.Equal(t, int64(4), got.Version)

		assert.ErrorIs(t, s.Save(ctx, suspendedState("w-1", "tok-3", 5, contractBase), 3), ErrVersionConflict)
	})

	t.Run("update of missing state conflicts", func(t *testing.T) {
		s := newStore(t)
		err := s.Save(context.Background(), suspendedState("ghost", "", 2, contractBase), 1)
		assert.ErrorIs(t, err, ErrVersionConflict)
	})

	t.Run("invalid saves", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		assert.ErrorIs(t, s.Save(ctx, nil, 0), graph.ErrInvalidState)
		assert.ErrorIs(t, s.Save(ctx, &graph.WorkflowState{Version: 1}, 0), graph.ErrInvalidState)
		assert.ErrorIs(t, s.Save(ctx, suspendedState("w", "", 2, contractBase), 2), graph.ErrInvalidState)
		assert.ErrorIs(t, s.Save(ctx, suspendedState("w", "", 2, contractBase), -1), graph.ErrInvalidState)
	})

	t.Run("token index follows suspension", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, suspendedState("w-1", "tok-1", 1, contractBase), 0))

		got, err := s.LoadByToken(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, "w-1", got.WorkID)

		resumed := suspendedState("w-1", "", 2, contractBase.Add(time.Second))
		resumed.Suspended = false
		resumed.Terminal = true
		resumed.CurrentNode = "export"
		require.NoError(t, s.Save(ctx, resumed, 1))

		_, err = s.LoadByToken(ctx, "tok-1")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.LoadByToken(ctx, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list orders by update and filters status", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, suspendedState("w-a", "tok-a", 1, contractBase), 0))
		require.NoError(t, s.Save(ctx, suspendedState("w-b", "tok-b", 1, contractBase.Add(2*time.Second)), 0))
		done := suspendedState("w-c", "", 1, contractBase.Add(time.Second))
		done.Suspended = false
		done.Terminal = true
		require.NoError(t, s.Save(ctx, done, 0))

		all, err := s.List(ctx, ListOptions{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"w-b", "w-c", "w-a"}, workIDs(all))
		assert.Equal(t, graph.StatusCompleted, all[1].Status)
		assert.Equal(t, "tok-b", all[0].SuspensionToken)

		suspended, err := s.List(ctx, ListOptions{Status: graph.StatusSuspended})
		require.NoError(t, err)
		assert.Equal(t, []string{"w-b", "w-a"}, workIDs(suspended))

		limited, err := s.List(ctx, ListOptions{Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"w-b"}, workIDs(limited))
	})

	t.Run("list moves state between statuses", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, suspendedState("w-1", "tok-1", 1, contractBase), 0))
		failed := suspendedState("w-1", "", 2, contractBase.Add(time.Second))
		failed.Suspended = false
		failed.Terminal = true
		failed.Error = "timeout"
		require.NoError(t, s.Save(ctx, failed, 1))

		suspended, err := s.List(ctx, ListOptions{Status: graph.StatusSuspended})
		require.NoError(t, err)
		assert.Empty(t, suspended)

		failedList, err := s.List(ctx, ListOptions{Status: graph.StatusFailed})
		require.NoError(t, err)
		assert.Equal(t, []string{"w-1"}, workIDs(failedList))
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, suspendedState("w-1", "tok-1", 1, contractBase), 0))
		require.NoError(t, s.Delete(ctx, "w-1"))

		_, err := s.Load(ctx, "w-1")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.LoadByToken(ctx, "tok-1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "w-1"), ErrNotFound)

		all, err := s.List(ctx, ListOptions{})
		require.NoError(t, err)
		assert.Empty(t, all)

		// The work ID is free again.
		require.NoError(t, s.Save(ctx, suspendedState("w-1", "tok-9", 1, contractBase), 0))
	})

	t.Run("concurrent saves have one winner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, suspendedState("w-1", "tok-0", 1, contractBase), 0))

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				st := suspendedState("w-1", fmt.Sprintf("tok-%d", i+1), 2, contractBase.Add(time.Second))
				err := s.Save(ctx, st, 1)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrVersionConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, writers-1, conflicts)
	})

	t.Run("closed store", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		assert.ErrorIs(t, s.Save(ctx, suspendedState("w-1", "", 1, contractBase), 0), ErrClosed)
		_, err := s.Load(ctx, "w-1")
		assert.ErrorIs(t, err, ErrClosed)
		_, err = s.List(ctx, ListOptions{})
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func workIDs(sums []Summary) []string {
	out := make([]string, len(sums))
	for i, s := range sums {
		out[i] = s.WorkID
	}
	return out
}
