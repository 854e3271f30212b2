package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dshills/lexgraph/graph"
	backend "github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed Store.
//
// Layout, relative to the key prefix:
//
//	state:<work_id>   hash: version, status, current_node, token, updated_at, state
//	token:<token>     string: work_id of the suspended state holding token
//	index             zset of every work_id scored by updated_at
//	status:<status>   zset of work_ids currently in that status
//
// Save runs under WATCH on the state hash, so a concurrent writer aborts the
// transaction and the caller sees ErrVersionConflict.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	closed atomic.Bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix. Default "lexgraph:".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTTL expires stored states after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore connects to a Redis server.
func NewRedisStore(address, password string, db int, opts ...RedisOption) *RedisStore {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(rdb, opts...)
}

// NewRedisStoreFromClient wraps an existing client. Close closes client.
func NewRedisStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "lexgraph:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) stateKey(workID string) string { return s.prefix + "state:" + workID }
func (s *RedisStore) tokenKey(token string) string  { return s.prefix + "token:" + token }
func (s *RedisStore) indexKey() string              { return s.prefix + "index" }

func (s *RedisStore) statusKey(status graph.Status) string {
	return s.prefix + "status:" + string(status)
}

var allStatuses = []graph.Status{
	graph.StatusActive,
	graph.StatusSuspended,
	graph.StatusCompleted,
	graph.StatusFailed,
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, st *graph.WorkflowState, expectedVersion int64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	rec, err := encode(st, expectedVersion)
	if err != nil {
		return err
	}
	key := s.stateKey(rec.WorkID)

	txf := func(tx *backend.Tx) error {
		prev, err := tx.HMGet(ctx, key, "version", "token").Result()
		if err != nil {
			return err
		}
		var current int64
		if v, ok := prev[0].(string); ok {
			current, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt version for %s: %w", rec.WorkID, err)
			}
		}
		if current != expectedVersion {
			return ErrVersionConflict
		}
		oldToken, _ := prev[1].(string)

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.HSet(ctx, key, map[string]any{
				"version":      rec.Version,
				"status":       string(rec.Status),
				"current_node": rec.CurrentNode,
				"token":        rec.SuspensionToken,
				"updated_at":   rec.UpdatedAt.UnixNano(),
				"state":        rec.state,
			})
			if oldToken != "" && oldToken != rec.SuspensionToken {
				pipe.Del(ctx, s.tokenKey(oldToken))
			}
			if rec.SuspensionToken != "" {
				pipe.Set(ctx, s.tokenKey(rec.SuspensionToken), rec.WorkID, s.ttl)
			}
			if s.ttl > 0 {
				pipe.Expire(ctx, key, s.ttl)
			}

			score := float64(rec.UpdatedAt.UnixMicro())
			pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: rec.WorkID})
			for _, status := range allStatuses {
				if status != rec.Status {
					pipe.ZRem(ctx, s.statusKey(status), rec.WorkID)
				}
			}
			pipe.ZAdd(ctx, s.statusKey(rec.Status), backend.Z{Score: score, Member: rec.WorkID})
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrVersionConflict), errors.Is(err, backend.TxFailedErr):
		return ErrVersionConflict
	default:
		return fmt.Errorf("failed to save state %s: %w", rec.WorkID, err)
	}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, workID string) (*graph.WorkflowState, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	val, err := s.client.HGet(ctx, s.stateKey(workID), "state").Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load state %s: %w", workID, err)
	}
	return decode([]byte(val))
}

// LoadByToken implements Store.
func (s *RedisStore) LoadByToken(ctx context.Context, token string) (*graph.WorkflowState, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if token == "" {
		return nil, ErrNotFound
	}
	workID, err := s.client.Get(ctx, s.tokenKey(token)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}
	st, err := s.Load(ctx, workID)
	if err != nil {
		return nil, err
	}
	// The token index may lag a concurrent Save.
	if st.SuspensionToken != token {
		return nil, ErrNotFound
	}
	return st, nil
}

// List implements Store. Index entries whose state has expired are pruned.
func (s *RedisStore) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	index := s.indexKey()
	if opts.Status != "" {
		index = s.statusKey(opts.Status)
	}
	members, err := s.client.ZRangeWithScores(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}

	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return fmt.Sprint(members[i].Member) < fmt.Sprint(members[j].Member)
	})

	limit := opts.limit()
	out := make([]Summary, 0, min(limit, len(members)))
	var stale []any
	for _, m := range members {
		if len(out) == limit {
			break
		}
		workID := fmt.Sprint(m.Member)
		vals, err := s.client.HMGet(ctx, s.stateKey(workID), "version", "status", "current_node", "token", "updated_at").Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read summary %s: %w", workID, err)
		}
		if vals[0] == nil {
			stale = append(stale, workID)
			continue
		}
		sum, err := summaryFromHash(workID, vals)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}

	if len(stale) > 0 {
		pipe := s.client.Pipeline()
		pipe.ZRem(ctx, s.indexKey(), stale...)
		for _, status := range allStatuses {
			pipe.ZRem(ctx, s.statusKey(status), stale...)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to prune expired states: %w", err)
		}
	}
	return out, nil
}

func summaryFromHash(workID string, vals []any) (Summary, error) {
	str := func(v any) string {
		s, _ := v.(string)
		return s
	}
	version, err := strconv.ParseInt(str(vals[0]), 10, 64)
	if err != nil {
		return Summary{}, fmt.Errorf("corrupt version for %s: %w", workID, err)
	}
	updated, err := strconv.ParseInt(str(vals[4]), 10, 64)
	if err != nil {
		return Summary{}, fmt.Errorf("corrupt updated_at for %s: %w", workID, err)
	}
	return Summary{
		WorkID:          workID,
		Version:         version,
		Status:          graph.Status(str(vals[1])),
		CurrentNode:     str(vals[2]),
		SuspensionToken: str(vals[3]),
		UpdatedAt:       time.Unix(0, updated).UTC(),
	}, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, workID string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	key := s.stateKey(workID)
	token, err := s.client.HGet(ctx, key, "token").Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete state %s: %w", workID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if token != "" {
		pipe.Del(ctx, s.tokenKey(token))
	}
	pipe.ZRem(ctx, s.indexKey(), workID)
	for _, status := range allStatuses {
		pipe.ZRem(ctx, s.statusKey(status), workID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete state %s: %w", workID, err)
	}
	return nil
}

// Close closes the redis client. Closing twice is a no-op.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}
