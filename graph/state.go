package graph

import (
	"fmt"
	"time"
)

// Status is the observable lifecycle phase of a WorkflowState.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// HistoryEntry records one step execution. Entries are appended by the
// Engine and never modified afterwards.
type HistoryEntry struct {
	// Seq is the 1-based position of the entry in the history.
	Seq       int        `json:"seq"`
	Node      string     `json:"node"`
	Timestamp time.Time  `json:"timestamp"`
	Result    StepResult `json:"result"`
}

// DecisionEntry records an external decision applied by Resume. Decisions
// are not steps and do not appear in History; AfterSeq places them relative
// to it so the accumulated data can be replayed.
type DecisionEntry struct {
	AfterSeq  int            `json:"after_seq"`
	Node      string         `json:"node"`
	Token     string         `json:"token,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// WorkflowState is the accumulated context of one unit of work.
//
// The Engine is the only writer. Every engine call returns a fresh value and
// leaves its argument untouched, so a caller may keep the previous state for
// auditing or retry.
//
// Invariants maintained by the Engine:
//   - History only grows; existing entries are never altered
//   - Data keys are never deleted, only added or overwritten
//   - CurrentNode always names a node of the compiled graph
//   - After an engine call the state is either Suspended or Terminal
//   - Version increases by one for every change set the Engine applies
type WorkflowState struct {
	WorkID          string          `json:"work_id"`
	CurrentNode     string          `json:"current_node"`
	Input           map[string]any  `json:"input,omitempty"`
	Data            map[string]any  `json:"accumulated_data"`
	History         []HistoryEntry  `json:"history"`
	Decisions       []DecisionEntry `json:"decisions,omitempty"`
	Suspended       bool            `json:"suspended"`
	SuspensionToken string          `json:"suspension_token,omitempty"`
	Terminal        bool            `json:"terminal"`
	Error           string          `json:"error,omitempty"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Status reports the lifecycle phase derived from the state flags.
func (s *WorkflowState) Status() Status {
	switch {
	case s.Terminal && s.Error != "":
		return StatusFailed
	case s.Terminal:
		return StatusCompleted
	case s.Suspended:
		return StatusSuspended
	default:
		return StatusActive
	}
}

// Clone returns a deep copy of s. Nested maps and slices inside Data are
// copied recursively; other values are copied by assignment.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	out := *s
	out.Data = cloneMap(s.Data)
	out.Input = cloneMap(s.Input)
	if s.Decisions != nil {
		out.Decisions = make([]DecisionEntry, len(s.Decisions))
		for i, d := range s.Decisions {
			d.Data = cloneMap(d.Data)
			out.Decisions[i] = d
		}
	}
	if s.History != nil {
		out.History = make([]HistoryEntry, len(s.History))
		for i, h := range s.History {
			h.Result = h.Result.clone()
			out.History[i] = h
		}
	}
	return &out
}

// Get returns the accumulated value stored under key.
func (s *WorkflowState) Get(key string) (any, bool) {
	v, ok := s.Data[key]
	return v, ok
}

// String returns the accumulated value under key formatted as a string, or ""
// when absent.
func (s *WorkflowState) String(key string) string {
	v, ok := s.Data[key]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Bool reports whether key holds a true boolean. String values "true", "yes"
// and "1" also count as true, since decisions often arrive from forms.
func (s *WorkflowState) Bool(key string) bool {
	switch v := s.Data[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "yes" || v == "1"
	default:
		return false
	}
}

// Last returns the most recent history entry.
func (s *WorkflowState) Last() (HistoryEntry, bool) {
	if len(s.History) == 0 {
		return HistoryEntry{}, false
	}
	return s.History[len(s.History)-1], true
}

// Visited reports how many times node appears in the history.
func (s *WorkflowState) Visited(node string) int {
	n := 0
	for _, h := range s.History {
		if h.Node == node {
			n++
		}
	}
	return n
}

// merge applies src over dst with last-writer-wins semantics. Values are
// deep-copied so later mutation of src cannot leak into the state.
func merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []byte:
		return append([]byte(nil), t...)
	default:
		return v
	}
}
