package graph

import (
	"encoding/json"
	"testing"
	"time"
)

func roundTripJSON(t *testing.T, st *WorkflowState) *WorkflowState {
	t.Helper()
	b, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out WorkflowState
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return &out
}

func TestWorkflowState_Status(t *testing.T) {
	tests := []struct {
		name string
		st   WorkflowState
		want Status
	}{
		{"active", WorkflowState{}, StatusActive},
		{"suspended", WorkflowState{Suspended: true}, StatusSuspended},
		{"completed", WorkflowState{Terminal: true}, StatusCompleted},
		{"failed", WorkflowState{Terminal: true, Error: "timeout"}, StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.st.Status(); got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWorkflowState_CloneIsDeep(t *testing.T) {
	orig := &WorkflowState{
		WorkID: "w",
		Data: map[string]any{
			"parties": []any{"Acme", map[string]any{"name": "Globex"}},
			"terms":   map[string]any{"term_months": 12},
			"tags":    []string{"nda"},
		},
		History: []HistoryEntry{{Seq: 1, Node: "intake", Result: Succeed(map[string]any{"k": "v"}).WithMetadata("m", 1)}},
		Decisions: []DecisionEntry{{AfterSeq: 1, Data: map[string]any{"decision": "approved"}}},
	}

	c := orig.Clone()
	c.Data["parties"].([]any)[1].(map[string]any)["name"] = "Initech"
	c.Data["terms"].(map[string]any)["term_months"] = 24
	c.Data["tags"].([]string)[0] = "msa"
	c.History[0].Result.Data["k"] = "changed"
	c.History[0].Result.Metadata["m"] = 2
	c.Decisions[0].Data["decision"] = "rejected"
	c.History = append(c.History, HistoryEntry{Seq: 2})

	if orig.Data["parties"].([]any)[1].(map[string]any)["name"] != "Globex" {
		t.Error("nested map in slice shared")
	}
	if orig.Data["terms"].(map[string]any)["term_months"] != 12 {
		t.Error("nested map shared")
	}
	if orig.Data["tags"].([]string)[0] != "nda" {
		t.Error("string slice shared")
	}
	if orig.History[0].Result.Data["k"] != "v" || orig.History[0].Result.Metadata["m"] != 1 {
		t.Error("history result shared")
	}
	if orig.Decisions[0].Data["decision"] != "approved" {
		t.Error("decision data shared")
	}
	if len(orig.History) != 1 {
		t.Error("history slice shared")
	}

	var nilState *WorkflowState
	if nilState.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestWorkflowState_Accessors(t *testing.T) {
	st := &WorkflowState{Data: map[string]any{
		"decision":    "approved",
		"has_changes": "yes",
		"flag":        true,
		"off":         "no",
		"count":       3,
		"nothing":     nil,
	}}

	if st.String("decision") != "approved" || st.String("count") != "3" || st.String("missing") != "" || st.String("nothing") != "" {
		t.Error("String accessor mismatch")
	}
	if !st.Bool("has_changes") || !st.Bool("flag") || st.Bool("off") || st.Bool("count") || st.Bool("missing") {
		t.Error("Bool accessor mismatch")
	}
	if v, ok := st.Get("count"); !ok || v != 3 {
		t.Error("Get mismatch")
	}
	if _, ok := st.Last(); ok {
		t.Error("Last on empty history should report false")
	}

	st.History = []HistoryEntry{{Seq: 1, Node: "review"}, {Seq: 2, Node: "generate"}, {Seq: 3, Node: "review"}}
	if last, ok := st.Last(); !ok || last.Seq != 3 {
		t.Error("Last mismatch")
	}
	if st.Visited("review") != 2 || st.Visited("export") != 0 {
		t.Error("Visited mismatch")
	}
}

func TestWorkflowState_JSON(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	st := &WorkflowState{
		WorkID:          "contract-001",
		CurrentNode:     "review",
		Data:            map[string]any{"decision": "pending"},
		History:         []HistoryEntry{{Seq: 1, Node: "intake", Timestamp: now, Result: Succeed(nil)}},
		Suspended:       true,
		SuspensionToken: "tok",
		Version:         3,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	b, err := json.Marshal(st)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"work_id", "current_node", "accumulated_data", "history", "suspended", "suspension_token", "terminal", "version"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing JSON key %q", key)
		}
	}

	back := roundTripJSON(t, st)
	if back.WorkID != st.WorkID || back.SuspensionToken != "tok" || back.Version != 3 || !back.UpdatedAt.Equal(now) {
		t.Errorf("round trip mismatch: %+v", back)
	}
}
