package graph

import (
	"context"
	"reflect"
	"testing"
)

func TestRouter_Route(t *testing.T) {
	st := &WorkflowState{Data: map[string]any{"decision": "rejected"}}

	t.Run("always", func(t *testing.T) {
		r := Always("review")
		if next, ok := r.Route(st); !ok || next != "review" {
			t.Errorf("Route = %q, %v", next, ok)
		}
	})

	t.Run("empty decision uses fallback", func(t *testing.T) {
		r := Router{Targets: []string{"a", "b"}, Fallback: "b", Decide: func(*WorkflowState) string { return "" }}
		if next, ok := r.Route(st); !ok || next != "b" {
			t.Errorf("Route = %q, %v", next, ok)
		}
	})

	t.Run("empty decision without fallback is a fault", func(t *testing.T) {
		r := Router{Targets: []string{"a"}, Decide: func(*WorkflowState) string { return "" }}
		if _, ok := r.Route(st); ok {
			t.Error("expected fault")
		}
	})

	t.Run("undeclared decision is a fault", func(t *testing.T) {
		r := Router{Targets: []string{"a"}, Fallback: "a", Decide: func(*WorkflowState) string { return "z" }}
		if next, ok := r.Route(st); ok || next != "z" {
			t.Errorf("Route = %q, %v; want z, false", next, ok)
		}
	})

	t.Run("nil decide uses fallback", func(t *testing.T) {
		r := Router{Targets: []string{"a"}, Fallback: "a"}
		if next, ok := r.Route(st); !ok || next != "a" {
			t.Errorf("Route = %q, %v", next, ok)
		}
	})
}

func TestOnValue(t *testing.T) {
	routes := map[string]string{"new_contract_request": "generate", "objection_document": "objection"}
	r := OnValue("document_type", routes, "analyze")

	if !reflect.DeepEqual(r.Targets, []string{"analyze", "generate", "objection"}) {
		t.Errorf("targets = %v", r.Targets)
	}

	routes["new_contract_request"] = "tampered"
	cases := map[string]string{
		"new_contract_request": "generate",
		"objection_document":   "objection",
		"memo":                 "analyze",
	}
	for docType, want := range cases {
		st := &WorkflowState{Data: map[string]any{"document_type": docType}}
		if next, _ := r.Route(st); next != want {
			t.Errorf("%s -> %s, want %s", docType, next, want)
		}
	}
	if next, _ := r.Route(&WorkflowState{}); next != "analyze" {
		t.Errorf("missing key -> %s, want analyze", next)
	}
}

func TestRouterFunc_DeclaresFallback(t *testing.T) {
	r := RouterFunc([]string{"b", "a"}, "c", func(*WorkflowState) string { return "" })
	if !reflect.DeepEqual(r.Targets, []string{"a", "b", "c"}) {
		t.Errorf("targets = %v", r.Targets)
	}
}

func TestStepResult_Helpers(t *testing.T) {
	data := map[string]any{"k": "v"}
	r := Succeed(data)
	data["k"] = "changed"
	if r.Data["k"] != "v" {
		t.Error("Succeed must copy data")
	}

	hinted := r.WithHint("review").WithMetadata("model", "gpt-4o")
	if r.NextActionHint != "" || r.Metadata != nil {
		t.Error("helpers must not modify the receiver")
	}
	if hinted.NextActionHint != "review" || hinted.Metadata["model"] != "gpt-4o" {
		t.Errorf("unexpected result: %+v", hinted)
	}

	if f := Fail(""); f.Success || f.Error != FailureUnspecified {
		t.Errorf("Fail(\"\") = %+v", f)
	}
}

func TestNewStep(t *testing.T) {
	s := NewStep("intake", func(_ context.Context, st *WorkflowState) StepResult {
		return Succeed(map[string]any{"seen": st.WorkID})
	})
	if s.Name() != "intake" {
		t.Errorf("name = %q", s.Name())
	}
	if res := s.Run(context.Background(), &WorkflowState{WorkID: "w"}); res.Data["seen"] != "w" {
		t.Errorf("unexpected result: %+v", res)
	}
}
