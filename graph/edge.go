package graph

import "sort"

// Router selects the node that follows a junction.
//
// Routers are pure: Decide inspects only the state it is given and never calls
// external services. Targets declares every name Decide may return so the
// compiler can verify them before anything runs. An empty decision selects
// Fallback; a decision outside Targets is a routing fault that terminates the
// workflow.
type Router struct {
	// Targets lists every node Decide can return.
	Targets []string

	// Fallback is used when Decide returns "". It must be one of Targets.
	// Empty means an empty decision is a routing fault.
	Fallback string

	// Decide maps the post-step state to the next node name.
	Decide func(state *WorkflowState) string
}

// Route evaluates the router against state.
//
// The returned bool is false when the decision is not a declared target.
func (r Router) Route(state *WorkflowState) (string, bool) {
	next := ""
	if r.Decide != nil {
		next = r.Decide(state)
	}
	if next == "" {
		next = r.Fallback
	}
	if next == "" {
		return "", false
	}
	for _, t := range r.Targets {
		if t == next {
			return next, true
		}
	}
	return next, false
}

// Always returns a router with a single unconditional target.
//
// Example:
//
//	b.Connect("generate", graph.Always("review"))
func Always(to string) Router {
	return Router{
		Targets:  []string{to},
		Fallback: to,
		Decide:   func(*WorkflowState) string { return to },
	}
}

// OnValue returns a classification router: the string value stored under key
// in the accumulated data is looked up in routes. Unknown or missing values
// go to fallback.
//
// Example:
//
//	b.Connect("intake", graph.OnValue("document_type", map[string]string{
//	    "new_contract_request": "generate",
//	    "objection_document":   "objection",
//	}, "analyze"))
func OnValue(key string, routes map[string]string, fallback string) Router {
	table := make(map[string]string, len(routes))
	for k, v := range routes {
		table[k] = v
	}
	return Router{
		Targets:  targetsOf(table, fallback),
		Fallback: fallback,
		Decide: func(s *WorkflowState) string {
			if to, ok := table[s.String(key)]; ok {
				return to
			}
			return fallback
		},
	}
}

// RouterFunc builds a router around an arbitrary decision function. Every
// name fn can return must be listed in targets.
func RouterFunc(targets []string, fallback string, fn func(*WorkflowState) string) Router {
	declared := append([]string(nil), targets...)
	if fallback != "" && !contains(declared, fallback) {
		declared = append(declared, fallback)
	}
	sort.Strings(declared)
	return Router{Targets: declared, Fallback: fallback, Decide: fn}
}

func targetsOf(table map[string]string, fallback string) []string {
	seen := make(map[string]struct{}, len(table)+1)
	out := make([]string, 0, len(table)+1)
	add := func(n string) {
		if n == "" {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	for _, to := range table {
		add(to)
	}
	add(fallback)
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
