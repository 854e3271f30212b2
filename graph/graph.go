package graph

import "fmt"

// Builder collects a graph definition. Mistakes made while building are
// recorded and reported together by Compile, so calls can be chained.
//
// Example:
//
//	g, err := graph.NewBuilder().
//	    Add(intake).Add(generate).Add(review).Add(export).
//	    StartAt("intake").
//	    Connect("intake", graph.Always("generate")).
//	    Connect("generate", graph.Always("review")).
//	    Connect("review", graph.Always("export")).
//	    Suspend("review").
//	    Compile()
type Builder struct {
	nodes   map[string]Step
	order   []string
	entry   string
	routers map[string]Router
	suspend map[string]struct{}
	halt    map[string]struct{}
	errs    []*EngineError
}

// NewBuilder returns an empty graph definition.
func NewBuilder() *Builder {
	return &Builder{
		nodes:   make(map[string]Step),
		routers: make(map[string]Router),
		suspend: make(map[string]struct{}),
		halt:    make(map[string]struct{}),
	}
}

// Add registers step under step.Name(). Names must be unique and non-empty.
func (b *Builder) Add(step Step) *Builder {
	if step == nil {
		b.fail("INVALID_NODE", "step cannot be nil")
		return b
	}
	name := step.Name()
	if name == "" {
		b.fail("INVALID_NODE", "step name cannot be empty")
		return b
	}
	if _, exists := b.nodes[name]; exists {
		b.fail("DUPLICATE_NODE", "duplicate node: "+name)
		return b
	}
	b.nodes[name] = step
	b.order = append(b.order, name)
	return b
}

// StartAt sets the entry node.
func (b *Builder) StartAt(name string) *Builder {
	b.entry = name
	return b
}

// Connect attaches the router evaluated after from completes. A node without
// a router is terminal.
func (b *Builder) Connect(from string, r Router) *Builder {
	if _, exists := b.routers[from]; exists {
		b.fail("DUPLICATE_ROUTER", "node already has a router: "+from)
		return b
	}
	r.Targets = append([]string(nil), r.Targets...)
	b.routers[from] = r
	return b
}

// Suspend declares name a suspension node: after its step runs the engine
// halts and waits for Resume.
func (b *Builder) Suspend(name string) *Builder {
	b.suspend[name] = struct{}{}
	return b
}

// HaltAndFinish declares name a suspension node that intentionally has no
// router. The engine finishes the workflow there instead of suspending.
func (b *Builder) HaltAndFinish(name string) *Builder {
	b.suspend[name] = struct{}{}
	b.halt[name] = struct{}{}
	return b
}

func (b *Builder) fail(code, msg string) {
	b.errs = append(b.errs, &EngineError{Code: code, Message: msg})
}

// Compile validates the definition and freezes it into a Graph.
//
// It checks that:
//   - the graph has at least one node and an entry that exists
//   - every router source, target and fallback names an existing node
//   - every node is reachable from the entry
//   - every suspension node has a router unless marked halt-and-finish
//   - no halt-and-finish node has a router
//
// All problems are returned together in a *CompileError. Compiling the same
// builder again yields an independent but equivalent Graph; later changes to
// the builder do not affect graphs already compiled.
func (b *Builder) Compile() (*Graph, error) {
	problems := append([]*EngineError(nil), b.errs...)
	add := func(code, format string, args ...any) {
		problems = append(problems, &EngineError{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if len(b.nodes) == 0 {
		add("EMPTY_GRAPH", "graph has no nodes")
	}
	if b.entry == "" {
		add("NO_START_NODE", "entry node not set (call StartAt before Compile)")
	} else if _, ok := b.nodes[b.entry]; !ok {
		add("NODE_NOT_FOUND", "entry node does not exist: %s", b.entry)
	}

	for _, from := range sortedKeys(b.routers) {
		r := b.routers[from]
		if _, ok := b.nodes[from]; !ok {
			add("NODE_NOT_FOUND", "router source does not exist: %s", from)
		}
		if len(r.Targets) == 0 {
			add("INVALID_ROUTER", "router for %s declares no targets", from)
		}
		for _, t := range r.Targets {
			if _, ok := b.nodes[t]; !ok {
				add("UNKNOWN_TARGET", "router for %s targets unknown node %s", from, t)
			}
		}
		if r.Fallback != "" && !contains(r.Targets, r.Fallback) {
			add("INVALID_ROUTER", "router for %s falls back to undeclared target %s", from, r.Fallback)
		}
		if r.Decide == nil && r.Fallback == "" {
			add("INVALID_ROUTER", "router for %s has neither a decision function nor a fallback", from)
		}
	}

	for _, name := range sortedKeys(b.suspend) {
		if _, ok := b.nodes[name]; !ok {
			add("NODE_NOT_FOUND", "suspension node does not exist: %s", name)
			continue
		}
		_, routed := b.routers[name]
		_, halts := b.halt[name]
		switch {
		case halts && routed:
			add("HALT_WITH_ROUTER", "halt-and-finish node %s must not have a router", name)
		case !halts && !routed:
			add("SUSPENSION_WITHOUT_ROUTER", "suspension node %s has no router; mark it halt-and-finish if intended", name)
		}
	}

	if _, ok := b.nodes[b.entry]; ok {
		reached := reachable(b.entry, b.routers)
		for _, name := range b.order {
			if _, ok := reached[name]; !ok {
				add("UNREACHABLE_NODE", "node %s is not reachable from %s", name, b.entry)
			}
		}
	}

	if len(problems) > 0 {
		return nil, &CompileError{Problems: problems}
	}

	g := &Graph{
		nodes:   make(map[string]Step, len(b.nodes)),
		order:   append([]string(nil), b.order...),
		entry:   b.entry,
		routers: make(map[string]Router, len(b.routers)),
		suspend: make(map[string]struct{}, len(b.suspend)),
		halt:    make(map[string]struct{}, len(b.halt)),
	}
	for k, v := range b.nodes {
		g.nodes[k] = v
	}
	for k, r := range b.routers {
		r.Targets = append([]string(nil), r.Targets...)
		g.routers[k] = r
	}
	for k := range b.suspend {
		g.suspend[k] = struct{}{}
	}
	for k := range b.halt {
		g.halt[k] = struct{}{}
	}
	return g, nil
}

func reachable(entry string, routers map[string]Router) map[string]struct{} {
	seen := map[string]struct{}{entry: {}}
	queue := []string{entry}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		r, ok := routers[n]
		if !ok {
			continue
		}
		for _, t := range r.Targets {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			queue = append(queue, t)
		}
	}
	return seen
}

// Graph is a compiled, immutable workflow definition. It is safe for
// concurrent use by any number of engines and workflow instances.
type Graph struct {
	nodes   map[string]Step
	order   []string
	entry   string
	routers map[string]Router
	suspend map[string]struct{}
	halt    map[string]struct{}
}

// Entry returns the entry node name.
func (g *Graph) Entry() string { return g.entry }

// Nodes returns node names in registration order.
func (g *Graph) Nodes() []string { return append([]string(nil), g.order...) }

// Has reports whether name is a node of the graph.
func (g *Graph) Has(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Step returns the step bound to name.
func (g *Graph) Step(name string) (Step, bool) {
	s, ok := g.nodes[name]
	return s, ok
}

// Targets returns the declared targets of the router after name, or nil for
// a terminal node.
func (g *Graph) Targets(name string) []string {
	r, ok := g.routers[name]
	if !ok {
		return nil
	}
	return append([]string(nil), r.Targets...)
}

// IsSuspension reports whether the engine halts after name and waits for Resume.
func (g *Graph) IsSuspension(name string) bool {
	if _, ok := g.halt[name]; ok {
		return false
	}
	_, ok := g.suspend[name]
	return ok
}

// IsTerminal reports whether name has no router.
func (g *Graph) IsTerminal(name string) bool {
	_, ok := g.routers[name]
	return !ok
}

// Route evaluates the router after from. It returns a *EngineError with code
// "ROUTING_FAULT" when the router produces an undeclared or unknown target,
// and code "NO_ROUTE" when from is terminal. A panicking router is reported
// as a routing fault.
func (g *Graph) Route(from string, state *WorkflowState) (next string, err error) {
	r, ok := g.routers[from]
	if !ok {
		return "", &EngineError{Code: "NO_ROUTE", Message: "no router after node " + from}
	}
	defer func() {
		if p := recover(); p != nil {
			next = ""
			err = &EngineError{Code: "ROUTING_FAULT", Message: fmt.Sprintf("router after %s panicked: %v", from, p)}
		}
	}()
	next, ok = r.Route(state)
	if !ok || !g.Has(next) {
		return "", &EngineError{
			Code:    "ROUTING_FAULT",
			Message: fmt.Sprintf("router after %s returned undeclared target %q", from, next),
		}
	}
	return next, nil
}
