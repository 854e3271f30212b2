package emit

import "sync"

// BufferedEmitter stores events in memory, grouped by work ID.
//
// Useful for tests and for inspecting a single work unit's trail during
// development. It keeps everything it receives, so production deployments
// should call Clear once a work unit is archived.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter()
//	engine, _ := graph.NewEngine(g, graph.WithEmitter(emitter))
//	engine.Start(ctx, "doc-1", input)
//
//	all := emitter.GetHistory("doc-1")
//	failures := emitter.GetHistoryWithFilter("doc-1", emit.HistoryFilter{Msg: emit.MsgStepFailed})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // workID -> events
}

// HistoryFilter specifies criteria for filtering buffered events.
//
// All fields are optional and combined with AND logic.
type HistoryFilter struct {
	Node    string // Filter by node (empty = no filter)
	Msg     string // Filter by message (empty = no filter)
	MinStep *int   // Minimum step number (nil = no filter)
	MaxStep *int   // Maximum step number (nil = no filter)
}

// NewBufferedEmitter creates a new BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.WorkID] = append(b.events[event.WorkID], event)
}

// GetHistory returns a copy of all events for workID in emission order.
// It returns an empty slice when none exist.
func (b *BufferedEmitter) GetHistory(workID string) []Event {
	return b.GetHistoryWithFilter(workID, HistoryFilter{})
}

// GetHistoryWithFilter returns the events for workID that match filter.
func (b *BufferedEmitter) GetHistoryWithFilter(workID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Event, 0, len(b.events[workID]))
	for _, event := range b.events[workID] {
		if filter.matches(event) {
			result = append(result, event)
		}
	}
	return result
}

// Messages returns the Msg of every event for workID, in order.
func (b *BufferedEmitter) Messages(workID string) []string {
	events := b.GetHistory(workID)
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Msg
	}
	return out
}

func (f HistoryFilter) matches(event Event) bool {
	if f.Node != "" && event.Node != f.Node {
		return false
	}
	if f.Msg != "" && event.Msg != f.Msg {
		return false
	}
	if f.MinStep != nil && event.Step < *f.MinStep {
		return false
	}
	if f.MaxStep != nil && event.Step > *f.MaxStep {
		return false
	}
	return true
}

// Clear removes stored events for workID, or all events when workID is empty.
func (b *BufferedEmitter) Clear(workID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if workID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, workID)
}
