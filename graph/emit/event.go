package emit

// Standard event messages emitted by the engine.
const (
	MsgWorkflowStarted   = "workflow_started"
	MsgStepCompleted     = "step_completed"
	MsgStepFailed        = "step_failed"
	MsgWorkflowSuspended = "workflow_suspended"
	MsgWorkflowResumed   = "workflow_resumed"
	MsgWorkflowCompleted = "workflow_completed"
	MsgWorkflowFailed    = "workflow_failed"
)

// Event is an observability record emitted during workflow execution.
type Event struct {
	// WorkID identifies the unit of work that emitted this event.
	WorkID string

	// Step is the history sequence number of the step (1-indexed).
	// Zero for workflow-level events.
	Step int

	// Node is the node the event concerns. Empty for some workflow-level events.
	Node string

	// Msg is one of the Msg* constants or a caller-defined message.
	Msg string

	// Meta carries event-specific data. Common keys:
	//   - "duration_ms": step duration in milliseconds
	//   - "error": failure message
	//   - "next": node selected by the router
	//   - "version": state version after the change
	//   - "cost_usd", "tokens_in", "tokens_out", "model": LLM usage
	Meta map[string]interface{}
}

// Error returns the "error" metadata value, or "" when absent.
func (e Event) Error() string {
	if e.Meta == nil {
		return ""
	}
	s, _ := e.Meta["error"].(string)
	return s
}
