// ABOUTME: Turn lifecycle events surfaced to consumers (CLI, tests).
// ABOUTME: Agent failures arrive here as annotations, never as orchestrator crashes.

package orchestrator

// EventKind categorizes a turn lifecycle event.
type EventKind string

const (
	EventAgentStarted   EventKind = "agent_started"
	EventAgentCompleted EventKind = "agent_completed"
	EventAgentFailed    EventKind = "agent_failed"
	EventTurnFinished   EventKind = "turn_finished"
)

// TurnEvent describes one step of a turn. Err is set for agent_failed.
// MessageID points at the log entry the step produced, when there is one.
type TurnEvent struct {
	Kind      EventKind
	AgentID   string
	MessageID string
	Err       error
}
