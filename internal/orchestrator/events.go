package orchestrator

import "time"

// EventType identifies what happened in the orchestrator.
type EventType string

const (
	// EventTaskClaimed means a cycle claimed a queued task for probing.
	EventTaskClaimed EventType = "task_claimed"
	// EventProbesRun means a task's probe batch finished.
	EventProbesRun EventType = "probes_run"
	// EventReasoning means a reasoning pass ran for a task.
	EventReasoning EventType = "reasoning"
	// EventDelivered means a task's item was dispatched.
	EventDelivered EventType = "delivered"
	// EventRequeued means a task went back to the queue for another cycle.
	EventRequeued EventType = "requeued"
	// EventExpired means a task hit the poll ceiling and was resolved via
	// the fallback channel.
	EventExpired EventType = "expired"
	// EventConfirmationsSwept means timed-out confirmations were resolved.
	EventConfirmationsSwept EventType = "confirmations_swept"
	// EventError means a cycle hit a non-fatal error.
	EventError EventType = "error"
)

// Event is one orchestrator occurrence, consumed by the CLI and logs.
type Event struct {
	Type       EventType `json:"type"`
	TaskID     string    `json:"task_id,omitempty"`
	ItemID     string    `json:"item_id,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Message    string    `json:"message,omitempty"`
	Time       time.Time `json:"time"`
}
