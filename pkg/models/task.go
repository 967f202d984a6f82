package models

import "time"

// TaskState represents the current state of a background task.
type TaskState string

const (
	// TaskStateQueued indicates the task is waiting for the next poll cycle.
	TaskStateQueued TaskState = "queued"
	// TaskStateProbing indicates probes are currently running for the task.
	TaskStateProbing TaskState = "probing"
	// TaskStateEscalated indicates confidence was sufficient and delivery started.
	TaskStateEscalated TaskState = "escalated"
	// TaskStateDelivered indicates the task's item was dispatched.
	TaskStateDelivered TaskState = "delivered"
	// TaskStateExpired indicates the poll ceiling was reached; resolved via fallback.
	TaskStateExpired TaskState = "expired"
)

// Valid returns true if the state is a known value.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateQueued, TaskStateProbing, TaskStateEscalated, TaskStateDelivered, TaskStateExpired:
		return true
	default:
		return false
	}
}

// Terminal returns true if the state is a terminal task state.
func (s TaskState) Terminal() bool {
	return s == TaskStateDelivered || s == TaskStateExpired
}

// ProbeResult records one probe execution for a background task.
type ProbeResult struct {
	// Probe is the registered probe name.
	Probe string `json:"probe"`
	// Success is false when the probe timed out or errored.
	Success bool `json:"success"`
	// Latency is how long the probe ran.
	Latency time.Duration `json:"latency"`
	// Signal is the probe's confidence contribution in [0,1].
	// Failed probes always contribute zero.
	Signal float64 `json:"signal"`
	// Detail is a short human-readable summary of what the probe found.
	Detail string `json:"detail,omitempty"`
	// Error holds the failure message for unsuccessful probes.
	Error string `json:"error,omitempty"`
}

// BackgroundTask tracks one item's in-progress confidence-gathering cycle.
// It is owned exclusively by the orchestrator; the referenced item is
// read-only from the task's perspective except for the final terminal write.
type BackgroundTask struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// ItemID references the item being gathered for.
	ItemID string `json:"item_id"`
	// State is the current task state.
	State TaskState `json:"state"`
	// Results is the ordered sequence of accumulated probe results.
	Results []ProbeResult `json:"results,omitempty"`
	// Confidence is the aggregated confidence, monotonically non-decreasing.
	Confidence float64 `json:"confidence"`
	// PollCount is the number of orchestrator cycles the task has been through.
	PollCount int `json:"poll_count"`
	// Version guards state transitions; every transition is a compare-and-set
	// on this counter so overlapping poll cycles cannot double-process a task.
	Version int `json:"version"`
	// CreatedAt is when the task was enqueued.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// ConfirmationOutcome represents the resolution state of a confirmation request.
type ConfirmationOutcome string

const (
	// ConfirmationPending indicates the user has not replied yet.
	ConfirmationPending ConfirmationOutcome = "pending"
	// ConfirmationConfirmed indicates the user explicitly confirmed.
	ConfirmationConfirmed ConfirmationOutcome = "confirmed"
	// ConfirmationTimedOut indicates the reply window elapsed.
	ConfirmationTimedOut ConfirmationOutcome = "timed_out"
)

// Valid returns true if the outcome is a known value.
func (o ConfirmationOutcome) Valid() bool {
	switch o {
	case ConfirmationPending, ConfirmationConfirmed, ConfirmationTimedOut:
		return true
	default:
		return false
	}
}

// Confirmation tracks one mid-band item's confirmation request on the
// universal fallback channel. The reply path and the timeout path drive
// the same transition.
type Confirmation struct {
	// CorrelationID links the outbound question to the inbound reply.
	CorrelationID string `json:"correlation_id"`
	// ItemID references the item awaiting confirmation.
	ItemID string `json:"item_id"`
	// Question is the message sent on the fallback channel.
	Question string `json:"question"`
	// Outcome is the resolution state.
	Outcome ConfirmationOutcome `json:"outcome"`
	// ExpiresAt is when the reply window closes.
	ExpiresAt time.Time `json:"expires_at"`
	// CreatedAt is when the request was sent.
	CreatedAt time.Time `json:"created_at"`
}
