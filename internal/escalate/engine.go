// Package escalate maps aggregated confidence values to action tiers.
// It is a pure policy function so the tiering can be tested and swapped
// independently of the orchestrator that acts on it.
package escalate

// Tier is the action selected for a given confidence value.
type Tier string

const (
	// TierDeliver means findings are sufficient; dispatch directly.
	TierDeliver Tier = "deliver"
	// TierQuickReason means findings are close; run a cheap reasoning pass.
	TierQuickReason Tier = "quick_reason"
	// TierFullReason means signal is weak; a full reasoning pass is the
	// last resort before expiry.
	TierFullReason Tier = "full_reason"
	// TierRequeue means keep gathering on the next cycle.
	TierRequeue Tier = "requeue"
)

// Thresholds holds the configured confidence boundaries.
type Thresholds struct {
	// High is the direct-dispatch boundary (default 0.8).
	High float64
	// Medium is the quick-reasoning boundary (default 0.6).
	Medium float64
	// Low is the background-gathering boundary (default 0.6).
	Low float64
}

// DefaultThresholds returns the standard confidence boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.8, Medium: 0.6, Low: 0.6}
}

// Engine selects an action tier for an aggregated confidence value.
type Engine struct {
	thresholds Thresholds
}

// NewEngine creates an Engine with the given thresholds.
func NewEngine(t Thresholds) *Engine {
	return &Engine{thresholds: t}
}

// Tier returns the action tier for the given confidence.
//
//	confidence >= high    -> deliver
//	confidence >= medium  -> quick_reason
//	otherwise             -> full_reason
//
// The orchestrator treats full_reason as requeue until the final
// permitted cycle; Tier itself stays stateless.
func (e *Engine) Tier(confidence float64) Tier {
	switch {
	case confidence >= e.thresholds.High:
		return TierDeliver
	case confidence >= e.thresholds.Medium:
		return TierQuickReason
	default:
		return TierFullReason
	}
}

// Thresholds returns the engine's configured thresholds.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}
