package probe

import "github.com/pennyhq/penny/pkg/models"

// successWeight and failureWeight bias aggregation toward probes that
// actually ran. A failed probe still participates (with zero signal):
// knowing where the answer isn't is evidence too.
const (
	successWeight = 1.0
	failureWeight = 0.5
)

// Combine folds a cycle's probe results into the task's aggregate
// confidence. The combination is a weighted average of signals, clamped
// so the aggregate never decreases: new evidence can only raise or hold
// confidence, never erode what earlier cycles established.
func Combine(previous float64, results []models.ProbeResult) float64 {
	if len(results) == 0 {
		return previous
	}

	var weightedSum, totalWeight float64
	for _, res := range results {
		weight := successWeight
		signal := res.Signal
		if !res.Success {
			weight = failureWeight
			signal = 0
		}
		weightedSum += signal * weight
		totalWeight += weight
	}

	combined := weightedSum / totalWeight
	if combined < previous {
		combined = previous
	}
	if combined > 1 {
		combined = 1
	}
	return combined
}
