// Package probe implements the cheap information-gathering operations the
// background orchestrator runs while the user is away. Probes accumulate
// findings without spending reasoning tokens; a probe that finds nothing
// is still informative.
package probe

import (
	"context"
	"time"

	"github.com/pennyhq/penny/pkg/models"
)

// Probe is one information-gathering operation.
type Probe interface {
	// Name identifies the probe in results and logs.
	Name() string
	// Applicable reports whether this probe can contribute for the item.
	Applicable(item *models.Item) bool
	// Run gathers evidence and returns a signal in [0,1] plus a short
	// human-readable detail. Errors are isolated by Execute.
	Run(ctx context.Context, item *models.Item) (signal float64, detail string, err error)
}

// Execute runs one probe under its timeout and converts the outcome into
// a recorded result. Failures never propagate: they become zero-signal
// results so a broken probe cannot inflate or block confidence.
func Execute(ctx context.Context, p Probe, item *models.Item, timeout time.Duration) models.ProbeResult {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	signal, detail, err := p.Run(ctx, item)
	latency := time.Since(start)

	if err != nil {
		return models.ProbeResult{
			Probe:   p.Name(),
			Success: false,
			Latency: latency,
			Signal:  0,
			Error:   err.Error(),
		}
	}

	if signal < 0 {
		signal = 0
	}
	if signal > 1 {
		signal = 1
	}

	return models.ProbeResult{
		Probe:   p.Name(),
		Success: true,
		Latency: latency,
		Signal:  signal,
		Detail:  detail,
	}
}

// Registry holds the registered probes in order. It is open for
// extension: new probes register at construction time.
type Registry struct {
	probes []Probe
}

// NewRegistry creates a registry with the given probes.
func NewRegistry(probes ...Probe) *Registry {
	return &Registry{probes: probes}
}

// Register appends a probe.
func (r *Registry) Register(p Probe) {
	r.probes = append(r.probes, p)
}

// Applicable returns the probes that can contribute for an item, in
// registration order.
func (r *Registry) Applicable(item *models.Item) []Probe {
	var applicable []Probe
	for _, p := range r.probes {
		if p.Applicable(item) {
			applicable = append(applicable, p)
		}
	}
	return applicable
}

// Len returns the number of registered probes.
func (r *Registry) Len() int {
	return len(r.probes)
}
