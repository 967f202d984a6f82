package probe

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pennyhq/penny/pkg/models"
)

// stubProbe is a controllable probe for registry and Execute tests.
type stubProbe struct {
	name       string
	applicable bool
	signal     float64
	detail     string
	err        error
	delay      time.Duration
}

func (p *stubProbe) Name() string { return p.name }

func (p *stubProbe) Applicable(item *models.Item) bool { return p.applicable }

func (p *stubProbe) Run(ctx context.Context, item *models.Item) (float64, string, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return 0, "", ctx.Err()
		}
	}
	return p.signal, p.detail, p.err
}

func TestExecuteSuccess(t *testing.T) {
	p := &stubProbe{name: "stub", signal: 0.7, detail: "found it"}
	result := Execute(context.Background(), p, &models.Item{}, time.Second)

	if !result.Success {
		t.Error("result should be successful")
	}
	if result.Signal != 0.7 {
		t.Errorf("signal = %v, want 0.7", result.Signal)
	}
	if result.Detail != "found it" {
		t.Errorf("detail = %q", result.Detail)
	}
	if result.Probe != "stub" {
		t.Errorf("probe = %q", result.Probe)
	}
}

func TestExecuteFailureZeroSignal(t *testing.T) {
	p := &stubProbe{name: "stub", signal: 0.9, err: fmt.Errorf("boom")}
	result := Execute(context.Background(), p, &models.Item{}, time.Second)

	if result.Success {
		t.Error("result should be a failure")
	}
	if result.Signal != 0 {
		t.Errorf("failed probe signal = %v, want 0", result.Signal)
	}
	if result.Error != "boom" {
		t.Errorf("error = %q", result.Error)
	}
}

func TestExecuteTimeout(t *testing.T) {
	p := &stubProbe{name: "slow", signal: 0.9, delay: time.Second}
	result := Execute(context.Background(), p, &models.Item{}, 10*time.Millisecond)

	if result.Success {
		t.Error("timed-out probe should fail")
	}
	if result.Signal != 0 {
		t.Errorf("signal = %v, want 0", result.Signal)
	}
}

func TestExecuteClampsSignal(t *testing.T) {
	p := &stubProbe{name: "hot", signal: 1.7}
	result := Execute(context.Background(), p, &models.Item{}, time.Second)
	if result.Signal != 1 {
		t.Errorf("signal = %v, want clamped to 1", result.Signal)
	}
}

func TestRegistryApplicable(t *testing.T) {
	a := &stubProbe{name: "a", applicable: true}
	b := &stubProbe{name: "b", applicable: false}
	c := &stubProbe{name: "c", applicable: true}

	reg := NewRegistry(a, b)
	reg.Register(c)

	applicable := reg.Applicable(&models.Item{})
	if len(applicable) != 2 {
		t.Fatalf("applicable = %d probes, want 2", len(applicable))
	}
	if applicable[0].Name() != "a" || applicable[1].Name() != "c" {
		t.Errorf("applicable order = %s, %s; want a, c", applicable[0].Name(), applicable[1].Name())
	}
	if reg.Len() != 3 {
		t.Errorf("Len() = %d, want 3", reg.Len())
	}
}
