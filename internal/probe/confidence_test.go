package probe

import (
	"testing"

	"github.com/pennyhq/penny/pkg/models"
)

func TestCombineWeightedAverage(t *testing.T) {
	results := []models.ProbeResult{
		{Probe: "a", Success: true, Signal: 0.9},
		{Probe: "b", Success: true, Signal: 0.5},
	}

	got := Combine(0, results)
	if got != 0.7 {
		t.Errorf("Combine = %v, want 0.7", got)
	}
}

func TestCombineFailuresDragWithZeroSignal(t *testing.T) {
	results := []models.ProbeResult{
		{Probe: "a", Success: true, Signal: 0.9},
		{Probe: "b", Success: false, Signal: 0.9, Error: "timeout"},
	}

	// (0.9*1.0 + 0*0.5) / 1.5 = 0.6; the failed probe contributes zero
	// signal at half weight regardless of its recorded value.
	got := Combine(0, results)
	if got != 0.6 {
		t.Errorf("Combine = %v, want 0.6", got)
	}
}

func TestCombineMonotoneNonDecreasing(t *testing.T) {
	previous := 0.75
	weak := []models.ProbeResult{
		{Probe: "a", Success: true, Signal: 0.1},
		{Probe: "b", Success: false},
	}

	got := Combine(previous, weak)
	if got < previous {
		t.Errorf("Combine dropped confidence: %v < %v", got, previous)
	}
	if got != previous {
		t.Errorf("weak evidence should hold at %v, got %v", previous, got)
	}
}

func TestCombineEmptyResultsHold(t *testing.T) {
	if got := Combine(0.42, nil); got != 0.42 {
		t.Errorf("Combine(0.42, nil) = %v, want 0.42", got)
	}
}

func TestCombineCapsAtOne(t *testing.T) {
	results := []models.ProbeResult{
		{Probe: "a", Success: true, Signal: 1.0},
	}
	if got := Combine(0.99, results); got > 1 {
		t.Errorf("Combine = %v, want <= 1", got)
	}
}

func TestCombineSequenceNeverDecreases(t *testing.T) {
	cycles := [][]models.ProbeResult{
		{{Probe: "a", Success: true, Signal: 0.3}},
		{{Probe: "a", Success: true, Signal: 0.9}},
		{{Probe: "a", Success: false}},
		{{Probe: "a", Success: true, Signal: 0.2}, {Probe: "b", Success: true, Signal: 0.4}},
	}

	confidence := 0.0
	for i, results := range cycles {
		next := Combine(confidence, results)
		if next < confidence {
			t.Fatalf("cycle %d decreased confidence: %v -> %v", i, confidence, next)
		}
		confidence = next
	}
}
