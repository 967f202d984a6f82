package api

import (
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"bare object",
			`{"confidence": 0.7}`,
			`{"confidence": 0.7}`,
		},
		{
			"fenced",
			"```json\n{\"confidence\": 0.7}\n```",
			`{"confidence": 0.7}`,
		},
		{
			"fenced without language",
			"```\n{\"confidence\": 0.7}\n```",
			`{"confidence": 0.7}`,
		},
		{
			"surrounding prose",
			"Here is my assessment:\n{\"confidence\": 0.55, \"reason\": \"weak match\"}\nLet me know.",
			`{"confidence": 0.55, "reason": "weak match"}`,
		},
		{
			"no object",
			"I cannot assess this.",
			"",
		},
		{
			"invalid json",
			`{"confidence": }`,
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.in); got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAssessment(t *testing.T) {
	a, err := parseAssessment("```json\n{\"confidence\": 0.72, \"reason\": \"strong probe signal\", \"suggestion\": \"Dune (2021)\"}\n```")
	if err != nil {
		t.Fatalf("parseAssessment: %v", err)
	}
	if a.Confidence != 0.72 {
		t.Errorf("confidence = %v, want 0.72", a.Confidence)
	}
	if a.Reason != "strong probe signal" {
		t.Errorf("reason = %q", a.Reason)
	}
	if a.Suggestion != "Dune (2021)" {
		t.Errorf("suggestion = %q", a.Suggestion)
	}
}

func TestParseAssessmentErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"no json", "no idea"},
		{"missing confidence", `{"reason": "x"}`},
		{"out of range", `{"confidence": 1.4}`},
		{"negative", `{"confidence": -0.1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseAssessment(tt.in); err == nil {
				t.Errorf("parseAssessment(%q) succeeded, want error", tt.in)
			}
		})
	}
}

func TestTokenTracker(t *testing.T) {
	tr := NewTokenTracker()
	tr.Add(100, 40)
	tr.Add(50, 10)

	in, out := tr.Total()
	if in != 150 || out != 50 {
		t.Errorf("Total() = %d/%d, want 150/50", in, out)
	}
	if tr.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", tr.Calls())
	}
}
