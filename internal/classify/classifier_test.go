package classify

import (
	"context"
	"fmt"
	"testing"

	"github.com/pennyhq/penny/pkg/models"
)

// stubCompleter returns canned responses in order, then repeats the last.
type stubCompleter struct {
	responses []string
	errs      []error
	calls     int
}

func (s *stubCompleter) Complete(ctx context.Context, model, system, prompt string, maxTokens int64) (string, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return "", s.errs[idx]
	}
	return s.responses[idx], nil
}

func TestClassifyPrimary(t *testing.T) {
	stub := &stubCompleter{
		responses: []string{`{"classification": "shopping", "confidence": 0.95, "items": ["milk", "eggs"]}`},
	}
	c := New(stub, Config{Model: "test-model"})

	result := c.Classify(context.Background(), "add milk and eggs to my shopping list")

	if result.Category != models.CategoryShopping {
		t.Errorf("category = %q, want shopping", result.Category)
	}
	if result.Confidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", result.Confidence)
	}
	if result.Fallback {
		t.Error("primary classification should not be marked fallback")
	}
	items := result.Payload.Strings("items")
	if len(items) != 2 || items[0] != "milk" {
		t.Errorf("payload items = %v, want [milk eggs]", items)
	}
}

func TestClassifyStripsCodeFences(t *testing.T) {
	stub := &stubCompleter{
		responses: []string{"```json\n{\"classification\": \"media\", \"confidence\": 0.9, \"title\": \"Inception\", \"type\": \"movie\"}\n```"},
	}
	c := New(stub, Config{})

	result := c.Classify(context.Background(), "download the movie inception")

	if result.Category != models.CategoryMedia {
		t.Errorf("category = %q, want media", result.Category)
	}
	if result.Payload.String("title") != "Inception" {
		t.Errorf("title = %q, want Inception", result.Payload.String("title"))
	}
}

func TestClassifyRetriesOnce(t *testing.T) {
	stub := &stubCompleter{
		responses: []string{"", `{"classification": "reminder", "confidence": 0.9, "task": "call dentist"}`},
		errs:      []error{fmt.Errorf("transient"), nil},
	}
	c := New(stub, Config{})

	result := c.Classify(context.Background(), "remind me to call the dentist")

	if stub.calls != 2 {
		t.Errorf("completer called %d times, want 2", stub.calls)
	}
	if result.Category != models.CategoryReminder {
		t.Errorf("category = %q, want reminder from retry", result.Category)
	}
}

func TestClassifyFallsBackAfterRetry(t *testing.T) {
	stub := &stubCompleter{
		responses: []string{"not json at all"},
	}
	c := New(stub, Config{})

	result := c.Classify(context.Background(), "add bread to the shopping list")

	if stub.calls != 2 {
		t.Errorf("completer called %d times, want 2", stub.calls)
	}
	if !result.Fallback {
		t.Error("result should be marked fallback")
	}
	if result.Category != models.CategoryShopping {
		t.Errorf("category = %q, want shopping from keywords", result.Category)
	}
	if result.Confidence != fallbackConfidence {
		t.Errorf("confidence = %v, want fixed %v", result.Confidence, fallbackConfidence)
	}
}

func TestClassifyRejectsUnknownCategory(t *testing.T) {
	stub := &stubCompleter{
		responses: []string{`{"classification": "groceries", "confidence": 0.9}`},
	}
	c := New(stub, Config{})

	result := c.Classify(context.Background(), "add bread to the shopping list")

	if !result.Fallback {
		t.Error("unknown category should fall back to keywords")
	}
}

func TestClassifyNilCompleter(t *testing.T) {
	c := New(nil, Config{})

	result := c.Classify(context.Background(), "turn off the lights")

	if !result.Fallback {
		t.Error("nil completer should use keyword fallback")
	}
	if result.Category != models.CategorySmartHome {
		t.Errorf("category = %q, want smart_home", result.Category)
	}
}

func TestParseClassificationDefaults(t *testing.T) {
	result, err := parseClassification(`{"classification": "personal"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.Confidence != 0.8 {
		t.Errorf("missing confidence defaults to %v, want 0.8", result.Confidence)
	}
	if result.Payload != nil {
		t.Errorf("payload = %v, want nil for envelope-only response", result.Payload)
	}
}

func TestParseClassificationErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"no json", "plain text"},
		{"bad category", `{"classification": "unknown", "confidence": 0.5}`},
		{"confidence above one", `{"classification": "work", "confidence": 2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseClassification(tt.in); err == nil {
				t.Errorf("parseClassification(%q) succeeded, want error", tt.in)
			}
		})
	}
}
