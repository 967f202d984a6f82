// Package classify turns raw transcript text into a categorized item with
// a confidence score and extracted payload fields.
package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pennyhq/penny/internal/api"
	"github.com/pennyhq/penny/pkg/models"
)

// Completer abstracts the inference client so tests can stub it.
type Completer interface {
	Complete(ctx context.Context, model, system, prompt string, maxTokens int64) (string, error)
}

// Result is the outcome of classifying one utterance.
type Result struct {
	// Category is the chosen category, always a valid value.
	Category models.Category
	// Confidence is the classification confidence in [0,1].
	Confidence float64
	// Payload holds the category-specific fields the model extracted.
	Payload models.Payload
	// Fallback is true when keyword matching produced the result because
	// inference was unavailable or returned garbage.
	Fallback bool
}

// Classifier classifies utterances with a cheap model, falling back to
// keyword matching when inference fails.
type Classifier struct {
	completer Completer
	model     string
	timeout   time.Duration
}

// Config configures a Classifier.
type Config struct {
	// Model is the inference model for classification.
	Model string
	// Timeout bounds one inference call. Zero means 15s.
	Timeout time.Duration
}

// New creates a Classifier. A nil completer yields a keyword-only
// classifier, useful when no API key is configured.
func New(completer Completer, cfg Config) *Classifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Classifier{
		completer: completer,
		model:     cfg.Model,
		timeout:   timeout,
	}
}

const classifierSystem = `You are Penny, an intelligent voice memo router. Analyze the memo and respond with JSON.

CATEGORIES:
- shopping: Items to buy. Extract individual items as a list.
- media: Movie/TV show requests. Extract title and type (movie/tv).
- smart_home: Light/thermostat/device control. Extract action and entity.
- reminder: Tasks with due dates, things to remember. Extract task and due date/time.
- calendar: Meetings, appointments, scheduled events. Extract title, date, time, duration, location.
- work: Work-related tasks without specific dates. Extract task description.
- notes: Longer thoughts, ideas, journal entries to save. Extract title and content.
- personal: Quick thoughts that just need to be stored.

EXAMPLES:

"Add milk and eggs to my shopping list"
{"classification": "shopping", "confidence": 0.95, "items": ["milk", "eggs"]}

"Can you download the movie Inception"
{"classification": "media", "confidence": 0.9, "title": "Inception", "type": "movie"}

"Turn off all the lights"
{"classification": "smart_home", "confidence": 0.95, "action": "turn_off", "entity": "all_lights"}

"Remind me to call the dentist tomorrow at 2pm"
{"classification": "reminder", "confidence": 0.95, "task": "Call the dentist", "due_date": "tomorrow", "due_time": "2pm"}

"Schedule a meeting with John next Tuesday at 3pm at the coffee shop"
{"classification": "calendar", "confidence": 0.9, "title": "Meeting with John", "date": "next Tuesday", "time": "3pm", "location": "coffee shop"}

"I need to finish that report for the client"
{"classification": "work", "confidence": 0.8, "task": "Finish report for client"}

"I had a great idea for a new app feature"
{"classification": "notes", "confidence": 0.85, "title": "App feature idea", "content": "New feature idea"}

"Just testing, one two three"
{"classification": "personal", "confidence": 0.9, "summary": "Test message"}

Respond with ONLY valid JSON. No explanation, no markdown, just JSON.`

// Classify classifies text. The model is tried first with one retry; any
// failure or unparseable response falls back to keyword matching, which
// always succeeds.
func (c *Classifier) Classify(ctx context.Context, text string) *Result {
	if c.completer == nil {
		return Fallback(text)
	}

	// One retry covers transient API errors and one-off malformed output.
	for attempt := 0; attempt < 2; attempt++ {
		result, err := c.infer(ctx, text)
		if err == nil {
			return result
		}
		if ctx.Err() != nil {
			break
		}
	}

	return Fallback(text)
}

func (c *Classifier) infer(ctx context.Context, text string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.completer.Complete(ctx, c.model, classifierSystem, text, 512)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	return parseClassification(raw)
}

// parseClassification extracts a classification result from model output,
// tolerating code fences and surrounding prose.
func parseClassification(raw string) (*Result, error) {
	body := api.ExtractJSON(raw)
	if body == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	parsed := gjson.Parse(body)

	category := models.Category(parsed.Get("classification").String())
	if !category.Valid() {
		return nil, fmt.Errorf("unknown category %q", category)
	}

	confidence := 0.8
	if c := parsed.Get("confidence"); c.Exists() {
		confidence = c.Float()
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", confidence)
	}

	// Everything beyond the two envelope fields is category payload.
	payload := models.Payload{}
	parsed.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "classification", "confidence":
			return true
		}
		payload[key.String()] = value.Value()
		return true
	})
	if len(payload) == 0 {
		payload = nil
	}

	return &Result{
		Category:   category,
		Confidence: confidence,
		Payload:    payload,
	}, nil
}
