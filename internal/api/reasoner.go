package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pennyhq/penny/pkg/models"
)

// Assessment is the outcome of a reasoning pass over a background task.
type Assessment struct {
	// Confidence is the model's judgment in [0,1].
	Confidence float64
	// Reason is a short explanation of the judgment.
	Reason string
	// Suggestion optionally refines the item's payload interpretation,
	// e.g. a disambiguated media title.
	Suggestion string
}

// Reasoner runs model-backed reasoning passes for the background
// orchestrator. The quick pass uses a mid-tier model; the full pass uses
// the top model and is only spent when a task is about to expire.
type Reasoner struct {
	client     *Client
	quickModel string
	fullModel  string
	timeout    time.Duration
}

// ReasonerConfig configures a Reasoner.
type ReasonerConfig struct {
	QuickModel string
	FullModel  string
	// Timeout bounds one reasoning call. Zero means 30s.
	Timeout time.Duration
}

// NewReasoner creates a Reasoner on top of an API client.
func NewReasoner(client *Client, cfg ReasonerConfig) *Reasoner {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Reasoner{
		client:     client,
		quickModel: cfg.QuickModel,
		fullModel:  cfg.FullModel,
		timeout:    timeout,
	}
}

const reasonerSystem = `You assess whether enough evidence has been gathered to act on a captured voice note.
Given the note, its category, and the probe evidence collected so far, judge how confident the system should be that acting on the note now is correct.
Respond with JSON only: {"confidence": <0.0-1.0>, "reason": "<one sentence>", "suggestion": "<optional refined interpretation or empty string>"}`

// Quick runs the mid-tier reasoning pass.
func (r *Reasoner) Quick(ctx context.Context, item *models.Item, task *models.BackgroundTask) (*Assessment, error) {
	return r.assess(ctx, r.quickModel, item, task)
}

// Full runs the top-model reasoning pass.
func (r *Reasoner) Full(ctx context.Context, item *models.Item, task *models.BackgroundTask) (*Assessment, error) {
	return r.assess(ctx, r.fullModel, item, task)
}

func (r *Reasoner) assess(ctx context.Context, model string, item *models.Item, task *models.BackgroundTask) (*Assessment, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prompt := buildAssessPrompt(item, task)
	text, err := r.client.Complete(ctx, model, reasonerSystem, prompt, 1024)
	if err != nil {
		return nil, fmt.Errorf("reasoning pass: %w", err)
	}

	return parseAssessment(text)
}

func buildAssessPrompt(item *models.Item, task *models.BackgroundTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Note: %s\n", item.Text)
	fmt.Fprintf(&b, "Category: %s\n", item.Category)
	fmt.Fprintf(&b, "Current confidence: %.2f\n", task.Confidence)
	fmt.Fprintf(&b, "Poll cycles so far: %d\n", task.PollCount)

	if len(task.Results) == 0 {
		b.WriteString("Probe evidence: none yet\n")
		return b.String()
	}

	b.WriteString("Probe evidence:\n")
	for _, res := range task.Results {
		if res.Success {
			fmt.Fprintf(&b, "- %s: signal %.2f, %s\n", res.Probe, res.Signal, res.Detail)
		} else {
			fmt.Fprintf(&b, "- %s: failed (%s)\n", res.Probe, res.Error)
		}
	}
	return b.String()
}

// parseAssessment extracts the assessment JSON from a model response,
// tolerating markdown code fences and surrounding prose.
func parseAssessment(text string) (*Assessment, error) {
	body := ExtractJSON(text)
	if body == "" {
		return nil, fmt.Errorf("no JSON object in response: %q", truncate(text, 120))
	}

	confidence := gjson.Get(body, "confidence")
	if !confidence.Exists() {
		return nil, fmt.Errorf("response missing confidence: %q", truncate(body, 120))
	}

	conf := confidence.Float()
	if conf < 0 || conf > 1 {
		return nil, fmt.Errorf("confidence %v out of range", conf)
	}

	return &Assessment{
		Confidence: conf,
		Reason:     gjson.Get(body, "reason").String(),
		Suggestion: gjson.Get(body, "suggestion").String(),
	}, nil
}

// ExtractJSON returns the first JSON object embedded in a model response,
// stripping markdown code fences. Returns "" when no object is found.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		// Drop the opening fence line and the closing fence.
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}

	body := text[start : end+1]
	if !gjson.Valid(body) {
		return ""
	}
	return body
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
