package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/pennyhq/penny/internal/state"
	"github.com/pennyhq/penny/pkg/models"
)

// knowledgeSampleSize is how many past items the probe considers per run.
const knowledgeSampleSize = 50

// Knowledge answers "what do I already know about this?" by looking for
// previously routed items in the same category that share terms with the
// new one. Prior successful deliveries of similar items raise confidence.
type Knowledge struct {
	store state.ItemStore
}

// NewKnowledge creates the knowledge-base probe over the item store.
func NewKnowledge(store state.ItemStore) *Knowledge {
	return &Knowledge{store: store}
}

func (p *Knowledge) Name() string {
	return "knowledge"
}

func (p *Knowledge) Applicable(item *models.Item) bool {
	return strings.TrimSpace(item.Text) != ""
}

func (p *Knowledge) Run(ctx context.Context, item *models.Item) (float64, string, error) {
	past, _, err := p.store.ListItems(item.Category, knowledgeSampleSize, 0)
	if err != nil {
		return 0, "", fmt.Errorf("list past items: %w", err)
	}

	terms := searchTerms(item.Text)
	similar := 0
	for _, candidate := range past {
		if candidate.ID == item.ID || candidate.Status != models.ItemStatusRouted {
			continue
		}
		if sharesTerm(strings.ToLower(candidate.Text), terms) {
			similar++
		}
	}

	// min(similar/5, 1.0), floor 0.1: an empty history is still a datum.
	signal := float64(similar) / 5
	if signal > 1 {
		signal = 1
	}
	if similar == 0 {
		signal = 0.1
	}

	detail := fmt.Sprintf("%d similar items previously routed", similar)
	return signal, detail, nil
}

func sharesTerm(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
