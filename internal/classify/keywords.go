package classify

import (
	"regexp"
	"strings"

	"github.com/pennyhq/penny/pkg/models"
)

// fallbackConfidence is assigned to every keyword-matched result. Keyword
// scores only rank categories; they are too crude to stand in for a real
// confidence, so fallback results deliberately land below the direct
// dispatch band and go through confirmation or background gathering.
const fallbackConfidence = 0.4

// noMatchConfidence is assigned when no keyword matched at all and the
// item defaults to personal storage.
const noMatchConfidence = 0.2

// minKeywordScore is the match-density floor below which keyword
// classification is considered a miss.
const minKeywordScore = 0.05

var keywords = map[models.Category][]string{
	models.CategoryShopping: {
		"shopping", "grocery", "groceries", "buy", "pick up", "pickup",
		"store", "list", "eggs", "milk", "bread", "need to get", "shopping list",
	},
	models.CategoryMedia: {
		"movie", "film", "show", "series", "watch", "download", "request",
		"netflix", "streaming", "episode", "season",
	},
	models.CategorySmartHome: {
		"lights", "light", "turn on", "turn off", "thermostat", "temperature",
		"blinds", "curtains", "fan", "ac", "heater",
	},
	models.CategoryReminder: {
		"remind me", "reminder", "don't forget", "remember to",
		"tomorrow", "next week", "at noon", "at midnight",
	},
	models.CategoryCalendar: {
		"meeting", "schedule", "appointment", "calendar", "event",
		"conference", "block time", "book",
	},
	models.CategoryWork: {
		"work", "project", "deadline", "client", "report",
		"email", "presentation", "task", "todo",
	},
	models.CategoryNotes: {
		"idea", "thought", "journal", "note", "write down",
		"document", "save this", "log",
	},
	models.CategoryPersonal: {
		"test", "testing", "thank you", "thanks",
		"family", "birthday", "vacation",
	},
}

var wordPattern = regexp.MustCompile(`\b\w+\b`)

// shoppingStopwords are filler words excluded from naive item extraction.
var shoppingStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "add": true, "get": true,
	"buy": true, "some": true, "need": true, "list": true, "shopping": true,
	"to": true, "my": true,
}

// Fallback classifies text by keyword match density. It never fails: when
// nothing matches, the item defaults to personal.
func Fallback(text string) *Result {
	lower := strings.ToLower(text)
	wordCount := len(wordPattern.FindAllString(lower, -1))
	if wordCount == 0 {
		wordCount = 1
	}

	var best models.Category
	var bestScore float64
	for _, category := range models.AllCategories {
		matches := 0
		for _, kw := range keywords[category] {
			if strings.Contains(lower, kw) {
				matches++
			}
		}
		score := float64(matches) / float64(wordCount)
		if score > 1.0 {
			score = 1.0
		}
		if score > bestScore {
			best = category
			bestScore = score
		}
	}

	if bestScore < minKeywordScore {
		return &Result{
			Category:   models.CategoryPersonal,
			Confidence: noMatchConfidence,
			Fallback:   true,
		}
	}

	result := &Result{
		Category:   best,
		Confidence: fallbackConfidence,
		Fallback:   true,
	}

	switch best {
	case models.CategoryShopping:
		result.Payload = models.Payload{"items": extractShoppingItems(lower)}
	case models.CategoryWork:
		result.Payload = models.Payload{"task": text}
	}

	return result
}

func extractShoppingItems(lower string) []string {
	var items []string
	for _, word := range wordPattern.FindAllString(lower, -1) {
		if len(word) > 2 && !shoppingStopwords[word] {
			items = append(items, word)
		}
	}
	return items
}
