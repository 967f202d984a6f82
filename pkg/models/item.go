// Package models defines the core domain types shared across Penny.
package models

import (
	"time"
)

// Category classifies what a voice-transcript item is about.
type Category string

const (
	// CategoryShopping is for items to buy.
	CategoryShopping Category = "shopping"
	// CategoryMedia is for movie/TV requests.
	CategoryMedia Category = "media"
	// CategorySmartHome is for device control commands.
	CategorySmartHome Category = "smart_home"
	// CategoryReminder is for tasks with due dates.
	CategoryReminder Category = "reminder"
	// CategoryCalendar is for meetings and scheduled events.
	CategoryCalendar Category = "calendar"
	// CategoryWork is for work tasks without specific dates.
	CategoryWork Category = "work"
	// CategoryNotes is for longer thoughts and journal entries.
	CategoryNotes Category = "notes"
	// CategoryPersonal is for quick thoughts that just need storing.
	// It is the default when classification cannot do better.
	CategoryPersonal Category = "personal"
)

// AllCategories lists every known category. The dispatch registry is
// validated against this list so a new category cannot be added without
// a handler.
var AllCategories = []Category{
	CategoryShopping,
	CategoryMedia,
	CategorySmartHome,
	CategoryReminder,
	CategoryCalendar,
	CategoryWork,
	CategoryNotes,
	CategoryPersonal,
}

// Valid returns true if the category is a known value.
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ItemStatus represents the lifecycle state of an item.
type ItemStatus string

const (
	// ItemStatusPending indicates the item awaits confirmation or background gathering.
	ItemStatusPending ItemStatus = "pending"
	// ItemStatusConfirmed indicates the user explicitly confirmed the item.
	ItemStatusConfirmed ItemStatus = "confirmed"
	// ItemStatusRouted indicates the item was dispatched to its target integration.
	ItemStatusRouted ItemStatus = "routed"
	// ItemStatusFailed indicates dispatch failed and the fallback notification was sent.
	ItemStatusFailed ItemStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusPending, ItemStatusConfirmed, ItemStatusRouted, ItemStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a terminal lifecycle state.
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusRouted || s == ItemStatusFailed
}

// Payload holds category-specific fields extracted by the classifier,
// e.g. shopping items, a media title, or calendar fields.
type Payload map[string]any

// String returns the string value for a key, or "" if absent or not a string.
func (p Payload) String(key string) string {
	if p == nil {
		return ""
	}
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}

// Strings returns the string-slice value for a key. Both []string and
// []any (as produced by JSON decoding) are accepted.
func (p Payload) Strings(key string) []string {
	if p == nil {
		return nil
	}
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Item represents one ingested utterance.
type Item struct {
	// ID is the unique identifier for this item.
	ID string `json:"id"`
	// Text is the raw transcribed text.
	Text string `json:"text"`
	// Source tags where the transcript came from (filename, "manual", ...).
	Source string `json:"source,omitempty"`
	// Category is the classified category.
	Category Category `json:"category"`
	// Confidence is the classification confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// Payload holds the extracted category-specific fields.
	Payload Payload `json:"payload,omitempty"`
	// Status is the lifecycle state.
	Status ItemStatus `json:"status"`
	// RoutedTo records the terminal action (integration name or "fallback").
	RoutedTo string `json:"routed_to,omitempty"`
	// CreatedAt is when the item was ingested.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the item was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}
