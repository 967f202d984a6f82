package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pennyhq/penny/pkg/models"
)

// httpTimeout bounds one integration call.
const httpTimeout = 15 * time.Second

// httpTarget is the shared machinery for integrations reached over a
// narrow JSON-over-HTTP contract. An empty base URL means the integration
// is not configured; dispatch then fails and the caller falls back to the
// notification channel.
type httpTarget struct {
	name    string
	baseURL string
	path    string
	client  *http.Client
}

func newHTTPTarget(name, baseURL, path string, client *http.Client) *httpTarget {
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}
	return &httpTarget{name: name, baseURL: baseURL, path: path, client: client}
}

func (t *httpTarget) Name() string {
	return t.name
}

func (t *httpTarget) post(ctx context.Context, body any) error {
	if t.baseURL == "" {
		return &Error{Target: t.name, Cause: fmt.Errorf("integration not configured")}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return &Error{Target: t.name, Cause: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+t.path, bytes.NewReader(data))
	if err != nil {
		return &Error{Target: t.name, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return &Error{Target: t.name, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Target: t.name, Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

// ShoppingList sends extracted shopping items to the list service.
type ShoppingList struct {
	*httpTarget
}

// NewShoppingList creates the shopping list dispatcher.
func NewShoppingList(baseURL string, client *http.Client) *ShoppingList {
	return &ShoppingList{newHTTPTarget("shopping-list", baseURL, "/api/list/items", client)}
}

// Dispatch adds the item's extracted entries to the shopping list. When
// extraction produced nothing, the raw text goes in as a single entry.
func (s *ShoppingList) Dispatch(ctx context.Context, item *models.Item) error {
	items := item.Payload.Strings("items")
	if len(items) == 0 {
		items = []string{item.Text}
	}
	return s.post(ctx, map[string]any{"items": items})
}

// MediaRequest sends movie/TV requests to the media request service.
type MediaRequest struct {
	*httpTarget
}

// NewMediaRequest creates the media request dispatcher.
func NewMediaRequest(baseURL string, client *http.Client) *MediaRequest {
	return &MediaRequest{newHTTPTarget("media-request", baseURL, "/api/v1/request", client)}
}

func (m *MediaRequest) Dispatch(ctx context.Context, item *models.Item) error {
	title := item.Payload.String("title")
	if title == "" {
		title = item.Text
	}
	mediaType := item.Payload.String("type")
	if mediaType == "" {
		mediaType = "movie"
	}
	return m.post(ctx, map[string]any{"title": title, "mediaType": mediaType})
}

// CalendarEvent sends calendar items to the calendar service.
type CalendarEvent struct {
	*httpTarget
}

// NewCalendarEvent creates the calendar dispatcher.
func NewCalendarEvent(baseURL string, client *http.Client) *CalendarEvent {
	return &CalendarEvent{newHTTPTarget("calendar", baseURL, "/api/events", client)}
}

func (c *CalendarEvent) Dispatch(ctx context.Context, item *models.Item) error {
	title := item.Payload.String("title")
	if title == "" {
		title = item.Text
	}
	return c.post(ctx, map[string]any{
		"title":    title,
		"date":     item.Payload.String("date"),
		"time":     item.Payload.String("time"),
		"location": item.Payload.String("location"),
		"notes":    item.Text,
	})
}

// ChatMessage sends tasks, reminders, and notes to the chat/notes service
// as formatted messages.
type ChatMessage struct {
	*httpTarget
}

// NewChatMessage creates the chat/notes dispatcher.
func NewChatMessage(baseURL string, client *http.Client) *ChatMessage {
	return &ChatMessage{newHTTPTarget("chat", baseURL, "/api/messages", client)}
}

func (c *ChatMessage) Dispatch(ctx context.Context, item *models.Item) error {
	return c.post(ctx, map[string]any{
		"category": string(item.Category),
		"text":     formatChatMessage(item),
	})
}

func formatChatMessage(item *models.Item) string {
	switch item.Category {
	case models.CategoryWork:
		task := item.Payload.String("task")
		if task == "" {
			task = item.Text
		}
		if due := item.Payload.String("due"); due != "" {
			return fmt.Sprintf("WORK TASK: %s\nDue: %s", task, due)
		}
		return fmt.Sprintf("WORK TASK: %s", task)
	case models.CategoryReminder:
		task := item.Payload.String("task")
		if task == "" {
			task = item.Text
		}
		due := item.Payload.String("due_date")
		if t := item.Payload.String("due_time"); t != "" {
			due = fmt.Sprintf("%s %s", due, t)
		}
		if due != "" {
			return fmt.Sprintf("REMINDER: %s\nDue: %s", task, due)
		}
		return fmt.Sprintf("REMINDER: %s", task)
	case models.CategoryNotes:
		if title := item.Payload.String("title"); title != "" {
			return fmt.Sprintf("NOTE: %s\n%s", title, item.Text)
		}
		return fmt.Sprintf("NOTE: %s", item.Text)
	default:
		return item.Text
	}
}

// HomeRelay forwards smart-home action/entity pairs to the home
// automation relay.
type HomeRelay struct {
	*httpTarget
}

// NewHomeRelay creates the smart-home dispatcher.
func NewHomeRelay(baseURL string, client *http.Client) *HomeRelay {
	return &HomeRelay{newHTTPTarget("home-relay", baseURL, "/api/actions", client)}
}

func (h *HomeRelay) Dispatch(ctx context.Context, item *models.Item) error {
	return h.post(ctx, map[string]any{
		"action": item.Payload.String("action"),
		"entity": item.Payload.String("entity"),
		"text":   item.Text,
	})
}

// StoreOnly is the dispatcher for items that just need to be kept. The
// item row itself is the delivery, so dispatch always succeeds.
type StoreOnly struct{}

// NewStoreOnly creates the store-only dispatcher.
func NewStoreOnly() *StoreOnly {
	return &StoreOnly{}
}

func (s *StoreOnly) Name() string {
	return "store"
}

func (s *StoreOnly) Dispatch(ctx context.Context, item *models.Item) error {
	return nil
}

// URLs holds the per-category integration base URLs. Empty entries
// disable that integration.
type URLs struct {
	Shopping string
	Media    string
	Calendar string
	Chat     string
	Home     string
}

// NewDefaultRegistry wires the standard category routing: shopping list,
// media requests, calendar events, chat messages for work/reminder/notes,
// the smart-home relay, and store-only for personal.
func NewDefaultRegistry(urls URLs, client *http.Client) (*Registry, error) {
	chat := NewChatMessage(urls.Chat, client)
	return NewRegistry(map[models.Category]Dispatcher{
		models.CategoryShopping:  NewShoppingList(urls.Shopping, client),
		models.CategoryMedia:     NewMediaRequest(urls.Media, client),
		models.CategorySmartHome: NewHomeRelay(urls.Home, client),
		models.CategoryReminder:  chat,
		models.CategoryCalendar:  NewCalendarEvent(urls.Calendar, client),
		models.CategoryWork:      chat,
		models.CategoryNotes:     chat,
		models.CategoryPersonal:  NewStoreOnly(),
	})
}
