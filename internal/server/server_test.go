package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pennyhq/penny/internal/classify"
	"github.com/pennyhq/penny/internal/dispatch"
	"github.com/pennyhq/penny/internal/escalate"
	"github.com/pennyhq/penny/internal/router"
	"github.com/pennyhq/penny/internal/state"
	"github.com/pennyhq/penny/pkg/models"
)

// cannedCompleter always returns the same classification JSON.
type cannedCompleter struct {
	response string
}

func (c *cannedCompleter) Complete(ctx context.Context, model, system, prompt string, maxTokens int64) (string, error) {
	return c.response, nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(ctx context.Context, message string) error { return nil }

func testServer(t *testing.T, classifierResponse string) (*Server, *state.DB) {
	t.Helper()

	db, err := state.Open(filepath.Join(t.TempDir(), "penny.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	dispatchers := map[models.Category]dispatch.Dispatcher{}
	for _, category := range models.AllCategories {
		dispatchers[category] = dispatch.NewStoreOnly()
	}
	registry, err := dispatch.NewRegistry(dispatchers)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	var completer classify.Completer
	if classifierResponse != "" {
		completer = &cannedCompleter{response: classifierResponse}
	}
	classifier := classify.New(completer, classify.Config{Model: "test"})

	r := router.New(db, registry, nopNotifier{}, router.Config{
		Thresholds:   escalate.DefaultThresholds(),
		ReplyTimeout: 10 * time.Minute,
	})

	return New(db, classifier, r, ":0"), db
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIngestRejectsEmptyText(t *testing.T) {
	srv, _ := testServer(t, "")
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/ingest", `{"text": "   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/ingest", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid body status = %d, want 400", rec.Code)
	}
}

func TestIngestHighConfidenceDispatches(t *testing.T) {
	srv, _ := testServer(t, `{"classification": "shopping", "confidence": 0.95, "items": ["milk"]}`)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/ingest", `{"text": "add milk to the list", "source": "test"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Outcome.Action != router.ActionDispatched {
		t.Errorf("action = %q, want dispatched", resp.Outcome.Action)
	}
	if resp.Item.Category != models.CategoryShopping {
		t.Errorf("category = %q, want shopping", resp.Item.Category)
	}
	if resp.Item.Source != "test" {
		t.Errorf("source = %q, want test", resp.Item.Source)
	}
}

func TestIngestLowConfidenceEnqueuesTask(t *testing.T) {
	srv, db := testServer(t, `{"classification": "notes", "confidence": 0.3}`)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/ingest", `{"text": "something about that thing"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp ingestResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Outcome.Action != router.ActionEnqueued {
		t.Fatalf("action = %q, want enqueued", resp.Outcome.Action)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/tasks/"+resp.Outcome.TaskID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get task status = %d", rec.Code)
	}
	var task models.BackgroundTask
	json.Unmarshal(rec.Body.Bytes(), &task)
	if task.State != models.TaskStateQueued {
		t.Errorf("task state = %q, want queued", task.State)
	}

	if active, _ := db.ActiveTaskForItem(resp.Item.ID); active == nil {
		t.Error("active task should exist for enqueued item")
	}
}

func TestConfirmFlow(t *testing.T) {
	srv, _ := testServer(t, `{"classification": "calendar", "confidence": 0.7, "title": "Dentist"}`)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/ingest", `{"text": "dentist appointment tomorrow maybe"}`)
	var resp ingestResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Outcome.Action != router.ActionConfirming {
		t.Fatalf("action = %q, want confirming", resp.Outcome.Action)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/confirm/"+resp.Outcome.CorrelationID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, body %s", rec.Code, rec.Body.String())
	}
	var outcome router.Outcome
	json.Unmarshal(rec.Body.Bytes(), &outcome)
	if outcome.Action != router.ActionDispatched {
		t.Errorf("confirm outcome = %q, want dispatched", outcome.Action)
	}

	// Replayed webhook replies conflict instead of double-dispatching.
	rec = doJSON(t, h, http.MethodPost, "/api/confirm/"+resp.Outcome.CorrelationID, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("replay status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/confirm/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing confirmation status = %d, want 404", rec.Code)
	}
}

func TestListAndGetItems(t *testing.T) {
	srv, _ := testServer(t, `{"classification": "shopping", "confidence": 0.95}`)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/ingest", `{"text": "add milk"}`)
	var resp ingestResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)

	rec = doJSON(t, h, http.MethodGet, "/api/items?category=shopping", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list listResponse
	json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Total != 1 || len(list.Items) != 1 {
		t.Errorf("list = %d items, total %d, want 1/1", len(list.Items), list.Total)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/items?category=bogus", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus category status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/items/"+resp.Item.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/items/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing item status = %d, want 404", rec.Code)
	}
}

func TestReclassify(t *testing.T) {
	srv, db := testServer(t, `{"classification": "shopping", "confidence": 0.95}`)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/ingest", `{"text": "add milk"}`)
	var resp ingestResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/items/%s/reclassify", resp.Item.ID), `{"category": "reminder"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reclassify status = %d, body %s", rec.Code, rec.Body.String())
	}

	got, err := db.GetItem(resp.Item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Category != models.CategoryReminder {
		t.Errorf("category = %q, want reminder", got.Category)
	}
	if got.Confidence != 0.95 {
		t.Errorf("confidence = %v, want untouched 0.95", got.Confidence)
	}

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/items/%s/reclassify", resp.Item.ID), `{"category": "bogus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus category status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/items/missing/reclassify", `{"category": "reminder"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing item status = %d, want 404", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, "")
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}
