// Package server exposes Penny's HTTP surface: transcript ingestion,
// item/task status, manual reclassification, and confirmation replies.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pennyhq/penny/internal/classify"
	"github.com/pennyhq/penny/internal/router"
	"github.com/pennyhq/penny/internal/state"
	"github.com/pennyhq/penny/pkg/models"
)

// Store is the persistence surface the server needs.
type Store interface {
	state.ItemStore
	state.TaskStore
}

// Server handles HTTP requests for the Penny API.
type Server struct {
	store      Store
	classifier *classify.Classifier
	router     *router.Router
	addr       string
}

// New creates an API server.
func New(store Store, classifier *classify.Classifier, r *router.Router, addr string) *Server {
	return &Server{
		store:      store,
		classifier: classifier,
		router:     r,
		addr:       addr,
	}
}

// Handler returns the route table. Split out so tests can drive it with
// httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/ingest", s.ingest)
	mux.HandleFunc("GET /api/items", s.listItems)
	mux.HandleFunc("GET /api/items/{id}", s.getItem)
	mux.HandleFunc("POST /api/items/{id}/reclassify", s.reclassify)
	mux.HandleFunc("POST /api/confirm/{correlationID}", s.confirm)
	mux.HandleFunc("GET /api/tasks/{id}", s.getTask)
	mux.HandleFunc("GET /health", s.health)

	return mux
}

// Run starts the HTTP server and shuts it down when the context ends.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// IngestText classifies, persists, and routes one utterance. It is the
// single ingestion path shared by the HTTP handler, the transcript
// watcher, and the CLI.
func (s *Server) IngestText(ctx context.Context, text, source string) (*models.Item, *router.Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, ErrEmptyText
	}

	result := s.classifier.Classify(ctx, text)

	item := &models.Item{
		ID:         uuid.New().String(),
		Text:       text,
		Source:     source,
		Category:   result.Category,
		Confidence: result.Confidence,
		Payload:    result.Payload,
		Status:     models.ItemStatusPending,
	}
	if err := s.store.CreateItem(item); err != nil {
		return nil, nil, fmt.Errorf("persist item: %w", err)
	}

	outcome, err := s.router.Route(ctx, item)
	if err != nil {
		return item, nil, fmt.Errorf("route item: %w", err)
	}

	return item, outcome, nil
}

// ErrEmptyText rejects ingestion of blank transcripts.
var ErrEmptyText = errors.New("text must not be empty")

type ingestRequest struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

type ingestResponse struct {
	Item    *models.Item    `json:"item"`
	Outcome *router.Outcome `json:"outcome"`
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	source := req.Source
	if source == "" {
		source = "api"
	}

	item, outcome, err := s.IngestText(r.Context(), req.Text, source)
	if err != nil {
		if errors.Is(err, ErrEmptyText) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, ingestResponse{Item: item, Outcome: outcome})
}

type listResponse struct {
	Items []models.Item `json:"items"`
	Total int           `json:"total"`
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	category := models.Category(q.Get("category"))
	if category != "" && !category.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown category %q", category))
		return
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := s.store.ListItems(category, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []models.Item{}
	}

	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: total})
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.GetItem(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type reclassifyRequest struct {
	Category models.Category `json:"category"`
}

// reclassify applies a manual category override. It never touches
// confidence and never cancels in-flight background tasks: the override
// states what the item is, not how sure anyone was.
func (s *Server) reclassify(w http.ResponseWriter, r *http.Request) {
	var req reclassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.Category.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown category %q", req.Category))
		return
	}

	id := r.PathValue("id")
	if err := s.store.ReclassifyItem(id, req.Category); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	item, err := s.store.GetItem(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.router.Confirm(r.Context(), r.PathValue("correlationID"))
	if err != nil {
		switch {
		case errors.Is(err, state.ErrNotFound):
			writeError(w, http.StatusNotFound, "confirmation not found")
		case errors.Is(err, state.ErrConfirmationResolved):
			writeError(w, http.StatusConflict, "confirmation already resolved")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
