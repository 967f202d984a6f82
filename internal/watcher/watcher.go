// Package watcher ingests transcript files dropped into a watched
// directory. Transcription happens upstream; by the time a file lands
// here it is plain text.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pennyhq/penny/internal/router"
	"github.com/pennyhq/penny/pkg/models"
)

// Ingester is the ingestion entry point. *server.Server satisfies it.
type Ingester interface {
	IngestText(ctx context.Context, text, source string) (*models.Item, *router.Outcome, error)
}

// Logger is the subset of debug logging the watcher uses.
type Logger interface {
	Log(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Log(format string, args ...interface{}) {}

// Config controls the watch directory layout.
type Config struct {
	// Dir is the transcript drop directory.
	Dir string
	// ProcessedDir receives files after successful ingestion.
	// Defaults to Dir/processed.
	ProcessedDir string
	// FailedDir receives files whose ingestion failed.
	// Defaults to Dir/failed.
	FailedDir string
	// SettleDelay is how long to wait after a create event before
	// reading, so the writer can finish. Defaults to 500ms.
	SettleDelay time.Duration
}

// Watcher monitors a directory for new transcript files.
type Watcher struct {
	ingester Ingester
	logger   Logger
	cfg      Config

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates a watcher. A nil logger disables debug logging.
func New(ingester Ingester, logger Logger, cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch directory must be set")
	}
	if cfg.ProcessedDir == "" {
		cfg.ProcessedDir = filepath.Join(cfg.Dir, "processed")
	}
	if cfg.FailedDir == "" {
		cfg.FailedDir = filepath.Join(cfg.Dir, "failed")
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Watcher{
		ingester: ingester,
		logger:   logger,
		cfg:      cfg,
		inFlight: make(map[string]struct{}),
	}, nil
}

// Run processes files already present in the directory, then watches
// for new ones until the context ends.
func (w *Watcher) Run(ctx context.Context) error {
	for _, dir := range []string{w.cfg.Dir, w.cfg.ProcessedDir, w.cfg.FailedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create watch directory: %w", err)
		}
	}

	if err := w.ProcessExisting(ctx); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}
	w.logger.Log("watching %s", w.cfg.Dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !transcriptFile(event.Name) {
				continue
			}
			if !w.claim(event.Name) {
				continue
			}
			go func(path string) {
				defer w.release(path)
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.cfg.SettleDelay):
				}
				w.Process(ctx, path)
			}(event.Name)
		case <-fw.Errors:
			// Keep watching; ProcessExisting on restart covers misses.
		}
	}
}

// ProcessExisting ingests transcript files already sitting in the
// drop directory, oldest first.
func (w *Watcher) ProcessExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("read watch directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !transcriptFile(entry.Name()) {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.Process(ctx, filepath.Join(w.cfg.Dir, entry.Name()))
	}
	return nil
}

// Process ingests one transcript file and moves it to processed/ or
// failed/. Returns true if ingestion succeeded.
func (w *Watcher) Process(ctx context.Context, path string) bool {
	name := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false
		}
		w.logger.Log("read %s: %v", name, err)
		w.move(path, w.cfg.FailedDir)
		return false
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		w.logger.Log("empty transcript %s", name)
		w.move(path, w.cfg.FailedDir)
		return false
	}

	item, outcome, err := w.ingester.IngestText(ctx, text, name)
	if err != nil {
		w.logger.Log("ingest %s: %v", name, err)
		w.move(path, w.cfg.FailedDir)
		return false
	}

	w.logger.Log("ingested %s as %s (%s)", name, item.Category, outcome.Action)
	w.move(path, w.cfg.ProcessedDir)
	return true
}

func (w *Watcher) move(path, dir string) {
	dest := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		w.logger.Log("move %s: %v", filepath.Base(path), err)
	}
}

func (w *Watcher) claim(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[path]; busy {
		return false
	}
	w.inFlight[path] = struct{}{}
	return true
}

func (w *Watcher) release(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, path)
}

func transcriptFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}
