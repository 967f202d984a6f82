package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pennyhq/penny/internal/api"
	"github.com/pennyhq/penny/internal/classify"
	"github.com/pennyhq/penny/internal/config"
	"github.com/pennyhq/penny/internal/dispatch"
	"github.com/pennyhq/penny/internal/escalate"
	"github.com/pennyhq/penny/internal/orchestrator"
	"github.com/pennyhq/penny/internal/probe"
	"github.com/pennyhq/penny/internal/router"
	"github.com/pennyhq/penny/internal/server"
	"github.com/pennyhq/penny/internal/state"
	"github.com/pennyhq/penny/internal/watcher"
	"github.com/pennyhq/penny/pkg/models"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion server and background orchestrator",
	Long: `Start the Penny service: the HTTP ingestion API, the background
orchestrator that works low-confidence items, and (if enabled) the
transcript directory watcher.

Runs until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	db, err := state.Open(state.DBPath(cfg.Data.Dir))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	thresholds := cfg.Thresholds.Escalate()
	if thresholds == (escalate.Thresholds{}) {
		thresholds = escalate.DefaultThresholds()
	}

	registry, err := dispatch.NewDefaultRegistry(dispatch.URLs{
		Shopping: cfg.Integrations.ShoppingURL,
		Media:    cfg.Integrations.MediaURL,
		Calendar: cfg.Integrations.CalendarURL,
		Chat:     cfg.Integrations.ChatURL,
		Home:     cfg.Integrations.HomeURL,
	}, nil)
	if err != nil {
		return fmt.Errorf("build dispatch registry: %w", err)
	}

	notifier := dispatch.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, nil)
	if !notifier.Configured() {
		fmt.Fprintln(os.Stderr, "warning: telegram not configured; fallback notifications will fail")
	}

	client, classifier := buildClassifier(cfg)

	rt := router.New(db, registry, notifier, router.Config{
		Thresholds:   thresholds,
		ReplyTimeout: cfg.Telegram.ReplyTimeout,
	})

	srv := server.New(db, classifier, rt, cfg.Server.Addr)

	var reasoner orchestrator.Reasoner
	if client != nil {
		reasoner = api.NewReasoner(client, api.ReasonerConfig{
			QuickModel: cfg.Anthropic.QuickModel,
			FullModel:  cfg.Anthropic.FullModel,
		})
	}

	logger := orchestrator.NewDebugLoggerForDataDir(cfg.Data.Dir)
	defer logger.Close()

	orch := orchestrator.New(
		db,
		buildProbes(cfg, db),
		registry,
		notifier,
		escalate.NewEngine(thresholds),
		reasoner,
		rt,
		logger,
		orchestrator.Config{
			PollInterval: cfg.Orchestrator.PollInterval,
			ProbeTimeout: cfg.Orchestrator.ProbeTimeout,
			TaskBudget:   cfg.Orchestrator.TaskBudget,
			Parallelism:  cfg.Orchestrator.Parallelism,
			MaxAttempts:  cfg.Orchestrator.MaxAttempts,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go consumeEvents(orch.Events(), logger)

	errCh := make(chan error, 3)

	go func() {
		fmt.Printf("Penny listening on %s\n", cfg.Server.Addr)
		if err := srv.Run(ctx); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server: %w", err)
			return
		}
		errCh <- nil
	}()

	go func() {
		err := orch.Run(ctx)
		if err == context.Canceled {
			err = nil
		}
		errCh <- err
	}()

	watching := cfg.Watch.Enabled
	if watching {
		w, err := watcher.New(srv, logger, watcher.Config{
			Dir:          cfg.Watch.Dir,
			ProcessedDir: cfg.Watch.ProcessedDir,
			FailedDir:    cfg.Watch.FailedDir,
		})
		if err != nil {
			return fmt.Errorf("build watcher: %w", err)
		}
		go func() {
			fmt.Printf("Watching %s for transcripts\n", cfg.Watch.Dir)
			err := w.Run(ctx)
			if err == context.Canceled {
				err = nil
			}
			errCh <- err
		}()
	}

	parts := 2
	if watching {
		parts = 3
	}
	var firstErr error
	for i := 0; i < parts; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			stop()
		}
	}

	if client != nil {
		input, output := client.Tracker().Total()
		if calls := client.Tracker().Calls(); calls > 0 {
			fmt.Printf("Token usage: %d calls, %d in / %d out\n", calls, input, output)
		}
	}
	return firstErr
}

// consumeEvents drains the orchestrator's event stream so task
// processing never blocks on a full buffer. Notable outcomes go to
// stdout; everything goes to the debug log.
func consumeEvents(events <-chan orchestrator.Event, logger *orchestrator.DebugLogger) {
	for event := range events {
		logger.Log("event %s task=%s item=%s confidence=%.2f %s",
			event.Type, event.TaskID, event.ItemID, event.Confidence, event.Message)

		switch event.Type {
		case orchestrator.EventDelivered:
			fmt.Printf("[DELIVERED] task %s: %s\n", event.TaskID, event.Message)
		case orchestrator.EventExpired:
			fmt.Printf("[EXPIRED] task %s after %.2f confidence\n", event.TaskID, event.Confidence)
		case orchestrator.EventConfirmationsSwept:
			fmt.Printf("[SWEPT] %s\n", event.Message)
		case orchestrator.EventError:
			fmt.Fprintf(os.Stderr, "[ERROR] %s\n", event.Message)
		}
	}
}

// buildClassifier returns the API client (nil when no credentials are
// configured) and a classifier that degrades to keyword matching
// without one.
func buildClassifier(cfg *config.Config) (*api.Client, *classify.Classifier) {
	hasCreds := cfg.Anthropic.APIKey != "" ||
		cfg.Anthropic.UseAWSBedrock ||
		os.Getenv("ANTHROPIC_API_KEY") != ""

	var client *api.Client
	if hasCreds {
		c, err := api.NewClient(api.ClientConfig{
			APIKey:        cfg.Anthropic.APIKey,
			UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: inference unavailable (%v); using keyword classification\n", err)
		} else {
			client = c
		}
	} else {
		fmt.Fprintln(os.Stderr, "warning: no Anthropic credentials; using keyword classification")
	}

	var completer classify.Completer
	if client != nil {
		completer = client
	}
	return client, classify.New(completer, classify.Config{
		Model:   cfg.Anthropic.ClassifierModel,
		Timeout: cfg.Anthropic.InferTimeout,
	})
}

// buildProbes assembles the evidence-gathering probes the orchestrator
// runs against stuck items.
func buildProbes(cfg *config.Config, db *state.DB) *probe.Registry {
	notesDir := cfg.Probes.NotesDir
	if notesDir == "" {
		notesDir = filepath.Join(cfg.Data.Dir, "notes")
	}

	targets := map[models.Category]string{}
	for category, url := range map[models.Category]string{
		models.CategoryShopping:  cfg.Integrations.ShoppingURL,
		models.CategoryMedia:     cfg.Integrations.MediaURL,
		models.CategoryCalendar:  cfg.Integrations.CalendarURL,
		models.CategoryReminder:  cfg.Integrations.ChatURL,
		models.CategoryWork:      cfg.Integrations.ChatURL,
		models.CategoryNotes:     cfg.Integrations.ChatURL,
		models.CategorySmartHome: cfg.Integrations.HomeURL,
	} {
		if url != "" {
			targets[category] = url
		}
	}

	client := &http.Client{Timeout: 10 * time.Second}
	return probe.NewRegistry(
		probe.NewPatternSearch(notesDir),
		probe.NewFileCheck(),
		probe.NewEndpointHealth(targets, client),
		probe.NewKnowledge(db),
		probe.NewCommand(),
	)
}
