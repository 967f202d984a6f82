// Package router decides what happens to a classified item: direct
// dispatch, a confirmation request, or background confidence gathering.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pennyhq/penny/internal/dispatch"
	"github.com/pennyhq/penny/internal/escalate"
	"github.com/pennyhq/penny/internal/state"
	"github.com/pennyhq/penny/pkg/models"
)

// Action describes what the router did with an item.
type Action string

const (
	// ActionDispatched means the item went straight to its integration.
	ActionDispatched Action = "dispatched"
	// ActionFallback means dispatch failed and the fallback notification
	// was sent instead.
	ActionFallback Action = "fallback"
	// ActionConfirming means a confirmation request was sent and the item
	// waits for a reply.
	ActionConfirming Action = "confirming"
	// ActionEnqueued means a background task will gather confidence.
	ActionEnqueued Action = "enqueued"
)

// Outcome reports the routing decision for one item.
type Outcome struct {
	Action Action `json:"action"`
	// RoutedTo is the integration that handled the item, for dispatched
	// outcomes.
	RoutedTo string `json:"routed_to,omitempty"`
	// CorrelationID links a confirmation request to its future reply.
	CorrelationID string `json:"correlation_id,omitempty"`
	// TaskID identifies the background task, for enqueued outcomes.
	TaskID string `json:"task_id,omitempty"`
}

// Store is the persistence surface the router needs.
type Store interface {
	state.ItemStore
	state.TaskStore
	state.ConfirmationStore
}

// Router applies the confidence bands to classified items.
type Router struct {
	store     Store
	registry  *dispatch.Registry
	notifier  dispatch.Notifier
	threshold escalate.Thresholds
	// replyTimeout is how long a confirmation waits for a reply.
	replyTimeout time.Duration
}

// Config configures a Router.
type Config struct {
	Thresholds   escalate.Thresholds
	ReplyTimeout time.Duration
}

// New creates a Router.
func New(store Store, registry *dispatch.Registry, notifier dispatch.Notifier, cfg Config) *Router {
	replyTimeout := cfg.ReplyTimeout
	if replyTimeout == 0 {
		replyTimeout = 10 * time.Minute
	}
	return &Router{
		store:        store,
		registry:     registry,
		notifier:     notifier,
		threshold:    cfg.Thresholds,
		replyTimeout: replyTimeout,
	}
}

// Route places an item into one of the three confidence bands:
// high or above dispatches directly, low up to high asks for
// confirmation, below low goes to background gathering. The item must
// already be persisted.
func (r *Router) Route(ctx context.Context, item *models.Item) (*Outcome, error) {
	switch {
	case item.Confidence >= r.threshold.High:
		return r.dispatchDirect(ctx, item)
	case item.Confidence >= r.threshold.Low:
		return r.requestConfirmation(ctx, item)
	default:
		return r.enqueue(ctx, item)
	}
}

// dispatchDirect delivers the item through its integration. On dispatch
// failure, exactly one fallback notification is sent and the item is
// terminalized as failed; there is no retry loop.
func (r *Router) dispatchDirect(ctx context.Context, item *models.Item) (*Outcome, error) {
	target, err := r.registry.Dispatch(ctx, item)
	if err != nil {
		return r.fallback(ctx, item, fmt.Sprintf("Couldn't deliver %s item: %s", item.Category, item.Text), err)
	}

	if err := r.store.FinalizeItem(item.ID, models.ItemStatusRouted, target); err != nil {
		return nil, fmt.Errorf("finalize routed item: %w", err)
	}
	return &Outcome{Action: ActionDispatched, RoutedTo: target}, nil
}

// fallback sends the single fallback notification for a failed dispatch
// and terminalizes the item as failed.
func (r *Router) fallback(ctx context.Context, item *models.Item, message string, cause error) (*Outcome, error) {
	notifyErr := r.notifier.Notify(ctx, message)

	if err := r.store.FinalizeItem(item.ID, models.ItemStatusFailed, "fallback"); err != nil {
		return nil, fmt.Errorf("finalize failed item: %w", err)
	}

	if notifyErr != nil {
		return nil, fmt.Errorf("dispatch failed (%v) and fallback notification failed: %w", cause, notifyErr)
	}
	return &Outcome{Action: ActionFallback, RoutedTo: "fallback"}, nil
}

// requestConfirmation asks the user to confirm a mid-band item on the
// fallback channel and records the pending confirmation.
func (r *Router) requestConfirmation(ctx context.Context, item *models.Item) (*Outcome, error) {
	correlationID := uuid.New().String()
	question := fmt.Sprintf("Should I file this as %s? %q\nReply: penny confirm %s", item.Category, item.Text, correlationID)

	confirmation := &models.Confirmation{
		CorrelationID: correlationID,
		ItemID:        item.ID,
		Question:      question,
		Outcome:       models.ConfirmationPending,
		ExpiresAt:     time.Now().Add(r.replyTimeout),
	}
	if err := r.store.CreateConfirmation(confirmation); err != nil {
		return nil, fmt.Errorf("create confirmation: %w", err)
	}

	// A failed send is not fatal: the expiry sweep resolves the item on
	// timeout either way.
	_ = r.notifier.Notify(ctx, question)

	return &Outcome{Action: ActionConfirming, CorrelationID: correlationID}, nil
}

// enqueue creates a background gathering task for a low-band item. At
// most one active task exists per item; an existing task is reused.
func (r *Router) enqueue(ctx context.Context, item *models.Item) (*Outcome, error) {
	existing, err := r.store.ActiveTaskForItem(item.ID)
	if err != nil {
		return nil, fmt.Errorf("check active task: %w", err)
	}
	if existing != nil {
		return &Outcome{Action: ActionEnqueued, TaskID: existing.ID}, nil
	}

	task := &models.BackgroundTask{
		ID:         uuid.New().String(),
		ItemID:     item.ID,
		State:      models.TaskStateQueued,
		Confidence: item.Confidence,
	}
	if err := r.store.CreateTask(task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	return &Outcome{Action: ActionEnqueued, TaskID: task.ID}, nil
}

// Confirm resolves a confirmation reply. The confirmed item is dispatched
// directly; the reply and the timeout sweep drive the same resolution
// path, so only the first one wins.
func (r *Router) Confirm(ctx context.Context, correlationID string) (*Outcome, error) {
	confirmation, err := r.store.GetConfirmation(correlationID)
	if err != nil {
		return nil, err
	}

	if err := r.store.ResolveConfirmation(correlationID, models.ConfirmationConfirmed); err != nil {
		return nil, err
	}

	item, err := r.store.GetItem(confirmation.ItemID)
	if err != nil {
		return nil, err
	}

	if err := r.store.FinalizeItem(item.ID, models.ItemStatusConfirmed, ""); err != nil {
		return nil, fmt.Errorf("mark item confirmed: %w", err)
	}
	item.Status = models.ItemStatusConfirmed

	return r.dispatchDirect(ctx, item)
}

// ExpireConfirmations sweeps pending confirmations whose reply window
// closed. Each timed-out item gets exactly one fallback notification and
// is terminalized as failed.
func (r *Router) ExpireConfirmations(ctx context.Context, now time.Time) (int, error) {
	expired, err := r.store.ExpiredConfirmations(now)
	if err != nil {
		return 0, fmt.Errorf("list expired confirmations: %w", err)
	}

	swept := 0
	for _, confirmation := range expired {
		if err := r.store.ResolveConfirmation(confirmation.CorrelationID, models.ConfirmationTimedOut); err != nil {
			if errors.Is(err, state.ErrConfirmationResolved) {
				// A reply raced the sweep and won.
				continue
			}
			return swept, fmt.Errorf("resolve confirmation %s: %w", confirmation.CorrelationID, err)
		}

		item, err := r.store.GetItem(confirmation.ItemID)
		if err != nil {
			return swept, fmt.Errorf("load item %s: %w", confirmation.ItemID, err)
		}

		message := fmt.Sprintf("No reply on %q; stored but not delivered.", item.Text)
		if _, err := r.fallback(ctx, item, message, fmt.Errorf("confirmation timed out")); err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}
