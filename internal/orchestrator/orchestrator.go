// Package orchestrator runs the background confidence-gathering loop:
// it polls for queued tasks, runs cheap probes, and escalates through
// reasoning tiers until an item can be delivered or must be handed back
// to the user.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pennyhq/penny/internal/api"
	"github.com/pennyhq/penny/internal/dispatch"
	"github.com/pennyhq/penny/internal/escalate"
	"github.com/pennyhq/penny/internal/probe"
	"github.com/pennyhq/penny/internal/state"
	"github.com/pennyhq/penny/pkg/models"
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	state.ItemStore
	state.TaskStore
}

// Reasoner runs the model-backed quick and full reasoning passes.
// A nil Reasoner disables reasoning; tasks then deliver or expire on
// probe evidence alone.
type Reasoner interface {
	Quick(ctx context.Context, item *models.Item, task *models.BackgroundTask) (*api.Assessment, error)
	Full(ctx context.Context, item *models.Item, task *models.BackgroundTask) (*api.Assessment, error)
}

// Sweeper resolves timed-out confirmation requests. The router provides
// the production implementation.
type Sweeper interface {
	ExpireConfirmations(ctx context.Context, now time.Time) (int, error)
}

// Config holds orchestrator tuning.
type Config struct {
	// PollInterval is how often the loop scans for due tasks.
	PollInterval time.Duration
	// ProbeTimeout bounds each individual probe run.
	ProbeTimeout time.Duration
	// TaskBudget caps total probe time for one task in one cycle.
	TaskBudget time.Duration
	// Parallelism bounds concurrent task processing within a cycle.
	Parallelism int
	// MaxAttempts is the poll ceiling; a task expires on its final cycle.
	MaxAttempts int
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 30 * time.Second
	}
	if c.TaskBudget <= 0 {
		c.TaskBudget = 2 * time.Minute
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
}

// Orchestrator is the background gathering loop.
type Orchestrator struct {
	store    Store
	probes   *probe.Registry
	registry *dispatch.Registry
	notifier dispatch.Notifier
	reasoner Reasoner
	sweeper  Sweeper
	engine   *escalate.Engine
	emitter  *EventEmitter
	logger   *DebugLogger
	cfg      Config
}

// New creates an Orchestrator. reasoner and sweeper may be nil.
func New(store Store, probes *probe.Registry, registry *dispatch.Registry, notifier dispatch.Notifier, engine *escalate.Engine, reasoner Reasoner, sweeper Sweeper, logger *DebugLogger, cfg Config) *Orchestrator {
	cfg.applyDefaults()
	if logger == nil {
		logger = NopLogger()
	}
	return &Orchestrator{
		store:    store,
		probes:   probes,
		registry: registry,
		notifier: notifier,
		reasoner: reasoner,
		sweeper:  sweeper,
		engine:   engine,
		emitter:  NewEventEmitter(100),
		logger:   logger,
		cfg:      cfg,
	}
}

// Events returns the orchestrator's event stream.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// Run executes poll cycles until the context is cancelled. The first
// cycle runs immediately.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Log("orchestrator started (poll interval %s, max attempts %d)", o.cfg.PollInterval, o.cfg.MaxAttempts)

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		o.Cycle(ctx)

		select {
		case <-ctx.Done():
			o.logger.Log("orchestrator stopped: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cycle runs one poll cycle: sweep timed-out confirmations, then claim
// and process due tasks under the parallelism bound.
func (o *Orchestrator) Cycle(ctx context.Context) {
	if o.sweeper != nil {
		swept, err := o.sweeper.ExpireConfirmations(ctx, time.Now())
		if err != nil {
			o.logger.Log("confirmation sweep: %v", err)
			o.emitter.Emit(Event{Type: EventError, Message: fmt.Sprintf("confirmation sweep: %v", err)})
		} else if swept > 0 {
			o.emitter.Emit(Event{Type: EventConfirmationsSwept, Message: fmt.Sprintf("%d confirmations timed out", swept)})
		}
	}

	tasks, err := o.store.DueTasks(o.cfg.Parallelism * 2)
	if err != nil {
		o.logger.Log("list due tasks: %v", err)
		o.emitter.Emit(Event{Type: EventError, Message: fmt.Sprintf("list due tasks: %v", err)})
		return
	}

	sem := make(chan struct{}, o.cfg.Parallelism)
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(task models.BackgroundTask) {
			defer wg.Done()
			defer func() { <-sem }()
			o.processTask(ctx, &task)
		}(task)
	}
	wg.Wait()
}

// processTask drives one task through one cycle: claim, probe, aggregate,
// then act on the escalation tier.
func (o *Orchestrator) processTask(ctx context.Context, task *models.BackgroundTask) {
	// Claim via compare-and-set. Losing the race means another cycle
	// already owns this task.
	task.State = models.TaskStateProbing
	if err := o.store.TransitionTask(task, task.Version); err != nil {
		if errors.Is(err, state.ErrStaleTask) {
			return
		}
		o.logger.Log("claim task %s: %v", task.ID, err)
		o.emitter.Emit(Event{Type: EventError, TaskID: task.ID, Message: err.Error()})
		return
	}
	o.emitter.Emit(Event{Type: EventTaskClaimed, TaskID: task.ID, ItemID: task.ItemID, Confidence: task.Confidence})

	item, err := o.store.GetItem(task.ItemID)
	if err != nil {
		// Orphaned task; terminalize without a notification.
		o.logger.Log("task %s: load item %s: %v", task.ID, task.ItemID, err)
		task.State = models.TaskStateExpired
		if terr := o.store.TransitionTask(task, task.Version); terr != nil {
			o.logger.Log("expire orphaned task %s: %v", task.ID, terr)
		}
		o.emitter.Emit(Event{Type: EventError, TaskID: task.ID, Message: fmt.Sprintf("item missing: %v", err)})
		return
	}

	cycleResults := o.runProbes(ctx, item)
	task.Results = append(task.Results, cycleResults...)
	task.Confidence = probe.Combine(task.Confidence, cycleResults)
	task.PollCount++

	o.logger.Log("task %s cycle %d: %d probes, confidence %.2f", task.ID, task.PollCount, len(cycleResults), task.Confidence)
	o.emitter.Emit(Event{Type: EventProbesRun, TaskID: task.ID, ItemID: item.ID, Confidence: task.Confidence,
		Message: fmt.Sprintf("%d probes run", len(cycleResults))})

	final := task.PollCount >= o.cfg.MaxAttempts

	switch o.engine.Tier(task.Confidence) {
	case escalate.TierDeliver:
		o.deliver(ctx, item, task)

	case escalate.TierQuickReason:
		o.reason(ctx, item, task, false)
		if task.Confidence >= o.engine.Thresholds().High {
			o.deliver(ctx, item, task)
		} else {
			o.requeueOrExpire(ctx, item, task, final)
		}

	case escalate.TierFullReason:
		// The expensive pass is spent only on the final cycle, as a last
		// attempt to avoid handing the item back unresolved.
		if final {
			o.reason(ctx, item, task, true)
			if task.Confidence >= o.engine.Thresholds().High {
				o.deliver(ctx, item, task)
				return
			}
		}
		o.requeueOrExpire(ctx, item, task, final)
	}
}

// runProbes executes the applicable probes sequentially under the
// per-task budget.
func (o *Orchestrator) runProbes(ctx context.Context, item *models.Item) []models.ProbeResult {
	budgetCtx, cancel := context.WithTimeout(ctx, o.cfg.TaskBudget)
	defer cancel()

	var results []models.ProbeResult
	for _, p := range o.probes.Applicable(item) {
		if budgetCtx.Err() != nil {
			break
		}
		results = append(results, probe.Execute(budgetCtx, p, item, o.cfg.ProbeTimeout))
	}
	return results
}

// reason runs a reasoning pass and lifts the task's confidence if the
// model is more confident than the probes. Confidence never drops.
func (o *Orchestrator) reason(ctx context.Context, item *models.Item, task *models.BackgroundTask, full bool) {
	if o.reasoner == nil {
		return
	}

	pass := "quick"
	assess := o.reasoner.Quick
	if full {
		pass = "full"
		assess = o.reasoner.Full
	}

	assessment, err := assess(ctx, item, task)
	if err != nil {
		o.logger.Log("task %s: %s reasoning: %v", task.ID, pass, err)
		return
	}

	if assessment.Confidence > task.Confidence {
		task.Confidence = assessment.Confidence
	}
	if assessment.Suggestion != "" {
		if item.Payload == nil {
			item.Payload = models.Payload{}
		}
		item.Payload["suggestion"] = assessment.Suggestion
	}

	o.logger.Log("task %s: %s reasoning -> %.2f (%s)", task.ID, pass, assessment.Confidence, assessment.Reason)
	o.emitter.Emit(Event{Type: EventReasoning, TaskID: task.ID, ItemID: item.ID, Confidence: task.Confidence,
		Message: fmt.Sprintf("%s pass: %s", pass, assessment.Reason)})
}

// deliver escalates a task and dispatches its item. Dispatch failure
// yields exactly one fallback notification; the task terminalizes as
// delivered either way because the item reached a terminal status.
func (o *Orchestrator) deliver(ctx context.Context, item *models.Item, task *models.BackgroundTask) {
	task.State = models.TaskStateEscalated
	if err := o.store.TransitionTask(task, task.Version); err != nil {
		o.logger.Log("escalate task %s: %v", task.ID, err)
		return
	}

	target, err := o.registry.Dispatch(ctx, item)
	if err != nil {
		o.logger.Log("task %s: dispatch failed: %v", task.ID, err)
		message := fmt.Sprintf("Couldn't deliver %s item: %s", item.Category, item.Text)
		if nerr := o.notifier.Notify(ctx, message); nerr != nil {
			o.logger.Log("task %s: fallback notification failed: %v", task.ID, nerr)
		}
		target = "fallback"
		if ferr := o.store.FinalizeItem(item.ID, models.ItemStatusFailed, target); ferr != nil {
			o.logger.Log("task %s: finalize item: %v", task.ID, ferr)
		}
	} else {
		if ferr := o.store.FinalizeItem(item.ID, models.ItemStatusRouted, target); ferr != nil {
			o.logger.Log("task %s: finalize item: %v", task.ID, ferr)
		}
	}

	task.State = models.TaskStateDelivered
	if err := o.store.TransitionTask(task, task.Version); err != nil {
		o.logger.Log("complete task %s: %v", task.ID, err)
		return
	}

	o.emitter.Emit(Event{Type: EventDelivered, TaskID: task.ID, ItemID: item.ID, Confidence: task.Confidence,
		Message: fmt.Sprintf("routed to %s", target)})
}

// requeueOrExpire sends a task back to the queue, or terminalizes it when
// the poll ceiling is reached. An expired task gets exactly one fallback
// notification handing the item back to the user.
func (o *Orchestrator) requeueOrExpire(ctx context.Context, item *models.Item, task *models.BackgroundTask, final bool) {
	if !final {
		task.State = models.TaskStateQueued
		if err := o.store.TransitionTask(task, task.Version); err != nil {
			o.logger.Log("requeue task %s: %v", task.ID, err)
			return
		}
		o.emitter.Emit(Event{Type: EventRequeued, TaskID: task.ID, ItemID: item.ID, Confidence: task.Confidence})
		return
	}

	task.State = models.TaskStateExpired
	if err := o.store.TransitionTask(task, task.Version); err != nil {
		o.logger.Log("expire task %s: %v", task.ID, err)
		return
	}

	message := fmt.Sprintf("Couldn't build enough confidence for %q after %d attempts; stored but not delivered.", item.Text, task.PollCount)
	if err := o.notifier.Notify(ctx, message); err != nil {
		o.logger.Log("task %s: expiry notification failed: %v", task.ID, err)
	}
	if err := o.store.FinalizeItem(item.ID, models.ItemStatusFailed, "fallback"); err != nil {
		o.logger.Log("task %s: finalize expired item: %v", task.ID, err)
	}

	o.emitter.Emit(Event{Type: EventExpired, TaskID: task.ID, ItemID: item.ID, Confidence: task.Confidence})
}
