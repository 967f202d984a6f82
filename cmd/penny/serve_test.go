package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pennyhq/penny/internal/orchestrator"
)

func TestConsumeEventsDrainsStream(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "events.log")
	logger, err := orchestrator.NewDebugLogger(logPath)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer logger.Close()

	events := make(chan orchestrator.Event, 4)
	done := make(chan struct{})
	go func() {
		consumeEvents(events, logger)
		close(done)
	}()

	events <- orchestrator.Event{Type: orchestrator.EventDelivered, TaskID: "task-1", Message: "routed to chat"}
	events <- orchestrator.Event{Type: orchestrator.EventRequeued, TaskID: "task-2"}
	events <- orchestrator.Event{Type: orchestrator.EventExpired, TaskID: "task-3", Confidence: 0.4}
	close(events)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not return after channel close")
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	log := string(data)
	for _, want := range []string{"task-1", "task-2", "task-3", "delivered", "expired"} {
		if !strings.Contains(log, want) {
			t.Errorf("debug log missing %q:\n%s", want, log)
		}
	}
}

func TestConsumeEventsKeepsEmitterUnblocked(t *testing.T) {
	emitter := orchestrator.NewEventEmitter(2)
	done := make(chan struct{})
	go func() {
		consumeEvents(emitter.Events(), orchestrator.NopLogger())
		close(done)
	}()

	// Far more events than the buffer holds. With a live consumer none
	// may be dropped and emission must not stall on the drop timeout.
	start := time.Now()
	for i := 0; i < 50; i++ {
		emitter.Emit(orchestrator.Event{Type: orchestrator.EventProbesRun, TaskID: fmt.Sprintf("task-%d", i)})
	}
	elapsed := time.Since(start)

	emitter.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not return after emitter close")
	}

	if n := emitter.DroppedCount(); n != 0 {
		t.Errorf("dropped events = %d, want 0 with a live consumer", n)
	}
	if elapsed > time.Second {
		t.Errorf("emitting 50 events took %s; a drained stream must not hit the drop timeout", elapsed)
	}
}
