package orchestrator

import (
	"log"
	"sync/atomic"
	"time"
)

// EventEmitter fans poll-cycle events out to one subscriber over a
// buffered channel. Emission must never wedge a task: when the buffer
// stays full past a short grace period the event is dropped and
// counted instead.
type EventEmitter struct {
	events  chan Event
	dropped atomic.Uint64
}

// NewEventEmitter creates an emitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit publishes an event, stamping the time if unset. A full buffer
// gets one 100ms grace period before the event is dropped.
func (e *EventEmitter) Emit(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		count := e.dropped.Add(1)
		// Log every 10th drop to avoid spamming a stalled consumer.
		if count%10 == 1 {
			log.Printf("[orchestrator] event buffer full, dropped %s (total dropped: %d)", event.Type, count)
		}
	}
}

// DroppedCount returns how many events were dropped to keep task
// processing moving.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.dropped.Load()
}

// Events returns the subscriber side of the stream.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the event channel. Call only after the poll loop has
// stopped emitting.
func (e *EventEmitter) Close() {
	close(e.events)
}
