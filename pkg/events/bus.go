package events

import (
	"log"
	"sync"
	"time"
)

// Type identifies a lifecycle event
type Type string

const (
	TaskScheduled   Type = "task_scheduled"
	TaskUpdated     Type = "task_updated"
	TaskDeleted     Type = "task_deleted"
	TaskTriggered   Type = "task_triggered"
	DataFetched     Type = "data_fetched"
	DataTransformed Type = "data_transformed"
	DataProcessed   Type = "data_processed"
	TaskCompleted   Type = "task_completed"
	TaskFailed      Type = "task_failed"
)

// Event is one lifecycle notification. Within a single task run, subscribers
// receive events in emission order.
type Event struct {
	Type   Type           `json:"type"`
	TaskID string         `json:"task_id,omitempty"`
	Time   time.Time      `json:"time"`
	Data   map[string]any `json:"data,omitempty"`
}

// Listener receives published events
type Listener func(Event)

// Bus is an in-process synchronous event bus. Listeners are invoked in
// registration order; a panicking listener is logged and swallowed so it
// never aborts the emitting run.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
}

// NewBus creates an empty event bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a listener. Subscription is expected at startup.
func (b *Bus) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Publish delivers the event to all listeners synchronously
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for _, l := range listeners {
		b.deliver(l, ev)
	}
}

func (b *Bus) deliver(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[EVENTS] Listener panicked on %s: %v", ev.Type, r)
		}
	}()
	l(ev)
}
