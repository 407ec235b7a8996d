package runlog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/godspeedsystems/ingestor-sdk/pkg/events"
)

// RunLog is the on-disk record of one task execution
type RunLog struct {
	TaskID         string     `json:"task_id"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Success        *bool      `json:"success,omitempty"`
	Message        string     `json:"message,omitempty"`
	ItemsFetched   int        `json:"items_fetched"`
	ItemsProcessed int        `json:"items_processed"`
	Delivered      bool       `json:"delivered"`
}

// Logger persists one JSON file per task run, fed by lifecycle events
type Logger struct {
	logDir string

	mu     sync.Mutex
	active map[string]*RunLog
}

// NewLogger creates a run logger writing into logDir
func NewLogger(logDir string) *Logger {
	if logDir == "" {
		logDir = "./run-logs"
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Printf("Failed to create run log directory %s: %v", logDir, err)
	}
	return &Logger{
		logDir: logDir,
		active: make(map[string]*RunLog),
	}
}

// Attach subscribes the logger to the event bus
func (l *Logger) Attach(bus *events.Bus) {
	bus.Subscribe(l.handle)
}

func (l *Logger) handle(ev events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch ev.Type {
	case events.TaskTriggered:
		l.active[ev.TaskID] = &RunLog{TaskID: ev.TaskID, StartedAt: ev.Time}

	case events.DataFetched:
		entry := l.entry(ev)
		if n, ok := intField(ev.Data, "items"); ok {
			entry.ItemsFetched = n
		}

	case events.DataProcessed:
		entry := l.entry(ev)
		if n, ok := intField(ev.Data, "records"); ok {
			entry.ItemsProcessed = n
		}
		entry.Delivered = true
		if delivered, ok := ev.Data["delivered"].(bool); ok {
			entry.Delivered = delivered
		}

	case events.TaskCompleted:
		l.finish(ev, true)

	case events.TaskFailed:
		l.finish(ev, false)
	}
}

func (l *Logger) entry(ev events.Event) *RunLog {
	entry, ok := l.active[ev.TaskID]
	if !ok {
		entry = &RunLog{TaskID: ev.TaskID, StartedAt: ev.Time}
		l.active[ev.TaskID] = entry
	}
	return entry
}

func (l *Logger) finish(ev events.Event, success bool) {
	entry := l.entry(ev)
	now := ev.Time
	entry.FinishedAt = &now
	entry.Success = &success
	if msg, ok := ev.Data["message"].(string); ok {
		entry.Message = msg
	}
	delete(l.active, ev.TaskID)

	if err := l.write(entry); err != nil {
		log.Printf("Failed to write run log for task %s: %v", ev.TaskID, err)
	}
}

func (l *Logger) write(entry *RunLog) error {
	name := fmt.Sprintf("%s-%s.json", entry.TaskID, entry.StartedAt.UTC().Format("20060102T150405.000"))
	filePath := filepath.Join(l.logDir, name)

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}

// intField reads a numeric event field regardless of json round-tripping
func intField(data map[string]any, key string) (int, bool) {
	switch v := data[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
