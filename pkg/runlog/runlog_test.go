package runlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/godspeedsystems/ingestor-sdk/pkg/events"
)

func readRunLogs(t *testing.T, dir string) []RunLog {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read log dir: %v", err)
	}
	var logs []RunLog
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			t.Fatalf("failed to read %s: %v", entry.Name(), err)
		}
		var rl RunLog
		if err := json.Unmarshal(data, &rl); err != nil {
			t.Fatalf("failed to decode %s: %v", entry.Name(), err)
		}
		logs = append(logs, rl)
	}
	return logs
}

func TestRunLogCompletedRun(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus()
	NewLogger(dir).Attach(bus)

	start := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	bus.Publish(events.Event{Type: events.TaskTriggered, TaskID: "t1", Time: start})
	bus.Publish(events.Event{Type: events.DataFetched, TaskID: "t1", Time: start, Data: map[string]any{"items": 5}})
	bus.Publish(events.Event{Type: events.DataProcessed, TaskID: "t1", Time: start, Data: map[string]any{"records": 5}})
	bus.Publish(events.Event{Type: events.TaskCompleted, TaskID: "t1", Time: start.Add(2 * time.Second)})

	logs := readRunLogs(t, dir)
	if len(logs) != 1 {
		t.Fatalf("expected 1 run log, got %d", len(logs))
	}
	rl := logs[0]
	if rl.TaskID != "t1" || rl.ItemsFetched != 5 || rl.ItemsProcessed != 5 {
		t.Errorf("unexpected run log: %+v", rl)
	}
	if rl.Success == nil || !*rl.Success {
		t.Error("expected success")
	}
	if !rl.Delivered {
		t.Error("expected delivered")
	}
	if rl.FinishedAt == nil {
		t.Error("expected finish time")
	}
}

func TestRunLogFailedRun(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus()
	NewLogger(dir).Attach(bus)

	bus.Publish(events.Event{Type: events.TaskTriggered, TaskID: "t1"})
	bus.Publish(events.Event{Type: events.TaskFailed, TaskID: "t1", Data: map[string]any{"message": "source down"}})

	logs := readRunLogs(t, dir)
	if len(logs) != 1 {
		t.Fatalf("expected 1 run log, got %d", len(logs))
	}
	rl := logs[0]
	if rl.Success == nil || *rl.Success {
		t.Error("expected failure")
	}
	if rl.Message != "source down" {
		t.Errorf("expected failure message, got %q", rl.Message)
	}
}

func TestRunLogUndeliveredRun(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus()
	NewLogger(dir).Attach(bus)

	bus.Publish(events.Event{Type: events.TaskTriggered, TaskID: "t1"})
	bus.Publish(events.Event{Type: events.DataProcessed, TaskID: "t1", Data: map[string]any{"records": 3, "delivered": false}})
	bus.Publish(events.Event{Type: events.TaskCompleted, TaskID: "t1"})

	logs := readRunLogs(t, dir)
	if len(logs) != 1 {
		t.Fatalf("expected 1 run log, got %d", len(logs))
	}
	if logs[0].Delivered {
		t.Error("expected delivered=false for event-only run")
	}
}
