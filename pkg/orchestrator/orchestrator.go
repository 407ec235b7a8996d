package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/godspeedsystems/ingestor-sdk/pkg/events"
	"github.com/godspeedsystems/ingestor-sdk/pkg/plugin"
	"github.com/godspeedsystems/ingestor-sdk/pkg/record"
	"github.com/godspeedsystems/ingestor-sdk/pkg/task"
)

// Result is the outcome of one pipeline run, including any continuation
// cursors the source produced
type Result struct {
	Success        bool              `json:"success"`
	Code           int               `json:"code"`
	Message        string            `json:"message,omitempty"`
	ItemsProcessed int               `json:"items_processed"`
	StartPageToken string            `json:"start_page_token,omitempty"`
	NextPageToken  string            `json:"next_page_token,omitempty"`
	OtherTokens    map[string]string `json:"other_tokens,omitempty"`
}

// RunStatus converts the result into the embedded task run status
func (r *Result) RunStatus() task.RunStatus {
	return task.RunStatus{
		Success:        r.Success,
		Code:           r.Code,
		Message:        r.Message,
		ItemsProcessed: r.ItemsProcessed,
	}
}

// Orchestrator drives one task invocation through the uniform pipeline:
// init source, execute, transform, deliver, emitting lifecycle events at
// each stage. One instance serves any number of runs; each run is
// self-contained.
type Orchestrator struct {
	registry *plugin.Registry
	bus      *events.Bus
}

// New creates an orchestrator bound to a plugin registry and event bus
func New(registry *plugin.Registry, bus *events.Bus) *Orchestrator {
	return &Orchestrator{registry: registry, bus: bus}
}

// Run executes the pipeline for a task. Failures from any stage are caught
// and encoded in the result rather than returned; the terminal event is
// TaskCompleted or TaskFailed accordingly.
func (o *Orchestrator) Run(ctx context.Context, t *task.Task, payload map[string]any) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ORCHESTRATOR] Run for task %s panicked: %v", t.ID, r)
			result = o.fail(t, 500, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if payload == nil {
		payload = map[string]any{}
	}

	factory, transformer, ok := o.registry.LookupSource(t.Source.PluginType)
	if !ok {
		return o.fail(t, 500, "source plugin not registered: "+t.Source.PluginType)
	}

	source, err := factory(t.Source.Config)
	if err != nil {
		return o.fail(t, 500, fmt.Sprintf("failed to construct source: %v", err))
	}

	if err := source.Init(ctx); err != nil {
		return o.fail(t, 500, fmt.Sprintf("source init failed: %v", err))
	}

	if err := ctx.Err(); err != nil {
		return o.fail(t, 500, fmt.Sprintf("run cancelled: %v", err))
	}

	res, err := source.Execute(ctx, payload)
	if err != nil {
		return o.fail(t, 500, fmt.Sprintf("source execute failed: %v", err))
	}
	if res == nil {
		return o.fail(t, 500, "source returned no result")
	}
	if !res.Success {
		code := res.Code
		if code == 0 {
			code = 500
		}
		return o.fail(t, code, res.Message)
	}

	raw, empty := record.Flatten(res)
	if empty {
		log.Printf("[ORCHESTRATOR] Task %s: source returned no data", t.ID)
	}
	o.emit(events.DataFetched, t.ID, map[string]any{"items": len(raw)})

	// Augment the payload with the fetch timestamp for the transformer
	enriched := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		enriched[k] = v
	}
	enriched[plugin.KeyFetchedAt] = time.Now()

	if transformer == nil {
		transformer = record.DefaultTransform
	}
	records := transformer(raw, enriched)
	o.emit(events.DataTransformed, t.ID, map[string]any{"records": len(records)})

	if err := ctx.Err(); err != nil {
		return o.fail(t, 500, fmt.Sprintf("run cancelled: %v", err))
	}

	itemsProcessed := 0
	if t.Destination != nil {
		destFactory, ok := o.registry.LookupDestination(t.Destination.PluginType)
		if !ok {
			return o.fail(t, 500, "destination plugin not registered: "+t.Destination.PluginType)
		}
		dest, err := destFactory(t.Destination.Config)
		if err != nil {
			return o.fail(t, 500, fmt.Sprintf("failed to construct destination: %v", err))
		}
		if err := dest.Init(t.Destination.Config); err != nil {
			return o.fail(t, 500, fmt.Sprintf("destination init failed: %v", err))
		}
		if err := dest.ProcessData(ctx, records); err != nil {
			return o.fail(t, 502, fmt.Sprintf("destination failed: %v", err))
		}
		itemsProcessed = len(records)
		o.emit(events.DataProcessed, t.ID, map[string]any{"records": itemsProcessed})
	} else {
		// No destination configured: the records are emitted as events only
		itemsProcessed = len(records)
		o.emit(events.DataProcessed, t.ID, map[string]any{
			"records":   itemsProcessed,
			"delivered": false,
		})
	}

	result = &Result{
		Success:        true,
		Code:           200,
		Message:        "completed",
		ItemsProcessed: itemsProcessed,
	}
	if res.Data != nil {
		result.StartPageToken = res.Data.StartPageToken
		result.NextPageToken = res.Data.NextPageToken
		result.OtherTokens = res.Data.OtherTokens
	}

	o.emit(events.TaskCompleted, t.ID, map[string]any{"items_processed": itemsProcessed})
	return result
}

func (o *Orchestrator) fail(t *task.Task, code int, message string) *Result {
	log.Printf("[ORCHESTRATOR] Task %s failed: %s", t.ID, message)
	o.emit(events.TaskFailed, t.ID, map[string]any{"code": code, "message": message})
	return &Result{Success: false, Code: code, Message: message}
}

func (o *Orchestrator) emit(typ events.Type, taskID string, data map[string]any) {
	if o.bus != nil {
		o.bus.Publish(events.Event{Type: typ, TaskID: taskID, Data: data})
	}
}
