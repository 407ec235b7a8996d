package manager

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/godspeedsystems/ingestor-sdk/pkg/events"
	"github.com/godspeedsystems/ingestor-sdk/pkg/orchestrator"
	"github.com/godspeedsystems/ingestor-sdk/pkg/plugin"
	"github.com/godspeedsystems/ingestor-sdk/pkg/store"
	"github.com/godspeedsystems/ingestor-sdk/pkg/task"
	"github.com/godspeedsystems/ingestor-sdk/pkg/webhook"
)

// DefaultCronWindow is the tolerance for the external tick source's jitter
// relative to the cron schedule
const DefaultCronWindow = 65 * time.Second

// Manager is the process-wide control plane over the task set. It owns the
// store, webhook provider, plugin registry, and event bus, and is the single
// authority for task CRUD and trigger resolution.
type Manager struct {
	store    store.Store
	registry *plugin.Registry
	provider webhook.Provider
	bus      *events.Bus
	orch     *orchestrator.Orchestrator

	cronWindow time.Duration
	now        func() time.Time

	// runMu guards run admission; CurrentStatus == Running acts as the lock
	runMu sync.Mutex

	// dispatchMu serializes webhook dispatch per source identifier so events
	// for one external resource run in receipt order
	dispatchMu   sync.Mutex
	dispatchLock map[string]*sync.Mutex
}

// Option configures the manager
type Option func(*Manager)

// WithCronWindow overrides the cron due-window tolerance
func WithCronWindow(d time.Duration) Option {
	return func(m *Manager) { m.cronWindow = d }
}

// WithClock overrides the wall clock, used by tests
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a lifecycle manager. The plugin registry is expected to be
// fully populated before the first trigger.
func New(st store.Store, registry *plugin.Registry, provider webhook.Provider, bus *events.Bus, opts ...Option) *Manager {
	m := &Manager{
		store:        st,
		registry:     registry,
		provider:     provider,
		bus:          bus,
		orch:         orchestrator.New(registry, bus),
		cronWindow:   DefaultCronWindow,
		now:          time.Now,
		dispatchLock: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ScheduleTask persists a new task. An id is assigned when absent; a
// duplicate id fails with task.ErrTaskExists. Enabled webhook tasks are
// registered with the provider; registration failure marks the task failed
// and surfaces the error.
func (m *Manager) ScheduleTask(ctx context.Context, t *task.Task) (*task.Task, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if !m.registry.HasSource(t.Source.PluginType) {
		return nil, task.ErrInvalidTask{Field: "source.plugin_type", Message: "unknown plugin type: " + t.Source.PluginType}
	}

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CurrentStatus = task.StatusScheduled
	t.CreatedAt = m.now()
	t.UpdatedAt = t.CreatedAt

	if err := m.store.SaveTask(ctx, t); err != nil {
		return nil, err
	}
	m.emit(events.TaskScheduled, t.ID, nil)
	log.Printf("[MANAGER] Scheduled task %s (%s)", t.ID, t.Name)

	if t.Enabled && t.Trigger.Type == task.TriggerWebhook {
		if err := m.registerWebhookTask(ctx, t); err != nil {
			failed := task.StatusFailed
			if _, uerr := m.store.UpdateTask(ctx, t.ID, store.TaskPatch{CurrentStatus: &failed}); uerr != nil {
				log.Printf("[MANAGER] Failed to mark task %s failed: %v", t.ID, uerr)
			}
			return nil, err
		}
	}

	return m.store.GetTask(ctx, t.ID)
}

// UpdateTask applies a partial update. Trigger or source changes that alter
// the webhook identity are mirrored into the registry: the old subscription
// is released and the new one acquired.
func (m *Manager) UpdateTask(ctx context.Context, id string, patch store.TaskPatch) (*task.Task, error) {
	existing, err := m.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	wasWebhook := existing.Trigger.Type == task.TriggerWebhook
	oldIdentifier := ""
	if wasWebhook {
		oldIdentifier, _ = SourceIdentifier(existing.Source)
	}

	updated, err := m.store.UpdateTask(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	isWebhook := updated.Trigger.Type == task.TriggerWebhook
	newIdentifier := ""
	if isWebhook {
		newIdentifier, err = SourceIdentifier(updated.Source)
		if err != nil {
			return nil, err
		}
	}

	identityChanged := wasWebhook != isWebhook || oldIdentifier != newIdentifier

	if identityChanged {
		if wasWebhook && existing.Enabled {
			if err := m.deregisterWebhookTask(ctx, existing, oldIdentifier); err != nil {
				return nil, err
			}
		}
		if isWebhook && updated.Enabled {
			if err := m.registerWebhookTask(ctx, updated); err != nil {
				failed := task.StatusFailed
				if _, uerr := m.store.UpdateTask(ctx, id, store.TaskPatch{CurrentStatus: &failed}); uerr != nil {
					log.Printf("[MANAGER] Failed to mark task %s failed: %v", id, uerr)
				}
				return nil, err
			}
		}
	}

	m.emit(events.TaskUpdated, id, nil)
	return m.store.GetTask(ctx, id)
}

// EnableTask enables a task, re-registering its webhook link if needed.
// No-op when already enabled.
func (m *Manager) EnableTask(ctx context.Context, id string) (*task.Task, error) {
	t, err := m.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Enabled {
		return t, nil
	}

	enabled := true
	updated, err := m.store.UpdateTask(ctx, id, store.TaskPatch{Enabled: &enabled})
	if err != nil {
		return nil, err
	}

	if updated.Trigger.Type == task.TriggerWebhook {
		if err := m.registerWebhookTask(ctx, updated); err != nil {
			return nil, err
		}
		updated, err = m.store.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	m.emit(events.TaskUpdated, id, map[string]any{"enabled": true})
	return updated, nil
}

// DisableTask disables a task, removing it from its webhook fan-out set.
// No-op when already disabled.
func (m *Manager) DisableTask(ctx context.Context, id string) (*task.Task, error) {
	t, err := m.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Enabled {
		return t, nil
	}

	if t.Trigger.Type == task.TriggerWebhook {
		identifier, err := SourceIdentifier(t.Source)
		if err != nil {
			return nil, err
		}
		if err := m.deregisterWebhookTask(ctx, t, identifier); err != nil {
			return nil, err
		}
	}

	disabled := false
	updated, err := m.store.UpdateTask(ctx, id, store.TaskPatch{Enabled: &disabled})
	if err != nil {
		return nil, err
	}

	m.emit(events.TaskUpdated, id, map[string]any{"enabled": false})
	return updated, nil
}

// DeleteTask removes a task. A webhook-triggered task is first released from
// its registry entry; if that fails the delete is aborted and the task kept.
func (m *Manager) DeleteTask(ctx context.Context, id string) error {
	t, err := m.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if t.Trigger.Type == task.TriggerWebhook {
		identifier, err := SourceIdentifier(t.Source)
		if err != nil {
			return err
		}
		if err := m.deregisterWebhookTask(ctx, t, identifier); err != nil {
			return err
		}
	}

	if err := m.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	m.emit(events.TaskDeleted, id, nil)
	log.Printf("[MANAGER] Deleted task %s", id)
	return nil
}

// GetTask retrieves a task by id
func (m *Manager) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return m.store.GetTask(ctx, id)
}

// ListTasks retrieves all tasks
func (m *Manager) ListTasks(ctx context.Context) ([]*task.Task, error) {
	return m.store.ListTasks(ctx)
}

// TriggerManual runs a task on explicit request. Disabled tasks are
// rejected with task.ErrTaskDisabled. Any registry cursors for the task's
// source identifier are merged into the payload before the run.
func (m *Manager) TriggerManual(ctx context.Context, id string, payload map[string]any) (*orchestrator.Result, error) {
	t, err := m.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Enabled {
		return nil, task.ErrTaskDisabled{ID: id}
	}

	enriched := m.enrichPayload(ctx, t, payload)
	return m.runTask(ctx, t, enriched, m.now())
}

// enrichPayload merges registry cursors into the run payload when an entry
// exists for the task's source identifier
func (m *Manager) enrichPayload(ctx context.Context, t *task.Task, payload map[string]any) map[string]any {
	enriched := make(map[string]any, len(payload)+4)
	for k, v := range payload {
		enriched[k] = v
	}
	enriched[plugin.KeyTaskDefinition] = t.Clone()

	identifier, err := SourceIdentifier(t.Source)
	if err != nil {
		return enriched
	}
	reg, err := m.store.GetRegistration(ctx, identifier)
	if err != nil {
		return enriched
	}
	if reg.StartPageToken != "" {
		enriched[plugin.KeyStartPageToken] = reg.StartPageToken
	}
	if reg.NextPageToken != "" {
		enriched[plugin.KeyNextPageToken] = reg.NextPageToken
	}
	if len(reg.OtherTokens) > 0 {
		enriched[plugin.KeyOtherTokens] = reg.OtherTokens
	}
	return enriched
}

// runTask admits at most one active run per task id, executes the
// orchestrator, persists the outcome, and writes back cursors. runTime is
// recorded as LastRun; cron dispatch passes the consumed scheduled moment.
func (m *Manager) runTask(ctx context.Context, t *task.Task, payload map[string]any, runTime time.Time) (*orchestrator.Result, error) {
	m.runMu.Lock()
	current, err := m.store.GetTask(ctx, t.ID)
	if err != nil {
		m.runMu.Unlock()
		return nil, err
	}
	if current.CurrentStatus == task.StatusRunning {
		m.runMu.Unlock()
		return nil, task.ErrTaskRunning{ID: t.ID}
	}
	running := task.StatusRunning
	if _, err := m.store.UpdateTask(ctx, t.ID, store.TaskPatch{CurrentStatus: &running}); err != nil {
		m.runMu.Unlock()
		return nil, err
	}
	m.runMu.Unlock()

	m.emit(events.TaskTriggered, t.ID, nil)

	result := m.orch.Run(ctx, current, payload)

	status := task.StatusCompleted
	if !result.Success {
		status = task.StatusFailed
	}
	runStatus := result.RunStatus()
	if _, err := m.store.UpdateTask(ctx, t.ID, store.TaskPatch{
		CurrentStatus: &status,
		LastRun:       &runTime,
		LastRunStatus: &runStatus,
	}); err != nil {
		log.Printf("[MANAGER] Failed to persist run result for task %s: %v", t.ID, err)
	}

	m.writeBackCursors(ctx, current, result)

	return result, nil
}

// writeBackCursors merges cursors returned by the source into the webhook
// registry entry. A run that returns no cursors does not erase previous
// ones. When the task is webhook-triggered but no entry exists, a minimal
// entry is created to hold the tokens.
func (m *Manager) writeBackCursors(ctx context.Context, t *task.Task, result *orchestrator.Result) {
	if result.StartPageToken == "" && result.NextPageToken == "" && len(result.OtherTokens) == 0 {
		return
	}

	identifier, err := SourceIdentifier(t.Source)
	if err != nil {
		return
	}

	patch := store.RegistrationPatch{OtherTokens: result.OtherTokens}
	if result.StartPageToken != "" {
		patch.StartPageToken = &result.StartPageToken
	}
	if result.NextPageToken != "" {
		patch.NextPageToken = &result.NextPageToken
	}

	if _, err := m.store.UpdateRegistration(ctx, identifier, patch); err == nil {
		return
	}

	if t.Trigger.Type != task.TriggerWebhook {
		return
	}

	// Webhook task without an entry: create a minimal one to hold the tokens
	reg := &webhook.Registration{
		SourceIdentifier: identifier,
		EndpointID:       t.Trigger.EndpointID,
		StartPageToken:   result.StartPageToken,
		NextPageToken:    result.NextPageToken,
		OtherTokens:      result.OtherTokens,
		RegisteredTasks:  []string{t.ID},
	}
	if err := m.store.SaveRegistration(ctx, reg); err != nil {
		log.Printf("[MANAGER] Failed to persist cursors for %s: %v", identifier, err)
	}
}

// sourceLock returns the per-identifier mutex serializing webhook dispatch
func (m *Manager) sourceLock(identifier string) *sync.Mutex {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()
	mu, ok := m.dispatchLock[identifier]
	if !ok {
		mu = &sync.Mutex{}
		m.dispatchLock[identifier] = mu
	}
	return mu
}

func (m *Manager) emit(typ events.Type, taskID string, data map[string]any) {
	if m.bus != nil {
		m.bus.Publish(events.Event{Type: typ, TaskID: taskID, Data: data})
	}
}
