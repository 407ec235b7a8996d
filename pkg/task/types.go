package task

import (
	"time"
)

// Status defines the machine-owned lifecycle status of a task
type Status string

const (
	// StatusScheduled indicates the task is persisted and waiting for a trigger
	StatusScheduled Status = "scheduled"
	// StatusRunning indicates an orchestrator is currently executing the task
	StatusRunning Status = "running"
	// StatusCompleted indicates the last run finished successfully
	StatusCompleted Status = "completed"
	// StatusFailed indicates the last run (or webhook registration) failed
	StatusFailed Status = "failed"
)

// TriggerType defines how a task fires
type TriggerType string

const (
	// TriggerManual fires only from an explicit request
	TriggerManual TriggerType = "manual"
	// TriggerCron fires when the cron expression is due
	TriggerCron TriggerType = "cron"
	// TriggerWebhook fires when an external webhook callback arrives
	TriggerWebhook TriggerType = "webhook"
)

// Trigger is the tagged trigger variant. Type selects which fields apply;
// callers switch on Type, never on the presence of optional fields.
type Trigger struct {
	Type TriggerType `json:"type"`

	// Expression is the cron expression (Type == TriggerCron)
	// Standard cron format: minute hour day-of-month month day-of-week
	Expression string `json:"expression,omitempty"`

	// EndpointID is the local HTTP path that receives callbacks (Type == TriggerWebhook)
	EndpointID string `json:"endpoint_id,omitempty"`
	// CallbackURL is the externally reachable URL registered with the provider
	CallbackURL string `json:"callback_url,omitempty"`
	// Credentials are the opaque provider credentials for register/deregister calls
	Credentials map[string]string `json:"credentials,omitempty"`
	// ExternalWebhookID is populated after first registration with the provider
	ExternalWebhookID string `json:"external_webhook_id,omitempty"`
	// Secret is populated from the shared webhook registration
	Secret string `json:"secret,omitempty"`
}

// PluginRef names a plugin type plus its open configuration map.
// Config keys are known per plugin; the core only inspects them when
// deriving the source identifier.
type PluginRef struct {
	PluginType string         `json:"plugin_type"`
	Config     map[string]any `json:"config,omitempty"`
}

// RunStatus is the embedded result of the most recent orchestrator run
type RunStatus struct {
	Success bool `json:"success"`
	// Code is an HTTP-style status code (200 normal, 5xx failure)
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	// ItemsProcessed counts records delivered before any later error
	ItemsProcessed int `json:"items_processed"`
}

// Task represents one ingestion job definition plus its live status
type Task struct {
	// ID is the unique identifier, assigned on creation if absent
	ID string `json:"id"`
	// Name is a human-readable label
	Name string `json:"name"`
	// Enabled indicates whether the task may trigger; webhook fan-out skips
	// disabled tasks
	Enabled bool `json:"enabled"`

	// Source names the crawler plugin and its configuration
	Source PluginRef `json:"source"`
	// Destination is optional; when absent, results are emitted as events only
	Destination *PluginRef `json:"destination,omitempty"`

	// Trigger is the condition under which the task fires
	Trigger Trigger `json:"trigger"`

	// CurrentStatus is machine-owned, never user-set
	CurrentStatus Status `json:"current_status"`
	// LastRun is set after each orchestrator run. For cron runs it holds the
	// consumed scheduled moment, which makes the due check idempotent.
	LastRun *time.Time `json:"last_run,omitempty"`
	// LastRunStatus is the result of the most recent run
	LastRunStatus *RunStatus `json:"last_run_status,omitempty"`

	// CreatedAt is when the task was scheduled
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task was last updated
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so store callers cannot mutate shared state
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	out.Source = t.Source.Clone()
	if t.Destination != nil {
		dest := t.Destination.Clone()
		out.Destination = &dest
	}
	if t.Trigger.Credentials != nil {
		creds := make(map[string]string, len(t.Trigger.Credentials))
		for k, v := range t.Trigger.Credentials {
			creds[k] = v
		}
		out.Trigger.Credentials = creds
	}
	if t.LastRun != nil {
		lr := *t.LastRun
		out.LastRun = &lr
	}
	if t.LastRunStatus != nil {
		st := *t.LastRunStatus
		out.LastRunStatus = &st
	}
	return &out
}

// Clone returns a deep copy of the plugin reference
func (p PluginRef) Clone() PluginRef {
	out := p
	if p.Config != nil {
		cfg := make(map[string]any, len(p.Config))
		for k, v := range p.Config {
			cfg[k] = v
		}
		out.Config = cfg
	}
	return out
}

// Validate checks if the task definition is valid
func (t *Task) Validate() error {
	if t.Name == "" {
		return ErrInvalidTask{Field: "name", Message: "name is required"}
	}
	if t.Source.PluginType == "" {
		return ErrInvalidTask{Field: "source.plugin_type", Message: "source plugin type is required"}
	}
	switch t.Trigger.Type {
	case TriggerManual:
	case TriggerCron:
		if t.Trigger.Expression == "" {
			return ErrInvalidTask{Field: "trigger.expression", Message: "cron expression is required"}
		}
	case TriggerWebhook:
		if t.Trigger.EndpointID == "" {
			return ErrInvalidTask{Field: "trigger.endpoint_id", Message: "endpoint id is required"}
		}
	default:
		return ErrInvalidTask{Field: "trigger.type", Message: "trigger type must be 'manual', 'cron' or 'webhook'"}
	}
	return nil
}

// ErrInvalidTask represents a validation error
type ErrInvalidTask struct {
	Field   string
	Message string
}

func (e ErrInvalidTask) Error() string {
	return "invalid task: " + e.Field + ": " + e.Message
}

// ErrTaskNotFound is returned when a task is not found
type ErrTaskNotFound struct {
	ID string
}

func (e ErrTaskNotFound) Error() string {
	return "task not found: " + e.ID
}

// ErrTaskExists is returned when scheduling a task with a duplicate id
type ErrTaskExists struct {
	ID string
}

func (e ErrTaskExists) Error() string {
	return "task already exists: " + e.ID
}

// ErrTaskDisabled is returned when triggering a disabled task
type ErrTaskDisabled struct {
	ID string
}

func (e ErrTaskDisabled) Error() string {
	return "task is disabled: " + e.ID
}

// ErrTaskRunning is returned when a run is requested while one is active
type ErrTaskRunning struct {
	ID string
}

func (e ErrTaskRunning) Error() string {
	return "task is already running: " + e.ID
}
