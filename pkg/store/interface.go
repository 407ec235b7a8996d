package store

import (
	"context"
	"time"

	"github.com/godspeedsystems/ingestor-sdk/pkg/task"
	"github.com/godspeedsystems/ingestor-sdk/pkg/webhook"
)

// TaskPatch is a partial task update; nil fields are left untouched
type TaskPatch struct {
	Name        *string
	Enabled     *bool
	Source      *task.PluginRef
	Destination *task.PluginRef
	// ClearDestination removes the destination when true
	ClearDestination bool
	Trigger          *task.Trigger
	CurrentStatus    *task.Status
	LastRun          *time.Time
	LastRunStatus    *task.RunStatus
}

// RegistrationPatch is a partial webhook-registration update; nil fields are
// left untouched. Cursor fields never erase a previous value with an empty
// one unless explicitly set.
type RegistrationPatch struct {
	EndpointID        *string
	Secret            *string
	ExternalWebhookID *string
	// RegisteredTasks replaces the fan-out set when non-nil
	RegisteredTasks *[]string
	StartPageToken  *string
	NextPageToken   *string
	// OtherTokens is merged key-by-key into the existing map
	OtherTokens map[string]string
	Active      *bool
}

// Store persists tasks and webhook registrations. All operations are safe
// under concurrent callers, and updates are read-modify-write serialized per
// key: last-writer-wins is not acceptable for the fan-out set.
type Store interface {
	GetTask(ctx context.Context, id string) (*task.Task, error)
	// SaveTask fails with task.ErrTaskExists when the id is taken
	SaveTask(ctx context.Context, t *task.Task) error
	// UpdateTask applies a partial update and returns the new state;
	// task.ErrTaskNotFound on a missing id
	UpdateTask(ctx context.Context, id string, patch TaskPatch) (*task.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context) ([]*task.Task, error)

	GetRegistration(ctx context.Context, sourceIdentifier string) (*webhook.Registration, error)
	SaveRegistration(ctx context.Context, reg *webhook.Registration) error
	UpdateRegistration(ctx context.Context, sourceIdentifier string, patch RegistrationPatch) (*webhook.Registration, error)
	DeleteRegistration(ctx context.Context, sourceIdentifier string) error

	// Close cleans up any resources
	Close() error
}

// Config holds configuration for store backends
type Config struct {
	Type string `json:"type"` // "memory", "file", "s3"

	// File store config
	FilePath     string `json:"file_path,omitempty"`
	SyncInterval int    `json:"sync_interval_seconds,omitempty"`

	// S3 store config
	S3Bucket    string `json:"s3_bucket,omitempty"`
	S3Region    string `json:"s3_region,omitempty"`
	S3Prefix    string `json:"s3_prefix,omitempty"`
	S3Endpoint  string `json:"s3_endpoint,omitempty"`
	S3AccessKey string `json:"s3_access_key,omitempty"`
	S3SecretKey string `json:"s3_secret_key,omitempty"`
}

// applyTaskPatch mutates t in place; shared by the store implementations
func applyTaskPatch(t *task.Task, patch TaskPatch) {
	if patch.Name != nil {
		t.Name = *patch.Name
	}
	if patch.Enabled != nil {
		t.Enabled = *patch.Enabled
	}
	if patch.Source != nil {
		t.Source = patch.Source.Clone()
	}
	if patch.ClearDestination {
		t.Destination = nil
	} else if patch.Destination != nil {
		dest := patch.Destination.Clone()
		t.Destination = &dest
	}
	if patch.Trigger != nil {
		t.Trigger = *patch.Trigger
	}
	if patch.CurrentStatus != nil {
		t.CurrentStatus = *patch.CurrentStatus
	}
	if patch.LastRun != nil {
		lr := *patch.LastRun
		t.LastRun = &lr
	}
	if patch.LastRunStatus != nil {
		st := *patch.LastRunStatus
		t.LastRunStatus = &st
	}
	t.UpdatedAt = time.Now()
}

// applyRegistrationPatch mutates reg in place; shared by the store implementations
func applyRegistrationPatch(reg *webhook.Registration, patch RegistrationPatch) {
	if patch.EndpointID != nil {
		reg.EndpointID = *patch.EndpointID
	}
	if patch.Secret != nil {
		reg.Secret = *patch.Secret
	}
	if patch.ExternalWebhookID != nil {
		reg.ExternalWebhookID = *patch.ExternalWebhookID
	}
	if patch.RegisteredTasks != nil {
		reg.RegisteredTasks = append([]string(nil), (*patch.RegisteredTasks)...)
	}
	if patch.StartPageToken != nil {
		reg.StartPageToken = *patch.StartPageToken
	}
	if patch.NextPageToken != nil {
		reg.NextPageToken = *patch.NextPageToken
	}
	if len(patch.OtherTokens) > 0 {
		if reg.OtherTokens == nil {
			reg.OtherTokens = make(map[string]string, len(patch.OtherTokens))
		}
		for k, v := range patch.OtherTokens {
			reg.OtherTokens[k] = v
		}
	}
	if patch.Active != nil {
		reg.Active = *patch.Active
	}
}
