package manager

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/godspeedsystems/ingestor-sdk/pkg/orchestrator"
	"github.com/godspeedsystems/ingestor-sdk/pkg/plugin"
	"github.com/godspeedsystems/ingestor-sdk/pkg/task"
	"github.com/godspeedsystems/ingestor-sdk/pkg/webhook"
)

// DispatchResult is the transport-agnostic outcome of a webhook dispatch;
// the HTTP layer translates Code into the response status
type DispatchResult struct {
	Code    int                  `json:"code"`
	Message string               `json:"message"`
	TaskIDs []string             `json:"task_ids,omitempty"`
	// FirstRun is the run status of the first fanned-out task
	FirstRun *orchestrator.Result `json:"first_run,omitempty"`
}

// TriggerWebhook dispatches an incoming webhook callback: it authenticates
// the request against the shared subscription secret and fans the event out
// to every registered task for the external resource. Dispatch for one
// source identifier is serialized in receipt order.
func (m *Manager) TriggerWebhook(ctx context.Context, endpointID string, body []byte, headers http.Header) (*DispatchResult, error) {
	candidates, err := m.tasksForEndpoint(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &DispatchResult{Code: http.StatusNotFound, Message: "no enabled task for endpoint"}, nil
	}

	pluginType := candidates[0].Source.PluginType

	// Preliminary parse without secret checking, just to learn which
	// external resource the event belongs to
	preliminary, err := webhook.Verify(pluginType, headers, body, "")
	if err != nil {
		return &DispatchResult{Code: http.StatusBadRequest, Message: err.Error()}, nil
	}

	identifier := preliminary.ExternalResourceID
	reg, err := m.store.GetRegistration(ctx, identifier)
	if err != nil {
		var notFound webhook.ErrRegistrationNotFound
		if errors.As(err, &notFound) {
			// Valid event, but nothing subscribed to this resource
			return &DispatchResult{Code: http.StatusOK, Message: "no subscription for resource"}, nil
		}
		return nil, err
	}

	verified, err := webhook.Verify(pluginType, headers, body, reg.Secret)
	if err != nil || !verified.IsValid {
		msg := "invalid webhook signature"
		if err != nil {
			msg = err.Error()
		}
		return &DispatchResult{Code: http.StatusUnauthorized, Message: msg}, nil
	}

	var targets []*task.Task
	for _, t := range candidates {
		if reg.HasTask(t.ID) {
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		return &DispatchResult{Code: http.StatusOK, Message: "no registered task for resource"}, nil
	}

	// Serialize per source identifier so callbacks for one external
	// resource run in receipt order
	lock := m.sourceLock(identifier)
	lock.Lock()
	defer lock.Unlock()

	result := &DispatchResult{Code: http.StatusOK, Message: "dispatched"}
	for _, t := range targets {
		payload := map[string]any{
			plugin.KeyTaskDefinition:     t.Clone(),
			plugin.KeyWebhookPayload:     verified.Payload,
			plugin.KeyExternalResourceID: identifier,
			plugin.KeyChangeType:         string(verified.ChangeType),
		}
		if reg.StartPageToken != "" {
			payload[plugin.KeyStartPageToken] = reg.StartPageToken
		}
		if reg.NextPageToken != "" {
			payload[plugin.KeyNextPageToken] = reg.NextPageToken
		}
		if len(reg.OtherTokens) > 0 {
			payload[plugin.KeyOtherTokens] = reg.OtherTokens
		}

		run, err := m.runTask(ctx, t, payload, m.now())
		if err != nil {
			log.Printf("[MANAGER] Webhook run for task %s failed: %v", t.ID, err)
			continue
		}
		result.TaskIDs = append(result.TaskIDs, t.ID)
		if result.FirstRun == nil {
			result.FirstRun = run
		}
	}

	return result, nil
}

// tasksForEndpoint lists enabled webhook tasks matching the endpoint id,
// tolerating a missing leading slash
func (m *Manager) tasksForEndpoint(ctx context.Context, endpointID string) ([]*task.Task, error) {
	all, err := m.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	want := strings.TrimPrefix(endpointID, "/")
	var out []*task.Task
	for _, t := range all {
		if !t.Enabled || t.Trigger.Type != task.TriggerWebhook {
			continue
		}
		if strings.TrimPrefix(t.Trigger.EndpointID, "/") == want {
			out = append(out, t)
		}
	}
	return out, nil
}
