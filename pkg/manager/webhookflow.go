package manager

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/godspeedsystems/ingestor-sdk/pkg/store"
	"github.com/godspeedsystems/ingestor-sdk/pkg/task"
	"github.com/godspeedsystems/ingestor-sdk/pkg/webhook"
)

// registerWebhookTask links a task into the shared subscription for its
// source identifier. The external provider is called only when no entry
// exists yet; all later tasks join the existing subscription and reuse its
// secret and external id.
func (m *Manager) registerWebhookTask(ctx context.Context, t *task.Task) error {
	identifier, err := SourceIdentifier(t.Source)
	if err != nil {
		return err
	}

	reg, err := m.store.GetRegistration(ctx, identifier)
	if err == nil {
		reg.AddTask(t.ID)
		if _, err := m.store.UpdateRegistration(ctx, identifier, store.RegistrationPatch{
			RegisteredTasks: &reg.RegisteredTasks,
		}); err != nil {
			return err
		}
		log.Printf("[MANAGER] Task %s joined webhook subscription for %s", t.ID, identifier)
		return m.copyRegistrationIntoTrigger(ctx, t, reg)
	}

	var notFound webhook.ErrRegistrationNotFound
	if !errors.As(err, &notFound) {
		return err
	}

	secret, err := webhook.GenerateSecret()
	if err != nil {
		return err
	}

	result, err := m.provider.Register(ctx, t.Source.PluginType, identifier, t.Trigger.CallbackURL, secret, t.Trigger.Credentials)
	if err != nil {
		// No registry entry is left behind on external failure
		return fmt.Errorf("webhook registration failed for %s: %w", identifier, err)
	}

	reg = &webhook.Registration{
		SourceIdentifier:  identifier,
		EndpointID:        t.Trigger.EndpointID,
		Secret:            secret,
		ExternalWebhookID: result.ExternalID,
		RegisteredTasks:   []string{t.ID},
		StartPageToken:    result.StartPageToken,
		NextPageToken:     result.NextPageToken,
		Active:            true,
	}
	if err := m.store.SaveRegistration(ctx, reg); err != nil {
		return err
	}

	log.Printf("[MANAGER] Registered webhook for %s (external id %s)", identifier, result.ExternalID)
	return m.copyRegistrationIntoTrigger(ctx, t, reg)
}

// copyRegistrationIntoTrigger writes the shared secret and external id back
// into the task's trigger so the stored task reflects its subscription
func (m *Manager) copyRegistrationIntoTrigger(ctx context.Context, t *task.Task, reg *webhook.Registration) error {
	trigger := t.Trigger
	trigger.Secret = reg.Secret
	trigger.ExternalWebhookID = reg.ExternalWebhookID
	if _, err := m.store.UpdateTask(ctx, t.ID, store.TaskPatch{Trigger: &trigger}); err != nil {
		return err
	}
	t.Trigger = trigger
	return nil
}

// deregisterWebhookTask removes a task from its fan-out set. When the set
// empties, the external subscription is released and the entry deleted in
// the same critical section; a provider failure restores the task into the
// set and surfaces the error.
func (m *Manager) deregisterWebhookTask(ctx context.Context, t *task.Task, identifier string) error {
	reg, err := m.store.GetRegistration(ctx, identifier)
	if err != nil {
		var notFound webhook.ErrRegistrationNotFound
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	if !reg.HasTask(t.ID) {
		return nil
	}

	reg.RemoveTask(t.ID)
	if _, err := m.store.UpdateRegistration(ctx, identifier, store.RegistrationPatch{
		RegisteredTasks: &reg.RegisteredTasks,
	}); err != nil {
		return err
	}

	if len(reg.RegisteredTasks) > 0 {
		log.Printf("[MANAGER] Task %s left webhook subscription for %s (%d remaining)",
			t.ID, identifier, len(reg.RegisteredTasks))
		return nil
	}

	// Last task gone: release the external subscription before deleting the
	// entry so no ghost subscription outlives the registry
	if err := m.provider.Deregister(ctx, t.Source.PluginType, reg.ExternalWebhookID, identifier, t.Trigger.Credentials); err != nil {
		restored := append(reg.RegisteredTasks, t.ID)
		if _, rerr := m.store.UpdateRegistration(ctx, identifier, store.RegistrationPatch{
			RegisteredTasks: &restored,
		}); rerr != nil {
			log.Printf("[MANAGER] Failed to restore task %s into subscription %s: %v", t.ID, identifier, rerr)
		}
		return fmt.Errorf("webhook deregistration failed for %s: %w", identifier, err)
	}

	if err := m.store.DeleteRegistration(ctx, identifier); err != nil {
		return err
	}
	log.Printf("[MANAGER] Deregistered webhook for %s", identifier)
	return nil
}
