package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/godspeedsystems/ingestor-sdk/pkg/task"
	"github.com/godspeedsystems/ingestor-sdk/pkg/webhook"
)

// MemoryStore is the reference in-memory implementation. A single mutex
// serializes writes, which gives read-modify-write semantics per key.
type MemoryStore struct {
	mu            sync.RWMutex
	tasks         map[string]*task.Task
	registrations map[string]*webhook.Registration
}

// NewMemoryStore creates a new memory store instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:         make(map[string]*task.Task),
		registrations: make(map[string]*webhook.Registration),
	}
}

// GetTask retrieves a task by id
func (m *MemoryStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, task.ErrTaskNotFound{ID: id}
	}
	return t.Clone(), nil
}

// SaveTask stores a new task, failing on a duplicate id
func (m *MemoryStore) SaveTask(ctx context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if _, exists := m.tasks[t.ID]; exists {
		return task.ErrTaskExists{ID: t.ID}
	}

	m.tasks[t.ID] = t.Clone()
	return nil
}

// UpdateTask applies a partial update under the store lock
func (m *MemoryStore) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, task.ErrTaskNotFound{ID: id}
	}
	applyTaskPatch(t, patch)
	return t.Clone(), nil
}

// DeleteTask removes a task
func (m *MemoryStore) DeleteTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tasks, id)
	return nil
}

// ListTasks retrieves all tasks
func (m *MemoryStore) ListTasks(ctx context.Context) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t.Clone())
	}
	return tasks, nil
}

// GetRegistration retrieves a webhook registration by source identifier
func (m *MemoryStore) GetRegistration(ctx context.Context, sourceIdentifier string) (*webhook.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reg, ok := m.registrations[sourceIdentifier]
	if !ok {
		return nil, webhook.ErrRegistrationNotFound{SourceIdentifier: sourceIdentifier}
	}
	return reg.Clone(), nil
}

// SaveRegistration stores a webhook registration keyed by source identifier
func (m *MemoryStore) SaveRegistration(ctx context.Context, reg *webhook.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if reg.SourceIdentifier == "" {
		return fmt.Errorf("source identifier cannot be empty")
	}
	m.registrations[reg.SourceIdentifier] = reg.Clone()
	return nil
}

// UpdateRegistration applies a partial update under the store lock
func (m *MemoryStore) UpdateRegistration(ctx context.Context, sourceIdentifier string, patch RegistrationPatch) (*webhook.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.registrations[sourceIdentifier]
	if !ok {
		return nil, webhook.ErrRegistrationNotFound{SourceIdentifier: sourceIdentifier}
	}
	applyRegistrationPatch(reg, patch)
	return reg.Clone(), nil
}

// DeleteRegistration removes a webhook registration
func (m *MemoryStore) DeleteRegistration(ctx context.Context, sourceIdentifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.registrations, sourceIdentifier)
	return nil
}

// Close is a no-op for the memory store
func (m *MemoryStore) Close() error {
	return nil
}
