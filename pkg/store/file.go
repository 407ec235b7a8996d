package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/godspeedsystems/ingestor-sdk/pkg/task"
	"github.com/godspeedsystems/ingestor-sdk/pkg/webhook"
)

// fileState is the on-disk representation of the two logical tables
type fileState struct {
	Tasks         map[string]*task.Task            `json:"tasks"`
	Registrations map[string]*webhook.Registration `json:"webhook_registry"`
}

// FileStore persists tasks and registrations in a single JSON file. Writes
// sync immediately; a periodic sync covers in-place mutations.
type FileStore struct {
	filePath      string
	mu            sync.RWMutex
	tasks         map[string]*task.Task
	registrations map[string]*webhook.Registration
	syncInterval  time.Duration
	stopSync      chan struct{}
	stopOnce      sync.Once
}

// NewFileStore creates a file store, loading any existing state
func NewFileStore(filePath string, syncIntervalSeconds int) (*FileStore, error) {
	fs := &FileStore{
		filePath:      filePath,
		tasks:         make(map[string]*task.Task),
		registrations: make(map[string]*webhook.Registration),
		syncInterval:  time.Duration(syncIntervalSeconds) * time.Second,
		stopSync:      make(chan struct{}),
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	if err := fs.loadFromFile(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load existing state: %w", err)
	}

	if syncIntervalSeconds > 0 {
		go fs.periodicSync()
	}

	return fs, nil
}

func (fs *FileStore) loadFromFile() error {
	data, err := os.ReadFile(fs.filePath)
	if err != nil {
		return err
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to parse store file: %w", err)
	}
	if state.Tasks != nil {
		fs.tasks = state.Tasks
	}
	if state.Registrations != nil {
		fs.registrations = state.Registrations
	}

	log.Printf("[STORE] Loaded %d tasks and %d registrations from %s",
		len(fs.tasks), len(fs.registrations), fs.filePath)
	return nil
}

// syncToFile writes the full state; callers hold the write lock
func (fs *FileStore) syncToFile() error {
	state := fileState{Tasks: fs.tasks, Registrations: fs.registrations}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store state: %w", err)
	}

	tmp := fs.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	return os.Rename(tmp, fs.filePath)
}

func (fs *FileStore) periodicSync() {
	ticker := time.NewTicker(fs.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-fs.stopSync:
			return
		case <-ticker.C:
			fs.mu.Lock()
			if err := fs.syncToFile(); err != nil {
				log.Printf("[STORE] Periodic sync failed: %v", err)
			}
			fs.mu.Unlock()
		}
	}
}

// GetTask retrieves a task by id
func (fs *FileStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	t, ok := fs.tasks[id]
	if !ok {
		return nil, task.ErrTaskNotFound{ID: id}
	}
	return t.Clone(), nil
}

// SaveTask stores a new task and syncs to disk
func (fs *FileStore) SaveTask(ctx context.Context, t *task.Task) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if t.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if _, exists := fs.tasks[t.ID]; exists {
		return task.ErrTaskExists{ID: t.ID}
	}

	fs.tasks[t.ID] = t.Clone()
	return fs.syncToFile()
}

// UpdateTask applies a partial update and syncs to disk
func (fs *FileStore) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*task.Task, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	t, ok := fs.tasks[id]
	if !ok {
		return nil, task.ErrTaskNotFound{ID: id}
	}
	applyTaskPatch(t, patch)
	if err := fs.syncToFile(); err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// DeleteTask removes a task and syncs to disk
func (fs *FileStore) DeleteTask(ctx context.Context, id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	delete(fs.tasks, id)
	return fs.syncToFile()
}

// ListTasks retrieves all tasks
func (fs *FileStore) ListTasks(ctx context.Context) ([]*task.Task, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	tasks := make([]*task.Task, 0, len(fs.tasks))
	for _, t := range fs.tasks {
		tasks = append(tasks, t.Clone())
	}
	return tasks, nil
}

// GetRegistration retrieves a webhook registration by source identifier
func (fs *FileStore) GetRegistration(ctx context.Context, sourceIdentifier string) (*webhook.Registration, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	reg, ok := fs.registrations[sourceIdentifier]
	if !ok {
		return nil, webhook.ErrRegistrationNotFound{SourceIdentifier: sourceIdentifier}
	}
	return reg.Clone(), nil
}

// SaveRegistration stores a webhook registration and syncs to disk
func (fs *FileStore) SaveRegistration(ctx context.Context, reg *webhook.Registration) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if reg.SourceIdentifier == "" {
		return fmt.Errorf("source identifier cannot be empty")
	}
	fs.registrations[reg.SourceIdentifier] = reg.Clone()
	return fs.syncToFile()
}

// UpdateRegistration applies a partial update and syncs to disk
func (fs *FileStore) UpdateRegistration(ctx context.Context, sourceIdentifier string, patch RegistrationPatch) (*webhook.Registration, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	reg, ok := fs.registrations[sourceIdentifier]
	if !ok {
		return nil, webhook.ErrRegistrationNotFound{SourceIdentifier: sourceIdentifier}
	}
	applyRegistrationPatch(reg, patch)
	if err := fs.syncToFile(); err != nil {
		return nil, err
	}
	return reg.Clone(), nil
}

// DeleteRegistration removes a webhook registration and syncs to disk
func (fs *FileStore) DeleteRegistration(ctx context.Context, sourceIdentifier string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	delete(fs.registrations, sourceIdentifier)
	return fs.syncToFile()
}

// Close stops the periodic sync and flushes the final state
func (fs *FileStore) Close() error {
	fs.stopOnce.Do(func() {
		close(fs.stopSync)
	})

	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.syncToFile()
}
