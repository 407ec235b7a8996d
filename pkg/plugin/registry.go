package plugin

import (
	"sync"
)

type sourceEntry struct {
	factory     SourceFactory
	transformer Transformer
}

// Registry is the process-wide mapping from plugin type to factories.
// Registration happens once at startup; lookups occur on every orchestration.
type Registry struct {
	mu           sync.RWMutex
	sources      map[string]sourceEntry
	destinations map[string]DestinationFactory
}

// NewRegistry creates an empty plugin registry
func NewRegistry() *Registry {
	return &Registry{
		sources:      make(map[string]sourceEntry),
		destinations: make(map[string]DestinationFactory),
	}
}

// RegisterSource registers a source factory with its default transformer.
// A nil transformer falls back to record.DefaultTransform at run time.
func (r *Registry) RegisterSource(pluginType string, factory SourceFactory, defaultTransformer Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[pluginType] = sourceEntry{factory: factory, transformer: defaultTransformer}
}

// RegisterDestination registers a destination factory
func (r *Registry) RegisterDestination(pluginType string, factory DestinationFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destinations[pluginType] = factory
}

// LookupSource returns the factory and default transformer for a plugin type
func (r *Registry) LookupSource(pluginType string) (SourceFactory, Transformer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sources[pluginType]
	if !ok {
		return nil, nil, false
	}
	return entry.factory, entry.transformer, true
}

// LookupDestination returns the destination factory for a plugin type
func (r *Registry) LookupDestination(pluginType string) (DestinationFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.destinations[pluginType]
	return factory, ok
}

// HasSource reports whether a source plugin type is registered
func (r *Registry) HasSource(pluginType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sources[pluginType]
	return ok
}
