package store

import (
	"fmt"
)

// NewStore creates a store instance based on the configuration
func NewStore(config *Config) (Store, error) {
	switch config.Type {
	case "memory", "":
		return NewMemoryStore(), nil

	case "file":
		if config.FilePath == "" {
			config.FilePath = "./ingestor-state.json"
		}
		if config.SyncInterval == 0 {
			config.SyncInterval = 30
		}
		return NewFileStore(config.FilePath, config.SyncInterval)

	case "s3":
		return NewS3Store(config)

	default:
		return nil, fmt.Errorf("unknown store type: %s", config.Type)
	}
}
