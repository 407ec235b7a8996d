package plugins

import (
	"context"
	"log"

	"github.com/godspeedsystems/ingestor-sdk/pkg/plugin"
	"github.com/godspeedsystems/ingestor-sdk/pkg/record"
)

// LogDestination writes each record to the process log. Useful as a sink for
// smoke tests and as the smallest complete destination example.
type LogDestination struct {
	prefix string
}

// NewLogDestination constructs a log destination
func NewLogDestination(config map[string]any) (plugin.Destination, error) {
	return &LogDestination{}, nil
}

// Init applies destination config
func (d *LogDestination) Init(config map[string]any) error {
	if p, ok := config["prefix"].(string); ok {
		d.prefix = p
	}
	return nil
}

// ProcessData logs a summary line per record
func (d *LogDestination) ProcessData(ctx context.Context, records []record.IngestionRecord) error {
	prefix := d.prefix
	if prefix == "" {
		prefix = "DEST"
	}
	for _, rec := range records {
		log.Printf("[%s] record id=%s status=%d url=%s bytes=%d", prefix, rec.ID, rec.StatusCode, rec.URL, len(rec.Content))
	}
	return nil
}
