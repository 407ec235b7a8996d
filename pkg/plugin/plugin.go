package plugin

import (
	"context"

	"github.com/godspeedsystems/ingestor-sdk/pkg/record"
)

// Well-known payload keys recognized by sources. A source behaves as a full
// scan when KeyWebhookPayload is absent and as a delta sync otherwise.
const (
	KeyTaskDefinition     = "taskDefinition"
	KeyWebhookPayload     = "webhookPayload"
	KeyExternalResourceID = "externalResourceId"
	KeyChangeType         = "changeType"
	KeyStartPageToken     = "startPageToken"
	KeyNextPageToken      = "nextPageToken"
	KeyOtherTokens        = "otherCrawlerSpecificTokens"
	KeyFetchedAt          = "fetchedAt"
)

// Source is the uniform contract for crawler plugins
type Source interface {
	// Init prepares per-run resources; failure short-circuits the run
	Init(ctx context.Context) error
	// Execute performs the crawl. The payload carries the well-known keys
	// above; resources owned by the source are released on all exit paths.
	Execute(ctx context.Context, payload map[string]any) (*record.SourceResult, error)
}

// Transformer converts raw source items into ingestion records. It must be
// total: per-item failures are encoded as non-200 records.
type Transformer func(raw []any, payload map[string]any) []record.IngestionRecord

// Destination receives the transformed record stream
type Destination interface {
	Init(config map[string]any) error
	ProcessData(ctx context.Context, records []record.IngestionRecord) error
}

// SourceFactory constructs a per-run source bound to the task's source config
type SourceFactory func(config map[string]any) (Source, error)

// DestinationFactory constructs a per-run destination
type DestinationFactory func(config map[string]any) (Destination, error)

// ErrPluginNotFound is returned when a plugin type is not registered
type ErrPluginNotFound struct {
	PluginType string
}

func (e ErrPluginNotFound) Error() string {
	return "plugin not registered: " + e.PluginType
}
