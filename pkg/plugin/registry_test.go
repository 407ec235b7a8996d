package plugin

import (
	"context"
	"testing"

	"github.com/godspeedsystems/ingestor-sdk/pkg/record"
)

type noopSource struct{}

func (noopSource) Init(ctx context.Context) error { return nil }
func (noopSource) Execute(ctx context.Context, payload map[string]any) (*record.SourceResult, error) {
	return &record.SourceResult{Success: true, Code: 200}, nil
}

type noopDestination struct{}

func (noopDestination) Init(config map[string]any) error { return nil }
func (noopDestination) ProcessData(ctx context.Context, records []record.IngestionRecord) error {
	return nil
}

func TestRegistrySourceLookup(t *testing.T) {
	r := NewRegistry()

	transformer := func(raw []any, payload map[string]any) []record.IngestionRecord { return nil }
	r.RegisterSource("fake-crawler", func(config map[string]any) (Source, error) {
		return noopSource{}, nil
	}, transformer)

	factory, tr, ok := r.LookupSource("fake-crawler")
	if !ok {
		t.Fatal("expected registered source to be found")
	}
	if factory == nil || tr == nil {
		t.Error("expected factory and transformer to be returned")
	}
	if !r.HasSource("fake-crawler") {
		t.Error("expected HasSource to report the registered type")
	}

	if _, _, ok := r.LookupSource("missing"); ok {
		t.Error("expected lookup of unregistered source to fail")
	}
	if r.HasSource("missing") {
		t.Error("expected HasSource to reject unregistered type")
	}
}

func TestRegistrySourceNilTransformer(t *testing.T) {
	r := NewRegistry()
	r.RegisterSource("fake-crawler", func(config map[string]any) (Source, error) {
		return noopSource{}, nil
	}, nil)

	_, tr, ok := r.LookupSource("fake-crawler")
	if !ok {
		t.Fatal("expected registered source to be found")
	}
	if tr != nil {
		t.Error("expected nil transformer to stay nil; the orchestrator supplies the default")
	}
}

func TestRegistryDestinationLookup(t *testing.T) {
	r := NewRegistry()
	r.RegisterDestination("fake-sink", func(config map[string]any) (Destination, error) {
		return noopDestination{}, nil
	})

	if _, ok := r.LookupDestination("fake-sink"); !ok {
		t.Error("expected registered destination to be found")
	}
	if _, ok := r.LookupDestination("missing"); ok {
		t.Error("expected lookup of unregistered destination to fail")
	}
}
