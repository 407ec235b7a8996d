package plugins

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/godspeedsystems/ingestor-sdk/pkg/record"
)

func TestHTTPCrawlerFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>hello</html>"))
	}))
	defer srv.Close()

	src, err := NewHTTPCrawler(map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatalf("failed to construct crawler: %v", err)
	}
	if err := src.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	res, err := src.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !res.Success || res.Code != 200 {
		t.Fatalf("expected success, got %+v", res)
	}

	raw, empty := record.Flatten(res)
	if empty || len(raw) != 1 {
		t.Fatalf("expected one item, got %d (empty=%v)", len(raw), empty)
	}
	item, ok := raw[0].(map[string]any)
	if !ok {
		t.Fatalf("unexpected item type %T", raw[0])
	}
	if item["content"] != "<html>hello</html>" {
		t.Errorf("unexpected content: %v", item["content"])
	}
	if item["url"] != srv.URL {
		t.Errorf("unexpected url: %v", item["url"])
	}
}

func TestHTTPCrawlerStartURLAlias(t *testing.T) {
	src, err := NewHTTPCrawler(map[string]any{"startUrl": "https://example.com"})
	if err != nil {
		t.Fatalf("failed to construct crawler: %v", err)
	}
	c := src.(*HTTPCrawler)
	if c.url != "https://example.com" {
		t.Errorf("expected startUrl to be accepted, got %q", c.url)
	}
}

func TestHTTPCrawlerMissingURL(t *testing.T) {
	// Construction succeeds; the missing url surfaces as a failed execution
	src, err := NewHTTPCrawler(map[string]any{})
	if err != nil {
		t.Fatalf("expected construction to succeed, got %v", err)
	}
	if err := src.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	res, err := src.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("execute returned error instead of result: %v", err)
	}
	if res.Success || res.Code != 400 {
		t.Errorf("expected 400 result, got %+v", res)
	}
}

func TestHTTPCrawlerUnreachableHost(t *testing.T) {
	src, _ := NewHTTPCrawler(map[string]any{"url": "http://127.0.0.1:1"})
	if err := src.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	res, err := src.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("execute returned error instead of result: %v", err)
	}
	if res.Success || res.Code != 502 {
		t.Errorf("expected 502 result, got %+v", res)
	}
}

func TestTransformPages(t *testing.T) {
	raw := []any{
		map[string]any{"id": "https://example.com", "url": "https://example.com", "content": "body", "status_code": 200},
		"loose item",
	}

	records := TransformPages(raw, nil)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "https://example.com" || records[0].Content != "body" {
		t.Errorf("unexpected record: %+v", records[0])
	}
	if records[1].ID != "page-1" || records[1].Content != "loose item" {
		t.Errorf("unexpected fallback record: %+v", records[1])
	}
}

func TestLogDestination(t *testing.T) {
	dest, err := NewLogDestination(nil)
	if err != nil {
		t.Fatalf("failed to construct destination: %v", err)
	}
	if err := dest.Init(map[string]any{"prefix": "TEST"}); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	records := []record.IngestionRecord{
		{ID: "a", Content: "x", StatusCode: 200},
		{ID: "b", Content: "y", StatusCode: 500},
	}
	if err := dest.ProcessData(context.Background(), records); err != nil {
		t.Errorf("process failed: %v", err)
	}
}
