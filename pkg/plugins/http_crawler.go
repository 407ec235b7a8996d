package plugins

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/godspeedsystems/ingestor-sdk/pkg/plugin"
	"github.com/godspeedsystems/ingestor-sdk/pkg/record"
)

// maxBodyBytes bounds how much of a fetched page is kept as record content
const maxBodyBytes = 1 << 20

// HTTPCrawler fetches a single URL per run and yields one record. It is the
// reference source implementation for manually and cron triggered tasks.
type HTTPCrawler struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPCrawler constructs an http-crawler source from task config. The
// URL may be supplied as "url" or "startUrl".
func NewHTTPCrawler(config map[string]any) (plugin.Source, error) {
	c := &HTTPCrawler{timeout: 30 * time.Second}
	if u, ok := config["url"].(string); ok && u != "" {
		c.url = u
	} else if u, ok := config["startUrl"].(string); ok && u != "" {
		c.url = u
	}
	if secs, ok := config["timeoutSeconds"].(float64); ok && secs > 0 {
		c.timeout = time.Duration(secs) * time.Second
	}
	return c, nil
}

// Init prepares the HTTP client
func (c *HTTPCrawler) Init(ctx context.Context) error {
	c.client = &http.Client{Timeout: c.timeout}
	return nil
}

// Execute fetches the configured URL. A missing URL or transport failure is
// reported as an unsuccessful result rather than an error so the run carries
// a meaningful status code.
func (c *HTTPCrawler) Execute(ctx context.Context, payload map[string]any) (*record.SourceResult, error) {
	if c.url == "" {
		return &record.SourceResult{Success: false, Code: 400, Message: "http-crawler: missing url in source config"}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return &record.SourceResult{Success: false, Code: 400, Message: fmt.Sprintf("http-crawler: invalid url: %v", err)}, nil
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &record.SourceResult{Success: false, Code: 502, Message: fmt.Sprintf("http-crawler: fetch failed: %v", err)}, nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &record.SourceResult{Success: false, Code: 502, Message: fmt.Sprintf("http-crawler: read failed: %v", err)}, nil
	}

	item := map[string]any{
		"id":          c.url,
		"url":         c.url,
		"content":     string(body),
		"status_code": resp.StatusCode,
	}
	return &record.SourceResult{
		Success: true,
		Code:    200,
		Data:    &record.SourceData{Data: []any{item}},
	}, nil
}

// TransformPages converts http-crawler items into ingestion records
func TransformPages(raw []any, payload map[string]any) []record.IngestionRecord {
	fetchedAt := time.Now()
	if ts, ok := payload[plugin.KeyFetchedAt].(time.Time); ok {
		fetchedAt = ts
	}

	records := make([]record.IngestionRecord, 0, len(raw))
	for i, item := range raw {
		rec := record.IngestionRecord{
			ID:         fmt.Sprintf("page-%d", i),
			StatusCode: 200,
			FetchedAt:  fetchedAt,
		}
		if m, ok := item.(map[string]any); ok {
			if id, ok := m["id"].(string); ok && id != "" {
				rec.ID = id
			}
			if u, ok := m["url"].(string); ok {
				rec.URL = u
			}
			if content, ok := m["content"].(string); ok {
				rec.Content = content
			}
			if code, ok := m["status_code"].(int); ok {
				rec.StatusCode = code
			}
		} else {
			rec.Content = fmt.Sprintf("%v", item)
		}
		records = append(records, rec)
	}
	return records
}
