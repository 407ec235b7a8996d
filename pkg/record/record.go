package record

import (
	"fmt"
	"time"
)

// IngestionRecord is the uniform transformer/destination interchange unit
type IngestionRecord struct {
	// ID is stable per source item
	ID string `json:"id"`
	// Content is the item body; when StatusCode != 200 it holds an error
	// description instead of source data
	Content string `json:"content"`
	URL     string `json:"url,omitempty"`
	// StatusCode is HTTP-style: 200 normal, 500 for a per-item fetch error
	StatusCode int       `json:"status_code"`
	FetchedAt  time.Time `json:"fetched_at"`
	// Metadata is an open map (filePath, changeType, mimeType, commitSha, ...)
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SourceData is the data envelope of a source execution
type SourceData struct {
	// Data is the raw item payload: a list is used directly, a scalar is
	// wrapped into a singleton list
	Data any `json:"data,omitempty"`
	// StartPageToken and NextPageToken are Drive-style continuation cursors
	StartPageToken string `json:"start_page_token,omitempty"`
	NextPageToken  string `json:"next_page_token,omitempty"`
	// OtherTokens is the escape hatch for future source types
	OtherTokens map[string]string `json:"other_tokens,omitempty"`
}

// SourceResult is the outcome of one source execution
type SourceResult struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    *SourceData `json:"data,omitempty"`
}

// Flatten extracts the raw item list from a source result. Strict sources
// return a list under Data.Data; a scalar is wrapped into a singleton list
// and absent data yields an empty list. The second return reports whether
// the result carried no data at all so callers can warn.
func Flatten(res *SourceResult) ([]any, bool) {
	if res == nil || res.Data == nil {
		return nil, true
	}
	switch v := res.Data.Data.(type) {
	case nil:
		return nil, true
	case []any:
		return v, false
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out, false
	default:
		return []any{v}, false
	}
}

// DefaultTransform is the fallback transformer used when a source plugin
// registers without one. It is total: items it cannot interpret become
// 500-status records rather than failing the run.
func DefaultTransform(raw []any, payload map[string]any) []IngestionRecord {
	fetchedAt := time.Now()
	if ts, ok := payload["fetchedAt"].(time.Time); ok {
		fetchedAt = ts
	}

	records := make([]IngestionRecord, 0, len(raw))
	for i, item := range raw {
		rec := IngestionRecord{
			StatusCode: 200,
			FetchedAt:  fetchedAt,
		}
		switch v := item.(type) {
		case IngestionRecord:
			rec = v
			if rec.FetchedAt.IsZero() {
				rec.FetchedAt = fetchedAt
			}
		case map[string]any:
			if id, ok := v["id"].(string); ok {
				rec.ID = id
			}
			if content, ok := v["content"].(string); ok {
				rec.Content = content
			}
			if url, ok := v["url"].(string); ok {
				rec.URL = url
			}
			if code, ok := v["statusCode"].(int); ok {
				rec.StatusCode = code
			}
			if meta, ok := v["metadata"].(map[string]any); ok {
				rec.Metadata = meta
			}
		case string:
			rec.Content = v
		default:
			rec.Content = fmt.Sprintf("unsupported item type %T", item)
			rec.StatusCode = 500
		}
		if rec.ID == "" {
			rec.ID = fmt.Sprintf("item-%d", i)
		}
		records = append(records, rec)
	}
	return records
}
