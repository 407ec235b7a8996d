package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/godspeedsystems/ingestor-sdk/pkg/events"
	"github.com/godspeedsystems/ingestor-sdk/pkg/manager"
	"github.com/godspeedsystems/ingestor-sdk/pkg/plugin"
	"github.com/godspeedsystems/ingestor-sdk/pkg/record"
	"github.com/godspeedsystems/ingestor-sdk/pkg/store"
	"github.com/godspeedsystems/ingestor-sdk/pkg/task"
	"github.com/godspeedsystems/ingestor-sdk/pkg/webhook"
)

type stubSource struct{}

func (stubSource) Init(ctx context.Context) error { return nil }
func (stubSource) Execute(ctx context.Context, payload map[string]any) (*record.SourceResult, error) {
	return &record.SourceResult{
		Success: true,
		Code:    200,
		Data:    &record.SourceData{Data: []any{"one"}},
	}, nil
}

type stubProvider struct{}

func (stubProvider) Register(ctx context.Context, pluginType, sourceIdentifier, callbackURL, secret string, credentials map[string]string) (*webhook.RegisterResult, error) {
	return &webhook.RegisterResult{ExternalID: "ext-1"}, nil
}

func (stubProvider) Deregister(ctx context.Context, pluginType, externalID, resourceID string, credentials map[string]string) error {
	return nil
}

func (stubProvider) VerifyCredentials(ctx context.Context, pluginType string, credentials map[string]string) (bool, error) {
	return true, nil
}

func newTestServer() (*echo.Echo, store.Store) {
	st := store.NewMemoryStore()

	registry := plugin.NewRegistry()
	registry.RegisterSource("http-crawler", func(config map[string]any) (plugin.Source, error) {
		return stubSource{}, nil
	}, nil)
	registry.RegisterSource("git-crawler", func(config map[string]any) (plugin.Source, error) {
		return stubSource{}, nil
	}, nil)

	mgr := manager.New(st, registry, stubProvider{}, events.NewBus())

	e := echo.New()
	NewHandlers(mgr).RegisterRoutes(e)
	return e, st
}

func doRequest(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const taskBody = `{
	"name": "crawl docs",
	"enabled": true,
	"source": {"plugin_type": "http-crawler", "config": {"url": "https://example.com"}},
	"trigger": {"type": "manual"}
}`

func TestCreateAndGetTask(t *testing.T) {
	e, _ := newTestServer()

	rec := doRequest(e, http.MethodPost, "/tasks", taskBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.ID == "" || created.CurrentStatus != task.StatusScheduled {
		t.Errorf("unexpected created task: %+v", created)
	}

	rec = doRequest(e, http.MethodGet, "/tasks/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(e, http.MethodGet, "/tasks/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing task, got %d", rec.Code)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	e, _ := newTestServer()

	tests := []struct {
		name string
		body string
		want int
	}{
		{
			name: "missing name",
			body: `{"source": {"plugin_type": "http-crawler"}, "trigger": {"type": "manual"}}`,
			want: http.StatusBadRequest,
		},
		{
			name: "unknown plugin type",
			body: `{"name": "x", "source": {"plugin_type": "nope"}, "trigger": {"type": "manual"}}`,
			want: http.StatusBadRequest,
		},
		{
			name: "cron without expression",
			body: `{"name": "x", "source": {"plugin_type": "http-crawler"}, "trigger": {"type": "cron"}}`,
			want: http.StatusBadRequest,
		},
		{
			name: "malformed json",
			body: `{not json`,
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(e, http.MethodPost, "/tasks", tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateTaskDuplicateID(t *testing.T) {
	e, _ := newTestServer()

	body := `{"id": "fixed", "name": "x", "source": {"plugin_type": "http-crawler"}, "trigger": {"type": "manual"}}`
	if rec := doRequest(e, http.MethodPost, "/tasks", body); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if rec := doRequest(e, http.MethodPost, "/tasks", body); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate id, got %d", rec.Code)
	}
}

func TestListTasks(t *testing.T) {
	e, _ := newTestServer()

	doRequest(e, http.MethodPost, "/tasks", taskBody)
	doRequest(e, http.MethodPost, "/tasks", taskBody)

	rec := doRequest(e, http.MethodGet, "/tasks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Tasks []task.Task `json:"tasks"`
		Count int         `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 2 || len(resp.Tasks) != 2 {
		t.Errorf("expected 2 tasks, got %+v", resp)
	}
}

func TestUpdateTask(t *testing.T) {
	e, _ := newTestServer()

	body := `{"id": "t1", "name": "x", "source": {"plugin_type": "http-crawler"}, "trigger": {"type": "manual"}}`
	doRequest(e, http.MethodPost, "/tasks", body)

	rec := doRequest(e, http.MethodPatch, "/tasks/t1", `{"name": "renamed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if updated.Name != "renamed" {
		t.Errorf("expected renamed task, got %+v", updated)
	}

	if rec := doRequest(e, http.MethodPatch, "/tasks/missing", `{"name": "x"}`); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteTask(t *testing.T) {
	e, _ := newTestServer()

	body := `{"id": "t1", "name": "x", "source": {"plugin_type": "http-crawler"}, "trigger": {"type": "manual"}}`
	doRequest(e, http.MethodPost, "/tasks", body)

	if rec := doRequest(e, http.MethodDelete, "/tasks/t1", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := doRequest(e, http.MethodGet, "/tasks/t1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected task to be gone, got %d", rec.Code)
	}
	if rec := doRequest(e, http.MethodDelete, "/tasks/t1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for double delete, got %d", rec.Code)
	}
}

func TestEnableDisableTrigger(t *testing.T) {
	e, _ := newTestServer()

	body := `{"id": "t1", "name": "x", "enabled": true, "source": {"plugin_type": "http-crawler", "config": {"url": "https://example.com"}}, "trigger": {"type": "manual"}}`
	doRequest(e, http.MethodPost, "/tasks", body)

	if rec := doRequest(e, http.MethodPost, "/tasks/t1/disable", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// Triggering a disabled task is forbidden
	if rec := doRequest(e, http.MethodPost, "/tasks/t1/trigger", ""); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for disabled task, got %d", rec.Code)
	}

	if rec := doRequest(e, http.MethodPost, "/tasks/t1/enable", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec := doRequest(e, http.MethodPost, "/tasks/t1/trigger", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Success        bool `json:"success"`
		ItemsProcessed int  `json:"items_processed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !result.Success || result.ItemsProcessed != 1 {
		t.Errorf("unexpected run result: %+v", result)
	}
}

func TestWebhookEndpointNotFound(t *testing.T) {
	e, _ := newTestServer()

	rec := doRequest(e, http.MethodPost, "/hooks/github", `{}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 when no task listens on the endpoint, got %d", rec.Code)
	}
}

func TestCronTick(t *testing.T) {
	e, _ := newTestServer()

	body := `{
		"id": "c1", "name": "cron", "enabled": true,
		"source": {"plugin_type": "http-crawler", "config": {"url": "https://example.com"}},
		"trigger": {"type": "cron", "expression": "*/5 * * * *"}
	}`
	if rec := doRequest(e, http.MethodPost, "/tasks", body); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	rec := doRequest(e, http.MethodPost, "/cron/tick", `{"time": "2026-08-25T10:05:20Z"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Runs  []manager.CronRun `json:"runs"`
		Count int               `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 || len(resp.Runs) != 1 || resp.Runs[0].TaskID != "c1" {
		t.Errorf("expected one cron run, got %+v", resp)
	}

	if rec := doRequest(e, http.MethodPost, "/cron/tick", `{"time": "not a time"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad tick time, got %d", rec.Code)
	}
}
