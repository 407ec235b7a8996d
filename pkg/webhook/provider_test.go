package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v57/github"
)

func TestProviderSetRouting(t *testing.T) {
	called := false
	set := NewProviderSet(map[string]Provider{
		"git-crawler": providerFunc(func() { called = true }),
	})

	if _, err := set.Register(context.Background(), "git-crawler", "id", "cb", "secret", nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if !called {
		t.Error("expected provider to be invoked")
	}

	_, err := set.Register(context.Background(), "ftp-crawler", "id", "cb", "secret", nil)
	var noProvider ErrNoProvider
	if !errors.As(err, &noProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}

// providerFunc is a minimal Provider whose Register flips a flag
type providerFunc func()

func (f providerFunc) Register(ctx context.Context, pluginType, sourceIdentifier, callbackURL, secret string, credentials map[string]string) (*RegisterResult, error) {
	f()
	return &RegisterResult{ExternalID: "x"}, nil
}

func (f providerFunc) Deregister(ctx context.Context, pluginType, externalID, resourceID string, credentials map[string]string) error {
	return nil
}

func (f providerFunc) VerifyCredentials(ctx context.Context, pluginType string, credentials map[string]string) (bool, error) {
	return true, nil
}

func TestSplitRepoURL(t *testing.T) {
	tests := []struct {
		url     string
		owner   string
		repo    string
		wantErr bool
	}{
		{url: "https://github.com/acme/docs", owner: "acme", repo: "docs"},
		{url: "https://github.com/acme/docs.git", owner: "acme", repo: "docs"},
		{url: "https://github.com/acme/docs/", owner: "acme", repo: "docs"},
		{url: "nonsense", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			owner, repo, err := splitRepoURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if owner != tt.owner || repo != tt.repo {
				t.Errorf("expected %s/%s, got %s/%s", tt.owner, tt.repo, owner, repo)
			}
		})
	}
}

func TestGitHubProviderRegister(t *testing.T) {
	var hookBody struct {
		Active *bool          `json:"active"`
		Events []string       `json:"events"`
		Config map[string]any `json:"config"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/docs/hooks" {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&hookBody); err != nil {
			t.Errorf("failed to decode hook body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 42})
	}))
	defer srv.Close()

	p := NewGitHubProvider()
	p.newClient = func(credentials map[string]string) (*github.Client, error) {
		client := github.NewClient(srv.Client())
		base, err := url.Parse(srv.URL + "/")
		if err != nil {
			return nil, err
		}
		client.BaseURL = base
		return client, nil
	}

	result, err := p.Register(context.Background(), "git-crawler", "https://github.com/acme/docs", "https://cb.example.com", "hook-secret", nil)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if result.ExternalID != "42" {
		t.Errorf("expected hook id 42, got %q", result.ExternalID)
	}

	if hookBody.Config["url"] != "https://cb.example.com" {
		t.Errorf("expected callback URL in hook config, got %v", hookBody.Config["url"])
	}
	if hookBody.Config["content_type"] != "json" {
		t.Errorf("expected json content type, got %v", hookBody.Config["content_type"])
	}
	if hookBody.Config["secret"] != "hook-secret" {
		t.Errorf("expected secret in hook config, got %v", hookBody.Config["secret"])
	}
	if len(hookBody.Events) != 2 {
		t.Errorf("expected push and pull_request events, got %v", hookBody.Events)
	}
}

func TestGitHubProviderMissingToken(t *testing.T) {
	p := NewGitHubProvider()
	if _, err := p.Register(context.Background(), "git-crawler", "https://github.com/acme/docs", "cb", "secret", nil); err == nil {
		t.Error("expected error for missing token")
	}
}

func TestDriveProviderRegister(t *testing.T) {
	var watchBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/changes/startPageToken":
			_ = json.NewEncoder(w).Encode(map[string]string{"startPageToken": "100"})
		case r.URL.Path == "/changes/watch":
			if err := json.NewDecoder(r.Body).Decode(&watchBody); err != nil {
				t.Errorf("failed to decode watch body: %v", err)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": watchBody["id"].(string), "resourceId": "res-1"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewDriveProvider()
	p.BaseURL = srv.URL
	p.httpClient = func(ctx context.Context, credentials map[string]string) (*http.Client, error) {
		return srv.Client(), nil
	}

	result, err := p.Register(context.Background(), "googledrive-crawler", "folder-123", "https://cb.example.com", "chan-secret", nil)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if result.StartPageToken != "100" {
		t.Errorf("expected start page token 100, got %q", result.StartPageToken)
	}
	if result.ExternalID == "" {
		t.Error("expected channel id as external id")
	}

	// The webhook secret travels as the channel token
	if watchBody["token"] != "chan-secret" {
		t.Errorf("expected secret as channel token, got %v", watchBody["token"])
	}
	if watchBody["type"] != "web_hook" || watchBody["address"] != "https://cb.example.com" {
		t.Errorf("unexpected watch request: %v", watchBody)
	}
}

func TestDriveProviderDeregister(t *testing.T) {
	var stopBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/stop" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&stopBody); err != nil {
			t.Errorf("failed to decode stop body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewDriveProvider()
	p.BaseURL = srv.URL
	p.httpClient = func(ctx context.Context, credentials map[string]string) (*http.Client, error) {
		return srv.Client(), nil
	}

	if err := p.Deregister(context.Background(), "googledrive-crawler", "chan-1", "folder-123", nil); err != nil {
		t.Fatalf("deregister failed: %v", err)
	}
	if stopBody["id"] != "chan-1" {
		t.Errorf("expected channel id in stop request, got %v", stopBody)
	}
}

func TestDriveProviderMissingToken(t *testing.T) {
	p := NewDriveProvider()
	if _, err := p.Register(context.Background(), "googledrive-crawler", "folder-123", "cb", "secret", nil); err == nil {
		t.Error("expected error for missing token")
	}
}
