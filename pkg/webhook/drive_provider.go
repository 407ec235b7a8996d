package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/google/uuid"
)

const driveAPIBase = "https://www.googleapis.com/drive/v3"

// DriveProvider manages Drive change-notification channels.
// Credentials: "token" (OAuth2 access token). The webhook secret travels as
// the channel token, which is how Drive callbacks are later authenticated.
type DriveProvider struct {
	// BaseURL overrides the Drive API endpoint, used by tests
	BaseURL string
	// Timeout bounds each API call; zero means DefaultProviderTimeout
	Timeout time.Duration

	// httpClient allows tests to stub the transport
	httpClient func(ctx context.Context, credentials map[string]string) (*http.Client, error)
}

// NewDriveProvider creates a Google Drive webhook provider
func NewDriveProvider() *DriveProvider {
	return &DriveProvider{BaseURL: driveAPIBase, httpClient: newDriveClient}
}

func newDriveClient(ctx context.Context, credentials map[string]string) (*http.Client, error) {
	token := credentials["token"]
	if token == "" {
		return nil, fmt.Errorf("drive credentials missing token")
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return oauth2.NewClient(ctx, src), nil
}

func (p *DriveProvider) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultProviderTimeout
}

func (p *DriveProvider) base() string {
	if p.BaseURL != "" {
		return p.BaseURL
	}
	return driveAPIBase
}

// Register fetches the current start page token and opens a web_hook channel
// watching the changes feed
func (p *DriveProvider) Register(ctx context.Context, pluginType, sourceIdentifier, callbackURL, secret string, credentials map[string]string) (*RegisterResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	client, err := p.httpClient(ctx, credentials)
	if err != nil {
		return nil, err
	}

	startPageToken, err := p.getStartPageToken(ctx, client)
	if err != nil {
		return nil, err
	}

	channelID := uuid.New().String()
	watchReq := map[string]any{
		"id":      channelID,
		"type":    "web_hook",
		"address": callbackURL,
		"token":   secret,
	}

	var watchResp struct {
		ID         string `json:"id"`
		ResourceID string `json:"resourceId"`
	}
	url := fmt.Sprintf("%s/changes/watch?pageToken=%s", p.base(), startPageToken)
	if err := p.postJSON(ctx, client, url, watchReq, &watchResp); err != nil {
		return nil, fmt.Errorf("failed to watch changes for folder %s: %w", sourceIdentifier, err)
	}

	log.Printf("[WEBHOOK_PROVIDER] Opened Drive channel %s for folder %s", channelID, sourceIdentifier)

	return &RegisterResult{ExternalID: channelID, StartPageToken: startPageToken}, nil
}

// Deregister stops the notification channel. externalID is the channel id;
// resourceID is the source identifier, used only for logging here since
// channels/stop needs the channel identity.
func (p *DriveProvider) Deregister(ctx context.Context, pluginType, externalID, resourceID string, credentials map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	client, err := p.httpClient(ctx, credentials)
	if err != nil {
		return err
	}

	stopReq := map[string]any{
		"id":         externalID,
		"resourceId": resourceID,
	}
	if err := p.postJSON(ctx, client, p.base()+"/channels/stop", stopReq, nil); err != nil {
		return fmt.Errorf("failed to stop channel %s: %w", externalID, err)
	}

	log.Printf("[WEBHOOK_PROVIDER] Stopped Drive channel %s (folder %s)", externalID, resourceID)
	return nil
}

// VerifyCredentials checks the token against the about endpoint
func (p *DriveProvider) VerifyCredentials(ctx context.Context, pluginType string, credentials map[string]string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	client, err := p.httpClient(ctx, credentials)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base()+"/about?fields=user", nil)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[WEBHOOK_PROVIDER] Failed to close response body: %v", err)
		}
	}()

	return resp.StatusCode == http.StatusOK, nil
}

func (p *DriveProvider) getStartPageToken(ctx context.Context, client *http.Client) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base()+"/changes/startPageToken", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get start page token: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[WEBHOOK_PROVIDER] Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("start page token request failed: %s: %s", resp.Status, string(body))
	}

	var out struct {
		StartPageToken string `json:"startPageToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode start page token: %w", err)
	}
	return out.StartPageToken, nil
}

func (p *DriveProvider) postJSON(ctx context.Context, client *http.Client, url string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[WEBHOOK_PROVIDER] Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed: %s: %s", resp.Status, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return err
		}
	}
	return nil
}
