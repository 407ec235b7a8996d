package webhook

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
)

// GitHubProvider manages repository hooks through the GitHub API.
// Credentials: "token" (required), "base_url" (optional, for GHES).
type GitHubProvider struct {
	// Timeout bounds each API call; zero means DefaultProviderTimeout
	Timeout time.Duration

	// newClient allows tests to stub the API client
	newClient func(credentials map[string]string) (*github.Client, error)
}

// NewGitHubProvider creates a GitHub webhook provider
func NewGitHubProvider() *GitHubProvider {
	return &GitHubProvider{newClient: newGitHubClient}
}

func newGitHubClient(credentials map[string]string) (*github.Client, error) {
	token := credentials["token"]
	if token == "" {
		return nil, fmt.Errorf("github credentials missing token")
	}
	client := github.NewClient(nil).WithAuthToken(token)
	if baseURL := credentials["base_url"]; baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid enterprise base URL: %w", err)
		}
	}
	return client, nil
}

func (p *GitHubProvider) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultProviderTimeout
}

// splitRepoURL extracts owner and repo from a repository URL such as
// https://github.com/owner/repo
func splitRepoURL(repoURL string) (string, string, error) {
	trimmed := strings.TrimSuffix(repoURL, ".git")
	trimmed = strings.TrimSuffix(trimmed, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("cannot parse repository URL: %s", repoURL)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}

// Register creates a repository hook subscribed to push and pull_request events
func (p *GitHubProvider) Register(ctx context.Context, pluginType, sourceIdentifier, callbackURL, secret string, credentials map[string]string) (*RegisterResult, error) {
	client, err := p.newClient(credentials)
	if err != nil {
		return nil, err
	}
	owner, repo, err := splitRepoURL(sourceIdentifier)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	hook := &github.Hook{
		Active: github.Bool(true),
		Events: []string{"push", "pull_request"},
		Config: map[string]interface{}{
			"url":          callbackURL,
			"content_type": "json",
			"secret":       secret,
		},
	}

	created, _, err := client.Repositories.CreateHook(ctx, owner, repo, hook)
	if err != nil {
		return nil, fmt.Errorf("failed to create hook for %s/%s: %w", owner, repo, err)
	}

	log.Printf("[WEBHOOK_PROVIDER] Created GitHub hook %d for %s/%s", created.GetID(), owner, repo)

	return &RegisterResult{ExternalID: strconv.FormatInt(created.GetID(), 10)}, nil
}

// Deregister deletes the repository hook identified by externalID
func (p *GitHubProvider) Deregister(ctx context.Context, pluginType, externalID, resourceID string, credentials map[string]string) error {
	client, err := p.newClient(credentials)
	if err != nil {
		return err
	}
	owner, repo, err := splitRepoURL(resourceID)
	if err != nil {
		return err
	}
	hookID, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid hook id %q: %w", externalID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	if _, err := client.Repositories.DeleteHook(ctx, owner, repo, hookID); err != nil {
		return fmt.Errorf("failed to delete hook %d for %s/%s: %w", hookID, owner, repo, err)
	}

	log.Printf("[WEBHOOK_PROVIDER] Deleted GitHub hook %d for %s/%s", hookID, owner, repo)
	return nil
}

// VerifyCredentials checks the token by fetching the authenticated user
func (p *GitHubProvider) VerifyCredentials(ctx context.Context, pluginType string, credentials map[string]string) (bool, error) {
	client, err := p.newClient(credentials)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	if _, _, err := client.Users.Get(ctx, ""); err != nil {
		return false, nil
	}
	return true, nil
}
