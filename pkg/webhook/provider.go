package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultProviderTimeout bounds every external provider call
const DefaultProviderTimeout = 15 * time.Second

// RegisterResult is the provider's answer to a registration call
type RegisterResult struct {
	// ExternalID is the provider-assigned webhook identity. Two calls for
	// the same subscription may yield distinct ids, so the manager never
	// registers one source identifier twice.
	ExternalID string
	// StartPageToken and NextPageToken are the initial continuation
	// cursors, if the provider hands them out (Drive returns a start page
	// token, GitHub neither)
	StartPageToken string
	NextPageToken  string
}

// Provider adapts external services to register and deregister webhook
// subscriptions. Implementations must be safe for concurrent use.
type Provider interface {
	// Register creates the external subscription and returns its identity
	Register(ctx context.Context, pluginType, sourceIdentifier, callbackURL, secret string, credentials map[string]string) (*RegisterResult, error)

	// Deregister removes the external subscription. externalID is always
	// the provider webhook identity and resourceID the source identifier.
	Deregister(ctx context.Context, pluginType, externalID, resourceID string, credentials map[string]string) error

	// VerifyCredentials checks whether the credentials can talk to the service
	VerifyCredentials(ctx context.Context, pluginType string, credentials map[string]string) (bool, error)
}

// ErrNoProvider is returned when no provider handles a plugin type
type ErrNoProvider struct {
	PluginType string
}

func (e ErrNoProvider) Error() string {
	return "no webhook provider for plugin type: " + e.PluginType
}

// ProviderSet routes provider calls by plugin type
type ProviderSet struct {
	providers map[string]Provider
}

// NewProviderSet creates a provider set from a plugin-type keyed map
func NewProviderSet(providers map[string]Provider) *ProviderSet {
	if providers == nil {
		providers = make(map[string]Provider)
	}
	return &ProviderSet{providers: providers}
}

// Add registers a provider for a plugin type
func (s *ProviderSet) Add(pluginType string, p Provider) {
	s.providers[pluginType] = p
}

func (s *ProviderSet) lookup(pluginType string) (Provider, error) {
	p, ok := s.providers[pluginType]
	if !ok {
		return nil, ErrNoProvider{PluginType: pluginType}
	}
	return p, nil
}

// Register dispatches to the provider registered for the plugin type
func (s *ProviderSet) Register(ctx context.Context, pluginType, sourceIdentifier, callbackURL, secret string, credentials map[string]string) (*RegisterResult, error) {
	p, err := s.lookup(pluginType)
	if err != nil {
		return nil, err
	}
	return p.Register(ctx, pluginType, sourceIdentifier, callbackURL, secret, credentials)
}

// Deregister dispatches to the provider registered for the plugin type
func (s *ProviderSet) Deregister(ctx context.Context, pluginType, externalID, resourceID string, credentials map[string]string) error {
	p, err := s.lookup(pluginType)
	if err != nil {
		return err
	}
	return p.Deregister(ctx, pluginType, externalID, resourceID, credentials)
}

// VerifyCredentials dispatches to the provider registered for the plugin type
func (s *ProviderSet) VerifyCredentials(ctx context.Context, pluginType string, credentials map[string]string) (bool, error) {
	p, err := s.lookup(pluginType)
	if err != nil {
		return false, err
	}
	return p.VerifyCredentials(ctx, pluginType, credentials)
}

// GenerateSecret returns 20 random bytes hex-encoded, the per-subscription
// HMAC key or channel token
func GenerateSecret() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate webhook secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
