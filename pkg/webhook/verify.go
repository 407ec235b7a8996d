package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Verification error taxonomy. The HTTP layer maps these to response codes.
var (
	ErrUnsupportedService   = errors.New("unsupported webhook service")
	ErrInvalidJSON          = errors.New("invalid JSON payload")
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrTokenMismatch        = errors.New("channel token mismatch")
	ErrMissingResourceID    = errors.New("payload missing resource identifier")
)

// Verify authenticates a webhook request and extracts the external resource
// id and change type. It is a pure function: no I/O, no clock. An empty
// expectedSecret skips the signature/token check, which is how the manager
// performs the preliminary parse before the registry lookup.
func Verify(service string, headers http.Header, body []byte, expectedSecret string) (*VerifiedEvent, error) {
	switch service {
	case "git-crawler":
		return verifyGitHub(headers, body, expectedSecret)
	case "googledrive-crawler":
		return verifyDrive(headers, expectedSecret)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedService, service)
	}
}

// verifyGitHub handles GitHub-style webhooks: HMAC-SHA256 over the raw body,
// signature in X-Hub-Signature-256 (fallback X-Hub-Signature).
func verifyGitHub(headers http.Header, body []byte, expectedSecret string) (*VerifiedEvent, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	ev := &VerifiedEvent{Payload: payload, ChangeType: ChangeUnknown}

	if expectedSecret != "" {
		signature := headers.Get("X-Hub-Signature-256")
		if signature == "" {
			signature = headers.Get("X-Hub-Signature")
		}
		if signature == "" {
			// Missing signature: fields are still extracted, but the event
			// stays unverified.
			ev.IsValid = false
		} else {
			if !strings.HasPrefix(signature, "sha256=") {
				return nil, ErrUnsupportedAlgorithm
			}
			if !verifyHMACSHA256(body, strings.TrimPrefix(signature, "sha256="), expectedSecret) {
				return nil, ErrInvalidSignature
			}
			ev.IsValid = true
		}
	}

	switch headers.Get("X-GitHub-Event") {
	case "push":
		if deleted, ok := payload["deleted"].(bool); ok && deleted {
			ev.ChangeType = ChangeDelete
		} else {
			ev.ChangeType = ChangeUpsert
		}
	case "pull_request":
		ev.ChangeType = ChangeUpsert
	default:
		ev.ChangeType = ChangeUnknown
	}

	repo, _ := payload["repository"].(map[string]any)
	fullName, _ := repo["full_name"].(string)
	if fullName == "" {
		return nil, fmt.Errorf("%w: repository.full_name", ErrMissingResourceID)
	}
	ev.ExternalResourceID = "https://github.com/" + fullName

	return ev, nil
}

// verifyDrive handles Drive-style webhooks: the channel token doubles as the
// secret and everything of interest travels in X-Goog-* headers (the HTTP
// body of Drive notifications is empty).
func verifyDrive(headers http.Header, expectedSecret string) (*VerifiedEvent, error) {
	ev := &VerifiedEvent{ChangeType: ChangeUnknown}

	channelID := headers.Get("X-Goog-Channel-Id")
	if expectedSecret != "" {
		if subtle.ConstantTimeCompare([]byte(channelID), []byte(expectedSecret)) != 1 {
			return nil, ErrTokenMismatch
		}
		ev.IsValid = true
	}

	resourceURI := headers.Get("X-Goog-Resource-Uri")
	folderID := lastPathSegment(resourceURI)
	if folderID == "" {
		return nil, fmt.Errorf("%w: X-Goog-Resource-Uri", ErrMissingResourceID)
	}
	ev.ExternalResourceID = folderID

	switch headers.Get("X-Goog-Resource-State") {
	case "exists", "add", "update":
		ev.ChangeType = ChangeUpsert
	case "not_exists", "trash":
		ev.ChangeType = ChangeDelete
	default:
		ev.ChangeType = ChangeUnknown
	}

	ev.Payload = map[string]any{}
	for name, values := range headers {
		if strings.HasPrefix(name, "X-Goog-") && len(values) > 0 {
			ev.Payload[name] = values[0]
		}
	}

	return ev, nil
}

// verifyHMACSHA256 compares the hex signature against HMAC-SHA256(body, secret)
// in constant time
func verifyHMACSHA256(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// lastPathSegment returns the last non-empty path segment of a URI,
// ignoring any query string
func lastPathSegment(rawURI string) string {
	if rawURI == "" {
		return ""
	}
	path := rawURI
	if u, err := url.Parse(rawURI); err == nil && u.Path != "" {
		path = u.Path
	}
	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return ""
}
