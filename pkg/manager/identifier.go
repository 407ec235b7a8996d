package manager

import (
	"github.com/godspeedsystems/ingestor-sdk/pkg/task"
)

// ErrUnsupportedSource is returned for plugin types with no webhook identity
type ErrUnsupportedSource struct {
	PluginType string
}

func (e ErrUnsupportedSource) Error() string {
	return "unsupported source for webhook operations: " + e.PluginType
}

// ErrMissingConfig is returned when the config key naming the external
// resource is absent. Raised at operation time, never at construction.
type ErrMissingConfig struct {
	PluginType string
	Key        string
}

func (e ErrMissingConfig) Error() string {
	return "missing config for " + e.PluginType + ": " + e.Key
}

// SourceIdentifier derives the string that uniquely names the external
// resource behind a source config. This is the only place in the core that
// inspects plugin-specific config keys.
func SourceIdentifier(ref task.PluginRef) (string, error) {
	stringKey := func(key string) string {
		v, _ := ref.Config[key].(string)
		return v
	}

	switch ref.PluginType {
	case "git-crawler":
		if repoURL := stringKey("repoUrl"); repoURL != "" {
			return repoURL, nil
		}
		return "", ErrMissingConfig{PluginType: ref.PluginType, Key: "repoUrl"}

	case "googledrive-crawler":
		if folderID := stringKey("folderId"); folderID != "" {
			return folderID, nil
		}
		return "", ErrMissingConfig{PluginType: ref.PluginType, Key: "folderId"}

	case "http-crawler":
		if u := stringKey("url"); u != "" {
			return u, nil
		}
		if u := stringKey("startUrl"); u != "" {
			return u, nil
		}
		return "", ErrMissingConfig{PluginType: ref.PluginType, Key: "url"}

	default:
		return "", ErrUnsupportedSource{PluginType: ref.PluginType}
	}
}
