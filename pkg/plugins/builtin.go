package plugins

import (
	"github.com/godspeedsystems/ingestor-sdk/pkg/plugin"
)

// RegisterBuiltins registers the bundled plugins on a registry
func RegisterBuiltins(r *plugin.Registry) {
	r.RegisterSource("http-crawler", NewHTTPCrawler, TransformPages)
	r.RegisterDestination("log", NewLogDestination)
}
