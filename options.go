package meshfilter

import (
	"fmt"

	"github.com/gogpu/meshfilter/backend"
)

// Option configures a MeshFilter during creation.
// Use functional options to customize backend selection.
//
// Example:
//
//	// Default backend (wgpu if registered, software otherwise)
//	f, err := meshfilter.New(params, cb)
//
//	// Force the software backend
//	f, err := meshfilter.New(params, cb, meshfilter.WithBackend(backend.BackendSoftware))
type Option func(*config)

// config holds optional configuration for MeshFilter creation.
type config struct {
	backendName string
	rb          backend.RenderBackend
}

// defaultConfig returns the default configuration.
func defaultConfig() config {
	return config{}
}

// WithBackend selects a registered rendering backend by name.
// Backends register themselves on import; see the backend package.
func WithBackend(name string) Option {
	return func(c *config) {
		c.backendName = name
	}
}

// WithRenderBackend injects a backend instance directly, bypassing the
// registry. Use this for custom backends or in tests.
func WithRenderBackend(rb backend.RenderBackend) Option {
	return func(c *config) {
		c.rb = rb
	}
}

// renderBackend resolves the configured backend: an injected instance
// wins, then a named registry lookup, then the registry default.
func (c *config) renderBackend() (backend.RenderBackend, error) {
	if c.rb != nil {
		return c.rb, nil
	}
	if c.backendName != "" {
		rb := backend.Get(c.backendName)
		if rb == nil {
			return nil, fmt.Errorf("%w: %q", backend.ErrBackendNotAvailable, c.backendName)
		}
		return rb, nil
	}
	rb := backend.Default()
	if rb == nil {
		return nil, backend.ErrBackendNotAvailable
	}
	return rb, nil
}
