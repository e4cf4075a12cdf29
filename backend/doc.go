// Package backend provides a pluggable rendering backend abstraction
// for the mesh filter.
//
// The backend package allows meshfilter to support multiple rendering
// implementations behind one interface: a pure-Go rasterizer and a
// GPU-assisted path via gogpu/wgpu.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime.
// The software backend is always available because the root meshfilter
// package imports it. The wgpu backend is opt-in via blank import:
//
//	import _ "github.com/gogpu/meshfilter/backend/wgpu"
//
// # Backend Selection
//
// Use Default() to get the best available backend, or Get() to request
// a specific backend by name:
//
//	// Get the default (best available) backend
//	b := backend.Default()
//
//	// Or request a specific backend
//	b := backend.Get("software")
//
// # Threading Contract
//
// A RenderBackend instance is driven by exactly one goroutine: the
// mesh filter's worker. Init, every pass, every readback and Close all
// happen there, in submission order. Implementations therefore need no
// internal locking for their render targets.
//
// # Available Backends
//
//   - "software": pure-Go depth rasterizer (always available)
//   - "wgpu": GPU compute filter pass via gogpu/wgpu, with transparent
//     CPU fallback when no usable GPU is present
package backend
