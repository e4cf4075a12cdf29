// Package software provides a pure-Go implementation of the mesh
// filter rendering backend: a perspective depth rasterizer for the
// render pass and a per-pixel classifier for the filter pass.
package software

import (
	"errors"
	"fmt"

	"github.com/gogpu/meshfilter/backend"
	"github.com/gogpu/meshfilter/sensor"
)

// ErrNoSensorFrame is returned by RunFilterPass before any sensor
// frame has been uploaded.
var ErrNoSensorFrame = errors.New("software: no sensor frame uploaded")

// init registers the software backend on package import.
func init() {
	backend.Register(backend.BackendSoftware, func() backend.RenderBackend {
		return New()
	})
}

// Backend is the CPU rendering backend. It holds the model target
// (perspective depth + labels), the uploaded sensor frame and the
// filtered target.
//
// Backend is not safe for concurrent use; the mesh filter drives it
// from a single worker goroutine.
type Backend struct {
	cam     sensor.Camera
	padding [3]float32

	modelDepth    []float32 // perspective buffer units, 1 = no geometry
	modelLabel    []uint32
	sensorDepth   []float32 // linear buffer units
	filteredDepth []float32 // linear buffer units, 0 = masked
	filteredLabel []uint32

	hasSensor   bool
	initialized bool
}

// New creates an uninitialized software backend.
func New() *Backend {
	return &Backend{}
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return backend.BackendSoftware
}

// Init allocates both render targets for the camera image size.
func (b *Backend) Init(cam sensor.Camera) error {
	if cam.Width <= 0 || cam.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", backend.ErrInvalidDimensions, cam.Width, cam.Height)
	}
	b.cam = cam
	b.alloc(cam.Width, cam.Height)
	b.initialized = true
	return nil
}

// Close releases the render targets. The backend can be reused after
// another Init.
func (b *Backend) Close() {
	b.modelDepth = nil
	b.modelLabel = nil
	b.sensorDepth = nil
	b.filteredDepth = nil
	b.filteredLabel = nil
	b.hasSensor = false
	b.initialized = false
}

// Resize reallocates both render targets. Buffer contents and any
// uploaded sensor frame are discarded.
func (b *Backend) Resize(width, height int) error {
	if !b.initialized {
		return backend.ErrNotInitialized
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", backend.ErrInvalidDimensions, width, height)
	}
	b.cam.Width = width
	b.cam.Height = height
	b.alloc(width, height)
	b.hasSensor = false
	return nil
}

func (b *Backend) alloc(width, height int) {
	n := width * height
	b.modelDepth = make([]float32, n)
	b.modelLabel = make([]uint32, n)
	b.sensorDepth = make([]float32, n)
	b.filteredDepth = make([]float32, n)
	b.filteredLabel = make([]uint32, n)
	for i := range b.modelDepth {
		b.modelDepth[i] = 1
	}
}

// BeginRenderPass clears the model target and installs the camera and
// padding for the subsequent DrawMesh calls.
func (b *Backend) BeginRenderPass(cam sensor.Camera, padding [3]float32) {
	b.cam = cam
	b.padding = padding
	for i := range b.modelDepth {
		b.modelDepth[i] = 1
		b.modelLabel[i] = backend.LabelBackground
	}
}

// EndRenderPass completes the render pass. The software rasterizer
// writes eagerly, so there is nothing to flush.
func (b *Backend) EndRenderPass() {}

// UploadSensorDepth stores the sensor frame (linear buffer units) as
// the filter pass input.
func (b *Backend) UploadSensorDepth(depth []float32) error {
	if !b.initialized {
		return backend.ErrNotInitialized
	}
	if len(depth) != len(b.sensorDepth) {
		return fmt.Errorf("%w: got %d samples, want %d",
			sensor.ErrFrameSize, len(depth), len(b.sensorDepth))
	}
	copy(b.sensorDepth, depth)
	b.hasSensor = true
	return nil
}

// ReadModelDepth copies the model depth buffer into dst.
func (b *Backend) ReadModelDepth(dst []float32) { copy(dst, b.modelDepth) }

// ReadModelLabels copies the model label buffer into dst.
func (b *Backend) ReadModelLabels(dst []uint32) { copy(dst, b.modelLabel) }

// ReadFilteredDepth copies the filtered depth buffer into dst.
func (b *Backend) ReadFilteredDepth(dst []float32) { copy(dst, b.filteredDepth) }

// ReadFilteredLabels copies the filtered label buffer into dst.
func (b *Backend) ReadFilteredLabels(dst []uint32) { copy(dst, b.filteredLabel) }
