package backend

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/meshfilter/mesh"
	"github.com/gogpu/meshfilter/sensor"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrInvalidDimensions is returned for non-positive render target sizes.
	ErrInvalidDimensions = errors.New("backend: invalid dimensions")
)

// Reserved label values. Registered meshes are labeled with their
// handle, which is always FirstMeshLabel or higher.
const (
	// LabelBackground marks pixels not explained by any mesh.
	LabelBackground uint32 = 0

	// LabelShadow marks pixels occluded by a mesh but farther behind
	// its surface than the shadow threshold allows.
	LabelShadow uint32 = 1

	// FirstMeshLabel is the lowest label value that identifies a mesh.
	FirstMeshLabel uint32 = 2
)

// RenderBackend is the rendering capability the mesh filter drives.
// It owns a pair of render targets: the model target (depth + label)
// written by the render pass, and the filtered target written by the
// filter pass.
//
// Depth conventions: the model depth buffer is perspective-encoded in
// [0, 1] with 1 meaning no geometry; the sensor depth and the filtered
// depth buffer are linear in [0, 1] spanning the camera's [Near, Far]
// range, with 0 as the masked/invalid sentinel. Conversions to metric
// units are the caller's concern and happen only at readback.
//
// Implementations are NOT required to be safe for concurrent use: the
// filter serializes every call onto its single worker goroutine, which
// is the only goroutine that ever touches the backend after Init.
type RenderBackend interface {
	// Name returns the backend identifier (e.g. "software", "wgpu").
	Name() string

	// Init allocates both render targets sized to the camera image and
	// prepares the render and filter programs. A failure here is fatal
	// to the owning filter's startup.
	Init(cam sensor.Camera) error

	// Close releases all backend resources.
	Close()

	// Resize reallocates both render targets atomically for the new
	// dimensions. Previous buffer contents are discarded.
	Resize(width, height int) error

	// BeginRenderPass clears the model target and installs the camera
	// and the effective padding coefficients for the subsequent draws.
	BeginRenderPass(cam sensor.Camera, padding [3]float32)

	// DrawMesh projects one mesh, posed by pose, into the model target.
	// The label value is written wherever the mesh wins the depth test.
	DrawMesh(geom *mesh.Mesh, label uint32, pose mgl32.Mat4)

	// EndRenderPass completes the render pass.
	EndRenderPass()

	// UploadSensorDepth stores the sensor frame, already converted to
	// linear buffer units, as the filter pass input.
	UploadSensorDepth(depth []float32) error

	// RunFilterPass classifies every pixel of the uploaded sensor frame
	// against the model target, writing the filtered target. The shadow
	// threshold is expressed in linear buffer units.
	RunFilterPass(shadowThreshold float32) error

	// ReadModelDepth copies the model depth buffer (perspective buffer
	// units) into dst, which must hold width*height values.
	ReadModelDepth(dst []float32)

	// ReadModelLabels copies the model label buffer into dst.
	ReadModelLabels(dst []uint32)

	// ReadFilteredDepth copies the filtered depth buffer (linear buffer
	// units) into dst.
	ReadFilteredDepth(dst []float32)

	// ReadFilteredLabels copies the filtered label buffer into dst.
	ReadFilteredLabels(dst []uint32)
}
