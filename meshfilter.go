package meshfilter

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/meshfilter/backend"
	_ "github.com/gogpu/meshfilter/backend/software" // default backend
	"github.com/gogpu/meshfilter/sensor"
)

// Errors returned by filter operations.
var (
	// ErrClosed is returned when an operation is submitted after Close.
	ErrClosed = errors.New("meshfilter: filter closed")

	// ErrCancelled is returned when a queued operation was dropped by a
	// concurrent Close before the worker could run it. Callers must
	// treat it distinctly from a completed result.
	ErrCancelled = errors.New("meshfilter: job cancelled")

	// ErrUnknownHandle is returned by RemoveMesh for handles that were
	// never registered (or already removed) — a caller bookkeeping bug.
	ErrUnknownHandle = errors.New("meshfilter: mesh handle not registered")

	// ErrNilMesh is returned by AddMesh for a nil mesh.
	ErrNilMesh = errors.New("meshfilter: nil mesh")
)

// MeshHandle identifies a registered mesh. Handles are small dense
// integers because the render pass bakes them into the label buffer's
// limited-precision channel; freed handles are reused lowest-first.
type MeshHandle uint32

// FirstHandle is the lowest handle ever issued. The two values below
// it are the reserved background and shadow labels.
const FirstHandle MeshHandle = MeshHandle(backend.FirstMeshLabel)

// Reserved label values, re-exported from the backend package.
const (
	LabelBackground = backend.LabelBackground
	LabelShadow     = backend.LabelShadow
)

// TransformCallback resolves the pose of a registered mesh in the
// camera frame. Returning ok=false means the pose is unavailable this
// frame; the mesh is then skipped, which is not an error.
type TransformCallback func(handle MeshHandle) (pose mgl32.Mat4, ok bool)

// Default tunables.
const (
	// DefaultShadowThreshold is the default maximum metric distance
	// behind the model surface at which a sensor pixel still counts as
	// explained by the model.
	DefaultShadowThreshold = 0.5

	// DefaultPaddingScale is the default multiplier on the base
	// padding coefficients.
	DefaultPaddingScale = 1.0

	// DefaultPaddingOffset is the default constant silhouette
	// inflation in meters.
	DefaultPaddingOffset = 0.01
)

// MeshFilter filters depth sensor frames against registered meshes.
//
// One dedicated worker goroutine owns the rendering backend
// exclusively; every operation that touches it — registering and
// removing meshes, filtering, readbacks, resizing — is wrapped in a
// Job, pushed onto a FIFO queue and executed on that worker. Public
// methods block the caller on the job's own completion signal.
//
// Jobs from concurrent callers are serialized in submission order;
// that FIFO order is the only cross-caller ordering guarantee.
//
// The tunable scalars (shadow threshold, padding scale and offset) and
// the transform callback do not go through the queue: they are swapped
// under their own small locks and the next filter pass simply observes
// the latest values.
//
// MeshFilter is safe for concurrent use from multiple goroutines.
type MeshFilter struct {
	params *sensor.Parameters
	rb     backend.RenderBackend

	// Job queue: one lock, one wake condition, single worker waiter.
	queueMu    sync.Mutex
	queueCond  *sync.Cond
	queue      []Job
	stopped    bool
	workerDone chan struct{}

	// Mesh registry. The map itself is mutated only inside jobs on the
	// worker; handleMu serializes the public entry points, which read
	// the map around job submission to allocate handles.
	handleMu  sync.Mutex
	meshes    map[MeshHandle]*registeredMesh
	minHandle MeshHandle // lower bound on free handle values

	// Tunables, readable mid-pass by the worker.
	paramMu         sync.Mutex
	shadowThreshold float32
	paddingScale    float32
	paddingOffset   float32

	cbMu        sync.Mutex
	transformCB TransformCallback
}

// New creates a mesh filter for the given sensor and spawns its worker
// goroutine. It blocks until the worker has initialized the rendering
// backend; an initialization failure is returned here and the worker
// never enters its run loop.
//
// The parameters are cloned; the caller's copy is not retained. The
// transform callback may be nil and installed later with
// SetTransformCallback.
func New(params *sensor.Parameters, cb TransformCallback, opts ...Option) (*MeshFilter, error) {
	if params == nil {
		return nil, errors.New("meshfilter: nil sensor parameters")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	rb, err := cfg.renderBackend()
	if err != nil {
		return nil, err
	}

	f := &MeshFilter{
		params:          params.Clone(),
		rb:              rb,
		workerDone:      make(chan struct{}),
		meshes:          make(map[MeshHandle]*registeredMesh),
		minHandle:       FirstHandle,
		shadowThreshold: DefaultShadowThreshold,
		paddingScale:    DefaultPaddingScale,
		paddingOffset:   DefaultPaddingOffset,
		transformCB:     cb,
	}
	f.queueCond = sync.NewCond(&f.queueMu)

	initErr := make(chan error, 1)
	go f.run(initErr)
	if err := <-initErr; err != nil {
		return nil, err
	}
	return f, nil
}

// run is the worker goroutine: one-time backend initialization, then
// the job loop, then teardown. It is the only goroutine that ever
// touches the rendering backend.
func (f *MeshFilter) run(initErr chan<- error) {
	// Rendering contexts are typically bound to one OS thread; pin the
	// worker so backend state never migrates.
	runtime.LockOSThread()
	defer close(f.workerDone)

	if err := f.rb.Init(f.params.Camera()); err != nil {
		initErr <- fmt.Errorf("meshfilter: %s backend init: %w", f.rb.Name(), err)
		return
	}
	initErr <- nil
	Logger().Debug("meshfilter: worker started", "backend", f.rb.Name())

	for {
		f.queueMu.Lock()
		for len(f.queue) == 0 && !f.stopped {
			f.queueCond.Wait()
		}
		if len(f.queue) == 0 {
			// Stopped and drained.
			f.queueMu.Unlock()
			break
		}
		job := f.queue[0]
		f.queue[0] = nil
		f.queue = f.queue[1:]
		f.queueMu.Unlock()

		// Execute outside the lock: a job may submit further jobs.
		job.execute()
	}

	f.rb.Close()
	Logger().Debug("meshfilter: worker stopped")
}

// addJob appends a job to the queue and wakes the worker. If the
// filter is already closed the job is cancelled instead and addJob
// returns false.
func (f *MeshFilter) addJob(j Job) bool {
	f.queueMu.Lock()
	if f.stopped {
		f.queueMu.Unlock()
		j.cancel()
		return false
	}
	f.queue = append(f.queue, j)
	f.queueMu.Unlock()
	f.queueCond.Signal()
	return true
}

// addJobs appends several jobs back to back under one lock acquisition
// so that no concurrent submission can interleave between them.
func (f *MeshFilter) addJobs(jobs ...Job) bool {
	f.queueMu.Lock()
	if f.stopped {
		f.queueMu.Unlock()
		for _, j := range jobs {
			j.cancel()
		}
		return false
	}
	f.queue = append(f.queue, jobs...)
	f.queueMu.Unlock()
	f.queueCond.Signal()
	return true
}

// Close shuts the filter down: every still-pending job is cancelled —
// its waiters wake with ErrCancelled, the job never runs — the worker
// finishes its current job, releases the backend resources and exits.
// Close blocks until the worker is gone and is idempotent.
func (f *MeshFilter) Close() {
	f.queueMu.Lock()
	if !f.stopped {
		f.stopped = true
		for _, j := range f.queue {
			j.cancel()
		}
		f.queue = nil
	}
	f.queueMu.Unlock()
	f.queueCond.Signal()
	<-f.workerDone
}

// Backend returns the name of the rendering backend in use.
func (f *MeshFilter) Backend() string {
	return f.rb.Name()
}

// Size returns the current output buffer dimensions. It goes through
// the job queue so it is ordered against any concurrent Resize.
func (f *MeshFilter) Size() (width, height int, err error) {
	wh, err := submit(f, func() [2]int {
		return [2]int{f.params.Width(), f.params.Height()}
	})
	if err != nil {
		return 0, 0, err
	}
	return wh[0], wh[1], nil
}

// Resize resizes both render targets and recomputes the projection
// parameters, atomically with respect to any in-flight job.
func (f *MeshFilter) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", backend.ErrInvalidDimensions, width, height)
	}
	res, err := submit(f, func() error {
		f.params.Resize(width, height)
		return f.rb.Resize(width, height)
	})
	if err != nil {
		return err
	}
	return res
}

// SetShadowThreshold sets the maximum metric distance behind the model
// surface at which a sensor pixel still counts as explained by the
// model. Takes effect on the next filter pass.
func (f *MeshFilter) SetShadowThreshold(threshold float32) {
	f.paramMu.Lock()
	f.shadowThreshold = threshold
	f.paramMu.Unlock()
}

// ShadowThreshold returns the current shadow threshold.
func (f *MeshFilter) ShadowThreshold() float32 {
	f.paramMu.Lock()
	defer f.paramMu.Unlock()
	return f.shadowThreshold
}

// SetPaddingScale sets the multiplier applied to the base padding
// coefficients. Takes effect on the next filter pass.
func (f *MeshFilter) SetPaddingScale(scale float32) {
	f.paramMu.Lock()
	f.paddingScale = scale
	f.paramMu.Unlock()
}

// PaddingScale returns the current padding scale.
func (f *MeshFilter) PaddingScale() float32 {
	f.paramMu.Lock()
	defer f.paramMu.Unlock()
	return f.paddingScale
}

// SetPaddingOffset sets the constant silhouette inflation in meters.
// Takes effect on the next filter pass.
func (f *MeshFilter) SetPaddingOffset(offset float32) {
	f.paramMu.Lock()
	f.paddingOffset = offset
	f.paramMu.Unlock()
}

// PaddingOffset returns the current padding offset.
func (f *MeshFilter) PaddingOffset() float32 {
	f.paramMu.Lock()
	defer f.paramMu.Unlock()
	return f.paddingOffset
}

// SetTransformCallback replaces the pose lookup. The callback is read
// under its own lock mid-render, so the swap waits for an in-flight
// render pass to finish and the next pass observes the new callback.
func (f *MeshFilter) SetTransformCallback(cb TransformCallback) {
	f.cbMu.Lock()
	f.transformCB = cb
	f.cbMu.Unlock()
}
