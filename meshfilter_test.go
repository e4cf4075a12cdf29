package meshfilter

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/meshfilter/backend"
	"github.com/gogpu/meshfilter/mesh"
	"github.com/gogpu/meshfilter/sensor"
)

// fakeBackend records calls for tests that exercise the executor and
// registry without real rendering.
type fakeBackend struct {
	mu         sync.Mutex
	initErr    error
	closed     bool
	drawn      []uint32
	thresholds []float32
	padding    [3]float32
	width      int
	height     int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Init(cam sensor.Camera) error {
	f.width, f.height = cam.Width, cam.Height
	return f.initErr
}

func (f *fakeBackend) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeBackend) Resize(width, height int) error {
	f.width, f.height = width, height
	return nil
}

func (f *fakeBackend) BeginRenderPass(_ sensor.Camera, padding [3]float32) {
	f.mu.Lock()
	f.drawn = f.drawn[:0]
	f.padding = padding
	f.mu.Unlock()
}

func (f *fakeBackend) DrawMesh(_ *mesh.Mesh, label uint32, _ mgl32.Mat4) {
	f.mu.Lock()
	f.drawn = append(f.drawn, label)
	f.mu.Unlock()
}

func (f *fakeBackend) EndRenderPass() {}

func (f *fakeBackend) UploadSensorDepth([]float32) error { return nil }

func (f *fakeBackend) RunFilterPass(threshold float32) error {
	f.mu.Lock()
	f.thresholds = append(f.thresholds, threshold)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) ReadModelDepth([]float32)    {}
func (f *fakeBackend) ReadModelLabels([]uint32)    {}
func (f *fakeBackend) ReadFilteredDepth([]float32) {}
func (f *fakeBackend) ReadFilteredLabels([]uint32) {}

func (f *fakeBackend) drawnLabels() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint32(nil), f.drawn...)
}

func testParams(t *testing.T, w, h int) *sensor.Parameters {
	t.Helper()
	p, err := sensor.NewParameters(w, h, 0.4, 5.0)
	if err != nil {
		t.Fatalf("NewParameters() error = %v", err)
	}
	return p
}

func newFakeFilter(t *testing.T, w, h int) (*MeshFilter, *fakeBackend) {
	t.Helper()
	fb := &fakeBackend{}
	f, err := New(testParams(t, w, h), identityPose, WithRenderBackend(fb))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f, fb
}

func identityPose(MeshHandle) (mgl32.Mat4, bool) {
	return mgl32.Ident4(), true
}

func triangleMesh() *mesh.Mesh {
	return &mesh.Mesh{
		Vertices:  []mgl32.Vec3{{0, 0, 1}, {1, 0, 1}, {0, 1, 1}},
		Triangles: [][3]uint32{{0, 1, 2}},
	}
}

func float32Frame(w, h int, metric float32) []byte {
	frame := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		binary.LittleEndian.PutUint32(frame[i*4:], math.Float32bits(metric))
	}
	return frame
}

func TestNewInitError(t *testing.T) {
	fb := &fakeBackend{initErr: errors.New("no device")}
	_, err := New(testParams(t, 4, 4), nil, WithRenderBackend(fb))
	if err == nil {
		t.Fatal("New() with failing backend init should return an error")
	}
}

func TestNewNilParameters(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatal("New(nil) should return an error")
	}
}

func TestHandleAllocationLowestFree(t *testing.T) {
	f, _ := newFakeFilter(t, 4, 4)
	defer f.Close()

	var handles []MeshHandle
	for i := 0; i < 3; i++ {
		h, err := f.AddMesh(triangleMesh())
		if err != nil {
			t.Fatalf("AddMesh() error = %v", err)
		}
		handles = append(handles, h)
	}
	if handles[0] != FirstHandle || handles[1] != FirstHandle+1 || handles[2] != FirstHandle+2 {
		t.Fatalf("handles = %v, want [%d %d %d]", handles, FirstHandle, FirstHandle+1, FirstHandle+2)
	}

	// Freeing the middle handle makes it the lowest free id; the next
	// registration must reuse it before extending the range.
	if err := f.RemoveMesh(handles[1]); err != nil {
		t.Fatalf("RemoveMesh() error = %v", err)
	}
	h, err := f.AddMesh(triangleMesh())
	if err != nil {
		t.Fatalf("AddMesh() error = %v", err)
	}
	if h != handles[1] {
		t.Errorf("reused handle = %d, want %d", h, handles[1])
	}
	h, err = f.AddMesh(triangleMesh())
	if err != nil {
		t.Fatalf("AddMesh() error = %v", err)
	}
	if h != FirstHandle+3 {
		t.Errorf("next handle = %d, want %d", h, FirstHandle+3)
	}
	if f.MeshCount() != 4 {
		t.Errorf("MeshCount() = %d, want 4", f.MeshCount())
	}
}

func TestAddMeshValidation(t *testing.T) {
	f, _ := newFakeFilter(t, 4, 4)
	defer f.Close()

	if _, err := f.AddMesh(nil); !errors.Is(err, ErrNilMesh) {
		t.Errorf("AddMesh(nil) error = %v, want ErrNilMesh", err)
	}
	if _, err := f.AddMesh(&mesh.Mesh{}); !errors.Is(err, mesh.ErrEmpty) {
		t.Errorf("AddMesh(empty) error = %v, want mesh.ErrEmpty", err)
	}
}

func TestAddMeshDoesNotMutateCaller(t *testing.T) {
	f, _ := newFakeFilter(t, 4, 4)
	defer f.Close()

	m := triangleMesh()
	if _, err := f.AddMesh(m); err != nil {
		t.Fatalf("AddMesh() error = %v", err)
	}
	if m.HasNormals() {
		t.Error("AddMesh() computed normals on the caller's mesh")
	}
}

func TestRemoveMeshUnknownHandle(t *testing.T) {
	f, _ := newFakeFilter(t, 4, 4)
	defer f.Close()

	if err := f.RemoveMesh(FirstHandle); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("RemoveMesh(unregistered) error = %v, want ErrUnknownHandle", err)
	}

	h, err := f.AddMesh(triangleMesh())
	if err != nil {
		t.Fatalf("AddMesh() error = %v", err)
	}
	if err := f.RemoveMesh(h); err != nil {
		t.Fatalf("RemoveMesh() error = %v", err)
	}
	if err := f.RemoveMesh(h); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("second RemoveMesh() error = %v, want ErrUnknownHandle", err)
	}
}

func TestJobsRunInSubmissionOrder(t *testing.T) {
	f, _ := newFakeFilter(t, 4, 4)
	defer f.Close()

	var order []int
	var jobs []Job
	for i := 0; i < 10; i++ {
		i := i
		j := newTask(func() struct{} {
			order = append(order, i)
			return struct{}{}
		})
		jobs = append(jobs, j)
		if !f.addJob(j) {
			t.Fatal("addJob() rejected on open filter")
		}
	}
	for _, j := range jobs {
		j.Wait()
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}

func TestCloseCancelsPendingJobs(t *testing.T) {
	f, fb := newFakeFilter(t, 4, 4)

	// Block the worker so subsequent jobs stay queued.
	gate := make(chan struct{})
	blocker := newTask(func() struct{} {
		<-gate
		return struct{}{}
	})
	if !f.addJob(blocker) {
		t.Fatal("addJob() rejected on open filter")
	}

	pending, err := f.FilterAsync(float32Frame(4, 4, 2.0), sensor.EncodingFloat32)
	if err != nil {
		t.Fatalf("FilterAsync() error = %v", err)
	}

	closed := make(chan struct{})
	go func() {
		f.Close()
		close(closed)
	}()

	// Close cancels the queued job without running it, then waits for
	// the in-flight one.
	pending.Wait()
	if pending.State() != JobCancelled {
		t.Errorf("pending job state = %v, want Cancelled", pending.State())
	}
	if !errors.Is(pending.Err(), ErrCancelled) {
		t.Errorf("pending job Err() = %v, want ErrCancelled", pending.Err())
	}

	close(gate)
	<-closed

	fb.mu.Lock()
	backendClosed := fb.closed
	fb.mu.Unlock()
	if !backendClosed {
		t.Error("backend not closed after Close()")
	}
}

func TestOperationsAfterClose(t *testing.T) {
	f, _ := newFakeFilter(t, 4, 4)
	f.Close()
	f.Close() // idempotent

	if err := f.Filter(float32Frame(4, 4, 2.0), sensor.EncodingFloat32); !errors.Is(err, ErrClosed) {
		t.Errorf("Filter() after Close error = %v, want ErrClosed", err)
	}
	if _, err := f.AddMesh(triangleMesh()); !errors.Is(err, ErrClosed) {
		t.Errorf("AddMesh() after Close error = %v, want ErrClosed", err)
	}
	if _, _, err := f.Size(); !errors.Is(err, ErrClosed) {
		t.Errorf("Size() after Close error = %v, want ErrClosed", err)
	}
	if err := f.FilteredDepth(make([]float32, 16)); !errors.Is(err, ErrClosed) {
		t.Errorf("FilteredDepth() after Close error = %v, want ErrClosed", err)
	}
}

func TestFilterUnknownEncodingRejectedUpfront(t *testing.T) {
	f, fb := newFakeFilter(t, 4, 4)
	defer f.Close()

	err := f.Filter(float32Frame(4, 4, 2.0), sensor.Encoding(99))
	if !errors.Is(err, sensor.ErrUnsupportedEncoding) {
		t.Fatalf("Filter() error = %v, want ErrUnsupportedEncoding", err)
	}
	fb.mu.Lock()
	passes := len(fb.thresholds)
	fb.mu.Unlock()
	if passes != 0 {
		t.Error("filter pass ran despite invalid encoding")
	}
}

func TestFilterFrameSizeMismatch(t *testing.T) {
	f, fb := newFakeFilter(t, 4, 4)
	defer f.Close()

	err := f.Filter(make([]byte, 7), sensor.EncodingFloat32)
	if !errors.Is(err, sensor.ErrFrameSize) {
		t.Fatalf("Filter() error = %v, want ErrFrameSize", err)
	}
	fb.mu.Lock()
	passes := len(fb.thresholds)
	fb.mu.Unlock()
	if passes != 0 {
		t.Error("filter pass ran despite malformed frame")
	}
}

func TestShadowThresholdScaledToBufferUnits(t *testing.T) {
	f, fb := newFakeFilter(t, 4, 4)
	defer f.Close()

	f.SetShadowThreshold(1.0)
	if err := f.Filter(float32Frame(4, 4, 2.0), sensor.EncodingFloat32); err != nil {
		t.Fatalf("Filter() error = %v", err)
	}

	fb.mu.Lock()
	got := fb.thresholds[len(fb.thresholds)-1]
	fb.mu.Unlock()
	want := float32(1.0 / 4.6) // threshold * 1/(far-near)
	if math.Abs(float64(got-want)) > 1e-6 {
		t.Errorf("backend threshold = %g, want %g", got, want)
	}
}

func TestEffectivePaddingForwardedToBackend(t *testing.T) {
	fb := &fakeBackend{}
	params := testParams(t, 4, 4)
	params.SetPaddingCoefficients([3]float32{0.001, 0.002, 0.003})

	f, err := New(params, identityPose, WithRenderBackend(fb))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer f.Close()

	f.SetPaddingScale(2)
	f.SetPaddingOffset(0.01)
	if err := f.Filter(float32Frame(4, 4, 2.0), sensor.EncodingFloat32); err != nil {
		t.Fatalf("Filter() error = %v", err)
	}

	fb.mu.Lock()
	got := fb.padding
	fb.mu.Unlock()
	want := [3]float32{0.002, 0.004, 0.016}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("padding[%d] = %g, want %g", i, got[i], want[i])
		}
	}
}

func TestTunableAccessors(t *testing.T) {
	f, _ := newFakeFilter(t, 4, 4)
	defer f.Close()

	if got := f.ShadowThreshold(); got != DefaultShadowThreshold {
		t.Errorf("default ShadowThreshold() = %g, want %g", got, float32(DefaultShadowThreshold))
	}
	if got := f.PaddingScale(); got != DefaultPaddingScale {
		t.Errorf("default PaddingScale() = %g, want %g", got, float32(DefaultPaddingScale))
	}
	if got := f.PaddingOffset(); got != DefaultPaddingOffset {
		t.Errorf("default PaddingOffset() = %g, want %g", got, float32(DefaultPaddingOffset))
	}

	f.SetShadowThreshold(0.25)
	f.SetPaddingScale(2)
	f.SetPaddingOffset(0.05)
	if f.ShadowThreshold() != 0.25 || f.PaddingScale() != 2 || f.PaddingOffset() != 0.05 {
		t.Error("tunable setters did not take effect")
	}
}

func TestTransformCallbackSkipsMeshes(t *testing.T) {
	fb := &fakeBackend{}
	var visible bool
	cb := func(MeshHandle) (mgl32.Mat4, bool) {
		return mgl32.Ident4(), visible
	}
	f, err := New(testParams(t, 4, 4), cb, WithRenderBackend(fb))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer f.Close()

	if _, err := f.AddMesh(triangleMesh()); err != nil {
		t.Fatalf("AddMesh() error = %v", err)
	}

	frame := float32Frame(4, 4, 2.0)
	if err := f.Filter(frame, sensor.EncodingFloat32); err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	if n := len(fb.drawnLabels()); n != 0 {
		t.Errorf("drew %d meshes while pose unavailable, want 0", n)
	}

	visible = true
	if err := f.Filter(frame, sensor.EncodingFloat32); err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	if labels := fb.drawnLabels(); len(labels) != 1 || labels[0] != uint32(FirstHandle) {
		t.Errorf("drawn labels = %v, want [%d]", labels, FirstHandle)
	}
}

func TestSetTransformCallback(t *testing.T) {
	fb := &fakeBackend{}
	f, err := New(testParams(t, 4, 4), nil, WithRenderBackend(fb))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer f.Close()

	if _, err := f.AddMesh(triangleMesh()); err != nil {
		t.Fatalf("AddMesh() error = %v", err)
	}
	frame := float32Frame(4, 4, 2.0)

	// No callback: nothing renders.
	if err := f.Filter(frame, sensor.EncodingFloat32); err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	if n := len(fb.drawnLabels()); n != 0 {
		t.Errorf("drew %d meshes with nil callback, want 0", n)
	}

	f.SetTransformCallback(identityPose)
	if err := f.Filter(frame, sensor.EncodingFloat32); err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	if n := len(fb.drawnLabels()); n != 1 {
		t.Errorf("drew %d meshes after installing callback, want 1", n)
	}
}

func TestSizeAndResize(t *testing.T) {
	f, fb := newFakeFilter(t, 8, 6)
	defer f.Close()

	w, h, err := f.Size()
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if w != 8 || h != 6 {
		t.Errorf("Size() = %dx%d, want 8x6", w, h)
	}

	if err := f.Resize(0, 6); !errors.Is(err, backend.ErrInvalidDimensions) {
		t.Errorf("Resize(0, 6) error = %v, want ErrInvalidDimensions", err)
	}
	if err := f.Resize(16, 12); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	w, h, err = f.Size()
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if w != 16 || h != 12 {
		t.Errorf("Size() after Resize = %dx%d, want 16x12", w, h)
	}
	if fb.width != 16 || fb.height != 12 {
		t.Errorf("backend size = %dx%d, want 16x12", fb.width, fb.height)
	}
}

func TestReadbackSizeMismatch(t *testing.T) {
	f, _ := newFakeFilter(t, 4, 4)
	defer f.Close()

	if err := f.FilteredDepth(make([]float32, 15)); !errors.Is(err, sensor.ErrFrameSize) {
		t.Errorf("FilteredDepth(short) error = %v, want ErrFrameSize", err)
	}
	if err := f.FilteredLabels(make([]uint32, 17)); !errors.Is(err, sensor.ErrFrameSize) {
		t.Errorf("FilteredLabels(long) error = %v, want ErrFrameSize", err)
	}
}

// TestSelfFilteringEndToEnd runs the full pipeline on the software
// backend: a box floats in front of a wall, the sensor sees both, and
// the filtered frame keeps only the wall.
func TestSelfFilteringEndToEnd(t *testing.T) {
	const w, h = 32, 32
	const wallDepth = 3.0

	params := testParams(t, w, h)
	pose := mgl32.Translate3D(0, 0, 1.5)
	lookup := func(MeshHandle) (mgl32.Mat4, bool) { return pose, true }

	f, err := New(params, lookup, WithBackend(backend.BackendSoftware))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer f.Close()

	box := mesh.NewBox(mgl32.Vec3{-0.2, -0.2, -0.2}, mgl32.Vec3{0.2, 0.2, 0.2})
	handle, err := f.AddMesh(box)
	if err != nil {
		t.Fatalf("AddMesh() error = %v", err)
	}

	// First pass renders the model; its depth image stands in for what
	// the sensor would report where the box is visible.
	if err := f.Filter(make([]byte, w*h*4), sensor.EncodingFloat32); err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	model := make([]float32, w*h)
	if err := f.ModelDepth(model); err != nil {
		t.Fatalf("ModelDepth() error = %v", err)
	}

	frame := make([]byte, w*h*4)
	boxPixels := 0
	for i, m := range model {
		v := float32(wallDepth)
		if m > 0 {
			v = m
			boxPixels++
		}
		binary.LittleEndian.PutUint32(frame[i*4:], math.Float32bits(v))
	}
	if boxPixels == 0 {
		t.Fatal("box not visible in model render")
	}

	if err := f.Filter(frame, sensor.EncodingFloat32); err != nil {
		t.Fatalf("Filter() error = %v", err)
	}

	depth := make([]float32, w*h)
	labels := make([]uint32, w*h)
	if err := f.FilteredDepth(depth); err != nil {
		t.Fatalf("FilteredDepth() error = %v", err)
	}
	if err := f.FilteredLabels(labels); err != nil {
		t.Fatalf("FilteredLabels() error = %v", err)
	}

	for i := range depth {
		if model[i] > 0 {
			// Sensor sees the box surface: masked with the mesh label.
			if labels[i] != uint32(handle) {
				t.Fatalf("pixel %d: label %d, want mesh handle %d", i, labels[i], handle)
			}
			if depth[i] != 0 {
				t.Fatalf("pixel %d: depth %g, want 0 (masked)", i, depth[i])
			}
		} else {
			// Wall pixel: kept, in metric meters.
			if labels[i] != LabelBackground {
				t.Fatalf("pixel %d: label %d, want background", i, labels[i])
			}
			if math.Abs(float64(depth[i]-wallDepth)) > 1e-3 {
				t.Fatalf("pixel %d: depth %g, want %g", i, depth[i], wallDepth)
			}
		}
	}
}

// TestReadbackIdempotent verifies that repeated readbacks with no
// intervening filter pass return identical buffers: the metric
// conversion runs on the caller's copy, never on the backend's state.
func TestReadbackIdempotent(t *testing.T) {
	const w, h = 16, 16

	params := testParams(t, w, h)
	pose := mgl32.Translate3D(0, 0, 1.5)
	lookup := func(MeshHandle) (mgl32.Mat4, bool) { return pose, true }

	f, err := New(params, lookup, WithBackend(backend.BackendSoftware))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer f.Close()

	box := mesh.NewBox(mgl32.Vec3{-0.2, -0.2, -0.2}, mgl32.Vec3{0.2, 0.2, 0.2})
	if _, err := f.AddMesh(box); err != nil {
		t.Fatalf("AddMesh() error = %v", err)
	}
	if err := f.Filter(float32Frame(w, h, 3.0), sensor.EncodingFloat32); err != nil {
		t.Fatalf("Filter() error = %v", err)
	}

	depthReads := []struct {
		name string
		read func([]float32) error
	}{
		{"ModelDepth", f.ModelDepth},
		{"FilteredDepth", f.FilteredDepth},
	}
	for _, tt := range depthReads {
		t.Run(tt.name, func(t *testing.T) {
			first := make([]float32, w*h)
			second := make([]float32, w*h)
			if err := tt.read(first); err != nil {
				t.Fatalf("first read error = %v", err)
			}
			if err := tt.read(second); err != nil {
				t.Fatalf("second read error = %v", err)
			}
			for i := range first {
				if first[i] != second[i] {
					t.Fatalf("pixel %d changed between reads: %g then %g", i, first[i], second[i])
				}
			}
		})
	}

	labelReads := []struct {
		name string
		read func([]uint32) error
	}{
		{"ModelLabels", f.ModelLabels},
		{"FilteredLabels", f.FilteredLabels},
	}
	for _, tt := range labelReads {
		t.Run(tt.name, func(t *testing.T) {
			first := make([]uint32, w*h)
			second := make([]uint32, w*h)
			if err := tt.read(first); err != nil {
				t.Fatalf("first read error = %v", err)
			}
			if err := tt.read(second); err != nil {
				t.Fatalf("second read error = %v", err)
			}
			for i := range first {
				if first[i] != second[i] {
					t.Fatalf("pixel %d changed between reads: %d then %d", i, first[i], second[i])
				}
			}
		})
	}
}

// TestShadowLabelEndToEnd checks that wall pixels far behind the box
// are classified as sensor shadow, not background.
func TestShadowLabelEndToEnd(t *testing.T) {
	const w, h = 32, 32

	params := testParams(t, w, h)
	pose := mgl32.Translate3D(0, 0, 1.5)
	lookup := func(MeshHandle) (mgl32.Mat4, bool) { return pose, true }

	f, err := New(params, lookup, WithBackend(backend.BackendSoftware))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer f.Close()

	box := mesh.NewBox(mgl32.Vec3{-0.2, -0.2, -0.2}, mgl32.Vec3{0.2, 0.2, 0.2})
	if _, err := f.AddMesh(box); err != nil {
		t.Fatalf("AddMesh() error = %v", err)
	}

	// The sensor sees the wall everywhere, 1.5m behind the box front:
	// beyond the 0.5m shadow threshold.
	if err := f.Filter(float32Frame(w, h, 3.0), sensor.EncodingFloat32); err != nil {
		t.Fatalf("Filter() error = %v", err)
	}

	model := make([]float32, w*h)
	labels := make([]uint32, w*h)
	if err := f.ModelDepth(model); err != nil {
		t.Fatalf("ModelDepth() error = %v", err)
	}
	if err := f.FilteredLabels(labels); err != nil {
		t.Fatalf("FilteredLabels() error = %v", err)
	}

	shadow := 0
	for i := range labels {
		if model[i] > 0 {
			if labels[i] != LabelShadow {
				t.Fatalf("pixel %d: label %d, want shadow", i, labels[i])
			}
			shadow++
		} else if labels[i] != LabelBackground {
			t.Fatalf("pixel %d: label %d, want background", i, labels[i])
		}
	}
	if shadow == 0 {
		t.Fatal("no shadow pixels; box not occluding the wall")
	}
}

func TestRemovedMeshNoLongerRenders(t *testing.T) {
	f, fb := newFakeFilter(t, 4, 4)
	defer f.Close()

	h, err := f.AddMesh(triangleMesh())
	if err != nil {
		t.Fatalf("AddMesh() error = %v", err)
	}
	frame := float32Frame(4, 4, 2.0)
	if err := f.Filter(frame, sensor.EncodingFloat32); err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	if n := len(fb.drawnLabels()); n != 1 {
		t.Fatalf("drew %d meshes, want 1", n)
	}

	if err := f.RemoveMesh(h); err != nil {
		t.Fatalf("RemoveMesh() error = %v", err)
	}
	if err := f.Filter(frame, sensor.EncodingFloat32); err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	if n := len(fb.drawnLabels()); n != 0 {
		t.Errorf("drew %d meshes after removal, want 0", n)
	}
}
