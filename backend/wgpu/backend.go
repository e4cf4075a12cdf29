//go:build !nogpu

// Package wgpu provides a GPU-accelerated rendering backend using
// WebGPU compute shaders via gogpu/wgpu.
//
// Mesh rasterization runs on the CPU (shared with the software
// backend); the per-pixel filter pass — the bandwidth-bound part of
// the pipeline — is dispatched as a compute shader. If no GPU device
// can be acquired at Init time the backend degrades to the pure-CPU
// path and keeps working.
//
// Importing this package registers the backend:
//
//	import _ "github.com/gogpu/meshfilter/backend/wgpu"
package wgpu

import (
	_ "embed"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/meshfilter"
	"github.com/gogpu/meshfilter/backend"
	"github.com/gogpu/meshfilter/backend/software"
	"github.com/gogpu/meshfilter/mesh"
	"github.com/gogpu/meshfilter/sensor"
)

//go:embed shaders/filter.wgsl
var filterShaderWGSL string

// init registers the wgpu backend on package import.
func init() {
	backend.Register(backend.BackendWGPU, func() backend.RenderBackend {
		return New()
	})
}

// Backend is the GPU rendering backend. The render pass is rasterized
// on the CPU by an embedded software backend; the filter pass runs as
// a WebGPU compute dispatch when a device is available and falls back
// to the CPU classifier otherwise.
//
// Backend is not safe for concurrent use; the mesh filter drives it
// from a single worker goroutine.
type Backend struct {
	cpu *software.Backend
	cam sensor.Camera

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	// GPU-side filter output, read back after each dispatch.
	filteredDepth []float32
	filteredLabel []uint32
	sensorDepth   []float32

	gpuReady       bool
	hasSensor      bool
	externalDevice bool // shared device: don't destroy on Close
	initialized    bool
}

// New creates an uninitialized wgpu backend.
func New() *Backend {
	return &Backend{cpu: software.New()}
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return backend.BackendWGPU
}

// Init sets up the CPU rasterizer and tries to acquire a GPU device.
// GPU acquisition failure is not fatal: the backend logs it and runs
// the filter pass on the CPU instead.
func (b *Backend) Init(cam sensor.Camera) error {
	if err := b.cpu.Init(cam); err != nil {
		return err
	}
	b.cam = cam
	b.alloc(cam.Width, cam.Height)
	b.initialized = true

	if err := b.initGPU(); err != nil {
		meshfilter.Logger().Warn("wgpu: GPU init failed, using CPU filter pass", "error", err)
		b.gpuReady = false
	}
	return nil
}

// Close releases GPU and CPU resources. The backend can be reused
// after another Init.
func (b *Backend) Close() {
	b.destroyPipeline()
	if !b.externalDevice {
		if b.device != nil {
			b.device.Destroy()
		}
		if b.instance != nil {
			b.instance.Destroy()
		}
	}
	b.device = nil
	b.instance = nil
	b.queue = nil
	b.gpuReady = false
	b.externalDevice = false
	b.filteredDepth = nil
	b.filteredLabel = nil
	b.sensorDepth = nil
	b.hasSensor = false
	b.initialized = false
	b.cpu.Close()
}

// Resize reallocates both render targets. Buffer contents and any
// uploaded sensor frame are discarded.
func (b *Backend) Resize(width, height int) error {
	if err := b.cpu.Resize(width, height); err != nil {
		return err
	}
	b.cam.Width = width
	b.cam.Height = height
	b.alloc(width, height)
	b.hasSensor = false
	return nil
}

func (b *Backend) alloc(width, height int) {
	n := width * height
	b.filteredDepth = make([]float32, n)
	b.filteredLabel = make([]uint32, n)
	b.sensorDepth = make([]float32, n)
}

// BeginRenderPass clears the model target and installs the camera and
// padding for the subsequent DrawMesh calls.
func (b *Backend) BeginRenderPass(cam sensor.Camera, padding [3]float32) {
	b.cam = cam
	b.cpu.BeginRenderPass(cam, padding)
}

// DrawMesh rasterizes the mesh into the model target.
func (b *Backend) DrawMesh(geom *mesh.Mesh, label uint32, pose mgl32.Mat4) {
	b.cpu.DrawMesh(geom, label, pose)
}

// EndRenderPass completes the render pass.
func (b *Backend) EndRenderPass() {
	b.cpu.EndRenderPass()
}

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
	// Keep the CPU path primed so a mid-run GPU failure can fall back.
	return b.cpu.UploadSensorDepth(depth)
}

// RunFilterPass classifies every pixel of the uploaded sensor frame
// against the rendered model, on the GPU when one is available.
func (b *Backend) RunFilterPass(shadowThreshold float32) error {
	if !b.initialized {
		return backend.ErrNotInitialized
	}
	if !b.hasSensor {
		return software.ErrNoSensorFrame
	}
	if !b.gpuReady {
		return b.cpu.RunFilterPass(shadowThreshold)
	}
	if err := b.dispatchFilter(shadowThreshold); err != nil {
		meshfilter.Logger().Warn("wgpu: filter dispatch failed, using CPU filter pass", "error", err)
		b.gpuReady = false
		return b.cpu.RunFilterPass(shadowThreshold)
	}
	return nil
}

// ReadModelDepth copies the model depth buffer into dst.
func (b *Backend) ReadModelDepth(dst []float32) { b.cpu.ReadModelDepth(dst) }

// ReadModelLabels copies the model label buffer into dst.
func (b *Backend) ReadModelLabels(dst []uint32) { b.cpu.ReadModelLabels(dst) }

// ReadFilteredDepth copies the filtered depth buffer into dst.
func (b *Backend) ReadFilteredDepth(dst []float32) {
	if b.gpuReady {
		copy(dst, b.filteredDepth)
		return
	}
	b.cpu.ReadFilteredDepth(dst)
}

// ReadFilteredLabels copies the filtered label buffer into dst.
func (b *Backend) ReadFilteredLabels(dst []uint32) {
	if b.gpuReady {
		copy(dst, b.filteredLabel)
		return
	}
	b.cpu.ReadFilteredLabels(dst)
}

// GPUReady reports whether the compute dispatch path is active.
func (b *Backend) GPUReady() bool {
	return b.gpuReady
}

// SetDeviceProvider switches the backend to a shared GPU device from
// an external provider (e.g. a gogpu canvas). The provider must also
// expose HalDevice() any and HalQueue() any returning hal.Device and
// hal.Queue.
func (b *Backend) SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("wgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}

	b.destroyPipeline()
	if !b.externalDevice && b.device != nil {
		b.device.Destroy()
	}
	if b.instance != nil {
		b.instance.Destroy()
		b.instance = nil
	}

	b.device = device
	b.queue = queue
	b.externalDevice = true

	if err := b.createPipeline(); err != nil {
		b.gpuReady = false
		return fmt.Errorf("wgpu: create pipeline with shared device: %w", err)
	}
	b.gpuReady = true
	meshfilter.Logger().Info("wgpu: switched to shared GPU device")
	return nil
}

// initGPU acquires a Vulkan device and builds the filter pipeline.
func (b *Backend) initGPU() error {
	hb, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("vulkan backend not available")
	}
	instance, err := hb.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	b.instance = instance
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	b.device = openDev.Device
	b.queue = openDev.Queue
	if err := b.createPipeline(); err != nil {
		b.device.Destroy()
		b.device = nil
		b.queue = nil
		return fmt.Errorf("create pipeline: %w", err)
	}
	b.gpuReady = true
	meshfilter.Logger().Info("wgpu: GPU filter pass initialized", "adapter", selected.Info.Name)
	return nil
}
