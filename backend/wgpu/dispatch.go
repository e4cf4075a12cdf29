//go:build !nogpu

package wgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// filterParams is the uniform block of the filter shader. Must match
// the Params struct in filter.wgsl (32 bytes).
type filterParams struct {
	Width           uint32
	Height          uint32
	Near            float32
	Far             float32
	ShadowThreshold float32
	Pad0            float32
	Pad1            float32
	Pad2            float32
}

const filterParamsSize = 32

// createPipeline compiles the filter shader and builds the compute
// pipeline. WGSL is compiled to SPIR-V up front via naga.
func (b *Backend) createPipeline() error {
	spirvBytes, err := naga.Compile(filterShaderWGSL)
	if err != nil {
		return fmt.Errorf("compile filter shader: %w", err)
	}
	// SPIR-V is little-endian 32-bit words.
	spirv := make([]uint32, len(spirvBytes)/4)
	for i := range spirv {
		spirv[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}

	shader, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "meshfilter_filter",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	b.shader = shader

	bindLayout, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "meshfilter_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{
				Type: gputypes.BufferBindingTypeUniform, MinBindingSize: filterParamsSize,
			}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{
				Type: gputypes.BufferBindingTypeReadOnlyStorage,
			}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{
				Type: gputypes.BufferBindingTypeReadOnlyStorage,
			}},
			{Binding: 3, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{
				Type: gputypes.BufferBindingTypeReadOnlyStorage,
			}},
			{Binding: 4, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{
				Type: gputypes.BufferBindingTypeStorage,
			}},
			{Binding: 5, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{
				Type: gputypes.BufferBindingTypeStorage,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	b.bindLayout = bindLayout

	pipeLayout, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "meshfilter_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{b.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	b.pipeLayout = pipeLayout

	pipeline, err := b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "meshfilter_pipeline",
		Layout:  b.pipeLayout,
		Compute: hal.ComputeState{Module: b.shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	b.pipeline = pipeline
	return nil
}

func (b *Backend) destroyPipeline() {
	if b.device == nil {
		return
	}
	if b.pipeline != nil {
		b.device.DestroyComputePipeline(b.pipeline)
		b.pipeline = nil
	}
	if b.pipeLayout != nil {
		b.device.DestroyPipelineLayout(b.pipeLayout)
		b.pipeLayout = nil
	}
	if b.bindLayout != nil {
		b.device.DestroyBindGroupLayout(b.bindLayout)
		b.bindLayout = nil
	}
	if b.shader != nil {
		b.device.DestroyShaderModule(b.shader)
		b.shader = nil
	}
}

// dispatchFilter runs one filter pass on the GPU: upload the sensor
// frame and the CPU-rasterized model target, dispatch one thread per
// pixel, and read the classified outputs back into the backend's
// filtered buffers.
func (b *Backend) dispatchFilter(shadowThreshold float32) error {
	w, h := uint32(b.cam.Width), uint32(b.cam.Height)
	n := int(w * h)
	bufSize := uint64(n * 4)

	modelDepth := make([]float32, n)
	modelLabel := make([]uint32, n)
	b.cpu.ReadModelDepth(modelDepth)
	b.cpu.ReadModelLabels(modelLabel)

	params := filterParams{
		Width: w, Height: h,
		Near: b.cam.Near, Far: b.cam.Far,
		ShadowThreshold: shadowThreshold,
	}

	paramsBuf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "mf_params", Size: filterParamsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create params buffer: %w", err)
	}
	defer b.device.DestroyBuffer(paramsBuf)

	sensorBuf, err := b.createStorage("mf_sensor", bufSize, false)
	if err != nil {
		return err
	}
	defer b.device.DestroyBuffer(sensorBuf)
	modelDepthBuf, err := b.createStorage("mf_model_depth", bufSize, false)
	if err != nil {
		return err
	}
	defer b.device.DestroyBuffer(modelDepthBuf)
	modelLabelBuf, err := b.createStorage("mf_model_label", bufSize, false)
	if err != nil {
		return err
	}
	defer b.device.DestroyBuffer(modelLabelBuf)
	outDepthBuf, err := b.createStorage("mf_out_depth", bufSize, true)
	if err != nil {
		return err
	}
	defer b.device.DestroyBuffer(outDepthBuf)
	outLabelBuf, err := b.createStorage("mf_out_label", bufSize, true)
	if err != nil {
		return err
	}
	defer b.device.DestroyBuffer(outLabelBuf)

	stagingDepth, err := b.createStaging("mf_staging_depth", bufSize)
	if err != nil {
		return err
	}
	defer b.device.DestroyBuffer(stagingDepth)
	stagingLabel, err := b.createStaging("mf_staging_label", bufSize)
	if err != nil {
		return err
	}
	defer b.device.DestroyBuffer(stagingLabel)

	b.queue.WriteBuffer(paramsBuf, 0, packParams(params))
	b.queue.WriteBuffer(sensorBuf, 0, f32ToBytes(b.sensorDepth))
	b.queue.WriteBuffer(modelDepthBuf, 0, f32ToBytes(modelDepth))
	b.queue.WriteBuffer(modelLabelBuf, 0, u32ToBytes(modelLabel))

	bindGroup, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "mf_bind", Layout: b.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: paramsBuf.NativeHandle(), Offset: 0, Size: filterParamsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: sensorBuf.NativeHandle(), Offset: 0, Size: bufSize}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: modelDepthBuf.NativeHandle(), Offset: 0, Size: bufSize}},
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: modelLabelBuf.NativeHandle(), Offset: 0, Size: bufSize}},
			{Binding: 4, Resource: gputypes.BufferBinding{Buffer: outDepthBuf.NativeHandle(), Offset: 0, Size: bufSize}},
			{Binding: 5, Resource: gputypes.BufferBinding{Buffer: outLabelBuf.NativeHandle(), Offset: 0, Size: bufSize}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	defer b.device.DestroyBindGroup(bindGroup)

	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "mf_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("mf_filter"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "mf_filter_pass"})
	pass.SetPipeline(b.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Dispatch((w+7)/8, (h+7)/8, 1)
	pass.End()
	encoder.CopyBufferToBuffer(outDepthBuf, stagingDepth, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: bufSize},
	})
	encoder.CopyBufferToBuffer(outLabelBuf, stagingLabel, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: bufSize},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer b.device.FreeCommandBuffer(cmdBuf)

	fence, err := b.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer b.device.DestroyFence(fence)
	if err := b.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := b.device.Wait(fence, 1, 5*time.Second)
	if err != nil || !fenceOK {
		return fmt.Errorf("wait for GPU: ok=%v err=%w", fenceOK, err)
	}

	depthBytes := make([]byte, bufSize)
	if err := b.queue.ReadBuffer(stagingDepth, 0, depthBytes); err != nil {
		return fmt.Errorf("read depth: %w", err)
	}
	labelBytes := make([]byte, bufSize)
	if err := b.queue.ReadBuffer(stagingLabel, 0, labelBytes); err != nil {
		return fmt.Errorf("read labels: %w", err)
	}
	bytesToF32(depthBytes, b.filteredDepth)
	bytesToU32(labelBytes, b.filteredLabel)
	return nil
}

func (b *Backend) createStorage(label string, size uint64, readback bool) (hal.Buffer, error) {
	usage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	if readback {
		usage |= gputypes.BufferUsageCopySrc
	}
	buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{Label: label, Size: size, Usage: usage})
	if err != nil {
		return nil, fmt.Errorf("create %s buffer: %w", label, err)
	}
	return buf, nil
}

func (b *Backend) createStaging(label string, size uint64) (hal.Buffer, error) {
	buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label, Size: size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s buffer: %w", label, err)
	}
	return buf, nil
}

func packParams(p filterParams) []byte {
	out := make([]byte, filterParamsSize)
	binary.LittleEndian.PutUint32(out[0:], p.Width)
	binary.LittleEndian.PutUint32(out[4:], p.Height)
	binary.LittleEndian.PutUint32(out[8:], math.Float32bits(p.Near))
	binary.LittleEndian.PutUint32(out[12:], math.Float32bits(p.Far))
	binary.LittleEndian.PutUint32(out[16:], math.Float32bits(p.ShadowThreshold))
	return out
}

func f32ToBytes(src []float32) []byte {
	out := make([]byte, len(src)*4)
	for i, v := range src {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func u32ToBytes(src []uint32) []byte {
	out := make([]byte, len(src)*4)
	for i, v := range src {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

func bytesToF32(src []byte, dst []float32) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}

func bytesToU32(src []byte, dst []uint32) {
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint32(src[i*4:])
	}
}
