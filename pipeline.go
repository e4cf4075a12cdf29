package meshfilter

import (
	"fmt"

	"github.com/gogpu/meshfilter/sensor"
)

// FilterJob is a handle to an asynchronously running filter pass,
// returned by FilterAsync. Wait for it, then inspect Result.
type FilterJob struct {
	*task[error]
}

// Result returns the filter pass error, valid once Wait has returned
// and Err reports no cancellation.
func (j *FilterJob) Result() error {
	return j.task.Result()
}

// Filter runs one full pipeline pass against the given depth frame:
// it renders every registered mesh at its current pose into the model
// target, uploads the sensor frame and classifies each pixel. The
// results stay on the backend until read with FilteredDepth,
// FilteredLabels, ModelDepth or ModelLabels.
//
// frame holds width*height samples in the given encoding, row-major.
// Filter blocks until the pass has run on the worker. On error the
// backend's output buffers keep their previous contents.
func (f *MeshFilter) Filter(frame []byte, encoding sensor.Encoding) error {
	j, err := f.FilterAsync(frame, encoding)
	if err != nil {
		return err
	}
	j.Wait()
	if err := j.Err(); err != nil {
		return err
	}
	return j.Result()
}

// FilterAsync queues a filter pass and returns without waiting for it.
// The frame slice must not be modified until the job has completed.
//
// An unsupported encoding is rejected here, before anything is queued.
func (f *MeshFilter) FilterAsync(frame []byte, encoding sensor.Encoding) (*FilterJob, error) {
	if !encoding.Valid() {
		return nil, fmt.Errorf("%w: %v", sensor.ErrUnsupportedEncoding, encoding)
	}
	j := newTask(func() error {
		return f.doFilter(frame, encoding)
	})
	if !f.addJob(j) {
		return nil, ErrClosed
	}
	return &FilterJob{task: j}, nil
}

// doFilter is the filter pass body, run on the worker.
func (f *MeshFilter) doFilter(frame []byte, encoding sensor.Encoding) error {
	// Decode first: a malformed frame must fail before the render pass
	// touches the model target.
	depth, err := f.params.BufferUnits(frame, encoding)
	if err != nil {
		return err
	}

	f.paramMu.Lock()
	threshold := f.shadowThreshold
	scale := f.paddingScale
	offset := f.paddingOffset
	f.paramMu.Unlock()

	cam := f.params.Camera()
	padding := f.params.EffectivePadding(scale, offset)

	// Hold cbMu across the whole render pass: every mesh in one pass is
	// posed by the same callback, even if a swap lands mid-pass.
	f.cbMu.Lock()
	cb := f.transformCB
	f.rb.BeginRenderPass(cam, padding)
	if cb != nil {
		for handle, rm := range f.meshes {
			pose, ok := cb(handle)
			if !ok {
				// No pose this frame; the mesh simply does not occlude.
				continue
			}
			f.rb.DrawMesh(rm.geom, uint32(handle), pose)
		}
	}
	f.rb.EndRenderPass()
	f.cbMu.Unlock()

	if err := f.rb.UploadSensorDepth(depth); err != nil {
		return err
	}
	// The backend compares depths in buffer units; rescale the metric
	// threshold to match.
	return f.rb.RunFilterPass(threshold * f.params.DepthScale())
}

// FilteredDepth reads back the filtered depth image in metric meters.
// Masked pixels are 0. dst must hold width*height samples.
func (f *MeshFilter) FilteredDepth(dst []float32) error {
	return f.readDepth(dst, f.rb.ReadFilteredDepth, f.params.FilteredDepthToMetric)
}

// ModelDepth reads back the rendered model depth image in metric
// meters. Pixels without geometry are 0. dst must hold width*height
// samples.
func (f *MeshFilter) ModelDepth(dst []float32) error {
	return f.readDepth(dst, f.rb.ReadModelDepth, f.params.ModelDepthToMetric)
}

// FilteredLabels reads back the filtered label image. dst must hold
// width*height samples.
func (f *MeshFilter) FilteredLabels(dst []uint32) error {
	return f.readLabels(dst, f.rb.ReadFilteredLabels)
}

// ModelLabels reads back the model label image. dst must hold
// width*height samples.
func (f *MeshFilter) ModelLabels(dst []uint32) error {
	return f.readLabels(dst, f.rb.ReadModelLabels)
}

// readDepth copies a depth buffer off the backend and converts it to
// metric meters, as two jobs queued back to back. The copy has to run
// on the worker; the conversion rides along so that dst is fully
// converted by the time the caller wakes. On ErrCancelled dst contents
// are undefined.
func (f *MeshFilter) readDepth(dst []float32, read func([]float32), convert func([]float32)) error {
	copied := false
	readJob := newTask(func() error {
		if err := f.checkSize(len(dst)); err != nil {
			return err
		}
		read(dst)
		copied = true
		return nil
	})
	convertJob := newTask(func() struct{} {
		if copied {
			convert(dst)
		}
		return struct{}{}
	})
	if !f.addJobs(readJob, convertJob) {
		return ErrClosed
	}
	convertJob.Wait()
	if err := convertJob.Err(); err != nil {
		return err
	}
	return readJob.Result()
}

// readLabels copies a label buffer off the backend.
func (f *MeshFilter) readLabels(dst []uint32, read func([]uint32)) error {
	res, err := submit(f, func() error {
		if err := f.checkSize(len(dst)); err != nil {
			return err
		}
		read(dst)
		return nil
	})
	if err != nil {
		return err
	}
	return res
}

// checkSize validates a readback destination length. Worker only.
func (f *MeshFilter) checkSize(n int) error {
	want := f.params.Width() * f.params.Height()
	if n != want {
		return fmt.Errorf("%w: got %d samples, want %d", sensor.ErrFrameSize, n, want)
	}
	return nil
}
