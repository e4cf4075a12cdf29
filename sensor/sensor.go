// Package sensor holds the camera model of a depth sensor: image
// dimensions, clipping planes, projection intrinsics and the numeric
// transforms between raw sensor samples, depth-buffer units and metric
// depth.
//
// All depth comparisons inside the filter pipeline happen in buffer
// units. The conversions to metric depth are applied only at readback,
// never earlier, so rounding is not compounded. The model-depth and
// filtered-depth conversions are calibrated differently: the render
// pass stores perspective-encoded depth while the filter pass stores
// depth linear in the [Near, Far] range. They must not be conflated.
package sensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Errors returned by frame decoding and parameter construction.
var (
	// ErrUnsupportedEncoding is returned when a depth frame uses an
	// encoding the pipeline does not understand. It is reported
	// synchronously, before any rendering work is queued.
	ErrUnsupportedEncoding = errors.New("sensor: unsupported depth encoding")

	// ErrFrameSize is returned when a raw frame does not match
	// width * height samples of the declared encoding.
	ErrFrameSize = errors.New("sensor: frame size does not match sensor dimensions")

	// ErrInvalidParameters is returned for out-of-range camera parameters.
	ErrInvalidParameters = errors.New("sensor: invalid parameters")
)

// Encoding identifies the sample format of a raw depth frame.
type Encoding int

const (
	// EncodingFloat32 is little-endian float32 samples holding metric
	// depth in meters.
	EncodingFloat32 Encoding = iota + 1

	// EncodingUint16 is little-endian uint16 samples spanning the full
	// representable range: 0 maps to the near clipping distance and
	// 65535 to the far clipping distance.
	EncodingUint16
)

// Valid reports whether e is a supported encoding.
func (e Encoding) Valid() bool {
	return e == EncodingFloat32 || e == EncodingUint16
}

// SampleSize returns the byte size of one sample.
func (e Encoding) SampleSize() int {
	switch e {
	case EncodingFloat32:
		return 4
	case EncodingUint16:
		return 2
	default:
		return 0
	}
}

// String returns the encoding name.
func (e Encoding) String() string {
	switch e {
	case EncodingFloat32:
		return "float32"
	case EncodingUint16:
		return "uint16"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// Camera is an immutable snapshot of the projection parameters handed
// to rendering backends. Depth values are encoded relative to the
// [Near, Far] clipping range.
type Camera struct {
	Width, Height  int
	Near, Far      float32
	Fx, Fy, Cx, Cy float32
}

// Parameters describes a depth sensor for one filtering session.
// The geometry fields change only through Resize, which the filter
// executes on its worker so resizing is atomic with respect to any
// in-flight rendering job.
type Parameters struct {
	width, height  int
	near, far      float32
	fx, fy, cx, cy float32
	padding        [3]float32
}

// NewParameters creates sensor parameters for a width x height depth
// image clipped to (near, far). Intrinsics default to fx = fy = width,
// cx = width/2, cy = height/2; override them with SetIntrinsics.
func NewParameters(width, height int, near, far float32) (*Parameters, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidParameters, width, height)
	}
	if !(near > 0) || !(far > near) {
		return nil, fmt.Errorf("%w: clipping range [%g, %g]", ErrInvalidParameters, near, far)
	}
	p := &Parameters{near: near, far: far}
	p.Resize(width, height)
	return p, nil
}

// Resize updates the image dimensions and recomputes the projection
// intrinsics for the new size (fx = fy = width, principal point at the
// image center). The mesh filter calls this inside a job, together
// with resizing both render targets.
func (p *Parameters) Resize(width, height int) {
	p.width = width
	p.height = height
	p.fx = float32(width)
	p.fy = float32(width)
	p.cx = float32(width) / 2
	p.cy = float32(height) / 2
}

// SetIntrinsics overrides the projection intrinsics. Note that Resize
// resets them to the defaults for the new size.
func (p *Parameters) SetIntrinsics(fx, fy, cx, cy float32) {
	p.fx, p.fy, p.cx, p.cy = fx, fy, cx, cy
}

// SetPaddingCoefficients sets the base padding polynomial. The
// effective per-vertex padding at view depth z is
//
//	c[0]*z*z + c[1]*z + c[2]
//
// after the filter's padding scale and offset have been applied.
func (p *Parameters) SetPaddingCoefficients(c [3]float32) { p.padding = c }

// PaddingCoefficients returns the base padding polynomial.
func (p *Parameters) PaddingCoefficients() [3]float32 { return p.padding }

// Width returns the image width in pixels.
func (p *Parameters) Width() int { return p.width }

// Height returns the image height in pixels.
func (p *Parameters) Height() int { return p.height }

// Near returns the near clipping distance in meters.
func (p *Parameters) Near() float32 { return p.near }

// Far returns the far clipping distance in meters.
func (p *Parameters) Far() float32 { return p.far }

// Camera returns a snapshot of the current projection parameters.
func (p *Parameters) Camera() Camera {
	return Camera{
		Width: p.width, Height: p.height,
		Near: p.near, Far: p.far,
		Fx: p.fx, Fy: p.fy, Cx: p.cx, Cy: p.cy,
	}
}

// Clone returns an independent copy.
func (p *Parameters) Clone() *Parameters {
	c := *p
	return &c
}

// DepthScale returns 1/(far-near), the scale factor between metric
// depth offsets and linear buffer units.
func (p *Parameters) DepthScale() float32 {
	return 1 / (p.far - p.near)
}

// EffectivePadding combines the base padding coefficients with the
// filter's tunable scale and offset:
//
//	effective = base*scale + (0, 0, offset)
func (p *Parameters) EffectivePadding(scale, offset float32) [3]float32 {
	return [3]float32{
		p.padding[0] * scale,
		p.padding[1] * scale,
		p.padding[2]*scale + offset,
	}
}

// BufferUnits decodes a raw depth frame into linear buffer units, one
// float32 per pixel in [0, 1] spanning [Near, Far]. Invalid samples
// (zero or negative metric depth) decode to 0.
func (p *Parameters) BufferUnits(data []byte, encoding Encoding) ([]float32, error) {
	if !encoding.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, encoding)
	}
	n := p.width * p.height
	if len(data) != n*encoding.SampleSize() {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(data), n*encoding.SampleSize())
	}
	out := make([]float32, n)
	switch encoding {
	case EncodingFloat32:
		for i := 0; i < n; i++ {
			v := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
			out[i] = p.MetricToBuffer(v)
		}
	case EncodingUint16:
		// Full-range normalization: 0 -> near, 65535 -> far.
		for i := 0; i < n; i++ {
			out[i] = float32(binary.LittleEndian.Uint16(data[i*2:])) / 65535
		}
	}
	return out, nil
}

// MetricToBuffer converts a metric depth to linear buffer units,
// clamped to [0, 1]. Non-positive depths are invalid and map to 0.
func (p *Parameters) MetricToBuffer(v float32) float32 {
	if v <= 0 || v != v { // reject zero, negative and NaN samples
		return 0
	}
	d := (v - p.near) * p.DepthScale()
	if d < 0 {
		return 0
	}
	if d > 1 {
		return 1
	}
	return d
}

// BufferToMetric converts linear buffer units back to metric depth.
// It is the pure inverse of the linear mapping: 0 -> Near, 1 -> Far.
func (p *Parameters) BufferToMetric(d float32) float32 {
	return p.near + d*(p.far-p.near)
}

// ModelDepthToMetric converts a model depth buffer, in place, from
// perspective-encoded buffer units to metric depth. Pixels at the far
// plane carry no geometry and convert to 0.
func (p *Parameters) ModelDepthToMetric(depth []float32) {
	nf := p.near * p.far
	span := p.far - p.near
	for i, d := range depth {
		if d >= 1 {
			depth[i] = 0
			continue
		}
		depth[i] = nf / (p.far - d*span)
	}
}

// FilteredDepthToMetric converts a filtered depth buffer, in place,
// from linear buffer units to metric depth. The masked sentinel 0
// stays 0 so that filtered-out pixels remain distinguishable.
func (p *Parameters) FilteredDepthToMetric(depth []float32) {
	span := p.far - p.near
	for i, d := range depth {
		if d <= 0 {
			depth[i] = 0
			continue
		}
		depth[i] = p.near + d*span
	}
}
