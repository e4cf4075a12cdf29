package software

import (
	"github.com/gogpu/meshfilter/backend"
)

// RunFilterPass classifies every pixel of the uploaded sensor frame
// against the rendered model:
//
//   - invalid sensor sample (<= 0): masked, background label
//   - no model geometry at the pixel: sensor depth kept, background
//   - sensor in front of the model surface: sensor depth kept, background
//   - within the shadow threshold behind the surface: masked, mesh label
//   - farther behind than the threshold: masked, shadow label
//
// The comparison happens in linear buffer units; the model depth is
// linearized from its perspective encoding per pixel.
func (b *Backend) RunFilterPass(shadowThreshold float32) error {
	if !b.initialized {
		return backend.ErrNotInitialized
	}
	if !b.hasSensor {
		return ErrNoSensorFrame
	}

	near, far := b.cam.Near, b.cam.Far
	span := far - near
	for i, s := range b.sensorDepth {
		if s <= 0 {
			b.filteredDepth[i] = 0
			b.filteredLabel[i] = backend.LabelBackground
			continue
		}
		d := b.modelDepth[i]
		if d >= 1 {
			b.filteredDepth[i] = s
			b.filteredLabel[i] = backend.LabelBackground
			continue
		}
		// Linearize the perspective-encoded model depth into the same
		// [0,1] range as the sensor frame.
		m := (near*far/(far-d*span) - near) / span
		diff := s - m
		switch {
		case diff < 0:
			b.filteredDepth[i] = s
			b.filteredLabel[i] = backend.LabelBackground
		case diff <= shadowThreshold:
			b.filteredDepth[i] = 0
			b.filteredLabel[i] = b.modelLabel[i]
		default:
			b.filteredDepth[i] = 0
			b.filteredLabel[i] = backend.LabelShadow
		}
	}
	return nil
}
