package audio

import (
	"fmt"
	"math"
)

// ScaledTensor holds normalized float samples after the pre-inference scale
// guard. Sample values live in [-1, 1); Clipped reports whether any value
// saturated that range even after scaling.
type ScaledTensor struct {
	Samples    []float32
	SampleRate int
	Scale      float32
	Clipped    bool
}

// Duration returns the tensor length in seconds
func (t *ScaledTensor) Duration() float64 {
	if t.SampleRate == 0 {
		return 0
	}
	return float64(len(t.Samples)) / float64(t.SampleRate)
}

// Scale multiplies every sample of the frame by scale and converts to the
// normalized float domain the accelerator frontend consumes. The fixed-point
// accelerator pipeline overflows on full-amplitude PCM, so this guard must
// run before every inference call.
//
// Pure function of (frame, scale). If any scaled value still saturates the
// representable range the tensor is returned with Clipped set alongside an
// ErrOverflowDetected; the caller decides whether to proceed. Recovery is an
// operator concern: rerun with a lower configured scale.
func Scale(frame *PcmFrame, scale float32) (*ScaledTensor, error) {
	if scale <= 0 || scale > 1 {
		return nil, fmt.Errorf("scale factor must be in (0, 1], got %f", scale)
	}

	tensor := &ScaledTensor{
		Samples:    make([]float32, len(frame.Samples)),
		SampleRate: frame.SampleRate,
		Scale:      scale,
	}

	for i, s := range frame.Samples {
		v := float32(s) / float32(math.MaxInt16+1) * scale
		if v >= 1.0 || v <= -1.0 {
			tensor.Clipped = true
			if v >= 1.0 {
				v = math.Nextafter32(1.0, 0)
			} else {
				v = -1.0
			}
		}
		tensor.Samples[i] = v
	}

	if tensor.Clipped {
		return tensor, fmt.Errorf("%w: scale factor %f", ErrOverflowDetected, scale)
	}

	return tensor, nil
}
