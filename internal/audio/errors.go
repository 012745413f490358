package audio

import "errors"

var (
	// ErrEmptyAudio indicates an empty or truncated payload with no usable samples.
	ErrEmptyAudio = errors.New("empty audio payload")

	// ErrUnsupportedFormat indicates a payload that cannot be parsed as PCM-codable audio.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrInvalidGeometry indicates sample rate, channel count, or bit depth
	// that cannot be deterministically normalized to the required profile.
	ErrInvalidGeometry = errors.New("invalid audio geometry")

	// ErrOverflowDetected indicates samples that still saturate the
	// accelerator's representable range after scaling. Soft condition: the
	// scaled tensor is still usable, but the operator should lower the
	// configured speech scale.
	ErrOverflowDetected = errors.New("numeric overflow detected after scaling")
)
