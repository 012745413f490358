package audio

import (
	"bytes"
	"fmt"

	"github.com/go-audio/wav"
)

const (
	// TargetSampleRate is the sample rate required by the SenseVoice frontend
	TargetSampleRate = 16000
	// TargetBitDepth is the sample width required by the SenseVoice frontend
	TargetBitDepth = 16
	// TargetChannels is the channel count required by the SenseVoice frontend
	TargetChannels = 1
)

// PcmFrame is a canonical 16kHz/16-bit/mono PCM sample sequence
type PcmFrame struct {
	SampleRate int
	BitDepth   int
	Channels   int
	Samples    []int16
}

// Duration returns the frame length in seconds
func (f *PcmFrame) Duration() float64 {
	if f.SampleRate == 0 {
		return 0
	}
	return float64(len(f.Samples)) / float64(f.SampleRate)
}

// Ingest decodes and validates an uploaded audio payload into a canonical
// PcmFrame. Stereo input is down-mixed by averaging, higher sample rates are
// deterministically resampled to 16kHz. Payloads that cannot be parsed or
// normalized are rejected; nothing is silently approximated.
func Ingest(payload []byte) (*PcmFrame, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyAudio
	}

	decoder := wav.NewDecoder(bytes.NewReader(payload))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: payload is not a RIFF/WAVE container", ErrUnsupportedFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	if decoder.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: audio format %d (only PCM is supported)", ErrUnsupportedFormat, decoder.WavAudioFormat)
	}

	if len(buf.Data) == 0 {
		return nil, fmt.Errorf("%w: no audio samples in payload", ErrEmptyAudio)
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth != TargetBitDepth {
		return nil, fmt.Errorf("%w: bit depth %d cannot be normalized to %d", ErrInvalidGeometry, bitDepth, TargetBitDepth)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, fmt.Errorf("%w: channel count %d", ErrInvalidGeometry, channels)
	}

	sampleRate := buf.Format.SampleRate
	if sampleRate < TargetSampleRate {
		return nil, fmt.Errorf("%w: sample rate %d below %d cannot be normalized deterministically", ErrInvalidGeometry, sampleRate, TargetSampleRate)
	}

	samples := downmix(buf.Data, channels)
	if sampleRate != TargetSampleRate {
		samples = resample(samples, sampleRate)
	}

	return &PcmFrame{
		SampleRate: TargetSampleRate,
		BitDepth:   TargetBitDepth,
		Channels:   TargetChannels,
		Samples:    samples,
	}, nil
}

// downmix converts interleaved multi-channel samples to mono by averaging.
// Mono input passes through bit-identical.
func downmix(data []int, channels int) []int16 {
	if channels == 1 {
		samples := make([]int16, len(data))
		for i, v := range data {
			samples[i] = int16(v)
		}
		return samples
	}

	frames := len(data) / channels
	samples := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += data[i*channels+c]
		}
		samples[i] = int16(sum / channels)
	}
	return samples
}

// resample converts mono samples from rate down to 16kHz. Integer-ratio
// rates use plain decimation; other rates use linear interpolation. Both are
// deterministic for identical inputs.
func resample(samples []int16, rate int) []int16 {
	if rate%TargetSampleRate == 0 {
		stride := rate / TargetSampleRate
		out := make([]int16, 0, len(samples)/stride+1)
		for i := 0; i < len(samples); i += stride {
			out = append(out, samples[i])
		}
		return out
	}

	ratio := float64(rate) / float64(TargetSampleRate)
	outLen := int(float64(len(samples)) / ratio)
	out := make([]int16, outLen)
	for i := 0; i < outLen; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx+1 >= len(samples) {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		a := float64(samples[idx])
		b := float64(samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}
