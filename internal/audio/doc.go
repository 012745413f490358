// Package audio handles audio payload ingestion and pre-inference scaling.
// It decodes uploaded WAV payloads into canonical 16kHz/16-bit/mono PCM
// frames and applies the amplitude scale guard that keeps the quantized
// accelerator pipeline inside its representable numeric range.
package audio
