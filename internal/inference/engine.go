package inference

import (
	"context"

	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/audio"
)

// Request wraps one scaled tensor together with per-request decoding
// options. A request is created per HTTP upload and owned by the scheduler
// until the inference call completes or fails.
type Request struct {
	Tensor   *audio.ScaledTensor
	Language string
	UseITN   bool
}

// Segment is one transcribed span with timing in seconds
type Segment struct {
	Start float64 `json:"start_time"`
	End   float64 `json:"end_time"`
	Text  string  `json:"text"`
}

// Result is the immutable outcome of one inference call
type Result struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Emotion  string    `json:"emotion,omitempty"`
	Event    string    `json:"event,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// Engine abstracts the single-core accelerator runtime. Infer is strictly
// serial on the device; callers must never invoke it concurrently. The
// scheduler enforces that.
type Engine interface {
	// Load initializes the model/runtime. Called once at startup; failure
	// is fatal to the process.
	Load(ctx context.Context) error

	// Infer runs one inference graph over the request tensor.
	Infer(ctx context.Context, req *Request) (*Result, error)

	// Close releases the runtime.
	Close() error
}
