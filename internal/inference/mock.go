package inference

import (
	"context"
	"fmt"
	"time"
)

// MockEngine is a deterministic stand-in for the RKNN runtime, used for
// tests and `mode: mock` deployments on hosts without the accelerator.
type MockEngine struct {
	// Latency simulates the accelerator call duration
	Latency time.Duration
	// LoadErr, if set, makes Load fail (model-load failure path)
	LoadErr error
	// InferErr, if set, makes every Infer call fail
	InferErr error
}

// NewMockEngine returns a mock engine with no simulated latency
func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

func (m *MockEngine) Load(ctx context.Context) error {
	return m.LoadErr
}

func (m *MockEngine) Infer(ctx context.Context, req *Request) (*Result, error) {
	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.InferErr != nil {
		return nil, m.InferErr
	}

	duration := req.Tensor.Duration()
	return &Result{
		Text: fmt.Sprintf("<|en|><|NEUTRAL|><|Speech|>mock transcript covering %.2fs", duration),
		Segments: []Segment{
			{Start: 0, End: duration, Text: fmt.Sprintf("mock transcript covering %.2fs", duration)},
		},
	}, nil
}

func (m *MockEngine) Close() error {
	return nil
}
