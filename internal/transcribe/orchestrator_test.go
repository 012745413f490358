package transcribe

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/audio"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/health"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/inference"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/metrics"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/scheduler"
)

// wavPayload assembles a minimal 16kHz mono PCM WAV for pipeline tests
func wavPayload(samples []int16) []byte {
	var data bytes.Buffer
	for _, s := range samples {
		binary.Write(&data, binary.LittleEndian, s)
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(16000))
	binary.Write(&buf, binary.LittleEndian, uint32(32000))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())
	return buf.Bytes()
}

func testOptions() Options {
	return Options{
		Language:                "auto",
		EnableEmotionDetection:  true,
		EnableLanguageDetection: true,
		SpeechScale:             0.5,
	}
}

// newTestOrchestrator wires a full pipeline around the given engine
func newTestOrchestrator(t *testing.T, engine inference.Engine) (*Orchestrator, *health.Tracker) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	tracker := health.NewTracker(health.Config{
		FailureWindow:     4,
		DegradedThreshold: 0.5,
		RecoverySuccesses: 2,
	})
	tracker.ModelLoaded()

	sched := scheduler.New(engine, scheduler.Config{
		QueueDepth:  16,
		SlotTimeout: 5 * time.Second,
	}, logger)
	t.Cleanup(sched.Close)

	return NewOrchestrator(sched, m, tracker, logger), tracker
}

func TestTranscribeSuccess(t *testing.T) {
	orch, tracker := newTestOrchestrator(t, inference.NewMockEngine())

	samples := make([]int16, 8000) // half a second
	for i := range samples {
		samples[i] = int16(i % 100)
	}

	result, err := orch.Transcribe(context.Background(), "greeting.wav", wavPayload(samples), testOptions())
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}

	if result.RequestID == "" {
		t.Errorf("Expected a request ID")
	}
	if result.Filename != "greeting.wav" {
		t.Errorf("Expected filename preserved, got '%s'", result.Filename)
	}
	if !strings.Contains(result.Transcript, "mock transcript") {
		t.Errorf("Expected mock transcript, got '%s'", result.Transcript)
	}
	if strings.Contains(result.Transcript, "<|") {
		t.Errorf("Expected tags stripped from transcript, got '%s'", result.Transcript)
	}
	if result.Language != "en" {
		t.Errorf("Expected detected language 'en', got '%s'", result.Language)
	}
	if result.Emotion != "NEUTRAL" {
		t.Errorf("Expected detected emotion 'NEUTRAL', got '%s'", result.Emotion)
	}
	if result.AudioDuration != 0.5 {
		t.Errorf("Expected 0.5s audio duration, got %f", result.AudioDuration)
	}
	if result.Clipped {
		t.Errorf("Expected no clipping at scale 0.5")
	}
	if len(result.Segments) != 1 {
		t.Errorf("Expected 1 segment, got %d", len(result.Segments))
	}

	if tracker.State() != health.StateHealthy {
		t.Errorf("Expected healthy after success, got %s", tracker.State())
	}
}

func TestTranscribeDetectionToggles(t *testing.T) {
	orch, _ := newTestOrchestrator(t, inference.NewMockEngine())

	opts := testOptions()
	opts.EnableEmotionDetection = false
	opts.EnableLanguageDetection = false

	result, err := orch.Transcribe(context.Background(), "a.wav", wavPayload(make([]int16, 1600)), opts)
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}
	if result.Language != "" {
		t.Errorf("Expected empty language with detection off, got '%s'", result.Language)
	}
	if result.Emotion != "" {
		t.Errorf("Expected empty emotion with detection off, got '%s'", result.Emotion)
	}
}

func TestTranscribeRejectsBadInput(t *testing.T) {
	orch, tracker := newTestOrchestrator(t, inference.NewMockEngine())

	tests := []struct {
		name    string
		payload []byte
		wantErr error
	}{
		{"empty payload", nil, audio.ErrEmptyAudio},
		{"garbage payload", []byte("not audio at all"), audio.ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := orch.Transcribe(context.Background(), "bad.wav", tt.payload, testOptions())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	// Input rejections are not accelerator failures
	if tracker.State() != health.StateHealthy {
		t.Errorf("Expected input rejections to leave health alone, got %s", tracker.State())
	}
}

func TestTranscribeOverflowProceeds(t *testing.T) {
	orch, _ := newTestOrchestrator(t, inference.NewMockEngine())

	opts := testOptions()
	opts.SpeechScale = 1.0
	samples := make([]int16, 1600)
	samples[10] = -32768

	result, err := orch.Transcribe(context.Background(), "loud.wav", wavPayload(samples), opts)
	if err != nil {
		t.Fatalf("Expected overflow to be soft but got: %v", err)
	}
	if !result.Clipped {
		t.Errorf("Expected Clipped flag on overflowed input")
	}
	if result.Transcript == "" {
		t.Errorf("Expected a transcript despite clipping")
	}
}

func TestTranscribeEngineFailureFeedsHealth(t *testing.T) {
	engine := inference.NewMockEngine()
	engine.InferErr = errors.New("npu fault")
	orch, tracker := newTestOrchestrator(t, engine)

	for i := 0; i < 4; i++ {
		_, err := orch.Transcribe(context.Background(), "x.wav", wavPayload(make([]int16, 1600)), testOptions())
		if !errors.Is(err, scheduler.ErrInferenceFailure) {
			t.Fatalf("Expected ErrInferenceFailure, got %v", err)
		}
	}

	if tracker.State() != health.StateUnhealthy {
		t.Errorf("Expected unhealthy after sustained inference failures, got %s", tracker.State())
	}
}

func TestTranscribeBatchPartialFailure(t *testing.T) {
	orch, _ := newTestOrchestrator(t, inference.NewMockEngine())

	files := []BatchFile{
		{Filename: "first.wav", Payload: wavPayload(make([]int16, 1600))},
		{Filename: "corrupt.wav", Payload: []byte("this is not audio")},
		{Filename: "third.wav", Payload: wavPayload(make([]int16, 3200))},
	}

	batch := orch.TranscribeBatch(context.Background(), files, testOptions())

	if batch.Total != 3 || batch.Succeeded != 2 || batch.Failed != 1 {
		t.Errorf("Expected 3/2/1 totals, got %d/%d/%d", batch.Total, batch.Succeeded, batch.Failed)
	}
	if len(batch.Entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(batch.Entries))
	}

	// Entries stay in submission order
	for i, want := range []string{"first.wav", "corrupt.wav", "third.wav"} {
		if batch.Entries[i].Filename != want {
			t.Errorf("Entry %d: expected '%s', got '%s'", i, want, batch.Entries[i].Filename)
		}
	}

	if batch.Entries[0].Err != nil || batch.Entries[0].Result == nil {
		t.Errorf("Expected first entry to succeed: %v", batch.Entries[0].Err)
	}
	if !errors.Is(batch.Entries[1].Err, audio.ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat for corrupt entry, got %v", batch.Entries[1].Err)
	}
	if batch.Entries[2].Err != nil || batch.Entries[2].Result == nil {
		t.Errorf("Expected third entry to succeed: %v", batch.Entries[2].Err)
	}
}

func TestTranscribeBatchEmpty(t *testing.T) {
	orch, _ := newTestOrchestrator(t, inference.NewMockEngine())

	batch := orch.TranscribeBatch(context.Background(), nil, testOptions())
	if batch.Total != 0 || batch.Succeeded != 0 || batch.Failed != 0 {
		t.Errorf("Expected empty batch totals, got %d/%d/%d", batch.Total, batch.Succeeded, batch.Failed)
	}
}
