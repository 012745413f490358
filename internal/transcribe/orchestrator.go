package transcribe

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/audio"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/config"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/health"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/inference"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/metrics"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/scheduler"
)

// Options are the per-request transcription settings. Unset fields are
// filled from the configured defaults by the HTTP layer.
type Options struct {
	Language                string
	UseITN                  bool
	EnableEmotionDetection  bool
	EnableLanguageDetection bool
	SpeechScale             float32
}

// OptionsFromConfig derives default options from the service configuration
func OptionsFromConfig(cfg config.TranscriptionConfig) Options {
	return Options{
		Language:                cfg.Language,
		UseITN:                  cfg.UseITN,
		EnableEmotionDetection:  cfg.EnableEmotionDetection,
		EnableLanguageDetection: cfg.EnableLanguageDetection,
		SpeechScale:             float32(cfg.SpeechScale),
	}
}

// FileResult is the assembled outcome for one transcribed file
type FileResult struct {
	RequestID      string              `json:"request_id"`
	Filename       string              `json:"filename"`
	Transcript     string              `json:"transcript"`
	Language       string              `json:"language,omitempty"`
	Emotion        string              `json:"emotion,omitempty"`
	Event          string              `json:"event,omitempty"`
	Segments       []inference.Segment `json:"segments"`
	Clipped        bool                `json:"clipped,omitempty"`
	AudioDuration  float64             `json:"audio_duration"`
	ProcessingTime float64             `json:"processing_time"`
}

// BatchFile is one payload within a batch submission
type BatchFile struct {
	Filename string
	Payload  []byte
}

// BatchEntry holds the per-file outcome at its submission position
type BatchEntry struct {
	Filename string
	Result   *FileResult
	Err      error
}

// BatchResult aggregates a batch run. Entries are in submission order.
type BatchResult struct {
	Entries        []BatchEntry
	Total          int
	Succeeded      int
	Failed         int
	ProcessingTime float64
}

// Orchestrator drives one request through ingest, scale guard, scheduler,
// and result assembly.
type Orchestrator struct {
	sched   *scheduler.Scheduler
	metrics *metrics.Metrics
	health  *health.Tracker
	logger  *slog.Logger
}

// NewOrchestrator wires the pipeline stages together
func NewOrchestrator(sched *scheduler.Scheduler, m *metrics.Metrics, h *health.Tracker, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		sched:   sched,
		metrics: m,
		health:  h,
		logger:  logger,
	}
}

// Transcribe processes one file. Stage failures are returned as typed
// errors without internal retries; retry policy belongs to the caller.
func (o *Orchestrator) Transcribe(ctx context.Context, filename string, payload []byte, opts Options) (*FileResult, error) {
	requestID := uuid.NewString()
	start := time.Now()

	o.metrics.ActiveRequests.Inc()
	defer o.metrics.ActiveRequests.Dec()

	// Ingest and scale failures are input problems; they do not feed the
	// health window, which tracks the inference path only.
	frame, err := audio.Ingest(payload)
	if err != nil {
		return nil, err
	}

	tensor, err := audio.Scale(frame, opts.SpeechScale)
	if err != nil {
		if !errors.Is(err, audio.ErrOverflowDetected) {
			return nil, err
		}
		// Soft condition: proceed with the clipped tensor, surface the flag.
		o.metrics.RecordOverflow()
		o.logger.Warn("scaled samples saturate accelerator range",
			slog.String("request_id", requestID),
			slog.String("filename", filename),
			slog.Float64("speech_scale", float64(opts.SpeechScale)),
		)
	}

	result, err := o.sched.Submit(ctx, &inference.Request{
		Tensor:   tensor,
		Language: opts.Language,
		UseITN:   opts.UseITN,
	})
	if err != nil {
		// Backpressure and caller cancellation are not accelerator
		// failures; only real inference errors feed the health window.
		if errors.Is(err, scheduler.ErrInferenceFailure) || errors.Is(err, scheduler.ErrInferenceTimeout) {
			o.recordOutcome(false)
		}
		return nil, err
	}

	result.ApplyTags(opts.EnableLanguageDetection, opts.EnableEmotionDetection)

	processing := time.Since(start).Seconds()
	o.metrics.RecordTranscription(processing, frame.Duration())
	o.recordOutcome(true)

	o.logger.Info("transcription completed",
		slog.String("request_id", requestID),
		slog.String("filename", filename),
		slog.Float64("audio_duration", frame.Duration()),
		slog.Float64("processing_time", processing),
		slog.Int("segments", len(result.Segments)),
	)

	return &FileResult{
		RequestID:      requestID,
		Filename:       filename,
		Transcript:     result.Transcript(),
		Language:       result.Language,
		Emotion:        result.Emotion,
		Event:          result.Event,
		Segments:       result.Segments,
		Clipped:        tensor.Clipped,
		AudioDuration:  frame.Duration(),
		ProcessingTime: processing,
	}, nil
}

// TranscribeBatch fans the payloads out into concurrent runs joined at the
// end. Results land in a pre-sized slice indexed by submission order, so no
// shared aggregate is written concurrently. Fan-out beyond one buys no
// extra inference throughput; it only overlaps ingest and scale work with
// the next request's wait for the accelerator slot.
func (o *Orchestrator) TranscribeBatch(ctx context.Context, files []BatchFile, opts Options) *BatchResult {
	start := time.Now()

	batch := &BatchResult{
		Entries: make([]BatchEntry, len(files)),
		Total:   len(files),
	}

	var wg sync.WaitGroup
	for i, file := range files {
		wg.Add(1)
		go func(idx int, f BatchFile) {
			defer wg.Done()
			result, err := o.Transcribe(ctx, f.Filename, f.Payload, opts)
			batch.Entries[idx] = BatchEntry{Filename: f.Filename, Result: result, Err: err}
		}(i, file)
	}
	wg.Wait()

	for _, entry := range batch.Entries {
		if entry.Err == nil {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
	}
	batch.ProcessingTime = time.Since(start).Seconds()

	o.logger.Info("batch transcription completed",
		slog.Int("total_files", batch.Total),
		slog.Int("successful_files", batch.Succeeded),
		slog.Int("failed_files", batch.Failed),
		slog.Float64("processing_time", batch.ProcessingTime),
	)

	return batch
}

func (o *Orchestrator) recordOutcome(success bool) {
	if o.health != nil {
		o.health.RecordOutcome(success)
	}
}
