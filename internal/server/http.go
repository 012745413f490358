package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/audio"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/config"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/health"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/inference"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/metrics"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/scheduler"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/transcribe"
)

const (
	serviceName    = "sensevoice-rknn-api"
	serviceVersion = "1.0.0"
)

// HTTPServer provides the service's HTTP API
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	orch    *transcribe.Orchestrator
	health  *health.Tracker
	metrics *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates the HTTP API server
func NewHTTPServer(cfg *config.Config, logger *slog.Logger,
	orch *transcribe.Orchestrator, tracker *health.Tracker, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		orch:      orch,
		health:    tracker,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.GetReadTimeoutDuration(),
		WriteTimeout: cfg.Server.GetWriteTimeoutDuration(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler exposes the route mux for tests
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/languages", h.withMetrics("/languages", h.handleLanguages))
	mux.HandleFunc("/transcribe", h.withMetrics("/transcribe", h.handleTranscribe))
	mux.HandleFunc("/transcribe/batch", h.withMetrics("/transcribe/batch", h.handleTranscribeBatch))

	// Snapshot endpoint is served straight off the registry.
	mux.Handle("/metrics", h.metrics.Handler())

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with request counting and latency collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		h.metrics.RecordRequest(endpoint, outcomeFromStatus(ww.statusCode), time.Since(startTime).Seconds())
	}
}

// outcomeFromStatus maps a response status to a metrics outcome label
func outcomeFromStatus(statusCode int) string {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return metrics.OutcomeOverloaded
	case statusCode == http.StatusGatewayTimeout:
		return metrics.OutcomeTimeout
	case statusCode >= 400:
		return metrics.OutcomeFailure
	default:
		return metrics.OutcomeSuccess
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// errorKind returns the stable error kind for a pipeline failure
func errorKind(err error) string {
	switch {
	case errors.Is(err, audio.ErrEmptyAudio):
		return "empty_audio"
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, audio.ErrInvalidGeometry):
		return "invalid_geometry"
	case errors.Is(err, audio.ErrOverflowDetected):
		return "overflow_detected"
	case errors.Is(err, scheduler.ErrOverloaded):
		return "overloaded"
	case errors.Is(err, scheduler.ErrInferenceTimeout):
		return "inference_timeout"
	default:
		return "inference_failure"
	}
}

// statusForError maps a pipeline failure to an HTTP status code
func statusForError(err error) int {
	switch {
	case errors.Is(err, audio.ErrEmptyAudio),
		errors.Is(err, audio.ErrUnsupportedFormat),
		errors.Is(err, audio.ErrInvalidGeometry):
		return http.StatusBadRequest
	case errors.Is(err, scheduler.ErrOverloaded):
		return http.StatusTooManyRequests
	case errors.Is(err, scheduler.ErrInferenceTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError writes the well-formed failure body every endpoint guarantees
func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]any{
		"success":    false,
		"error":      message,
		"error_kind": kind,
	})
}

// handleHealth implements GET /health. Status is communicated in the body;
// the HTTP code is 200 regardless so probes can always read it.
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot := h.health.Snapshot()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       snapshot.Status,
		"model_loaded": snapshot.ModelLoaded,
		"uptime":       time.Since(h.startTime).String(),
		"timestamp":    time.Now().UTC(),
		"service": map[string]any{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"window": map[string]any{
			"size":         snapshot.WindowSize,
			"failures":     snapshot.WindowFailures,
			"failure_rate": snapshot.WindowFailRate,
		},
	})
}

// handleConfig implements GET /config
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"features": map[string]any{
			"emotion_detection":          h.config.Transcription.EnableEmotionDetection,
			"language_detection":         h.config.Transcription.EnableLanguageDetection,
			"event_detection":            true,
			"inverse_text_normalization": true,
			"speaker_diarization":        false,
		},
		"audio": map[string]any{
			"sample_rate": h.config.Audio.SampleRate,
			"channels":    h.config.Audio.Channels,
			"bit_depth":   h.config.Audio.BitDepth,
		},
		"transcription": map[string]any{
			"language":     h.config.Transcription.Language,
			"use_itn":      h.config.Transcription.UseITN,
			"speech_scale": h.config.Transcription.SpeechScale,
		},
		"scheduler": map[string]any{
			"queue_depth":  h.config.Scheduler.QueueDepth,
			"slot_timeout": h.config.Scheduler.SlotTimeout,
		},
		"supported_formats": []string{"wav"},
		"max_file_size_mb":  h.config.Audio.MaxFileSizeMB,
		"max_batch_size":    h.config.Audio.MaxBatchSize,
	})
}

// handleLanguages implements GET /languages
func (h *HTTPServer) handleLanguages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"languages":      inference.Languages(),
		"language_codes": inference.LanguageCodes(),
	})
}

// parseOptions reads per-request option overrides from the multipart form
func (h *HTTPServer) parseOptions(r *http.Request) (transcribe.Options, error) {
	opts := transcribe.OptionsFromConfig(h.config.Transcription)

	if v := r.FormValue("language"); v != "" {
		if !inference.IsSupportedLanguage(v) {
			return opts, fmt.Errorf("unsupported language '%s'", v)
		}
		opts.Language = v
	}
	if v := r.FormValue("use_itn"); v != "" {
		opts.UseITN = v == "true"
	}
	if v := r.FormValue("enable_emotion_detection"); v != "" {
		opts.EnableEmotionDetection = v == "true"
	}
	if v := r.FormValue("enable_language_detection"); v != "" {
		opts.EnableLanguageDetection = v == "true"
	}
	if v := r.FormValue("speech_scale"); v != "" {
		scale, err := strconv.ParseFloat(v, 32)
		if err != nil || scale <= 0 || scale > 1 {
			return opts, fmt.Errorf("speech_scale must be in (0, 1], got '%s'", v)
		}
		opts.SpeechScale = float32(scale)
	}

	return opts, nil
}

// readUpload reads one multipart file into memory
func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	file, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer file.Close()

	return io.ReadAll(file)
}

// handleTranscribe implements POST /transcribe
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.Audio.MaxFileSizeBytes())
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "unsupported_format", "failed to parse multipart form: "+err.Error())
		return
	}

	files := r.MultipartForm.File["audio"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "empty_audio", "no audio file provided")
		return
	}

	opts, err := h.parseOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_options", err.Error())
		return
	}

	payload, err := readUpload(files[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "empty_audio", err.Error())
		return
	}

	result, err := h.orch.Transcribe(r.Context(), files[0].Filename, payload, opts)
	if err != nil {
		h.logger.Warn("transcription request failed",
			slog.String("filename", files[0].Filename),
			slog.String("error_kind", errorKind(err)),
			slog.String("error", err.Error()),
		)
		writeError(w, statusForError(err), errorKind(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":               true,
		"request_id":            result.RequestID,
		"transcript":            result.Transcript,
		"language":              result.Language,
		"emotion":               result.Emotion,
		"event":                 result.Event,
		"clipped":               result.Clipped,
		"results":               result.Segments,
		"total_segments":        len(result.Segments),
		"total_processing_time": result.ProcessingTime,
	})
}

// handleTranscribeBatch implements POST /transcribe/batch
func (h *HTTPServer) handleTranscribeBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	maxBatch := h.config.Audio.MaxBatchSize
	r.Body = http.MaxBytesReader(w, r.Body, h.config.Audio.MaxFileSizeBytes()*int64(maxBatch))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "unsupported_format", "failed to parse multipart form: "+err.Error())
		return
	}

	uploads := r.MultipartForm.File["audio_files"]
	if len(uploads) == 0 {
		writeError(w, http.StatusBadRequest, "empty_audio", "no audio files provided")
		return
	}
	if len(uploads) > maxBatch {
		writeError(w, http.StatusBadRequest, "invalid_options",
			fmt.Sprintf("batch size %d exceeds maximum %d", len(uploads), maxBatch))
		return
	}

	opts, err := h.parseOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_options", err.Error())
		return
	}

	files := make([]transcribe.BatchFile, 0, len(uploads))
	for _, fh := range uploads {
		payload, err := readUpload(fh)
		if err != nil {
			// An unreadable part becomes an empty payload; the ingest
			// stage turns it into a per-file error entry.
			payload = nil
		}
		files = append(files, transcribe.BatchFile{Filename: fh.Filename, Payload: payload})
	}

	batch := h.orch.TranscribeBatch(r.Context(), files, opts)

	entries := make([]map[string]any, len(batch.Entries))
	for i, entry := range batch.Entries {
		if entry.Err != nil {
			entries[i] = map[string]any{
				"filename":   entry.Filename,
				"success":    false,
				"error":      entry.Err.Error(),
				"error_kind": errorKind(entry.Err),
			}
			continue
		}
		entries[i] = map[string]any{
			"filename":       entry.Filename,
			"success":        true,
			"transcript":     entry.Result.Transcript,
			"language":       entry.Result.Language,
			"emotion":        entry.Result.Emotion,
			"event":          entry.Result.Event,
			"results":        entry.Result.Segments,
			"total_segments": len(entry.Result.Segments),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":               true,
		"batch_results":         entries,
		"total_files":           batch.Total,
		"successful_files":      batch.Succeeded,
		"total_processing_time": batch.ProcessingTime,
	})
}

// handleRoot implements GET / with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service": "SenseVoice RKNN Transcription Service",
		"version": serviceVersion,
		"endpoints": map[string]any{
			"GET /":                  "API documentation",
			"GET /health":            "Service health check",
			"GET /config":            "Get service configuration",
			"GET /languages":         "List supported languages",
			"POST /transcribe":       "Transcribe one audio file (multipart field 'audio')",
			"POST /transcribe/batch": "Transcribe multiple files (multipart field 'audio_files')",
			"GET /metrics":           "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
