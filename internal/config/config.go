package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Health        HealthConfig        `yaml:"health"`
	Inference     InferenceConfig     `yaml:"inference"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int    `yaml:"port"`
	Address      string `yaml:"address"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
}

// AudioConfig contains the audio profile required by the inference pipeline
type AudioConfig struct {
	SampleRate    int `yaml:"sample_rate"`
	Channels      int `yaml:"channels"`
	BitDepth      int `yaml:"bit_depth"`
	MaxFileSizeMB int `yaml:"max_file_size_mb"`
	MaxBatchSize  int `yaml:"max_batch_size"`
}

// TranscriptionConfig contains default transcription options; individual
// requests may override them through multipart form fields.
type TranscriptionConfig struct {
	Language                string  `yaml:"language"`
	UseITN                  bool    `yaml:"use_itn"`
	EnableEmotionDetection  bool    `yaml:"enable_emotion_detection"`
	EnableLanguageDetection bool    `yaml:"enable_language_detection"`
	SpeechScale             float64 `yaml:"speech_scale"`
}

// SchedulerConfig contains accelerator admission parameters
type SchedulerConfig struct {
	QueueDepth  int     `yaml:"queue_depth"`
	SlotTimeout float64 `yaml:"slot_timeout"` // seconds
}

// HealthConfig contains health state machine parameters
type HealthConfig struct {
	FailureWindow     int     `yaml:"failure_window"`
	DegradedThreshold float64 `yaml:"degraded_threshold"`
	RecoverySuccesses int     `yaml:"recovery_successes"`
}

// InferenceConfig contains inference engine configuration
type InferenceConfig struct {
	Mode      string `yaml:"mode"` // "exec" or "mock"
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// envOverrides maps deployment environment variables onto configuration
// fields. Pointer fields stay nil when the variable is unset.
type envOverrides struct {
	Port        *int     `envconfig:"PORT"`
	SpeechScale *float64 `envconfig:"SPEECH_SCALE"`
	ModelPath   *string  `envconfig:"MODEL_PATH"`
	LogLevel    *string  `envconfig:"LOG_LEVEL"`
	LogOutput   *string  `envconfig:"LOG_OUTPUT"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Address:      "0.0.0.0",
			ReadTimeout:  60,
			WriteTimeout: 120,
		},
		Audio: AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			BitDepth:      16,
			MaxFileSizeMB: 100,
			MaxBatchSize:  10,
		},
		Transcription: TranscriptionConfig{
			Language:                "auto",
			UseITN:                  false,
			EnableEmotionDetection:  true,
			EnableLanguageDetection: true,
			SpeechScale:             0.5,
		},
		Scheduler: SchedulerConfig{
			QueueDepth:  32,
			SlotTimeout: 120,
		},
		Health: HealthConfig{
			FailureWindow:     10,
			DegradedThreshold: 0.5,
			RecoverySuccesses: 3,
		},
		Inference: InferenceConfig{
			Mode:      "mock",
			ModelPath: "./models",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file, applies environment overrides, and
// validates the result. An empty path yields the defaults (still subject to
// environment overrides).
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// applyEnv overlays environment variables onto the loaded configuration
func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process("sensevoice", &env); err != nil {
		return err
	}

	if env.Port != nil {
		c.Server.Port = *env.Port
	}
	if env.SpeechScale != nil {
		c.Transcription.SpeechScale = *env.SpeechScale
	}
	if env.ModelPath != nil {
		c.Inference.ModelPath = *env.ModelPath
	}
	if env.LogLevel != nil {
		c.Logging.Level = *env.LogLevel
	}
	if env.LogOutput != nil {
		c.Logging.Output = *env.LogOutput
	}

	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler config: %w", err)
	}

	if err := c.Health.Validate(); err != nil {
		return fmt.Errorf("health config: %w", err)
	}

	if err := c.Inference.Validate(); err != nil {
		return fmt.Errorf("inference config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return errors.New("address cannot be empty")
	}

	if s.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", s.ReadTimeout)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz for the SenseVoice frontend, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.MaxFileSizeMB < 1 {
		return fmt.Errorf("max_file_size_mb must be at least 1, got %d", a.MaxFileSizeMB)
	}

	if a.MaxBatchSize < 1 {
		return fmt.Errorf("max_batch_size must be at least 1, got %d", a.MaxBatchSize)
	}

	return nil
}

// Validate validates transcription defaults
func (t *TranscriptionConfig) Validate() error {
	if t.Language == "" {
		return errors.New("language cannot be empty")
	}

	if t.SpeechScale <= 0 || t.SpeechScale > 1 {
		return fmt.Errorf("speech_scale must be in (0, 1], got %f", t.SpeechScale)
	}

	return nil
}

// Validate validates scheduler configuration
func (s *SchedulerConfig) Validate() error {
	if s.QueueDepth < 1 {
		return fmt.Errorf("queue_depth must be at least 1, got %d", s.QueueDepth)
	}

	if s.SlotTimeout <= 0 {
		return fmt.Errorf("slot_timeout must be positive, got %f", s.SlotTimeout)
	}

	return nil
}

// Validate validates health state machine configuration
func (h *HealthConfig) Validate() error {
	if h.FailureWindow < 1 {
		return fmt.Errorf("failure_window must be at least 1, got %d", h.FailureWindow)
	}

	if h.DegradedThreshold <= 0 || h.DegradedThreshold > 1 {
		return fmt.Errorf("degraded_threshold must be in (0, 1], got %f", h.DegradedThreshold)
	}

	if h.RecoverySuccesses < 1 {
		return fmt.Errorf("recovery_successes must be at least 1, got %d", h.RecoverySuccesses)
	}

	return nil
}

// Validate validates inference engine configuration
func (i *InferenceConfig) Validate() error {
	switch i.Mode {
	case "exec":
		if i.Command == "" {
			return errors.New("command cannot be empty in exec mode")
		}
	case "mock":
	default:
		return fmt.Errorf("mode must be 'exec' or 'mock', got '%s'", i.Mode)
	}

	if i.ModelPath == "" {
		return errors.New("model_path cannot be empty")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetSlotTimeoutDuration returns the accelerator slot timeout as a time.Duration
func (s *SchedulerConfig) GetSlotTimeoutDuration() time.Duration {
	return time.Duration(s.SlotTimeout * float64(time.Second))
}

// GetReadTimeoutDuration returns the HTTP read timeout as a time.Duration
func (s *ServerConfig) GetReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeoutDuration returns the HTTP write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// MaxFileSizeBytes returns the upload cap in bytes
func (a *AudioConfig) MaxFileSizeBytes() int64 {
	return int64(a.MaxFileSizeMB) * 1024 * 1024
}
