package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name: "invalid server port",
			mutate: func(c *Config) {
				c.Server.Port = 70000
			},
			expectError: true,
			errorMsg:    "port must be between 1 and 65535",
		},
		{
			name: "invalid sample rate",
			mutate: func(c *Config) {
				c.Audio.SampleRate = 8000
			},
			expectError: true,
			errorMsg:    "sample_rate must be 16000 Hz",
		},
		{
			name: "invalid channel count",
			mutate: func(c *Config) {
				c.Audio.Channels = 2
			},
			expectError: true,
			errorMsg:    "channels must be 1",
		},
		{
			name: "speech scale above one",
			mutate: func(c *Config) {
				c.Transcription.SpeechScale = 1.5
			},
			expectError: true,
			errorMsg:    "speech_scale must be in (0, 1]",
		},
		{
			name: "speech scale zero",
			mutate: func(c *Config) {
				c.Transcription.SpeechScale = 0
			},
			expectError: true,
			errorMsg:    "speech_scale must be in (0, 1]",
		},
		{
			name: "zero queue depth",
			mutate: func(c *Config) {
				c.Scheduler.QueueDepth = 0
			},
			expectError: true,
			errorMsg:    "queue_depth must be at least 1",
		},
		{
			name: "negative slot timeout",
			mutate: func(c *Config) {
				c.Scheduler.SlotTimeout = -5
			},
			expectError: true,
			errorMsg:    "slot_timeout must be positive",
		},
		{
			name: "degraded threshold above one",
			mutate: func(c *Config) {
				c.Health.DegradedThreshold = 1.2
			},
			expectError: true,
			errorMsg:    "degraded_threshold must be in (0, 1]",
		},
		{
			name: "exec mode without command",
			mutate: func(c *Config) {
				c.Inference.Mode = "exec"
				c.Inference.Command = ""
			},
			expectError: true,
			errorMsg:    "command cannot be empty",
		},
		{
			name: "unknown inference mode",
			mutate: func(c *Config) {
				c.Inference.Mode = "remote"
			},
			expectError: true,
			errorMsg:    "mode must be 'exec' or 'mock'",
		},
		{
			name: "invalid log level",
			mutate: func(c *Config) {
				c.Logging.Level = "verbose"
			},
			expectError: true,
			errorMsg:    "level must be one of",
		},
		{
			name: "invalid log format",
			mutate: func(c *Config) {
				c.Logging.Format = "xml"
			},
			expectError: true,
			errorMsg:    "format must be 'json' or 'text'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)

			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
server:
  port: 9090
  address: "127.0.0.1"
transcription:
  language: "en"
  speech_scale: 0.7
scheduler:
  queue_depth: 4
  slot_timeout: 30
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
server:
  port: not_a_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "validation failure",
			configYAML: `
audio:
  sample_rate: 44100
`,
			expectError: true,
			errorMsg:    "sample_rate must be 16000 Hz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if config.Server.Port != 9090 {
				t.Errorf("Expected port 9090, got %d", config.Server.Port)
			}
			if config.Transcription.Language != "en" {
				t.Errorf("Expected language 'en', got '%s'", config.Transcription.Language)
			}
			// Fields absent from the file keep their defaults
			if config.Audio.SampleRate != 16000 {
				t.Errorf("Expected default sample rate 16000, got %d", config.Audio.SampleRate)
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Errorf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("SENSEVOICE_PORT", "9999")
	t.Setenv("SENSEVOICE_SPEECH_SCALE", "0.25")
	t.Setenv("SENSEVOICE_LOG_LEVEL", "debug")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}

	if config.Server.Port != 9999 {
		t.Errorf("Expected env override port 9999, got %d", config.Server.Port)
	}
	if config.Transcription.SpeechScale != 0.25 {
		t.Errorf("Expected env override speech scale 0.25, got %f", config.Transcription.SpeechScale)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected env override log level 'debug', got '%s'", config.Logging.Level)
	}
	// Untouched fields keep their defaults
	if config.Inference.Mode != "mock" {
		t.Errorf("Expected default inference mode 'mock', got '%s'", config.Inference.Mode)
	}
}

func TestDurationHelpers(t *testing.T) {
	scheduler := SchedulerConfig{SlotTimeout: 1.5}
	if scheduler.GetSlotTimeoutDuration() != 1500*time.Millisecond {
		t.Errorf("Expected 1.5 seconds, got %v", scheduler.GetSlotTimeoutDuration())
	}

	server := ServerConfig{ReadTimeout: 60, WriteTimeout: 120}
	if server.GetReadTimeoutDuration() != 60*time.Second {
		t.Errorf("Expected 60 seconds, got %v", server.GetReadTimeoutDuration())
	}
	if server.GetWriteTimeoutDuration() != 120*time.Second {
		t.Errorf("Expected 120 seconds, got %v", server.GetWriteTimeoutDuration())
	}

	audio := AudioConfig{MaxFileSizeMB: 100}
	if audio.MaxFileSizeBytes() != 100*1024*1024 {
		t.Errorf("Expected 100 MiB, got %d", audio.MaxFileSizeBytes())
	}
}
