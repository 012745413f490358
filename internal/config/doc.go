// Package config provides configuration loading and validation for the
// SenseVoice transcription service. It layers YAML files and environment
// overrides on top of built-in defaults, with per-section validation.
package config
