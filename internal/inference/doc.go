// Package inference defines the accelerator-backed speech model capability.
// The engine is opaque to the rest of the service: it receives a scaled
// tensor and returns transcript text with language, emotion, and audio event
// tags, or fails. Implementations wrap the external RKNN runner binary or a
// deterministic mock for tests and development.
package inference
