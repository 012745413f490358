// Package metrics defines the Prometheus instrumentation for the
// transcription service. All collectors are registered on an injected
// registry rather than the process-global default, so tests can instantiate
// isolated instances per run.
package metrics
