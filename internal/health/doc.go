// Package health tracks the process-wide readiness state machine. The state
// is driven by the startup model-load result and by a sliding window of
// recent transcription outcomes, and is read by the HTTP layer on every
// health probe.
package health
