// Package server implements the HTTP surface of the transcription service:
// single and batch transcription uploads, health and configuration probes,
// the supported-language listing, and the Prometheus metrics snapshot.
package server
