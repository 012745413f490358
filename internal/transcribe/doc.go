// Package transcribe drives single-file and batch transcription requests
// through the ingest, scale, and scheduling stages. Batch processing fans
// files out concurrently while the scheduler serializes the actual
// accelerator calls; one file's failure never aborts its siblings.
package transcribe
