// Package scheduler serializes access to the single accelerator core. The
// accelerator executes one inference graph at a time and has no internal
// queuing, so all concurrent submissions pass through a bounded FIFO
// admission queue drained by a single worker holding the one slot.
package scheduler
