package health

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is the process readiness state
type State int32

const (
	StateStarting State = iota
	StateHealthy
	StateDegraded
	StateUnhealthy
)

// String returns the wire name of the state
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Config contains the state machine thresholds
type Config struct {
	// FailureWindow is the number of recent outcomes considered
	FailureWindow int
	// DegradedThreshold is the failure rate over the window that trips degraded
	DegradedThreshold float64
	// RecoverySuccesses is the consecutive-success run that restores healthy
	RecoverySuccesses int
}

// Tracker is the health state machine. Reads are lock-free; outcome updates
// take a short mutex since they are far rarer than probes.
type Tracker struct {
	cfg   Config
	state atomic.Int32

	mu              sync.Mutex
	window          []bool // true = failure
	consecutiveOK   int
	modelLoaded     bool
	modelLoadFailed bool
	startTime       time.Time
}

// Snapshot is the health probe body
type Snapshot struct {
	Status         string  `json:"status"`
	ModelLoaded    bool    `json:"model_loaded"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	WindowSize     int     `json:"window_size"`
	WindowFailures int     `json:"window_failures"`
	WindowFailRate float64 `json:"window_failure_rate"`
}

// NewTracker creates a tracker in the starting state
func NewTracker(cfg Config) *Tracker {
	t := &Tracker{
		cfg:       cfg,
		startTime: time.Now(),
	}
	t.state.Store(int32(StateStarting))
	return t
}

// ModelLoaded marks the startup model load as successful
func (t *Tracker) ModelLoaded() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.modelLoaded = true
	t.state.Store(int32(StateHealthy))
}

// ModelLoadFailed marks the startup model load as failed. This state is
// terminal; the process is expected to exit non-zero.
func (t *Tracker) ModelLoadFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.modelLoadFailed = true
	t.state.Store(int32(StateUnhealthy))
}

// RecordOutcome feeds one transcription outcome into the sliding window and
// recomputes the state.
func (t *Tracker) RecordOutcome(success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.modelLoadFailed || !t.modelLoaded {
		return
	}

	t.window = append(t.window, !success)
	if len(t.window) > t.cfg.FailureWindow {
		t.window = t.window[len(t.window)-t.cfg.FailureWindow:]
	}
	if success {
		t.consecutiveOK++
	} else {
		t.consecutiveOK = 0
	}

	t.state.Store(int32(t.evaluate()))
}

// evaluate derives the state from the current window; caller holds mu
func (t *Tracker) evaluate() State {
	failures := 0
	for _, failed := range t.window {
		if failed {
			failures++
		}
	}
	rate := float64(failures) / float64(len(t.window))

	if t.consecutiveOK >= t.cfg.RecoverySuccesses {
		return StateHealthy
	}
	if len(t.window) >= t.cfg.FailureWindow && failures == len(t.window) {
		// Sustained failure streak across the whole window.
		return StateUnhealthy
	}
	if rate >= t.cfg.DegradedThreshold {
		return StateDegraded
	}
	return StateHealthy
}

// State returns the current state without locking
func (t *Tracker) State() State {
	return State(t.state.Load())
}

// Snapshot returns the health probe view
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	failures := 0
	for _, failed := range t.window {
		if failed {
			failures++
		}
	}
	rate := 0.0
	if len(t.window) > 0 {
		rate = float64(failures) / float64(len(t.window))
	}

	return Snapshot{
		Status:         State(t.state.Load()).String(),
		ModelLoaded:    t.modelLoaded,
		UptimeSeconds:  time.Since(t.startTime).Seconds(),
		WindowSize:     len(t.window),
		WindowFailures: failures,
		WindowFailRate: rate,
	}
}
