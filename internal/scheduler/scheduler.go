package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/inference"
)

var (
	// ErrOverloaded is returned when the admission queue is at capacity.
	// This is the backpressure contract for the whole service; clients
	// should retry with backoff.
	ErrOverloaded = errors.New("scheduler queue at capacity")

	// ErrInferenceTimeout is returned when the engine does not release the
	// slot within the configured hold duration. Also a retry-with-backoff
	// condition.
	ErrInferenceTimeout = errors.New("inference call exceeded slot timeout")

	// ErrInferenceFailure wraps engine/runtime errors for one request.
	ErrInferenceFailure = errors.New("inference call failed")

	// ErrClosed is returned for submissions after shutdown began.
	ErrClosed = errors.New("scheduler closed")
)

// Config contains scheduler parameters
type Config struct {
	// QueueDepth bounds the number of submissions waiting for the slot
	QueueDepth int
	// SlotTimeout bounds how long one inference call may hold the slot
	SlotTimeout time.Duration
}

// Scheduler models the accelerator as a single-slot resource with a bounded
// FIFO wait queue. Admission order equals execution order regardless of
// client-side concurrency.
type Scheduler struct {
	engine inference.Engine
	cfg    Config
	logger *slog.Logger

	queue chan *ticket
	done  chan struct{}
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// ticket is one admitted submission waiting for the slot
type ticket struct {
	ctx    context.Context
	req    *inference.Request
	result chan outcome // buffered: the worker never blocks on a gone caller
}

type outcome struct {
	res *inference.Result
	err error
}

// New creates a scheduler and starts its worker
func New(engine inference.Engine, cfg Config, logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		engine: engine,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan *ticket, cfg.QueueDepth),
		done:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()

	return s
}

// Submit blocks the calling goroutine until the accelerator slot is free,
// invokes the engine while holding the slot exclusively, and releases it.
// Fails fast with ErrOverloaded when the wait queue is full. If ctx is
// cancelled before the slot is granted the submission is withdrawn without
// consuming accelerator time; after the call starts it runs to completion
// and the result is discarded.
func (s *Scheduler) Submit(ctx context.Context, req *inference.Request) (*inference.Result, error) {
	t := &ticket{
		ctx:    ctx,
		req:    req,
		result: make(chan outcome, 1),
	}

	select {
	case s.queue <- t:
	default:
		return nil, ErrOverloaded
	}

	select {
	case out := <-t.result:
		return out.res, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	}
}

// Close stops the worker after the in-flight call finishes. Queued tickets
// are rejected with ErrClosed.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

// run is the single worker goroutine; it is the sole serialization point in
// the system.
func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			s.drain()
			return
		case t := <-s.queue:
			if t.ctx.Err() != nil {
				// Caller disconnected while waiting; slot never granted.
				t.result <- outcome{err: t.ctx.Err()}
				continue
			}
			res, err := s.execute(t.req)
			t.result <- outcome{res: res, err: err}
		}
	}
}

// drain rejects tickets still queued at shutdown
func (s *Scheduler) drain() {
	for {
		select {
		case t := <-s.queue:
			t.result <- outcome{err: ErrClosed}
		default:
			return
		}
	}
}

// execute holds the slot for exactly one engine call. The slot is released
// on every exit path; a timed-out call keeps running in the background and
// its eventual result is discarded, since the accelerator call is stateless
// per invocation and cannot be interrupted mid-graph.
func (s *Scheduler) execute(req *inference.Request) (*inference.Result, error) {
	callCtx, cancel := context.WithTimeout(context.Background(), s.cfg.SlotTimeout)
	defer cancel()

	ch := make(chan outcome, 1)
	start := time.Now()
	go func() {
		res, err := s.engine.Infer(callCtx, req)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInferenceFailure, out.err)
		}
		return out.res, nil
	case <-callCtx.Done():
		s.logger.Warn("forcibly releasing accelerator slot",
			slog.Duration("held", time.Since(start)),
			slog.Duration("slot_timeout", s.cfg.SlotTimeout),
		)
		return nil, ErrInferenceTimeout
	}
}
