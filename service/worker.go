/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/acronis/go-apidispatch/log"
)

// ErrPeriodicWorkerStop may be returned by a worker to end the PeriodicWorker loop without an error.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker")

// Worker performs some (usually long-running) work.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run implements Worker.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorker runs the underlying worker again and again with a delay between runs.
// Delays are measured with the configured clock, so a fake clock drives it deterministically.
type PeriodicWorker struct {
	worker        Worker
	name          string
	logger        log.FieldLogger
	clock         clockwork.Clock
	initialDelay  time.Duration
	intervalDelay time.Duration
	nextDelayFunc func(err error) time.Duration
}

// PeriodicWorkerOption customizes PeriodicWorker.
type PeriodicWorkerOption func(pw *PeriodicWorker)

// WithPeriodicWorkerClock sets the clock used for delays.
func WithPeriodicWorkerClock(clock clockwork.Clock) PeriodicWorkerOption {
	return func(pw *PeriodicWorker) {
		pw.clock = clock
	}
}

// WithInitialDelay sets the delay before the first run. By default, the first run is immediate.
func WithInitialDelay(d time.Duration) PeriodicWorkerOption {
	return func(pw *PeriodicWorker) {
		pw.initialDelay = d
	}
}

// WithNextDelayFunc overrides the constant interval with a delay computed from the result of the previous run.
func WithNextDelayFunc(fn func(err error) time.Duration) PeriodicWorkerOption {
	return func(pw *PeriodicWorker) {
		pw.nextDelayFunc = fn
	}
}

// WithWorkerName sets the name that is added to every log entry of the worker.
func WithWorkerName(name string) PeriodicWorkerOption {
	return func(pw *PeriodicWorker) {
		pw.name = name
	}
}

// NewPeriodicWorker creates a new PeriodicWorker.
func NewPeriodicWorker(
	worker Worker, intervalDelay time.Duration, logger log.FieldLogger, options ...PeriodicWorkerOption,
) *PeriodicWorker {
	pw := &PeriodicWorker{
		worker:        worker,
		logger:        logger,
		clock:         clockwork.NewRealClock(),
		intervalDelay: intervalDelay,
	}
	for _, opt := range options {
		opt(pw)
	}
	if pw.name != "" {
		pw.logger = pw.logger.With(log.String("worker", pw.name))
	}
	return pw
}

// Run runs the loop until ctx is done or the worker returns ErrPeriodicWorkerStop.
// Other worker errors are logged and do not stop the loop.
func (pw *PeriodicWorker) Run(ctx context.Context) (resErr error) {
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			pw.logger.Error(fmt.Sprintf("panic: %+v", p), log.Bytes("stack", stack))
			panic(p)
		}
		pw.logger.Info("periodic worker stopped")
	}()

	pw.logger.Info("periodic worker started",
		log.Duration("initial_delay", pw.initialDelay), log.Duration("interval", pw.intervalDelay))

	timer := pw.clock.NewTimer(pw.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.Chan():
		}

		err := pw.worker.Run(ctx)
		if err != nil {
			if errors.Is(err, ErrPeriodicWorkerStop) {
				return nil
			}
			pw.logger.Error("periodic worker run failed", log.Error(err))
		}

		nextDelay := pw.intervalDelay
		if pw.nextDelayFunc != nil {
			nextDelay = pw.nextDelayFunc(err)
		}
		timer.Reset(nextDelay)
	}
}
