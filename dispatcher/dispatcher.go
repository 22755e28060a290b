/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package dispatcher

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/xid"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/acronis/go-apidispatch/log"
)

// DefaultName is the dispatcher name used in logs and metrics when WithName is not given.
const DefaultName = "default"

const rejectionsLogInterval = time.Second * 10

// Option configures optional parameters of a Dispatcher.
type Option func(*options)

type options struct {
	name    string
	logger  log.FieldLogger
	clock   clockwork.Clock
	metrics MetricsCollector
}

// WithName sets the name of the API target. It is used as the "target" label and log field.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger. By default, nothing is logged.
func WithLogger(logger log.FieldLogger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the time source. A fake clock makes the dispatcher fully deterministic in tests.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithMetricsCollector sets the metrics collector. By default, metrics are not collected.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metrics = mc
	}
}

// Stats is a snapshot of the dispatcher state and its counters.
type Stats struct {
	Name           string    `json:"name"`
	Capacity       int       `json:"capacity"`
	Tokens         int       `json:"tokens"`
	Penalized      bool      `json:"penalized"`
	PenaltyUntil   time.Time `json:"penaltyUntil,omitempty"`
	WaitingCallers int       `json:"waitingCallers"`
	Succeeded      int64     `json:"succeeded"`
	Rejected       int64     `json:"rejected"`
	Failed         int64     `json:"failed"`
}

// Dispatcher admits calls to a single API target using a token bucket and a penalty state.
// It is safe for concurrent use. Create it with New.
type Dispatcher[I, O any] struct {
	executor Executor[I, O]
	name     string
	logger   log.FieldLogger
	clock    clockwork.Clock
	metrics  MetricsCollector

	capacity       int
	penaltyPeriod  time.Duration
	refillInterval time.Duration
	pollInterval   time.Duration

	// mu guards the bucket, the penalty and the refill schedule as a whole,
	// since entering a penalty depends on the token count after a decrement.
	mu           sync.Mutex
	tokens       int
	penaltyUntil time.Time
	startedAt    time.Time
	nextRefillAt time.Time
	refilled     chan struct{} // closed and replaced on every refill

	waiting   atomic.Int32
	succeeded atomic.Int64
	rejected  atomic.Int64
	failed    atomic.Int64

	rejectionsLog rate.Sometimes
}

// New creates a Dispatcher with a full bucket. A nil cfg means NewDefaultConfig().
// An invalid configuration is reported as an error.
func New[I, O any](executor Executor[I, O], cfg *Config, opts ...Option) (*Dispatcher[I, O], error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dispatcher configuration: %w", err)
	}

	o := options{name: DefaultName}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewDisabledLogger()
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.metrics == nil {
		o.metrics = disabledMetricsCollector
	}

	now := o.clock.Now()
	d := &Dispatcher[I, O]{
		executor:       executor,
		name:           o.name,
		logger:         o.logger.With(log.String("target", o.name)),
		clock:          o.clock,
		metrics:        o.metrics,
		capacity:       cfg.Capacity,
		penaltyPeriod:  time.Duration(cfg.PenaltyPeriod),
		refillInterval: time.Duration(cfg.RefillInterval),
		pollInterval:   time.Duration(cfg.PollInterval),
		tokens:         cfg.Capacity,
		startedAt:      now,
		nextRefillAt:   now.Add(time.Duration(cfg.RefillInterval)),
		refilled:       make(chan struct{}),
		rejectionsLog:  rate.Sometimes{First: 1, Interval: rejectionsLogInterval},
	}
	d.metrics.SetTokens(d.name, d.capacity)
	return d, nil
}

// Name returns the name of the API target.
func (d *Dispatcher[I, O]) Name() string {
	return d.name
}

// Capacity returns the number of tokens in a full bucket.
func (d *Dispatcher[I, O]) Capacity() int {
	return d.capacity
}

// Dispatch admits the request and invokes the executor with it.
//
// When a penalty is active, StatusPenaltyRejected is returned immediately. Otherwise the caller waits
// until a token is available, the token is consumed and the executor is called. An executor error or panic
// is reported as StatusExecutorFailed. The executor context carries the request ID, see GetRequestIDFromContext.
//
// The returned error is non-nil only if ctx is done while the caller is waiting for a token.
// No token is consumed in this case.
func (d *Dispatcher[I, O]) Dispatch(ctx context.Context, input I) (Result[O], error) {
	res := Result[O]{RequestID: xid.New().String()}
	logger := d.logger.With(log.String("request_id", res.RequestID))

	waited, admitted, err := d.admit(ctx)
	res.Waited = waited
	if err != nil {
		logger.Debug("gave up waiting for a token", log.Duration("waited", waited), log.Error(err))
		return res, fmt.Errorf("wait for token: %w", err)
	}
	if !admitted {
		res.Status = StatusPenaltyRejected
		d.rejected.Inc()
		d.metrics.IncAdmissions(d.name, res.Status)
		d.rejectionsLog.Do(func() {
			logger.Warn("call rejected, penalty is active", log.Time("penalty_until", d.PenaltyUntil()))
		})
		return res, nil
	}

	d.metrics.ObserveWait(d.name, waited)
	logger.Debug("call admitted", log.Duration("waited", waited))

	value, execErr := d.execute(NewContextWithRequestID(ctx, res.RequestID), input, logger)
	if execErr != nil {
		res.Status = StatusExecutorFailed
		res.Err = execErr
		d.failed.Inc()
		d.metrics.IncAdmissions(d.name, res.Status)
		logger.Warn("API call failed", log.Error(execErr))
		return res, nil
	}

	res.Status = StatusSuccess
	res.Value = value
	d.succeeded.Inc()
	d.metrics.IncAdmissions(d.name, res.Status)
	return res, nil
}

// admit rejects the caller if a penalty is active, otherwise waits for a token and consumes it.
// The penalty is checked only on entry: callers already waiting keep waiting through a penalty
// and are admitted when it expires and the bucket is refilled.
func (d *Dispatcher[I, O]) admit(ctx context.Context) (waited time.Duration, admitted bool, err error) {
	startedAt := d.clock.Now()

	d.mu.Lock()
	tr := d.advanceLocked(startedAt)
	if d.penalizedLocked(startedAt) {
		d.mu.Unlock()
		d.reportTransition(tr)
		return 0, false, nil
	}
	ok, tokens, penaltyUntil, wake := d.takeTokenLocked(startedAt)
	d.mu.Unlock()
	d.reportTransition(tr)
	if ok {
		d.reportTokenTaken(tokens, penaltyUntil)
		return 0, true, nil
	}

	d.metrics.SetWaitingCallers(d.name, int(d.waiting.Inc()))
	defer func() {
		d.metrics.SetWaitingCallers(d.name, int(d.waiting.Dec()))
	}()

	poll := d.clock.NewTimer(d.pollInterval)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return d.clock.Since(startedAt), false, ctx.Err()
		case <-wake:
			poll.Stop()
		case <-poll.Chan():
		}

		now := d.clock.Now()
		d.mu.Lock()
		tr = d.advanceLocked(now)
		ok, tokens, penaltyUntil, wake = d.takeTokenLocked(now)
		d.mu.Unlock()
		d.reportTransition(tr)
		if ok {
			d.reportTokenTaken(tokens, penaltyUntil)
			return d.clock.Since(startedAt), true, nil
		}
		poll.Reset(d.pollInterval)
	}
}

// reportTokenTaken is called without the lock held. A non-zero penaltyUntil means the decrement started a penalty.
func (d *Dispatcher[I, O]) reportTokenTaken(tokens int, penaltyUntil time.Time) {
	d.metrics.SetTokens(d.name, tokens)
	if !penaltyUntil.IsZero() {
		d.metrics.IncPenalties(d.name)
		d.logger.Warn("bucket is drained, penalty started",
			log.Duration("penalty_period", d.penaltyPeriod), log.Time("penalty_until", penaltyUntil))
	}
}

func (d *Dispatcher[I, O]) execute(ctx context.Context, input I, logger log.FieldLogger) (value O, err error) {
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			logger.Error(fmt.Sprintf("executor panic: %+v", p), log.Bytes("stack", stack))
			err = &PanicError{Value: p}
		}
	}()
	return d.executor.Execute(ctx, input)
}

// Tokens returns the number of tokens currently available.
func (d *Dispatcher[I, O]) Tokens() int {
	d.mu.Lock()
	tr := d.advanceLocked(d.clock.Now())
	tokens := d.tokens
	d.mu.Unlock()
	d.reportTransition(tr)
	return tokens
}

// PenaltyUntil returns the end of the active penalty, or the zero time if there is none.
func (d *Dispatcher[I, O]) PenaltyUntil() time.Time {
	d.mu.Lock()
	tr := d.advanceLocked(d.clock.Now())
	until := d.penaltyUntil
	d.mu.Unlock()
	d.reportTransition(tr)
	return until
}

// Penalized reports whether new calls are being rejected right now.
func (d *Dispatcher[I, O]) Penalized() bool {
	return !d.PenaltyUntil().IsZero()
}

// Stats returns a snapshot of the dispatcher state and counters.
func (d *Dispatcher[I, O]) Stats() Stats {
	d.mu.Lock()
	tr := d.advanceLocked(d.clock.Now())
	s := Stats{
		Name:         d.name,
		Capacity:     d.capacity,
		Tokens:       d.tokens,
		Penalized:    !d.penaltyUntil.IsZero(),
		PenaltyUntil: d.penaltyUntil,
	}
	d.mu.Unlock()
	d.reportTransition(tr)

	s.WaitingCallers = int(d.waiting.Load())
	s.Succeeded = d.succeeded.Load()
	s.Rejected = d.rejected.Load()
	s.Failed = d.failed.Load()
	return s
}

// PanicError is the error of an ExecutorFailed result when the executor panicked.
type PanicError struct {
	Value interface{}
}

// Error implements error.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
