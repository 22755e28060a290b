/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-apidispatch/config"
	"github.com/acronis/go-apidispatch/log"
	"github.com/acronis/go-apidispatch/log/logtest"
	"github.com/acronis/go-apidispatch/testutil"
)

const blockedCheckDuration = time.Millisecond * 50

type countingExecutor struct {
	calls  atomic.Int32
	inputs sync.Map
}

func (e *countingExecutor) Execute(_ context.Context, input string) (string, error) {
	e.calls.Inc()
	e.inputs.Store(input, struct{}{})
	return "API response", nil
}

type dispatchOutcome struct {
	res Result[string]
	err error
}

func dispatchAsync(ctx context.Context, d *Dispatcher[string, string], input string) <-chan dispatchOutcome {
	done := make(chan dispatchOutcome, 1)
	go func() {
		res, err := d.Dispatch(ctx, input)
		done <- dispatchOutcome{res, err}
	}()
	return done
}

func newTestConfig(capacity int, penaltyPeriod time.Duration) *Config {
	cfg := NewDefaultConfig()
	cfg.Capacity = capacity
	cfg.PenaltyPeriod = config.TimeDuration(penaltyPeriod)
	return cfg
}

func TestDispatch_BurstThenWaitForRefill(t *testing.T) {
	clock := clockwork.NewFakeClock()
	executor := &countingExecutor{}
	d, err := New[string, string](executor, newTestConfig(15, 0), WithClock(clock))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan Result[string], 15)
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, dErr := d.Dispatch(context.Background(), fmt.Sprintf("Input for API call %d", i+1))
			assert.NoError(t, dErr)
			results <- res
		}(i)
	}
	wg.Wait()
	close(results)

	for res := range results {
		require.Equal(t, StatusSuccess, res.Status)
		require.Equal(t, "API response", res.Value)
		require.Zero(t, res.Waited)
	}
	require.Equal(t, 0, d.Tokens())
	require.False(t, d.Penalized())
	require.EqualValues(t, 15, executor.calls.Load())
	for i := 0; i < 15; i++ {
		_, found := executor.inputs.Load(fmt.Sprintf("Input for API call %d", i+1))
		require.True(t, found)
	}

	done := dispatchAsync(context.Background(), d, "API call after exceeding limit")

	// The caller polls every second and stays blocked until the refill.
	clock.BlockUntil(1)
	testutil.RequireNoReceive(t, done, blockedCheckDuration)
	clock.Advance(time.Second * 59)
	clock.BlockUntil(1)
	testutil.RequireNoReceive(t, done, blockedCheckDuration)
	require.EqualValues(t, 15, executor.calls.Load())
	require.Equal(t, 1, d.Stats().WaitingCallers)

	clock.Advance(time.Second)
	outcome := testutil.RequireReceive(t, done, time.Second)
	require.NoError(t, outcome.err)
	require.Equal(t, StatusSuccess, outcome.res.Status)
	require.Equal(t, time.Minute, outcome.res.Waited)
	require.Equal(t, 14, d.Tokens())
	require.EqualValues(t, 16, executor.calls.Load())
	require.Equal(t, 0, d.Stats().WaitingCallers)
}

func TestDispatch_Penalty(t *testing.T) {
	clock := clockwork.NewFakeClock()
	start := clock.Now()
	executor := &countingExecutor{}
	d, err := New[string, string](executor, newTestConfig(1, time.Second*5), WithClock(clock))
	require.NoError(t, err)

	res, err := d.Dispatch(context.Background(), "first")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, 0, d.Tokens())
	require.True(t, d.Penalized())
	require.Equal(t, start.Add(time.Second*5), d.PenaltyUntil())

	// Every call during the penalty window is rejected without reaching the executor.
	for _, offset := range []time.Duration{time.Second, time.Second * 3, time.Second*5 - time.Millisecond} {
		clock.Advance(start.Add(offset).Sub(clock.Now()))
		res, err = d.Dispatch(context.Background(), "rejected")
		require.NoError(t, err)
		require.Equal(t, StatusPenaltyRejected, res.Status)
		require.Equal(t, PenaltyMessage, res.Message())
		require.Equal(t, 0, d.Tokens())
	}
	require.EqualValues(t, 1, executor.calls.Load())

	clock.Advance(start.Add(time.Second * 6).Sub(clock.Now()))
	res, err = d.Dispatch(context.Background(), "third")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	require.EqualValues(t, 2, executor.calls.Load())

	// The third call drained the refilled bucket again.
	require.True(t, d.Penalized())
	require.Equal(t, start.Add(time.Second*11), d.PenaltyUntil())

	stats := d.Stats()
	require.EqualValues(t, 2, stats.Succeeded)
	require.EqualValues(t, 3, stats.Rejected)
	require.EqualValues(t, 0, stats.Failed)
}

func TestDispatch_PenaltyExpiryRefillsBucket(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d, err := New[string, string](&countingExecutor{}, newTestConfig(3, time.Second*90), WithClock(clock))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, dErr := d.Dispatch(context.Background(), "call")
		require.NoError(t, dErr)
		require.Equal(t, StatusSuccess, res.Status)
	}
	require.True(t, d.Penalized())

	// The regular refill is deferred while the penalty lasts.
	clock.Advance(time.Minute)
	require.Equal(t, 0, d.Tokens())
	require.True(t, d.Penalized())

	clock.Advance(time.Second * 30)
	require.False(t, d.Penalized())
	require.Equal(t, 3, d.Tokens())

	// The cadence continues from the construction time: the next refill is at 2m.
	res, err := d.Dispatch(context.Background(), "call")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, 2, d.Tokens())
	clock.Advance(time.Second * 29)
	require.Equal(t, 2, d.Tokens())
	clock.Advance(time.Second)
	require.Equal(t, 3, d.Tokens())
}

func TestDispatch_ExecutorFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	errBoom := errors.New("connection reset")
	var calls atomic.Int32
	executor := ExecutorFunc[string, int](func(_ context.Context, input string) (int, error) {
		calls.Inc()
		if input == "bad" {
			return 0, errBoom
		}
		return len(input), nil
	})
	logRecorder := logtest.NewRecorder()
	d, err := New[string, int](executor, newTestConfig(5, 0), WithClock(clock), WithLogger(logRecorder))
	require.NoError(t, err)

	res, err := d.Dispatch(context.Background(), "bad")
	require.NoError(t, err)
	require.Equal(t, StatusExecutorFailed, res.Status)
	require.ErrorIs(t, res.Err, errBoom)
	require.Equal(t, "API call failed: connection reset", res.Message())
	require.Equal(t, "API call failed: connection reset", res.String())
	require.Equal(t, 4, d.Tokens())

	res, err = d.Dispatch(context.Background(), "good")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, 4, res.Value)
	require.Equal(t, 3, d.Tokens())
	require.EqualValues(t, 2, calls.Load())

	entry, found := logRecorder.FindEntry("API call failed")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, entry.Level)
	require.Equal(t, "default", entry.StringField("target"))
	require.NotEmpty(t, entry.StringField("request_id"))
}

func TestDispatch_ExecutorPanic(t *testing.T) {
	clock := clockwork.NewFakeClock()
	executor := ExecutorFunc[string, string](func(_ context.Context, input string) (string, error) {
		if input == "panic" {
			panic("unexpected response")
		}
		return "ok", nil
	})
	logRecorder := logtest.NewRecorder()
	d, err := New[string, string](executor, newTestConfig(2, 0), WithClock(clock), WithLogger(logRecorder))
	require.NoError(t, err)

	var res Result[string]
	require.NotPanics(t, func() {
		res, err = d.Dispatch(context.Background(), "panic")
	})
	require.NoError(t, err)
	require.Equal(t, StatusExecutorFailed, res.Status)
	var panicErr *PanicError
	require.ErrorAs(t, res.Err, &panicErr)
	require.Equal(t, "unexpected response", panicErr.Value)
	require.Equal(t, "API call failed: panic: unexpected response", res.Message())
	require.Equal(t, 1, d.Tokens())

	entry, found := logRecorder.FindEntry("executor panic: unexpected response")
	require.True(t, found)
	require.Equal(t, log.LevelError, entry.Level)
	_, found = entry.FindField("stack")
	require.True(t, found)

	res, err = d.Dispatch(context.Background(), "next")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, 0, d.Tokens())
	require.EqualValues(t, 1, d.Stats().Failed)
	require.EqualValues(t, 1, d.Stats().Succeeded)
}

func TestDispatch_ContextCanceledWhileWaiting(t *testing.T) {
	clock := clockwork.NewFakeClock()
	executor := &countingExecutor{}
	d, err := New[string, string](executor, newTestConfig(1, 0), WithClock(clock))
	require.NoError(t, err)

	res, err := d.Dispatch(context.Background(), "first")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)

	ctx, cancel := context.WithCancel(context.Background())
	done := dispatchAsync(ctx, d, "abandoned")
	clock.BlockUntil(1)
	clock.Advance(time.Second * 10)
	clock.BlockUntil(1)
	cancel()

	outcome := testutil.RequireReceive(t, done, time.Second)
	require.ErrorIs(t, outcome.err, context.Canceled)
	require.NotEmpty(t, outcome.res.RequestID)
	require.Equal(t, time.Second*10, outcome.res.Waited)
	require.EqualValues(t, 1, executor.calls.Load())
	require.Equal(t, 0, d.Stats().WaitingCallers)

	// The abandoned wait did not consume the refilled token.
	clock.Advance(time.Second * 50)
	require.Equal(t, 1, d.Tokens())
}

func TestDispatch_ContextDeadlineWhileWaiting(t *testing.T) {
	d, err := New[string, string](&countingExecutor{}, newTestConfig(1, 0))
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*20)
	defer cancel()
	_, err = d.Dispatch(ctx, "second")
	testutil.RequireErrorIsAny(t, err, []error{context.DeadlineExceeded, context.Canceled})
	require.Equal(t, 0, d.Tokens())
}

func TestDispatch_ConcurrentCallersNeverOverAdmit(t *testing.T) {
	const capacity = 10
	const callers = 35

	clock := clockwork.NewFakeClock()
	executor := &countingExecutor{}
	d, err := New[string, string](executor, newTestConfig(capacity, 0), WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var succeeded, canceled atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, dErr := d.Dispatch(ctx, fmt.Sprintf("call %d", i))
			if dErr != nil {
				canceled.Inc()
				return
			}
			if assert.Equal(t, StatusSuccess, res.Status) {
				succeeded.Inc()
			}
		}(i)
	}

	callsReached := func(n int32) func() bool {
		return func() bool { return executor.calls.Load() == n }
	}

	clock.BlockUntil(callers - capacity)
	require.Eventually(t, callsReached(capacity), time.Second, time.Millisecond)
	require.Equal(t, 0, d.Tokens())

	clock.Advance(time.Minute)
	clock.BlockUntil(callers - 2*capacity)
	require.Eventually(t, callsReached(2*capacity), time.Second, time.Millisecond)
	require.Equal(t, 0, d.Tokens())

	cancel()
	wg.Wait()
	require.EqualValues(t, 2*capacity, succeeded.Load())
	require.EqualValues(t, callers-2*capacity, canceled.Load())
	require.Equal(t, 0, d.Tokens())
}

func TestDispatch_RefillWorkerWakesWaiters(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := newTestConfig(1, 0)
	cfg.PollInterval = config.TimeDuration(time.Hour)
	d, err := New[string, string](&countingExecutor{}, cfg, WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() { workerDone <- d.RefillWorker().Run(ctx) }()
	clock.BlockUntil(1)

	res, err := d.Dispatch(context.Background(), "first")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)

	done := dispatchAsync(context.Background(), d, "second")
	clock.BlockUntil(2) // refill worker + waiting caller

	// The poll interval is an hour, only the refill wakes the caller up.
	clock.Advance(time.Minute)
	outcome := testutil.RequireReceive(t, done, time.Second)
	require.NoError(t, outcome.err)
	require.Equal(t, StatusSuccess, outcome.res.Status)
	require.Equal(t, time.Minute, outcome.res.Waited)

	cancel()
	require.NoError(t, testutil.RequireReceive[error](t, workerDone, time.Second))
}

func TestDispatch_RefillWorkerAppliesPenaltyExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	logRecorder := logtest.NewRecorder()
	d, err := New[string, string](&countingExecutor{}, newTestConfig(1, time.Second*5),
		WithClock(clock), WithLogger(logRecorder))
	require.NoError(t, err)

	res, err := d.Dispatch(context.Background(), "first")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)

	unit := d.Unit()
	fatalErr := make(chan error, 1)
	go unit.Start(fatalErr)
	clock.BlockUntil(1)

	clock.Advance(time.Second * 5)
	require.Eventually(t, func() bool {
		return logRecorder.CountEntries("penalty expired, bucket refilled") == 1
	}, time.Second, time.Millisecond*5)

	require.NoError(t, unit.Stop(true))
	testutil.RequireNoErrorInChannel(t, fatalErr)
	require.Equal(t, 1, d.Tokens())
}

func TestDispatch_RejectionLogIsThrottled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	logRecorder := logtest.NewRecorder()
	d, err := New[string, string](&countingExecutor{}, newTestConfig(1, time.Minute*5),
		WithClock(clock), WithLogger(logRecorder), WithName("billing"))
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), "first")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		res, dErr := d.Dispatch(context.Background(), "rejected")
		require.NoError(t, dErr)
		require.Equal(t, StatusPenaltyRejected, res.Status)
	}

	require.Equal(t, 1, logRecorder.CountEntries("call rejected, penalty is active"))
	entry, found := logRecorder.FindEntry("bucket is drained, penalty started")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, entry.Level)
	require.Equal(t, "billing", entry.StringField("target"))
	require.EqualValues(t, 5, d.Stats().Rejected)
}

func TestNew(t *testing.T) {
	t.Run("nil config means defaults", func(t *testing.T) {
		d, err := New[string, string](&countingExecutor{}, nil)
		require.NoError(t, err)
		require.Equal(t, DefaultCapacity, d.Capacity())
		require.Equal(t, DefaultCapacity, d.Tokens())
		require.Equal(t, DefaultName, d.Name())
		require.False(t, d.Penalized())
		require.True(t, d.PenaltyUntil().IsZero())
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := New[string, string](&countingExecutor{}, newTestConfig(-1, 0))
		require.EqualError(t, err, "invalid dispatcher configuration: capacity: must be positive, got -1")
	})

	t.Run("nil executor", func(t *testing.T) {
		_, err := New[string, string](nil, nil)
		require.Error(t, err)
	})

	t.Run("independent instances", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		d1, err := New[string, string](&countingExecutor{}, newTestConfig(1, 0), WithClock(clock), WithName("a"))
		require.NoError(t, err)
		d2, err := New[string, string](&countingExecutor{}, newTestConfig(1, 0), WithClock(clock), WithName("b"))
		require.NoError(t, err)

		_, err = d1.Dispatch(context.Background(), "x")
		require.NoError(t, err)
		require.Equal(t, 0, d1.Tokens())
		require.Equal(t, 1, d2.Tokens())
	})
}

func TestDispatch_ExecutorContextCarriesRequestID(t *testing.T) {
	var seen string
	d, err := New[string, string](ExecutorFunc[string, string](func(ctx context.Context, _ string) (string, error) {
		seen = GetRequestIDFromContext(ctx)
		return "", nil
	}), newTestConfig(1, 0), WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)

	res, err := d.Dispatch(context.Background(), "input")
	require.NoError(t, err)
	require.NotEmpty(t, seen)
	require.Equal(t, res.RequestID, seen)
	require.Empty(t, GetRequestIDFromContext(context.Background()))
}
