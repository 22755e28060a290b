/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type mockUnit struct {
	name    string
	running *atomic.Int32
	stopCh  chan struct{}
	stopErr error

	startCalled               atomic.Int32
	stopCalled                atomic.Int32
	stopGracefullyCalled      atomic.Int32
	mustRegisterMetricsCalled atomic.Int32
	unregisterMetricsCalled   atomic.Int32
}

func newMockUnit(name string, running *atomic.Int32, stopErr error) *mockUnit {
	return &mockUnit{name: name, running: running, stopCh: make(chan struct{}), stopErr: stopErr}
}

func (u *mockUnit) Start(_ chan<- error) {
	u.startCalled.Inc()
	u.running.Inc()
	<-u.stopCh
	u.running.Dec()
}

func (u *mockUnit) Stop(gracefully bool) error {
	u.stopCalled.Inc()
	if gracefully {
		u.stopGracefullyCalled.Inc()
	}
	close(u.stopCh)
	return u.stopErr
}

func (u *mockUnit) MustRegisterMetrics() { u.mustRegisterMetricsCalled.Inc() }

func (u *mockUnit) UnregisterMetrics() { u.unregisterMetricsCalled.Inc() }

type failingUnit struct {
	err         error
	stopCalled  atomic.Int32
	startCalled atomic.Int32
}

func (u *failingUnit) Start(fatalErr chan<- error) {
	u.startCalled.Inc()
	fatalErr <- u.err
}

func (u *failingUnit) Stop(bool) error {
	u.stopCalled.Inc()
	return nil
}

func makeCompositeUnit(n int, running *atomic.Int32, stopErrFunc func(i int) error) (*CompositeUnit, []*mockUnit) {
	mocks := make([]*mockUnit, 0, n)
	units := make([]Unit, 0, n)
	for i := 0; i < n; i++ {
		var stopErr error
		if stopErrFunc != nil {
			stopErr = stopErrFunc(i)
		}
		u := newMockUnit(fmt.Sprintf("unit#%d", i), running, stopErr)
		mocks = append(mocks, u)
		units = append(units, u)
	}
	return NewCompositeUnit(units...), mocks
}

func TestCompositeUnit_StartAndStop(t *testing.T) {
	t.Run("stop without errors", func(t *testing.T) {
		const unitsNum = 50
		var running atomic.Int32
		cu, _ := makeCompositeUnit(unitsNum, &running, nil)

		startExit := make(chan struct{})
		go func() {
			defer close(startExit)
			cu.Start(make(chan error, 1))
		}()

		require.Eventually(t, func() bool { return running.Load() == unitsNum }, time.Second*3, time.Millisecond*10)
		require.NoError(t, cu.Stop(true))

		select {
		case <-startExit:
		case <-time.After(time.Second * 3):
			require.Fail(t, "waiting for Start to return timed out")
		}
		require.EqualValues(t, 0, running.Load())
	})

	t.Run("stop with errors", func(t *testing.T) {
		const unitsNum = 20
		const failingNum = 12
		var running atomic.Int32
		cu, _ := makeCompositeUnit(unitsNum, &running, func(i int) error {
			if i < failingNum {
				return fmt.Errorf("unit#%d: internal error", i)
			}
			return nil
		})

		go cu.Start(make(chan error, 1))
		require.Eventually(t, func() bool { return running.Load() == unitsNum }, time.Second*3, time.Millisecond*10)

		err := cu.Stop(true)
		var cuErr *CompositeUnitError
		require.ErrorAs(t, err, &cuErr)
		require.Len(t, cuErr.UnitErrors, failingNum)
		require.Eventually(t, func() bool { return running.Load() == 0 }, time.Second*3, time.Millisecond*10)
	})
}

func TestCompositeUnit_StartWithFatalError(t *testing.T) {
	errBoom := errors.New("boom")
	var running atomic.Int32
	healthy := newMockUnit("healthy", &running, nil)
	failing := &failingUnit{err: errBoom}
	cu := NewCompositeUnit(healthy, failing)

	fatalErr := make(chan error, 1)
	cu.Start(fatalErr)

	err := <-fatalErr
	require.ErrorIs(t, err, errBoom)
	require.EqualValues(t, 1, healthy.stopCalled.Load())
	require.EqualValues(t, 0, healthy.stopGracefullyCalled.Load())
	require.EqualValues(t, 1, failing.stopCalled.Load())
	require.EqualValues(t, 0, running.Load())
}

func TestCompositeUnit_Metrics(t *testing.T) {
	var running atomic.Int32
	cu, mocks := makeCompositeUnit(3, &running, nil)
	cu.MustRegisterMetrics()
	cu.UnregisterMetrics()
	for _, m := range mocks {
		require.EqualValues(t, 1, m.mustRegisterMetricsCalled.Load())
		require.EqualValues(t, 1, m.unregisterMetricsCalled.Load())
	}
}
