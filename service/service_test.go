/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-apidispatch/log"
	"github.com/acronis/go-apidispatch/log/logtest"
)

func TestService_Start(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	var running atomic.Int32
	unit := newMockUnit("unit", &running, nil)
	svc := New(logRecorder, unit)

	done := make(chan error, 1)
	go func() { done <- svc.Start() }()

	require.Eventually(t, func() bool { return running.Load() == 1 }, time.Second*3, time.Millisecond*10)
	require.EqualValues(t, 1, unit.mustRegisterMetricsCalled.Load())

	svc.Signals <- os.Interrupt
	require.NoError(t, <-done)

	require.Eventually(t, func() bool { return running.Load() == 0 }, time.Second*3, time.Millisecond*10)
	require.EqualValues(t, 1, unit.unregisterMetricsCalled.Load())
	require.EqualValues(t, 1, unit.stopGracefullyCalled.Load())

	_, found := logRecorder.FindEntry("service got signal, stopping")
	require.True(t, found)
}

func TestService_StartContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var running atomic.Int32
	unit := newMockUnit("unit", &running, nil)
	svc := New(logtest.NewRecorder(), unit)

	done := make(chan error, 1)
	go func() { done <- svc.StartContext(ctx) }()

	require.Eventually(t, func() bool { return running.Load() == 1 }, time.Second*3, time.Millisecond*10)
	cancel()
	require.NoError(t, <-done)
	require.EqualValues(t, 1, unit.stopGracefullyCalled.Load())
}

func TestService_FatalError(t *testing.T) {
	errBoom := errors.New("boom")
	logRecorder := logtest.NewRecorder()
	unit := &failingUnit{err: errBoom}
	svc := New(logRecorder, unit)

	err := svc.Start()
	require.ErrorIs(t, err, errBoom)
	require.EqualValues(t, 1, unit.stopCalled.Load())

	entry, found := logRecorder.FindEntry("service fatal error")
	require.True(t, found)
	require.Equal(t, log.LevelError, entry.Level)
}
