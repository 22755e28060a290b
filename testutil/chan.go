/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"fmt"
	"time"

	"github.com/stretchr/testify/require"
)

// RequireReceive waits for a value from ch and fails the test if nothing arrives within timeout.
func RequireReceive[T any](t require.TestingT, ch <-chan T, timeout time.Duration, msgAndArgs ...interface{}) T {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-ch:
		return v
	case <-timer.C:
		require.FailNow(t, "no value received in "+timeout.String(), msgAndArgs...)
	}
	var zero T
	return zero
}

// RequireNoReceive fails the test if ch yields a value within d. It is used to assert that a caller stays blocked.
func RequireNoReceive[T any](t require.TestingT, ch <-chan T, d time.Duration, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case v := <-ch:
		require.FailNow(t, fmt.Sprintf("unexpected value received: %+v", v), msgAndArgs...)
	case <-timer.C:
	}
}
