/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package dispatcher admits calls to a single external API at a bounded rate.
//
// A Dispatcher owns a token bucket that is refilled to capacity on a fixed cadence and a penalty
// (cool-down) state that is entered when the bucket is drained. Callers invoke Dispatch per request:
// when a penalty is active the call is rejected right away, otherwise the caller waits for a token,
// consumes it and the Executor is invoked. Rate limiting and penalties are reported through Result,
// never through the returned error.
//
// Waiting callers re-check the bucket every poll interval and are additionally woken up on refill.
// There is no FIFO ordering among waiters.
package dispatcher
