/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs long-lived parts of a dispatching process (refill workers, status servers)
// as units with a common start/stop lifecycle.
package service

// Unit is a component with its own lifecycle.
type Unit interface {
	// Start runs the unit. It may return right after initialization or block for the unit's lifetime.
	// A successfully started unit must not write to fatalErr, and the channel must not be used after Start returns.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that own Prometheus collectors.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
