/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package dispatcher

import (
	"fmt"
	"time"
)

// Status is the outcome of a single Dispatch call.
type Status int

// Dispatch outcomes.
const (
	// StatusSuccess means the request was admitted and the executor returned a value.
	StatusSuccess Status = iota
	// StatusPenaltyRejected means the request arrived during a penalty period.
	// No token was consumed and the executor was not invoked.
	StatusPenaltyRejected
	// StatusExecutorFailed means the request was admitted but the executor returned an error or panicked.
	StatusExecutorFailed
)

// String returns the status as it is used in logs and metric labels.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPenaltyRejected:
		return "penalty_rejected"
	case StatusExecutorFailed:
		return "executor_failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// PenaltyMessage is the description of a PenaltyRejected result.
const PenaltyMessage = "penalty period: no API calls allowed"

// Result is what the caller gets back from Dispatch.
type Result[O any] struct {
	Status Status
	// Value is set for StatusSuccess.
	Value O
	// Err is set for StatusExecutorFailed.
	Err error
	// RequestID identifies the call in logs.
	RequestID string
	// Waited is how long the caller waited for a token.
	Waited time.Duration
}

// Message returns a human-readable description of a non-successful result.
func (r Result[O]) Message() string {
	switch r.Status {
	case StatusPenaltyRejected:
		return PenaltyMessage
	case StatusExecutorFailed:
		if r.Err == nil {
			return "API call failed"
		}
		return "API call failed: " + r.Err.Error()
	}
	return ""
}

// String implements fmt.Stringer.
func (r Result[O]) String() string {
	if r.Status == StatusSuccess {
		return fmt.Sprintf("success: %v", r.Value)
	}
	return r.Message()
}
