/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-apidispatch/dispatcher"
)

// PenaltyRejectedError is returned by DispatchingRoundTripper when the request was not sent
// because the target is in a penalty period.
type PenaltyRejectedError struct {
	Target       string
	PenaltyUntil time.Time
}

func (e *PenaltyRejectedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Target, dispatcher.PenaltyMessage)
}

// ExecutorError is returned by DispatchingRoundTripper when the delegate transport failed or panicked.
type ExecutorError struct {
	Target string
	Err    error
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("%s: API call failed: %v", e.Target, e.Err)
}

func (e *ExecutorError) Unwrap() error {
	return e.Err
}

// DispatchingRoundTripper sends requests through a dispatcher.Dispatcher,
// so all requests made with it share one token bucket and one penalty state.
type DispatchingRoundTripper struct {
	Dispatcher *dispatcher.Dispatcher[*http.Request, *http.Response]
}

// NewDispatchingRoundTripper creates a DispatchingRoundTripper with a new dispatcher executing requests with delegate.
func NewDispatchingRoundTripper(
	delegate http.RoundTripper, cfg *dispatcher.Config, opts ...dispatcher.Option,
) (*DispatchingRoundTripper, error) {
	d, err := dispatcher.New[*http.Request, *http.Response](RoundTripExecutor{Delegate: delegate}, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &DispatchingRoundTripper{Dispatcher: d}, nil
}

// RoundTrip implements http.RoundTripper.
// A response with any status code is a successful dispatch, only transport errors are executor failures.
func (rt *DispatchingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := rt.Dispatcher.Dispatch(req.Context(), req)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case dispatcher.StatusSuccess:
		return res.Value, nil
	case dispatcher.StatusPenaltyRejected:
		return nil, &PenaltyRejectedError{Target: rt.Dispatcher.Name(), PenaltyUntil: rt.Dispatcher.PenaltyUntil()}
	default:
		return nil, &ExecutorError{Target: rt.Dispatcher.Name(), Err: res.Err}
	}
}
