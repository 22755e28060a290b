/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"

	"github.com/acronis/go-apidispatch/dispatcher"
)

// RoundTripExecutor is a dispatcher.Executor performing an HTTP exchange with the delegate transport.
type RoundTripExecutor struct {
	Delegate http.RoundTripper
}

var _ dispatcher.Executor[*http.Request, *http.Response] = RoundTripExecutor{}

// Execute implements dispatcher.Executor.
// The request is sent with ctx, so the request ID of the dispatched call is visible to the delegate.
func (e RoundTripExecutor) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
	return e.Delegate.RoundTrip(req.WithContext(ctx))
}
