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

// RequestIDHeader is the header used to propagate the request ID of a dispatched call.
const RequestIDHeader = "X-Request-ID"

// RequestIDRoundTripper sets the X-Request-ID header if the request does not have it yet.
type RequestIDRoundTripper struct {
	Delegate          http.RoundTripper
	RequestIDProvider func(ctx context.Context) string
}

// NewRequestIDRoundTripper creates a RequestIDRoundTripper.
// A nil provider means dispatcher.GetRequestIDFromContext, i.e. the ID generated by Dispatch.
func NewRequestIDRoundTripper(delegate http.RoundTripper, provider func(ctx context.Context) string) *RequestIDRoundTripper {
	if provider == nil {
		provider = dispatcher.GetRequestIDFromContext
	}
	return &RequestIDRoundTripper{Delegate: delegate, RequestIDProvider: provider}
}

// RoundTrip implements http.RoundTripper.
func (rt *RequestIDRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(RequestIDHeader) != "" {
		return rt.Delegate.RoundTrip(req)
	}
	requestID := rt.RequestIDProvider(req.Context())
	if requestID == "" {
		return rt.Delegate.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set(RequestIDHeader, requestID)
	return rt.Delegate.RoundTrip(req)
}
