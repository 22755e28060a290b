/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import "net/http"

// UserAgentUpdateStrategy defines how the User-Agent header of an outgoing request is changed.
type UserAgentUpdateStrategy int

// User-Agent update strategies.
const (
	UserAgentUpdateStrategySetIfEmpty UserAgentUpdateStrategy = iota
	UserAgentUpdateStrategyAppend
	UserAgentUpdateStrategyPrepend
)

// UserAgentRoundTripper sets the User-Agent header of outgoing requests.
type UserAgentRoundTripper struct {
	Delegate       http.RoundTripper
	UserAgent      string
	UpdateStrategy UserAgentUpdateStrategy
}

// NewUserAgentRoundTripper creates a UserAgentRoundTripper.
func NewUserAgentRoundTripper(
	delegate http.RoundTripper, userAgent string, strategy UserAgentUpdateStrategy,
) *UserAgentRoundTripper {
	return &UserAgentRoundTripper{Delegate: delegate, UserAgent: userAgent, UpdateStrategy: strategy}
}

// RoundTrip implements http.RoundTripper.
func (rt *UserAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	current := req.Header.Get("User-Agent")
	updated := rt.UserAgent
	if current != "" {
		switch rt.UpdateStrategy {
		case UserAgentUpdateStrategyAppend:
			updated = current + " " + rt.UserAgent
		case UserAgentUpdateStrategyPrepend:
			updated = rt.UserAgent + " " + current
		default:
			return rt.Delegate.RoundTrip(req)
		}
	}
	req = req.Clone(req.Context()) // RoundTripper must not modify the request.
	req.Header.Set("User-Agent", updated)
	return rt.Delegate.RoundTrip(req)
}
