/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient provides an HTTP client whose requests to one API target are admitted by a dispatcher.
package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/acronis/go-apidispatch/dispatcher"
	"github.com/acronis/go-apidispatch/log"
)

// Opts provides optional parameters for New.
type Opts struct {
	// Delegate is the transport performing HTTP exchanges. A clone of http.DefaultTransport is used by default.
	Delegate http.RoundTripper

	// Name is the API target name used in logs and metrics.
	Name string

	Logger           log.FieldLogger
	MetricsCollector dispatcher.MetricsCollector
	Clock            clockwork.Clock
}

// New creates an HTTP client sending requests through a new dispatcher.
// The chain is: dispatcher -> User-Agent -> X-Request-ID -> delegate.
// The returned round tripper gives access to the dispatcher (stats, refill worker).
func New(cfg *Config, opts Opts) (*http.Client, *DispatchingRoundTripper, error) {
	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}
	delegate = NewRequestIDRoundTripper(delegate, nil)
	if cfg.UserAgent != "" {
		delegate = NewUserAgentRoundTripper(delegate, cfg.UserAgent, UserAgentUpdateStrategySetIfEmpty)
	}

	var dOpts []dispatcher.Option
	if opts.Name != "" {
		dOpts = append(dOpts, dispatcher.WithName(opts.Name))
	}
	if opts.Logger != nil {
		dOpts = append(dOpts, dispatcher.WithLogger(opts.Logger))
	}
	if opts.MetricsCollector != nil {
		dOpts = append(dOpts, dispatcher.WithMetricsCollector(opts.MetricsCollector))
	}
	if opts.Clock != nil {
		dOpts = append(dOpts, dispatcher.WithClock(opts.Clock))
	}

	rt, err := NewDispatchingRoundTripper(delegate, &cfg.Dispatcher, dOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create dispatching round tripper: %w", err)
	}
	return &http.Client{Transport: rt, Timeout: time.Duration(cfg.Timeout)}, rt, nil
}
