/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/acronis/go-apidispatch/log"
)

// Opts configures a Service.
type Opts struct {
	// ShutdownSignals stop the service gracefully. SIGINT and SIGTERM are used by New.
	ShutdownSignals []os.Signal
}

// Service runs a single (usually composite) unit until a shutdown signal, ctx cancellation or a fatal error.
// Metrics of the unit are registered for the lifetime of the service if it implements MetricsRegisterer.
type Service struct {
	Unit    Unit
	Logger  log.FieldLogger
	Signals chan os.Signal
	Opts    Opts
}

// New creates a Service stopping on SIGINT and SIGTERM.
func New(logger log.FieldLogger, unit Unit) *Service {
	return NewWithOpts(logger, unit, Opts{ShutdownSignals: []os.Signal{syscall.SIGINT, syscall.SIGTERM}})
}

// NewWithOpts creates a Service with custom options.
func NewWithOpts(logger log.FieldLogger, unit Unit, opts Opts) *Service {
	return &Service{Unit: unit, Logger: logger, Signals: make(chan os.Signal, 1), Opts: opts}
}

// Start is StartContext with the background context.
func (s *Service) Start() error {
	return s.StartContext(context.Background())
}

// StartContext starts the unit in a separate goroutine and blocks until it should be stopped.
// The unit is stopped gracefully on a signal or ctx cancellation. A fatal error of the unit is returned
// after stopping it non-gracefully.
func (s *Service) StartContext(ctx context.Context) error {
	if mr, ok := s.Unit.(MetricsRegisterer); ok {
		mr.MustRegisterMetrics()
		defer mr.UnregisterMetrics()
	}

	signal.Notify(s.Signals, s.Opts.ShutdownSignals...)
	defer signal.Stop(s.Signals)

	fatalErr := make(chan error, 1)
	go s.Unit.Start(fatalErr)

	if err := s.wait(ctx, fatalErr); err != nil {
		s.Logger.Error("service fatal error", log.Error(err))
		if stopErr := s.Unit.Stop(false); stopErr != nil {
			s.Logger.Warn("failed to stop service after fatal error", log.Error(stopErr))
		}
		return fmt.Errorf("fatal error: %w", err)
	}

	if err := s.Unit.Stop(true); err != nil {
		return fmt.Errorf("stop service gracefully: %w", err)
	}
	s.Logger.Info("service stopped")
	return nil
}

func (s *Service) wait(ctx context.Context, fatalErr <-chan error) error {
	select {
	case err := <-fatalErr:
		return err
	case <-ctx.Done():
		s.Logger.Info("context is done, stopping service")
	case sig := <-s.Signals:
		s.Logger.Info("service got signal, stopping", log.String("signal", sig.String()))
	}
	return nil
}
