/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package statusserver provides an HTTP server exposing Prometheus metrics and dispatcher stats.
package statusserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-apidispatch/dispatcher"
	"github.com/acronis/go-apidispatch/log"
	"github.com/acronis/go-apidispatch/service"
)

// StatsProvider is implemented by *dispatcher.Dispatcher.
type StatsProvider interface {
	Name() string
	Stats() dispatcher.Stats
}

// StatusServer serves /healthz, /metrics, /stats and /stats/{target} (and /debug/pprof when profiling is on).
// It implements service.Unit and service.MetricsRegisterer, the latter forwards to the registerers passed to New,
// so service.Service registers the collectors exposed on /metrics.
type StatusServer struct {
	HTTPServer *http.Server
	Logger     log.FieldLogger

	shutdownTimeout time.Duration
	registerers     []service.MetricsRegisterer

	mu       sync.Mutex
	started  bool
	addr     string
	ready    chan struct{}
	serveErr chan struct{}
}

var _ service.Unit = (*StatusServer)(nil)
var _ service.MetricsRegisterer = (*StatusServer)(nil)

// New creates a StatusServer. It does not listen until Start is called.
func New(cfg *Config, logger log.FieldLogger, providers []StatsProvider, registerers ...service.MetricsRegisterer) *StatusServer {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID, chimiddleware.Recoverer, loggingMiddleware(logger))
	router.Get("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.Get("/stats", func(rw http.ResponseWriter, r *http.Request) {
		stats := make([]dispatcher.Stats, 0, len(providers))
		for _, p := range providers {
			stats = append(stats, p.Stats())
		}
		writeJSON(rw, http.StatusOK, stats, logger)
	})
	router.Get("/stats/{target}", func(rw http.ResponseWriter, r *http.Request) {
		target := chi.URLParam(r, "target")
		for _, p := range providers {
			if p.Name() == target {
				writeJSON(rw, http.StatusOK, p.Stats(), logger)
				return
			}
		}
		writeJSON(rw, http.StatusNotFound, map[string]string{"error": "unknown target " + target}, logger)
	})
	if cfg.Profiling {
		router.Mount("/debug", chimiddleware.Profiler())
	}

	return &StatusServer{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: time.Second * 5,
		},
		Logger:          logger,
		shutdownTimeout: time.Duration(cfg.ShutdownTimeout),
		registerers:     registerers,
		ready:           make(chan struct{}),
		serveErr:        make(chan struct{}),
	}
}

// Ready is closed when the server is listening.
func (s *StatusServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the address the server listens on, or an empty string before Ready is closed.
func (s *StatusServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start listens and serves in a blocking way.
// Failing to listen or serve is sent into fatalErr.
func (s *StatusServer) Start(fatalErr chan<- error) {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	defer close(s.serveErr)

	logger := s.Logger.With(log.String("address", s.HTTPServer.Addr))
	ln, err := net.Listen("tcp", s.HTTPServer.Addr)
	if err != nil {
		logger.Error("status HTTP server listen error", log.Error(err))
		fatalErr <- err
		return
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	close(s.ready)

	logger.Info("status HTTP server started", log.String("listen_address", ln.Addr().String()))
	if err = s.HTTPServer.Serve(ln); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("status HTTP server closed")
			return
		}
		logger.Error("status HTTP server error", log.Error(err))
		fatalErr <- err
	}
}

// Stop stops the server. A graceful stop waits for in-flight requests up to the configured shutdown timeout.
func (s *StatusServer) Stop(gracefully bool) error {
	if !gracefully || s.shutdownTimeout <= 0 {
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("status HTTP server closing error", log.Error(err))
			return err
		}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.HTTPServer.Shutdown(ctx); err != nil {
			s.Logger.Error("status HTTP server shutdown error", log.Error(err))
			return err
		}
	}
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.serveErr
	}
	return nil
}

// MustRegisterMetrics implements service.MetricsRegisterer.
func (s *StatusServer) MustRegisterMetrics() {
	for _, r := range s.registerers {
		r.MustRegisterMetrics()
	}
}

// UnregisterMetrics implements service.MetricsRegisterer.
func (s *StatusServer) UnregisterMetrics() {
	for _, r := range s.registerers {
		r.UnregisterMetrics()
	}
}

func writeJSON(rw http.ResponseWriter, status int, v interface{}, logger log.FieldLogger) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		logger.Warn("failed to write JSON response", log.Error(err))
	}
}

func loggingMiddleware(logger log.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			wrw := chimiddleware.NewWrapResponseWriter(rw, r.ProtoMajor)
			next.ServeHTTP(wrw, r)
			logger.Debug("status request handled",
				log.String("method", r.Method),
				log.String("uri", r.RequestURI),
				log.String("request_id", chimiddleware.GetReqID(r.Context())),
				log.Int("status", wrw.Status()),
				log.DurationIn(time.Since(startTime), time.Millisecond),
			)
		})
	}
}
