// Package server exposes the unsealer's operational HTTP surface: liveness,
// readiness over the live target set, and drain control for rollouts.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"

	"github.com/Napuu/quorum-vault-auto-unsealer/pkg/metrics"
	"github.com/Napuu/quorum-vault-auto-unsealer/pkg/unsealer"
	"github.com/Napuu/quorum-vault-auto-unsealer/pkg/vault"
)

const (
	defaultReadTimeout      = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultShutdownDuration = 10 * time.Second
)

// Config carries the operational server's knobs.
type Config struct {
	ListenAddr  string
	MetricsAddr string
	EnablePprof bool
	Log         *slog.Logger
}

// Server answers health and readiness probes. Readiness reflects the cluster
// the unsealer watches: every resolvable target is probed live, and a single
// sealed or unreachable node reports the whole service not ready.
type Server struct {
	cfg      *Config
	resolver *unsealer.TargetResolver
	dialer   *vault.Dialer
	log      *slog.Logger
	isReady  atomic.Bool

	srv        *http.Server
	metricsSrv *metrics.Server
}

// New builds the operational server. metricsSrv may be nil when the metrics
// listener is disabled.
func New(cfg *Config, resolver *unsealer.TargetResolver, dialer *vault.Dialer, metricsSrv *metrics.Server) *Server {
	srv := &Server{
		cfg:        cfg,
		resolver:   resolver,
		dialer:     dialer,
		log:        cfg.Log,
		metricsSrv: metricsSrv,
	}
	srv.isReady.Store(true)

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.getRouter(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	return srv
}

func (s *Server) getRouter() http.Handler {
	mux := chi.NewRouter()

	mux.With(s.httpLogger).Get("/health", s.handleHealth)
	mux.With(s.httpLogger).Get("/ready", s.handleReady)
	mux.With(s.httpLogger).Get("/drain", s.handleDrain)
	mux.With(s.httpLogger).Get("/undrain", s.handleUndrain)

	if s.cfg.EnablePprof {
		s.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (s *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(s.log, next)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"alive"}`))
}

// handleReady probes every currently-resolvable target. An empty target set
// is ready: there is nothing to be behind on.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !s.isReady.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"draining"}`))
		return
	}

	targets, err := s.resolver.Resolve(r.Context())
	if err != nil {
		s.log.Error("readiness check could not resolve targets", "err", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}

	for _, target := range targets {
		if !s.targetReady(r.Context(), target) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready"}`))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// targetReady reports whether one target is initialized and unsealed.
func (s *Server) targetReady(ctx context.Context, target string) bool {
	client, err := s.dialer.Dial(target)
	if err != nil {
		s.log.Error("readiness check cannot dial target", "target", target, "err", err)
		return false
	}
	status, err := client.SealStatus(ctx)
	if err != nil {
		s.log.Error("readiness check cannot probe target", "target", target, "err", err)
		return false
	}
	return status.Initialized && !status.Sealed
}

func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !s.isReady.Swap(false) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"already draining"}`))
		return
	}
	s.log.Info("marked as not ready")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"draining"}`))
}

func (s *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.isReady.Swap(true) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"already ready"}`))
		return
	}
	s.log.Info("marked as ready")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// RunInBackground starts the API listener and, when configured, the metrics
// listener.
func (s *Server) RunInBackground() {
	if s.cfg.MetricsAddr != "" && s.metricsSrv != nil {
		go func() {
			s.log.Info("starting metrics server", "metricsAddress", s.cfg.MetricsAddr)
			if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("metrics server failed", "err", err)
			}
		}()
	}

	go func() {
		s.log.Info("starting HTTP server", "listenAddress", s.cfg.ListenAddr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server failed", "err", err)
		}
	}()
}

// Shutdown stops both listeners, waiting up to the shutdown duration each.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownDuration)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Error("graceful HTTP server shutdown failed", "err", err)
	} else {
		s.log.Info("HTTP server gracefully stopped")
	}

	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownDuration)
		defer cancel()
		if err := s.metricsSrv.Shutdown(ctx); err != nil {
			s.log.Error("graceful metrics server shutdown failed", "err", err)
		} else {
			s.log.Info("metrics server gracefully stopped")
		}
	}
}
