// Package metrics defines the unsealer's Prometheus collectors and the
// listener that serves them on a dedicated address.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vault_unsealer"

// NewRegistry returns a registry preloaded with the standard process and Go
// runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Metrics holds every collector the unsealer emits. Collectors are registered
// on construction; pass a fresh registry in tests.
type Metrics struct {
	SweepsTotal        prometheus.Counter
	SweepsSkippedTotal prometheus.Counter
	ReconcileOutcomes  *prometheus.CounterVec
	KeySubmissions     prometheus.Counter
	KeyFetchFailures   prometheus.Counter
	Targets            prometheus.Gauge
}

// New registers the unsealer collectors with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SweepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Reconcile sweeps executed over the resolved target list.",
		}),
		SweepsSkippedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_skipped_total",
			Help:      "Poll ticks skipped because the previous sweep was still running.",
		}),
		ReconcileOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_outcomes_total",
			Help:      "Per-target reconcile attempts by outcome.",
		}, []string{"outcome"}),
		KeySubmissions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_submissions_total",
			Help:      "Unseal key shares submitted to targets.",
		}),
		KeyFetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_fetch_failures_total",
			Help:      "Failed attempts to obtain unseal key shares from the primary node.",
		}),
		Targets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "targets",
			Help:      "Targets resolved by the most recent sweep.",
		}),
	}
}

// Server exposes a registry over HTTP, separate from the operational API so
// scrapes never compete with probe traffic.
type Server struct {
	srv *http.Server
}

// NewServer builds the metrics listener for addr serving reg at /metrics.
func NewServer(addr string, reg *prometheus.Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
