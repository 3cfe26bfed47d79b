// Package metrics exposes the agent's operational Prometheus counters
// (pass counts, probe failures, trap counts) on a small chi-routed HTTP
// server alongside a liveness endpoint, separate from the measurement
// records the agent publishes to its own downstream sink.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors groups every counter the engine and trap listener report to.
type Collectors struct {
	PassesTotal      prometheus.Counter
	ProbeFailures    *prometheus.CounterVec
	EvalFailures     *prometheus.CounterVec
	RecordsEmitted   prometheus.Counter
	RecordsRejected  prometheus.Counter
	TrapsReceived    prometheus.Counter
	TrapsUnsupported prometheus.Counter
}

// NewCollectors registers every counter against a dedicated registry (not
// the global default) so repeated construction in tests does not panic on
// duplicate registration.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	return &Collectors{
		PassesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "monitoragent",
			Name:      "passes_total",
			Help:      "Number of sensor passes executed.",
		}),
		ProbeFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "monitoragent",
			Name:      "probe_failures_total",
			Help:      "Number of probe failures by kind (shell, snmp).",
		}, []string{"kind"}),
		EvalFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "monitoragent",
			Name:      "eval_failures_total",
			Help:      "Number of expression evaluation failures by reason.",
		}, []string{"reason"}),
		RecordsEmitted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "monitoragent",
			Name:      "records_emitted_total",
			Help:      "Number of records accepted by the downstream sink.",
		}),
		RecordsRejected: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "monitoragent",
			Name:      "records_rejected_total",
			Help:      "Number of records rejected by the downstream sink.",
		}),
		TrapsReceived: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "monitoragent",
			Name:      "traps_received_total",
			Help:      "Number of SNMP TRAP/TRAP2/INFORM PDUs converted to records.",
		}),
		TrapsUnsupported: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "monitoragent",
			Name:      "traps_unsupported_total",
			Help:      "Number of PDUs received with an unsupported command, dropped.",
		}),
	}
}

// Server serves /metrics and /healthz on ListenAddr.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a Server backed by reg's Gatherer. addr defaults to
// "0.0.0.0:9116" when empty.
func NewServer(addr string, reg *prometheus.Registry) *Server {
	if addr == "" {
		addr = "0.0.0.0:9116"
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Server{httpServer: &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}}
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// it down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
