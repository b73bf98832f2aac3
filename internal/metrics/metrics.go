// Package metrics defines the server's Prometheus metrics and the HTTP
// endpoint that exposes them.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rbrename_requests_total",
		Help: "Total number of LSP requests handled, by method and outcome.",
	}, []string{"method", "outcome"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rbrename_request_seconds",
		Help:    "Time spent handling an LSP request.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rbrename_resolve_seconds",
		Help:    "Time spent parsing and resolving a document.",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
	})

	OpenDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rbrename_open_documents",
		Help: "Current number of open documents.",
	})

	RenameConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rbrename_rename_conflicts_total",
		Help: "Total number of conflict warnings reported for renames.",
	})
)

// Outcome labels for RequestsTotal.
const (
	OK        = "ok"
	Failed    = "error"
	Cancelled = "cancelled"
)

// ObserveRequest records one handled request.
func ObserveRequest(method, outcome string, d time.Duration) {
	RequestsTotal.WithLabelValues(method, outcome).Inc()
	RequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// Handler serves the metrics and a /health probe.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n"))
	})
	return mux
}

// A Server exposes Handler over HTTP.
type Server struct {
	addr   string
	server *http.Server
}

func NewServer(addr string) *Server {
	return &Server{addr: addr}
}

// Start listens on the server's address and serves in the background.
// It returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := new(net.ListenConfig).Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("metrics server starting", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
