// Package metrics exposes orchestrator-level Prometheus gauges (runs by
// state, chunks scheduled, accounting cache hits) over an
// exporter-toolkit HTTP server, grounded on the pack's own exporter server
// wiring.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/exporter-toolkit/web"
)

// slogBridge forwards exporter-toolkit's slog-based server logging onto
// the orchestrator's own go-kit logger, so callers only ever construct one
// kind of logger.
type slogBridge struct{ logger log.Logger }

func (b slogBridge) Enabled(context.Context, slog.Level) bool { return true }

func (b slogBridge) Handle(_ context.Context, r slog.Record) error {
	kvs := []interface{}{"msg", r.Message}

	r.Attrs(func(a slog.Attr) bool {
		kvs = append(kvs, a.Key, a.Value.Any())

		return true
	})

	switch {
	case r.Level >= slog.LevelError:
		return level.Error(b.logger).Log(kvs...)
	case r.Level >= slog.LevelWarn:
		return level.Warn(b.logger).Log(kvs...)
	case r.Level >= slog.LevelInfo:
		return level.Info(b.logger).Log(kvs...)
	default:
		return level.Debug(b.logger).Log(kvs...)
	}
}

func (b slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler { return b }
func (b slogBridge) WithGroup(name string) slog.Handler       { return b }

// Collector holds the gauges the orchestrator updates as it reconciles
// run and chunk state.
type Collector struct {
	Registry *prometheus.Registry

	RunsTotal    *prometheus.GaugeVec
	ChunksTotal  *prometheus.GaugeVec
	AcctCacheHit prometheus.Counter
	AcctCacheMis prometheus.Counter
}

// NewCollector registers and returns a fresh Collector.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		RunsTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gourd",
			Name:      "runs_total",
			Help:      "Number of runs by completion state.",
		}, []string{"state"}),
		ChunksTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gourd",
			Name:      "chunks_total",
			Help:      "Number of chunks by scheduling status.",
		}, []string{"status"}),
		AcctCacheHit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gourd",
			Subsystem: "acct_cache",
			Name:      "hits_total",
			Help:      "Accounting cache lookups served from memo or sqlite.",
		}),
		AcctCacheMis: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gourd",
			Subsystem: "acct_cache",
			Name:      "misses_total",
			Help:      "Accounting cache lookups that found nothing cached.",
		}),
	}

	reg.MustRegister(c.RunsTotal, c.ChunksTotal, c.AcctCacheHit, c.AcctCacheMis)

	return c
}

// SetRunCounts replaces the runs_total gauge with fresh counts keyed by
// state label ("pending", "running", "completed", "failed").
func (c *Collector) SetRunCounts(counts map[string]int) {
	c.RunsTotal.Reset()

	for state, n := range counts {
		c.RunsTotal.WithLabelValues(state).Set(float64(n))
	}
}

// SetChunkCounts replaces the chunks_total gauge with fresh counts keyed
// by status label ("pending", "ran_locally", "scheduled").
func (c *Collector) SetChunkCounts(counts map[string]int) {
	c.ChunksTotal.Reset()

	for status, n := range counts {
		c.ChunksTotal.WithLabelValues(status).Set(float64(n))
	}
}

// Server serves /metrics for one Collector.
type Server struct {
	logger log.Logger
	server *http.Server
	web    *web.FlagConfig
}

// NewServer builds a metrics server listening on addr.
func NewServer(logger log.Logger, addr string, collector *Collector) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry, promhttp.HandlerOpts{}))

	return &Server{
		logger: logger,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			ReadHeaderTimeout: 2 * time.Second,
		},
		web: &web.FlagConfig{WebListenAddresses: &[]string{addr}},
	}
}

// Start blocks serving metrics until Shutdown is called.
func (s *Server) Start() error {
	bridge := slog.New(slogBridge{logger: s.logger})

	if err := web.ListenAndServe(s.server, s.web, bridge); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}

	return nil
}

// Shutdown stops the metrics server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
