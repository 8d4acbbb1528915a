// Package api provides Prometheus metrics for ColumnBridge.
package api

import (
	"net"
	"net/http"
	"time"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/ffi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for exports and the probe service.
// It implements ffi.Observer.
type Metrics struct {
	// Export metrics
	ExportsTotal        *prometheus.CounterVec
	ReleasesTotal       *prometheus.CounterVec
	DoubleReleasesTotal *prometheus.CounterVec
	LiveExports         *prometheus.GaugeVec
	ExportedBytes       prometheus.Histogram

	// Probe metrics
	BatchesTotal     *prometheus.CounterVec
	BatchLatency     prometheus.Histogram
	ColumnsTotal     prometheus.Counter
	ConnectionsTotal prometheus.Counter
}

var _ ffi.Observer = (*Metrics)(nil)

// NewMetrics creates a Metrics instance with the given namespace and
// registers its collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		ExportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Total number of exported C Data Interface nodes by kind",
		}, []string{"kind"}),
		ReleasesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "releases_total",
			Help:      "Total number of released nodes by kind",
		}, []string{"kind"}),
		DoubleReleasesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "double_releases_total",
			Help:      "Release calls that lost the race on an already released node",
		}, []string{"kind"}),
		LiveExports: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_exports",
			Help:      "Exported nodes not yet released",
		}, []string{"kind"}),
		ExportedBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exported_bytes",
			Help:      "Buffer bytes owned by one exported node",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		}),

		BatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of probed batches by status",
		}, []string{"status"}),
		BatchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_latency_seconds",
			Help:      "Batch processing latency in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		}),
		ColumnsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "columns_total",
			Help:      "Total number of probed columns",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted probe connections",
		}),
	}

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "absorbed_releases_total",
		Help:      "Release callbacks invoked on nodes that were already freed",
	}, func() float64 { return float64(ffi.AbsorbedReleases()) })

	return m
}

// Exported records a new export.
func (m *Metrics) Exported(kind ffi.Kind, nbytes int) {
	m.ExportsTotal.WithLabelValues(string(kind)).Inc()
	m.LiveExports.WithLabelValues(string(kind)).Inc()
	m.ExportedBytes.Observe(float64(nbytes))
}

// Released records a completed release.
func (m *Metrics) Released(kind ffi.Kind, _ int) {
	m.ReleasesTotal.WithLabelValues(string(kind)).Inc()
	m.LiveExports.WithLabelValues(string(kind)).Dec()
}

// DoubleRelease records a release that found the node already released.
func (m *Metrics) DoubleRelease(kind ffi.Kind) {
	m.DoubleReleasesTotal.WithLabelValues(string(kind)).Inc()
}

// RecordBatch records a probed batch.
func (m *Metrics) RecordBatch(columns int, success bool, duration time.Duration) {
	status := "ok"
	if !success {
		status = "error"
	}
	m.BatchesTotal.WithLabelValues(status).Inc()
	m.ColumnsTotal.Add(float64(columns))
	m.BatchLatency.Observe(duration.Seconds())
}

// RecordConnection records an accepted connection.
func (m *Metrics) RecordConnection() {
	m.ConnectionsTotal.Inc()
}

// MetricsServer runs an HTTP server exposing /metrics endpoint.
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
}

// NewMetricsServer creates a metrics server on the given address serving
// the metrics gathered by g. A nil g serves the default registry.
func NewMetricsServer(addr string, g prometheus.Gatherer) *MetricsServer {
	handler := promhttp.Handler()
	if g != nil {
		handler = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start starts the metrics server (blocking).
func (s *MetricsServer) Start() error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = lis
	return s.server.Serve(lis)
}

// StartAsync binds the listener and serves in a goroutine.
func (s *MetricsServer) StartAsync() error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = lis
	go func() {
		_ = s.server.Serve(lis)
	}()
	return nil
}

// Addr returns the bound address, or the configured one before start.
func (s *MetricsServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Stop gracefully stops the metrics server.
func (s *MetricsServer) Stop() error {
	return s.server.Close()
}
