// Package metrics exposes Prometheus instrumentation for the dispatch
// pipeline and the HTTP layer in front of it.
//
// A Collector observes pipeline state transitions (plug Observe into
// pipeline.WithObserver) and wraps handlers with Middleware. Handler serves
// the collected series in the Prometheus text format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures a Collector.
type Config struct {
	Namespace string
	Subsystem string
	// Registry receives the collectors. A fresh registry is used when nil.
	Registry *prometheus.Registry
	// Buckets for the duration histograms. prometheus.DefBuckets when nil.
	Buckets []float64
}

// Collector records dispatch and HTTP metrics.
type Collector struct {
	registry *prometheus.Registry

	dispatches  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	inFlight    prometheus.Gauge

	responses     *prometheus.CounterVec
	responseBytes *prometheus.CounterVec
}

// New creates a Collector and registers its series.
func New(cfg Config) (*Collector, error) {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	buckets := cfg.Buckets
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}

	c := &Collector{
		registry: registry,
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "dispatches_total",
			Help:      "Dispatched requests by route and outcome.",
		}, []string{"route", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "dispatch_duration_seconds",
			Help:      "Time from hook matching to the terminal state.",
			Buckets:   buckets,
		}, []string{"route", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "state_transitions_total",
			Help:      "Pipeline state transitions by target state.",
		}, []string{"state"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "dispatches_in_flight",
			Help:      "Requests currently in the pipeline.",
		}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_responses_total",
			Help:      "HTTP responses by method and status code.",
		}, []string{"method", "code"}),
		responseBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_response_bytes_total",
			Help:      "Bytes written in HTTP response bodies by method.",
		}, []string{"method"}),
	}

	for _, collector := range []prometheus.Collector{
		c.dispatches, c.duration, c.transitions, c.inFlight, c.responses, c.responseBytes,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Registry returns the registry holding the Collector's series.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Observe records a pipeline state transition. It has the signature of
// pipeline.Observer.
func (c *Collector) Observe(ctx *common.Context, from, to common.State) {
	c.transitions.WithLabelValues(to.String()).Inc()

	if to == common.StateMatching {
		ctx.SetHookState(c, time.Now())
		c.inFlight.Inc()
		return
	}
	if !to.Terminal() {
		return
	}

	outcome := "done"
	if to == common.StateFailed {
		outcome = "failed"
	}
	c.dispatches.WithLabelValues(ctx.RouteName(), outcome).Inc()
	if v, ok := ctx.HookState(c); ok {
		c.duration.WithLabelValues(ctx.RouteName(), outcome).Observe(time.Since(v.(time.Time)).Seconds())
		c.inFlight.Dec()
	}
}

// Middleware counts responses by method and status code.
func (c *Collector) Middleware() common.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)
			c.responses.WithLabelValues(r.Method, strconv.Itoa(rw.status)).Inc()
			c.responseBytes.WithLabelValues(r.Method).Add(float64(rw.written))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
