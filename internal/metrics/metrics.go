// Package metrics exposes Prometheus counters and OpenTelemetry spans for the
// service. Every method is safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const namespace = "fitleague"

// Metrics holds the service collectors on a private registry
type Metrics struct {
	Registry *prometheus.Registry

	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	admissions      *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	webhookDropped  prometheus.Counter
	webhookQueue    prometheus.Gauge
	tokenRefreshes  *prometheus.CounterVec
	tracer          trace.Tracer
}

// New creates and registers the service collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activities",
			Name:      "admissions_total",
			Help:      "Activity admission attempts by outcome",
		}, []string{"outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Processed webhook events by outcome",
		}, []string{"outcome"}),
		webhookDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "dropped_total",
			Help:      "Webhook events dropped because the queue was full",
		}),
		webhookQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "queue_depth",
			Help:      "Webhook events waiting for a worker",
		}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oauth",
			Name:      "refreshes_total",
			Help:      "Access token refresh attempts by result",
		}, []string{"result"}),
		tracer: otel.Tracer(namespace),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestCount,
		m.requestDuration,
		m.admissions,
		m.webhookEvents,
		m.webhookDropped,
		m.webhookQueue,
		m.tokenRefreshes,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ActivityAdmitted counts one admission outcome
func (m *Metrics) ActivityAdmitted(outcome string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(outcome).Inc()
}

// WebhookProcessed counts one processed webhook event
func (m *Metrics) WebhookProcessed(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

// WebhookDropped counts an event rejected by a full queue
func (m *Metrics) WebhookDropped() {
	if m == nil {
		return
	}
	m.webhookDropped.Inc()
}

// SetWebhookQueueDepth records the number of queued events
func (m *Metrics) SetWebhookQueueDepth(n int) {
	if m == nil {
		return
	}
	m.webhookQueue.Set(float64(n))
}

// TokenRefreshed counts one refresh attempt ("ok" or "error")
func (m *Metrics) TokenRefreshed(result string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(result).Inc()
}

// Middleware records request counts and latency and opens a span per
// request. Routes are labeled by their ServeMux pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := m.tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		r = r.WithContext(ctx)
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}

		m.requestCount.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(duration)

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", wrapped.statusCode),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// InitTracing installs a sampling SDK tracer provider globally. Callers
// should Shutdown the returned provider on exit.
func InitTracing(serviceName, version string) *tracesdk.TracerProvider {
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
		tracesdk.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp
}
