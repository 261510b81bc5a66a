package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chirp",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chirp",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	notificationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chirp",
			Subsystem: "fanout",
			Name:      "notifications_created_total",
			Help:      "Total number of notifications written by fan-out.",
		},
		[]string{"type"},
	)

	outboxEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chirp",
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox events processed, by event type and result.",
		},
		[]string{"type", "result"},
	)

	fanoutDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chirp",
			Subsystem: "fanout",
			Name:      "duration_seconds",
			Help:      "Duration of a single event fan-out.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"type"},
	)

	websocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chirp",
			Subsystem: "websocket",
			Name:      "clients",
			Help:      "Currently connected websocket clients.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		notificationsCreated,
		outboxEvents,
		fanoutDuration,
		websocketClients,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Requests are labelled by their chi route pattern to keep cardinality bounded.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordFanout records one processed outbox event. result is "done",
// "retry" or "failed".
func RecordFanout(eventType, result string, created int, duration time.Duration) {
	outboxEvents.WithLabelValues(eventType, result).Inc()
	fanoutDuration.WithLabelValues(eventType).Observe(duration.Seconds())
	if created > 0 {
		notificationsCreated.WithLabelValues(notificationType(eventType)).Add(float64(created))
	}
}

// WebsocketConnected adjusts the connected clients gauge by delta.
func WebsocketConnected(delta int) {
	websocketClients.Add(float64(delta))
}

func notificationType(eventType string) string {
	switch eventType {
	case "follow.created":
		return "follow"
	case "post.created":
		return "new_post"
	default:
		return eventType
	}
}
