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

const namespace = "foodmarket"

// Metrics groups every collector of the service. All record methods accept a
// nil receiver so components can run without metrics in tests.
type Metrics struct {
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	reconciliations    *prometheus.CounterVec
	gatewayRequests    *prometheus.CounterVec
	tokenRefreshes     prometheus.Counter
	eventsEmitted      *prometheus.CounterVec
	subscriberFailures *prometheus.CounterVec
	streamConnections  prometheus.Gauge
	ordersCreated      prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "reconciliations_total",
			Help:      "Payment reconciliation outcomes.",
		}, []string{"outcome"}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Requests sent to the payment gateway.",
		}, []string{"op", "outcome"}),
		tokenRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "token_refreshes_total",
			Help:      "Access token refreshes against the payment gateway.",
		}),
		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Domain events emitted.",
		}, []string{"event"}),
		subscriberFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "subscriber_failures_total",
			Help:      "Event subscriber errors and panics.",
		}, []string{"event", "subscriber"}),
		streamConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connections",
			Help:      "Open live notification streams.",
		}),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Orders created at checkout.",
		}),
	}

	reg.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.reconciliations,
		m.gatewayRequests,
		m.tokenRefreshes,
		m.eventsEmitted,
		m.subscriberFailures,
		m.streamConnections,
		m.ordersCreated,
	)

	return m
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) RecordReconciliation(outcome string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordGatewayRequest(op, outcome string) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) RecordTokenRefresh() {
	if m == nil {
		return
	}
	m.tokenRefreshes.Inc()
}

func (m *Metrics) RecordEvent(name string) {
	if m == nil {
		return
	}
	m.eventsEmitted.WithLabelValues(name).Inc()
}

func (m *Metrics) RecordSubscriberFailure(event, subscriber string) {
	if m == nil {
		return
	}
	m.subscriberFailures.WithLabelValues(event, subscriber).Inc()
}

func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.streamConnections.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.streamConnections.Dec()
}

func (m *Metrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}
