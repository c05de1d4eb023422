package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/abc", nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/orders/{id}", "404")))
}

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordReconciliation("confirmed")
	m.RecordReconciliation("confirmed")
	m.RecordGatewayRequest("requesttopay", "ok")
	m.RecordTokenRefresh()
	m.RecordEvent("order.created")
	m.RecordSubscriberFailure("order.created", "push")
	m.StreamOpened()
	m.StreamOpened()
	m.StreamClosed()
	m.RecordOrderCreated()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reconciliations.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gatewayRequests.WithLabelValues("requesttopay", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tokenRefreshes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.subscriberFailures.WithLabelValues("order.created", "push")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersCreated))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordReconciliation("x")
		m.RecordEvent("x")
		m.StreamOpened()
		rec := httptest.NewRecorder()
		m.Middleware(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
