package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"foodmarket/internal/cart"
	"foodmarket/internal/config"
	"foodmarket/internal/infrastructure/kafka"
	"foodmarket/internal/infrastructure/metrics"
	"foodmarket/internal/notification"
	"foodmarket/internal/order"
	"foodmarket/internal/payment"
	"foodmarket/internal/server/middleware"
)

func testConfig() *config.Config {
	return &config.Config{
		Order:   config.OrderConfig{DeliveryFee: 500, RefundMinAmount: 1000, MaxRetryAttempts: 3, TxTimeout: time.Second, Currency: "XAF"},
		Payment: config.PaymentConfig{Timeout: time.Minute, PollInterval: time.Minute, PollBatchSize: 10, PollConcurrency: 2},
		MoMo:    config.MoMoConfig{BaseURL: "http://momo.invalid", Environment: "sandbox", TargetEnvironment: "sandbox", CountryCode: "242", RequestTimeout: time.Second},
		Kafka:   config.KafkaConfig{PushTopic: "notifications.push", EventsTopic: "order.events"},
		Stream:  config.StreamConfig{BufferSize: 4, MaxConnsPerUser: 2, Heartbeat: time.Second},
	}
}

func newTestRouter(t *testing.T, critical map[string]HealthCheck) http.Handler {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := testConfig()
	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	producer := kafka.NewProducer([]string{"localhost:9092"}, 8, logger)
	notifications := notification.NewModule(db, cfg, logger, nil, producer, m)
	carts := cart.NewModule(db, cfg, logger)
	orders := order.NewModule(db, cfg, logger, carts, nil, nil, m)
	payments := payment.NewModule(db, cfg, logger, orders, nil, m)

	return NewRouter(RouterConfig{
		Cart:         carts,
		Order:        orders,
		Payment:      payments,
		Notification: notifications,
		Auth:         middleware.NewAuthenticator("secret", "", logger).Middleware,
		Metrics:      m,
		Gatherer:     reg,
		Critical:     critical,
	}, logger)
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, map[string]HealthCheck{
		"database": func(ctx context.Context) error { return nil },
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Checks["database"])
}

func TestRouter_HealthUnavailable(t *testing.T) {
	router := newTestRouter(t, map[string]HealthCheck{
		"database": func(ctx context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, path := range []string{"/cart", "/orders", "/payments/p-1", "/notifications/stream"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestRouter_WebhooksArePublic(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"referenceId":"ref-1","status":"SUCCESSFUL"}`)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/unknown-provider", body))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t, nil)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "foodmarket_http_requests_total")
}
