package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"foodmarket/internal/cart"
	applog "foodmarket/internal/infrastructure/logger"
	"foodmarket/internal/infrastructure/metrics"
	"foodmarket/internal/notification"
	"foodmarket/internal/order"
	"foodmarket/internal/payment"
	"foodmarket/internal/server/httpx"
)

const requestTimeout = 30 * time.Second

// HealthCheck reports a dependency failure as an error.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Cart         *cart.Module
	Order        *order.Module
	Payment      *payment.Module
	Notification *notification.Module

	Auth     func(http.Handler) http.Handler
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// Critical checks fail /healthz; the others are only reported.
	Critical map[string]HealthCheck
	Optional map[string]HealthCheck
}

func NewRouter(cfg RouterConfig, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cfg.Metrics.Middleware)

	r.Get("/healthz", healthHandler(cfg.Critical, cfg.Optional, logger))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(cfg.Gatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(requestTimeout))
		r.Route("/webhooks", cfg.Payment.Controller.WebhookRoutes)
	})

	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth)

		// streams outlive the request timeout
		r.Route("/notifications", cfg.Notification.Controller.Routes)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(requestTimeout))

			r.Route("/cart", cfg.Cart.Controller.Routes)
			r.Route("/orders", func(r chi.Router) {
				cfg.Order.Controller.Routes(r)
				cfg.Payment.Controller.OrderRoutes(r)
			})
			r.Route("/payments", cfg.Payment.Controller.Routes)
		})
	})

	return r
}

func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx := applog.WithTrace(r.Context(), base, httpx.TraceID(r))

			next.ServeHTTP(ww, r.WithContext(ctx))

			applog.FromContext(ctx, base).Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func healthHandler(critical, optional map[string]HealthCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: map[string]string{}}
		status := http.StatusOK

		for name, check := range critical {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		for name, check := range optional {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				if status == http.StatusOK {
					resp.Status = "degraded"
				}
				continue
			}
			resp.Checks[name] = "ok"
		}

		httpx.WriteJSON(w, status, resp, logger)
	}
}
