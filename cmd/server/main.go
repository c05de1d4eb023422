package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"foodmarket/internal/cart"
	"foodmarket/internal/config"
	"foodmarket/internal/events"
	"foodmarket/internal/infrastructure/kafka"
	"foodmarket/internal/infrastructure/logger"
	"foodmarket/internal/infrastructure/metrics"
	"foodmarket/internal/infrastructure/mysql"
	"foodmarket/internal/infrastructure/redis"
	"foodmarket/internal/notification"
	"foodmarket/internal/notification/statuscache"
	"foodmarket/internal/order"
	"foodmarket/internal/order/usecase"
	"foodmarket/internal/payment"
	"foodmarket/internal/server"
	"foodmarket/internal/server/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := mysql.NewConnection(cfg.Database)
	if err != nil {
		zapLogger.Fatal("connecting to database", zap.Error(err))
	}
	defer db.Close()
	zapLogger.Info("database connected")

	if cfg.Database.MigrateOnStart {
		if err := mysql.Migrate(context.Background(), db); err != nil {
			zapLogger.Fatal("running migrations", zap.Error(err))
		}
		zapLogger.Info("migrations applied")
	}

	var (
		store       statuscache.Store
		redisHealth server.HealthCheck
	)
	rdb, err := redis.New(cfg.Redis)
	if err != nil {
		zapLogger.Warn("redis unavailable, order status cache disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		store = rdb
		redisHealth = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.BufferSize, zapLogger)
	producer.Start()

	m := metrics.New(prometheus.DefaultRegisterer)
	bus := events.NewBus(zapLogger, m, 30*time.Second)

	notifications := notification.NewModule(db, cfg, zapLogger, store, producer, m)
	notifications.Register(bus)

	var cache usecase.StatusCache
	if notifications.Cache != nil {
		cache = notifications.Cache
	}

	carts := cart.NewModule(db, cfg, zapLogger)
	orders := order.NewModule(db, cfg, zapLogger, carts, cache, bus, m)
	payments := payment.NewModule(db, cfg, zapLogger, orders, bus, m)

	background, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	go func() {
		if err := payments.Gateway.Provision(background); err != nil {
			zapLogger.Error("payment gateway provisioning failed", zap.Error(err))
			return
		}
		zapLogger.Info("payment gateway ready")
	}()

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		payments.Poller.Run(background)
	}()

	optional := map[string]server.HealthCheck{
		"gateway": func(ctx context.Context) error {
			if payments.Gateway.Ready() {
				return nil
			}
			if err := payments.Gateway.Err(); err != nil {
				return err
			}
			return errors.New("not provisioned")
		},
	}
	if redisHealth != nil {
		optional["redis"] = redisHealth
	}

	router := server.NewRouter(server.RouterConfig{
		Cart:         carts,
		Order:        orders,
		Payment:      payments,
		Notification: notifications,
		Auth:         middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, zapLogger).Middleware,
		Metrics:      m,
		Gatherer:     prometheus.DefaultGatherer,
		Critical:     map[string]server.HealthCheck{"database": db.PingContext},
		Optional:     optional,
	}, zapLogger)

	srv := server.New(cfg.Server.Port, router, zapLogger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			zapLogger.Fatal("server error", zap.Error(err))
		}
	}()

	<-quit
	zapLogger.Info("received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// open streams would keep Shutdown waiting
	notifications.Hub.Close()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server shutdown failed", zap.Error(err))
	}

	stopBackground()
	<-pollerDone

	if err := bus.Close(ctx); err != nil {
		zapLogger.Warn("event deliveries still running at shutdown", zap.Error(err))
	}
	if err := producer.Close(ctx); err != nil {
		zapLogger.Warn("kafka producer not flushed", zap.Error(err))
	}

	zapLogger.Info("server stopped gracefully")
}
