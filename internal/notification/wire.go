package notification

import (
	"database/sql"

	"go.uber.org/zap"

	catalogrepo "foodmarket/internal/catalog/repository"
	"foodmarket/internal/config"
	"foodmarket/internal/events"
	"foodmarket/internal/infrastructure/kafka"
	"foodmarket/internal/infrastructure/metrics"
	"foodmarket/internal/notification/controller"
	"foodmarket/internal/notification/push"
	"foodmarket/internal/notification/relay"
	notificationrepo "foodmarket/internal/notification/repository"
	"foodmarket/internal/notification/statuscache"
	"foodmarket/internal/notification/stream"
)

type Module struct {
	Controller *controller.NotificationController
	Hub        *stream.Hub
	// Cache is nil when Redis is not configured.
	Cache *statuscache.Cache

	dispatcher *push.Dispatcher
	forwarder  *stream.Forwarder
	relay      *relay.Relay
}

// NewModule wires the event subscribers. store may be nil, in which case no
// status cache is maintained.
func NewModule(
	db *sql.DB,
	cfg *config.Config,
	logger *zap.Logger,
	store statuscache.Store,
	producer *kafka.Producer,
	m *metrics.Metrics,
) *Module {
	logger = logger.With(zap.String("module", "notification"))

	tokens := notificationrepo.NewMySQLPushTokenRepository(db)
	restaurants := catalogrepo.NewMySQLRestaurantRepository(db)
	hub := stream.NewHub(cfg.Stream.BufferSize, cfg.Stream.MaxConnsPerUser, logger, m)

	mod := &Module{
		Controller: controller.NewNotificationController(hub, tokens, cfg.Stream.Heartbeat, logger),
		Hub:        hub,
		dispatcher: push.NewDispatcher(tokens, restaurants, producer, cfg.Kafka.PushTopic, logger),
		forwarder:  stream.NewForwarder(hub, restaurants),
		relay:      relay.New(producer, cfg.Kafka.EventsTopic),
	}
	if store != nil {
		mod.Cache = statuscache.New(store, cfg.Redis.StatusTTL, logger)
	}
	return mod
}

// Register subscribes every notification channel to bus.
func (m *Module) Register(bus *events.Bus) {
	m.dispatcher.Register(bus)
	m.forwarder.Register(bus)
	m.relay.Register(bus)
	if m.Cache != nil {
		m.Cache.Register(bus)
	}
}
