package payment

import (
	"database/sql"

	"go.uber.org/zap"

	"foodmarket/internal/config"
	"foodmarket/internal/infrastructure/metrics"
	"foodmarket/internal/order"
	"foodmarket/internal/payment/controller"
	"foodmarket/internal/payment/gateway"
	"foodmarket/internal/payment/poller"
	paymentrepo "foodmarket/internal/payment/repository"
	"foodmarket/internal/payment/service"
)

type Module struct {
	Controller *controller.PaymentController
	Service    *service.PaymentService
	Gateway    *gateway.Client
	Poller     *poller.Poller
}

func NewModule(
	db *sql.DB,
	cfg *config.Config,
	logger *zap.Logger,
	orders *order.Module,
	emitter service.Emitter,
	m *metrics.Metrics,
) *Module {
	logger = logger.With(zap.String("module", "payment"))

	client := gateway.NewClient(cfg.MoMo, logger, m)

	svc := service.NewPaymentService(
		db,
		paymentrepo.NewMySQLPaymentRepository(db),
		orders.Orders,
		orders.Restaurants,
		client,
		emitter,
		m,
		logger,
		service.Config{
			Timeout:          cfg.Payment.Timeout,
			TxTimeout:        cfg.Order.TxTimeout,
			MaxRetryAttempts: cfg.Order.MaxRetryAttempts,
			Currency:         cfg.Order.Currency,
			CountryCode:      cfg.MoMo.CountryCode,
			VerifyWebhooks:   cfg.Payment.VerifyWebhooks,
		},
	)

	return &Module{
		Controller: controller.NewPaymentController(svc, logger),
		Service:    svc,
		Gateway:    client,
		Poller: poller.New(svc, poller.Config{
			Interval:    cfg.Payment.PollInterval,
			BatchSize:   cfg.Payment.PollBatchSize,
			Concurrency: cfg.Payment.PollConcurrency,
		}, logger),
	}
}
