package order

import (
	"database/sql"

	"go.uber.org/zap"

	"foodmarket/internal/cart"
	catalogrepo "foodmarket/internal/catalog/repository"
	"foodmarket/internal/config"
	"foodmarket/internal/infrastructure/metrics"
	"foodmarket/internal/order/controller"
	orderrepo "foodmarket/internal/order/repository"
	"foodmarket/internal/order/service"
	"foodmarket/internal/order/usecase"
)

type Module struct {
	Controller  *controller.OrderController
	UseCase     *usecase.OrderUseCase
	Orders      *orderrepo.MySQLOrderRepository
	Restaurants *catalogrepo.MySQLRestaurantRepository
}

// NewModule wires the order lifecycle on top of the cart module. cache may
// be nil, in which case status reads always hit the database.
func NewModule(
	db *sql.DB,
	cfg *config.Config,
	logger *zap.Logger,
	carts *cart.Module,
	cache usecase.StatusCache,
	emitter usecase.Emitter,
	m *metrics.Metrics,
) *Module {
	orderRepo := orderrepo.NewMySQLOrderRepository(db)
	orderItemRepo := orderrepo.NewMySQLOrderItemRepository(db)
	restaurantRepo := catalogrepo.NewMySQLRestaurantRepository(db)

	orderSvc := service.NewOrderService(
		db,
		carts.Repo,
		orderRepo,
		orderItemRepo,
		logger,
		cfg.Order.TxTimeout,
	)

	uc := usecase.NewOrderUseCase(usecase.Dependencies{
		Cart:        carts.UseCase,
		Service:     orderSvc,
		Orders:      orderRepo,
		Items:       orderItemRepo,
		Addresses:   catalogrepo.NewMySQLAddressRepository(db),
		Restaurants: restaurantRepo,
		Variants:    carts.Variants,
		Fees:        usecase.FlatFee(cfg.Order.DeliveryFee),
		StatusCache: cache,
		Events:      emitter,
		Metrics:     m,
	}, logger, cfg.Order.MaxRetryAttempts, cfg.Order.RefundMinAmount)

	return &Module{
		Controller:  controller.NewOrderController(uc, logger),
		UseCase:     uc,
		Orders:      orderRepo,
		Restaurants: restaurantRepo,
	}
}
