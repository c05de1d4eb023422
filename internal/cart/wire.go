package cart

import (
	"database/sql"

	"go.uber.org/zap"

	"foodmarket/internal/cart/controller"
	cartrepo "foodmarket/internal/cart/repository"
	"foodmarket/internal/cart/service"
	"foodmarket/internal/cart/usecase"
	catalogrepo "foodmarket/internal/catalog/repository"
	"foodmarket/internal/config"
)

type Module struct {
	Controller *controller.CartController
	UseCase    *usecase.CartUseCase
	Repo       *cartrepo.MySQLCartRepository
	Variants   *catalogrepo.MySQLVariantRepository
}

func NewModule(db *sql.DB, cfg *config.Config, logger *zap.Logger) *Module {
	cartRepo := cartrepo.NewMySQLCartRepository(db)
	variantRepo := catalogrepo.NewMySQLVariantRepository(db)
	menuRepo := catalogrepo.NewMySQLMenuRepository(db)

	cartSvc := service.NewCartService(db, cartRepo, logger, cfg.Order.TxTimeout)

	uc := usecase.NewCartUseCase(
		cartSvc,
		variantRepo,
		menuRepo,
		logger,
		cfg.Order.MaxRetryAttempts,
	)

	return &Module{
		Controller: controller.NewCartController(uc, logger),
		UseCase:    uc,
		Repo:       cartRepo,
		Variants:   variantRepo,
	}
}
