package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"foodmarket/internal/domain"
	apperrors "foodmarket/internal/errors"
	"foodmarket/internal/infrastructure/mysql"
)

type CartService interface {
	AddLine(ctx context.Context, userID string, variant domain.Variant, quantity int) error
	AddBundle(ctx context.Context, userID string, menu domain.Menu, variants []domain.Variant, quantity int) (string, error)
	UpdateLine(ctx context.Context, userID, lineID string, quantity int) error
	RemoveLine(ctx context.Context, userID, lineID string) error
	UpdateBundle(ctx context.Context, userID, groupID string, quantity int) error
	RemoveBundle(ctx context.Context, userID, groupID string) error
	Clear(ctx context.Context, userID string) error
	Snapshot(ctx context.Context, userID string) (*domain.CartSnapshot, error)
}

type VariantRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Variant, error)
	FindByProductIDs(ctx context.Context, productIDs []string) ([]domain.Variant, error)
}

type MenuRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Menu, error)
}

type CartUseCase struct {
	cartSvc          CartService
	variantRepo      VariantRepository
	menuRepo         MenuRepository
	logger           *zap.Logger
	maxRetryAttempts int
	now              func() time.Time
}

func NewCartUseCase(
	cartSvc CartService,
	variantRepo VariantRepository,
	menuRepo MenuRepository,
	logger *zap.Logger,
	maxRetryAttempts int,
) *CartUseCase {
	return &CartUseCase{
		cartSvc:          cartSvc,
		variantRepo:      variantRepo,
		menuRepo:         menuRepo,
		logger:           logger,
		maxRetryAttempts: maxRetryAttempts,
		now:              time.Now,
	}
}

func validateQuantity(quantity int) error {
	if quantity < 1 {
		return apperrors.NewValidationError("invalid quantity", apperrors.ValidationDetail{
			Field:   "quantity",
			Message: "quantity must be at least 1",
		})
	}
	if quantity > domain.MaxLineQuantity {
		return apperrors.NewValidationError("invalid quantity", apperrors.ValidationDetail{
			Field:   "quantity",
			Message: fmt.Sprintf("quantity must not exceed %d", domain.MaxLineQuantity),
		})
	}
	return nil
}

func (uc *CartUseCase) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return mysql.WithDeadlockRetry(ctx, uc.logger, op, uc.maxRetryAttempts, fn)
}

func (uc *CartUseCase) AddLine(ctx context.Context, userID, variantID string, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}

	variant, err := uc.variantRepo.FindByID(ctx, variantID)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return apperrors.NewNotFoundError("variant not found")
		}
		return err
	}
	if !variant.IsAvailable {
		return apperrors.NewConflictError("variant is not available")
	}

	uc.logger.Debug("adding cart line", zap.String("userId", userID), zap.String("variantId", variantID), zap.Int("quantity", quantity))

	return uc.retry(ctx, "cart.add_line", func(ctx context.Context) error {
		return uc.cartSvc.AddLine(ctx, userID, *variant, quantity)
	})
}

// AddMenuBundle adds every product of the menu as one group. Each product
// contributes its first available variant by position.
func (uc *CartUseCase) AddMenuBundle(ctx context.Context, userID, menuID string, quantity int) (string, error) {
	if err := validateQuantity(quantity); err != nil {
		return "", err
	}

	menu, err := uc.menuRepo.FindByID(ctx, menuID)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return "", apperrors.NewNotFoundError("menu not found")
		}
		return "", err
	}
	if !menu.IsOpenAt(uc.now()) {
		return "", apperrors.NewConflictError("menu is not available")
	}
	if len(menu.ProductIDs) == 0 {
		return "", apperrors.NewConflictError("menu has no products")
	}

	variants, err := uc.variantRepo.FindByProductIDs(ctx, menu.ProductIDs)
	if err != nil {
		return "", err
	}

	picked, err := pickSellable(menu.ProductIDs, variants)
	if err != nil {
		return "", err
	}

	var groupID string
	err = uc.retry(ctx, "cart.add_bundle", func(ctx context.Context) error {
		id, err := uc.cartSvc.AddBundle(ctx, userID, *menu, picked, quantity)
		groupID = id
		return err
	})
	if err != nil {
		return "", err
	}

	uc.logger.Info("menu bundle added", zap.String("userId", userID), zap.String("menuId", menuID), zap.String("menuGroupId", groupID))
	return groupID, nil
}

// pickSellable keeps the product order of the menu. variants must be sorted
// by product then position.
func pickSellable(productIDs []string, variants []domain.Variant) ([]domain.Variant, error) {
	first := make(map[string]domain.Variant, len(productIDs))
	for _, v := range variants {
		if !v.IsAvailable {
			continue
		}
		if _, ok := first[v.ProductID]; !ok {
			first[v.ProductID] = v
		}
	}

	picked := make([]domain.Variant, 0, len(productIDs))
	for _, id := range productIDs {
		v, ok := first[id]
		if !ok {
			return nil, apperrors.NewConflictError("menu contains a product with no available variant")
		}
		picked = append(picked, v)
	}
	return picked, nil
}

func (uc *CartUseCase) UpdateLine(ctx context.Context, userID, lineID string, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	return uc.retry(ctx, "cart.update_line", func(ctx context.Context) error {
		return uc.cartSvc.UpdateLine(ctx, userID, lineID, quantity)
	})
}

func (uc *CartUseCase) RemoveLine(ctx context.Context, userID, lineID string) error {
	return uc.retry(ctx, "cart.remove_line", func(ctx context.Context) error {
		return uc.cartSvc.RemoveLine(ctx, userID, lineID)
	})
}

func (uc *CartUseCase) UpdateMenuBundle(ctx context.Context, userID, groupID string, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	return uc.retry(ctx, "cart.update_bundle", func(ctx context.Context) error {
		return uc.cartSvc.UpdateBundle(ctx, userID, groupID, quantity)
	})
}

func (uc *CartUseCase) RemoveMenuBundle(ctx context.Context, userID, groupID string) error {
	return uc.retry(ctx, "cart.remove_bundle", func(ctx context.Context) error {
		return uc.cartSvc.RemoveBundle(ctx, userID, groupID)
	})
}

func (uc *CartUseCase) Clear(ctx context.Context, userID string) error {
	return uc.retry(ctx, "cart.clear", func(ctx context.Context) error {
		return uc.cartSvc.Clear(ctx, userID)
	})
}

func (uc *CartUseCase) Get(ctx context.Context, userID string) (*domain.CartSnapshot, error) {
	return uc.cartSvc.Snapshot(ctx, userID)
}

func (uc *CartUseCase) Snapshot(ctx context.Context, userID string) (*domain.CartSnapshot, error) {
	return uc.cartSvc.Snapshot(ctx, userID)
}
