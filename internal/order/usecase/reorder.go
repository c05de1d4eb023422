package usecase

import (
	"context"

	"go.uber.org/zap"

	"foodmarket/internal/domain"
	apperrors "foodmarket/internal/errors"
)

type ReorderLine struct {
	ProductID    string
	VariantID    string
	VariantLabel string
	Quantity     int
}

type ReorderResult struct {
	Added       []ReorderLine
	Unavailable []ReorderLine
}

// Reorder puts the items of a previous order back into the buyer's cart.
// A variant with the same label is preferred, then the first available one.
// Items that cannot be sold anymore are reported instead of failing the
// whole request.
func (uc *OrderUseCase) Reorder(ctx context.Context, orderID, userID string) (*ReorderResult, error) {
	order, err := uc.Orders.FindByID(ctx, orderID)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return nil, apperrors.NewNotFoundError("order not found")
		}
		return nil, err
	}
	if order.UserID != userID {
		return nil, apperrors.NewForbiddenError("not authorized to access this order")
	}

	snap, err := uc.Cart.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !snap.Empty() && snap.RestaurantID != order.RestaurantID {
		return nil, apperrors.NewConflictError("cart already holds items from another restaurant; clear the cart first")
	}

	items, err := uc.Items.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	productIDs := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			productIDs = append(productIDs, it.ProductID)
		}
	}

	var variants []domain.Variant
	if len(productIDs) > 0 {
		variants, err = uc.Variants.FindByProductIDs(ctx, productIDs)
		if err != nil {
			return nil, err
		}
	}
	byProduct := make(map[string][]domain.Variant, len(productIDs))
	for _, v := range variants {
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
	}

	result := &ReorderResult{}
	for _, it := range items {
		line := ReorderLine{ProductID: it.ProductID, VariantLabel: it.VariantLabel, Quantity: it.Quantity}

		v, ok := matchVariant(byProduct[it.ProductID], it.VariantLabel)
		if !ok {
			result.Unavailable = append(result.Unavailable, line)
			continue
		}
		line.VariantID, line.VariantLabel = v.ID, v.Label

		if err := uc.Cart.AddLine(ctx, userID, v.ID, it.Quantity); err != nil {
			_, notFound := apperrors.IsNotFoundError(err)
			_, conflict := apperrors.IsConflictError(err)
			if !notFound && !conflict {
				return nil, err
			}
			uc.logger.Warn("reorder item skipped", zap.String("orderId", orderID), zap.String("variantId", v.ID), zap.Error(err))
			result.Unavailable = append(result.Unavailable, line)
			continue
		}
		result.Added = append(result.Added, line)
	}

	uc.logger.Info("reorder finished",
		zap.String("orderId", orderID),
		zap.Int("added", len(result.Added)),
		zap.Int("unavailable", len(result.Unavailable)),
	)
	return result, nil
}

func matchVariant(variants []domain.Variant, label string) (domain.Variant, bool) {
	for _, v := range variants {
		if v.IsAvailable && v.Label == label {
			return v, true
		}
	}
	for _, v := range variants {
		if v.IsAvailable {
			return v, true
		}
	}
	return domain.Variant{}, false
}
