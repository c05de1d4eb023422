package usecase

import (
	"context"

	"foodmarket/internal/domain"
	apperrors "foodmarket/internal/errors"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

type OrderPage struct {
	Orders     []domain.Order
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// ListForBuyer returns the caller's visible orders, newest first.
func (uc *OrderUseCase) ListForBuyer(ctx context.Context, userID string, page, limit int) (*OrderPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	orders, total, err := uc.Orders.ListByUser(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	if err := uc.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	return &OrderPage{
		Orders:     orders,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// ListForRestaurant returns every order of the restaurant owned by ownerID.
func (uc *OrderUseCase) ListForRestaurant(ctx context.Context, ownerID string) ([]domain.Order, error) {
	restaurant, err := uc.Restaurants.FindByOwner(ctx, ownerID)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return nil, apperrors.NewNotFoundError("no restaurant owned by the caller")
		}
		return nil, err
	}

	orders, err := uc.Orders.ListByRestaurant(ctx, restaurant.ID)
	if err != nil {
		return nil, err
	}
	if err := uc.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (uc *OrderUseCase) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	byOrder, err := uc.Items.FindByOrderIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
	}
	return nil
}

// Get returns the order with its items to its buyer or restaurant owner.
func (uc *OrderUseCase) Get(ctx context.Context, orderID, actorID string) (*domain.Order, error) {
	order, _, _, err := uc.access(ctx, orderID, actorID)
	if err != nil {
		return nil, err
	}

	items, err := uc.Items.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

// Status serves the buyer from the status cache when possible.
func (uc *OrderUseCase) Status(ctx context.Context, orderID, actorID string) (domain.OrderStatus, error) {
	if uc.StatusCache != nil {
		if status, userID, ok := uc.StatusCache.Lookup(ctx, orderID); ok && userID == actorID {
			return status, nil
		}
	}

	order, _, _, err := uc.access(ctx, orderID, actorID)
	if err != nil {
		return "", err
	}
	return order.Status, nil
}

// Hide removes a finished order from the buyer's history.
func (uc *OrderUseCase) Hide(ctx context.Context, orderID, userID string) error {
	order, err := uc.Orders.FindByID(ctx, orderID)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return apperrors.NewNotFoundError("order not found")
		}
		return err
	}
	if order.UserID != userID {
		return apperrors.NewForbiddenError("not authorized to access this order")
	}
	if !order.Status.IsTerminal() {
		return apperrors.NewConflictError("only delivered or cancelled orders can be removed")
	}
	return uc.Orders.Hide(ctx, orderID)
}
