package usecase

import (
	"context"

	"go.uber.org/zap"

	"foodmarket/internal/domain"
	apperrors "foodmarket/internal/errors"
	"foodmarket/internal/events"
	"foodmarket/internal/order/service"
)

// AdvanceStatus moves an order along the state machine on behalf of
// actorID. The buyer may only cancel; the restaurant owner drives the rest.
func (uc *OrderUseCase) AdvanceStatus(ctx context.Context, orderID, actorID string, to domain.OrderStatus) (*domain.Order, error) {
	return uc.transition(ctx, orderID, actorID, to, nil)
}

func (uc *OrderUseCase) Cancel(ctx context.Context, orderID, actorID string, reason *string) (*domain.Order, error) {
	return uc.transition(ctx, orderID, actorID, domain.OrderStatusCancelled, cleanNotes(reason))
}

func (uc *OrderUseCase) transition(ctx context.Context, orderID, actorID string, to domain.OrderStatus, reason *string) (*domain.Order, error) {
	if !to.Valid() {
		return nil, apperrors.NewValidationError("validation failed", apperrors.ValidationDetail{
			Field:   "status",
			Message: "unknown order status",
		})
	}

	_, restaurant, role, err := uc.access(ctx, orderID, actorID)
	if err != nil {
		return nil, err
	}

	var tr *service.Transition
	err = uc.retry(ctx, "order.transition", func(ctx context.Context) error {
		res, err := uc.Service.Transition(ctx, orderID, role, to)
		tr = res
		return err
	})
	if err != nil {
		return nil, err
	}

	order := tr.Order
	subject := subjectOf(order)
	uc.Events.Emit(ctx, events.NewOrderStatusUpdated(subject, tr.Previous, to, actorID, restaurant.Name, order.Total))

	if to == domain.OrderStatusCancelled {
		refund := order.RefundAmount(uc.refundMinAmount)
		uc.Events.Emit(ctx, events.NewOrderCancelled(subject, actorID, reason, refund))
		uc.logger.Info("order cancelled",
			zap.String("orderId", orderID),
			zap.String("cancelledBy", actorID),
			zap.String("role", string(role)),
			zap.Int64("refundAmount", refund),
		)
	}

	return order, nil
}
