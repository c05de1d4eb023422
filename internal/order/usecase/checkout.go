package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"foodmarket/internal/domain"
	apperrors "foodmarket/internal/errors"
	"foodmarket/internal/events"
	"foodmarket/internal/order/service"
)

const maxNotesLength = 500

type CheckoutRequest struct {
	AddressID     *string
	PaymentMethod domain.PaymentMethod
	Notes         *string
	IsDelivery    bool
}

// Checkout validates the request outside any transaction, then converts the
// cart into an order and announces it.
func (uc *OrderUseCase) Checkout(ctx context.Context, userID string, req CheckoutRequest) (*domain.Order, error) {
	uc.logger.Info("checkout started", zap.String("userId", userID), zap.Bool("isDelivery", req.IsDelivery))

	if err := validateCheckout(req); err != nil {
		return nil, err
	}

	var (
		address         *domain.Address
		deliveryAddress *string
	)
	if req.IsDelivery {
		a, err := uc.Addresses.FindByID(ctx, *req.AddressID)
		if err != nil {
			if _, ok := apperrors.IsNotFoundError(err); ok {
				return nil, apperrors.NewNotFoundError("address not found")
			}
			return nil, err
		}
		if a.UserID != userID {
			return nil, apperrors.NewForbiddenError("address does not belong to the caller")
		}
		formatted := a.Format()
		address, deliveryAddress = a, &formatted
	}

	snap, err := uc.Cart.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if snap.Empty() {
		return nil, apperrors.NewValidationError("cart is empty", apperrors.ValidationDetail{
			Field:   "cart",
			Message: "cart must contain at least one item",
		})
	}
	for _, l := range snap.Lines {
		if !l.IsAvailable {
			return nil, apperrors.NewConflictError("cart contains items that are no longer available")
		}
	}

	restaurant, err := uc.Restaurants.FindByID(ctx, snap.RestaurantID)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return nil, apperrors.NewNotFoundError("restaurant not found")
		}
		return nil, err
	}

	var fee int64
	if req.IsDelivery {
		fee, err = uc.Fees.DeliveryFee(ctx, restaurant.ID, address)
		if err != nil {
			return nil, err
		}
	}

	uc.logger.Debug("checkout pre-validation passed",
		zap.String("userId", userID),
		zap.String("restaurantId", restaurant.ID),
		zap.Int64("deliveryFee", fee),
	)

	in := service.CheckoutInput{
		UserID:          userID,
		RestaurantID:    restaurant.ID,
		DeliveryFee:     fee,
		IsDelivery:      req.IsDelivery,
		PaymentMethod:   req.PaymentMethod,
		Notes:           cleanNotes(req.Notes),
		DeliveryAddress: deliveryAddress,
	}

	var order *domain.Order
	err = uc.retry(ctx, "order.checkout", func(ctx context.Context) error {
		o, err := uc.Service.Checkout(ctx, in)
		order = o
		return err
	})
	if err != nil {
		return nil, err
	}

	uc.Metrics.RecordOrderCreated()
	uc.Events.Emit(ctx, events.NewOrderCreated(subjectOf(order), order.Total, domain.ItemCount(order.Items), restaurant.Name))
	return order, nil
}

func validateCheckout(req CheckoutRequest) error {
	var details []apperrors.ValidationDetail

	if !req.PaymentMethod.Valid() {
		details = append(details, apperrors.ValidationDetail{
			Field:   "paymentMethod",
			Message: "paymentMethod must be MOBILE_MONEY or CASH",
		})
	}

	if req.IsDelivery && (req.AddressID == nil || strings.TrimSpace(*req.AddressID) == "") {
		details = append(details, apperrors.ValidationDetail{
			Field:   "addressId",
			Message: "addressId is required for delivery",
		})
	}

	if req.Notes != nil && len(*req.Notes) > maxNotesLength {
		details = append(details, apperrors.ValidationDetail{
			Field:   "notes",
			Message: "notes must not exceed 500 characters",
		})
	}

	if len(details) > 0 {
		return apperrors.NewValidationError("validation failed", details...)
	}
	return nil
}

func cleanNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	s := strings.TrimSpace(*notes)
	if s == "" {
		return nil
	}
	return &s
}
