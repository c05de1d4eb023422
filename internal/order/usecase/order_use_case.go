package usecase

import (
	"context"

	"go.uber.org/zap"

	"foodmarket/internal/domain"
	apperrors "foodmarket/internal/errors"
	"foodmarket/internal/events"
	"foodmarket/internal/infrastructure/metrics"
	"foodmarket/internal/infrastructure/mysql"
	"foodmarket/internal/order/service"
)

type Cart interface {
	Snapshot(ctx context.Context, userID string) (*domain.CartSnapshot, error)
	AddLine(ctx context.Context, userID, variantID string, quantity int) error
}

type OrderService interface {
	Checkout(ctx context.Context, in service.CheckoutInput) (*domain.Order, error)
	Transition(ctx context.Context, orderID string, role domain.ActorRole, to domain.OrderStatus) (*service.Transition, error)
}

type OrderRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Order, int, error)
	ListByRestaurant(ctx context.Context, restaurantID string) ([]domain.Order, error)
	Hide(ctx context.Context, id string) error
}

type OrderItemRepository interface {
	FindByOrderID(ctx context.Context, orderID string) ([]domain.OrderItem, error)
	FindByOrderIDs(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error)
}

type AddressRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Address, error)
}

type RestaurantRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Restaurant, error)
	FindByOwner(ctx context.Context, ownerID string) (*domain.Restaurant, error)
}

type VariantRepository interface {
	FindByProductIDs(ctx context.Context, productIDs []string) ([]domain.Variant, error)
}

// FeeSource prices delivery for a restaurant and a destination.
type FeeSource interface {
	DeliveryFee(ctx context.Context, restaurantID string, address *domain.Address) (int64, error)
}

// FlatFee charges the same delivery fee everywhere.
type FlatFee int64

func (f FlatFee) DeliveryFee(ctx context.Context, restaurantID string, address *domain.Address) (int64, error) {
	return int64(f), nil
}

// StatusCache answers status reads without touching the database. ok is
// false on a miss.
type StatusCache interface {
	Lookup(ctx context.Context, orderID string) (status domain.OrderStatus, userID string, ok bool)
}

type Emitter interface {
	Emit(ctx context.Context, e events.Event)
}

type Dependencies struct {
	Cart        Cart
	Service     OrderService
	Orders      OrderRepository
	Items       OrderItemRepository
	Addresses   AddressRepository
	Restaurants RestaurantRepository
	Variants    VariantRepository
	Fees        FeeSource
	StatusCache StatusCache
	Events      Emitter
	Metrics     *metrics.Metrics
}

type OrderUseCase struct {
	Dependencies
	logger           *zap.Logger
	maxRetryAttempts int
	refundMinAmount  int64
}

func NewOrderUseCase(deps Dependencies, logger *zap.Logger, maxRetryAttempts int, refundMinAmount int64) *OrderUseCase {
	return &OrderUseCase{
		Dependencies:     deps,
		logger:           logger,
		maxRetryAttempts: maxRetryAttempts,
		refundMinAmount:  refundMinAmount,
	}
}

func (uc *OrderUseCase) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return mysql.WithDeadlockRetry(ctx, uc.logger, op, uc.maxRetryAttempts, fn)
}

func subjectOf(o *domain.Order) events.Subject {
	return events.Subject{OrderID: o.ID, UserID: o.UserID, RestaurantID: o.RestaurantID}
}

// access loads the order and resolves how actorID relates to it.
func (uc *OrderUseCase) access(ctx context.Context, orderID, actorID string) (*domain.Order, *domain.Restaurant, domain.ActorRole, error) {
	order, err := uc.Orders.FindByID(ctx, orderID)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return nil, nil, "", apperrors.NewNotFoundError("order not found")
		}
		return nil, nil, "", err
	}

	restaurant, err := uc.Restaurants.FindByID(ctx, order.RestaurantID)
	if err != nil {
		return nil, nil, "", err
	}

	role, ok := order.RoleOf(actorID, restaurant.OwnerID)
	if !ok {
		return nil, nil, "", apperrors.NewForbiddenError("not authorized to access this order")
	}
	return order, restaurant, role, nil
}
