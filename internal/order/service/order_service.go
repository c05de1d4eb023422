package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foodmarket/internal/domain"
	apperrors "foodmarket/internal/errors"
	"foodmarket/internal/infrastructure/mysql"
)

type CartRepository interface {
	LockByUser(ctx context.Context, tx *sql.Tx, userID string) (*domain.Cart, error)
	PricedLines(ctx context.Context, tx *sql.Tx, cartID string) ([]domain.PricedLine, error)
	DeleteAllLines(ctx context.Context, tx *sql.Tx, cartID string) (int64, error)
}

type OrderRepository interface {
	Insert(ctx context.Context, tx *sql.Tx, o *domain.Order) error
	LockByID(ctx context.Context, tx *sql.Tx, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id string, from, to domain.OrderStatus) error
	MarkPaid(ctx context.Context, tx *sql.Tx, id string, paidAt time.Time) (bool, error)
}

type OrderItemRepository interface {
	InsertBatch(ctx context.Context, tx *sql.Tx, items []domain.OrderItem) error
}

// CheckoutInput is what the caller resolved before the transaction starts.
type CheckoutInput struct {
	UserID          string
	RestaurantID    string
	DeliveryFee     int64
	IsDelivery      bool
	PaymentMethod   domain.PaymentMethod
	Notes           *string
	DeliveryAddress *string
}

type Transition struct {
	Order    *domain.Order
	Previous domain.OrderStatus
}

type OrderService struct {
	db            mysql.TransactionManager
	cartRepo      CartRepository
	orderRepo     OrderRepository
	orderItemRepo OrderItemRepository
	logger        *zap.Logger
	txTimeout     time.Duration
	newID         func() string
}

func NewOrderService(
	db mysql.TransactionManager,
	cartRepo CartRepository,
	orderRepo OrderRepository,
	orderItemRepo OrderItemRepository,
	logger *zap.Logger,
	txTimeout time.Duration,
) *OrderService {
	return &OrderService{
		db:            db,
		cartRepo:      cartRepo,
		orderRepo:     orderRepo,
		orderItemRepo: orderItemRepo,
		logger:        logger,
		txTimeout:     txTimeout,
		newID:         func() string { return uuid.New().String() },
	}
}

// Checkout turns the caller's cart into a PENDING order and empties the
// cart, all in one transaction. Prices are the ones read under the cart
// lock.
func (s *OrderService) Checkout(ctx context.Context, in CheckoutInput) (*domain.Order, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(txCtx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		s.logger.Error("failed to begin transaction", zap.Error(err))
		return nil, err
	}
	defer tx.Rollback()

	cart, err := s.cartRepo.LockByUser(txCtx, tx, in.UserID)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return nil, errEmptyCart()
		}
		return nil, err
	}

	lines, err := s.cartRepo.PricedLines(txCtx, tx, cart.ID)
	if err != nil {
		return nil, err
	}

	snap := &domain.CartSnapshot{CartID: cart.ID, UserID: in.UserID, Lines: lines}
	if snap.Empty() {
		return nil, errEmptyCart()
	}
	for _, l := range lines {
		if l.RestaurantID != in.RestaurantID {
			return nil, apperrors.NewConflictError("cart changed during checkout")
		}
		if !l.IsAvailable {
			return nil, apperrors.NewConflictError("cart contains items that are no longer available")
		}
	}

	subTotal := snap.SubTotal()
	order := &domain.Order{
		ID:              s.newID(),
		UserID:          in.UserID,
		RestaurantID:    in.RestaurantID,
		SubTotal:        subTotal,
		DeliveryFee:     in.DeliveryFee,
		Total:           subTotal + in.DeliveryFee,
		IsDelivery:      in.IsDelivery,
		PaymentMethod:   in.PaymentMethod,
		Notes:           in.Notes,
		DeliveryAddress: in.DeliveryAddress,
		Status:          domain.OrderStatusPending,
	}
	order.Items = snap.OrderItems(order.ID, s.newID)

	if err := s.orderRepo.Insert(txCtx, tx, order); err != nil {
		s.logger.Error("failed to insert order", zap.String("userId", in.UserID), zap.Error(err))
		return nil, err
	}

	if err := s.orderItemRepo.InsertBatch(txCtx, tx, order.Items); err != nil {
		s.logger.Error("failed to insert order items", zap.String("orderId", order.ID), zap.Error(err))
		return nil, err
	}

	if _, err := s.cartRepo.DeleteAllLines(txCtx, tx, cart.ID); err != nil {
		s.logger.Error("failed to clear cart", zap.String("cartId", cart.ID), zap.Error(err))
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("failed to commit transaction", zap.String("orderId", order.ID), zap.Error(err))
		return nil, err
	}

	now := time.Now().UTC()
	order.CreatedAt, order.UpdatedAt = now, now

	s.logger.Info("order created",
		zap.String("orderId", order.ID),
		zap.String("userId", order.UserID),
		zap.Int64("total", order.Total),
		zap.Int("lines", len(order.Items)),
	)
	return order, nil
}

func errEmptyCart() error {
	return apperrors.NewValidationError("cart is empty", apperrors.ValidationDetail{
		Field:   "cart",
		Message: "cart must contain at least one item",
	})
}

// Transition moves the order to status to on behalf of an actor holding
// role. The current status is re-read under the row lock, so a concurrent
// change is either observed here or rejected by the conditional update.
func (s *OrderService) Transition(ctx context.Context, orderID string, role domain.ActorRole, to domain.OrderStatus) (*Transition, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(txCtx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		s.logger.Error("failed to begin transaction", zap.Error(err))
		return nil, err
	}
	defer tx.Rollback()

	order, err := s.orderRepo.LockByID(txCtx, tx, orderID)
	if err != nil {
		return nil, err
	}

	from := order.Status
	if !domain.RoleAllows(role, from, to) {
		s.logger.Warn("transition rejected",
			zap.String("orderId", orderID),
			zap.String("role", string(role)),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		return nil, apperrors.NewConflictError("cannot change order from " + string(from) + " to " + string(to))
	}

	now := time.Now().UTC()
	if to == domain.OrderStatusPaid {
		// a manual confirmation (cash, or a payment settled out of band)
		// stamps paidAt like a gateway confirmation does
		paid, err := s.orderRepo.MarkPaid(txCtx, tx, orderID, now)
		if err != nil {
			return nil, err
		}
		if !paid {
			return nil, apperrors.NewConflictError("order " + orderID + " is no longer " + string(from))
		}
		order.PaidAt = &now
	} else if err := s.orderRepo.UpdateStatus(txCtx, tx, orderID, from, to); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("failed to commit transaction", zap.String("orderId", orderID), zap.Error(err))
		return nil, err
	}

	order.Status = to
	order.UpdatedAt = now

	s.logger.Info("order status changed", zap.String("orderId", orderID), zap.String("from", string(from)), zap.String("to", string(to)))
	return &Transition{Order: order, Previous: from}, nil
}
