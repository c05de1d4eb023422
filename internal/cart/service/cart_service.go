package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foodmarket/internal/domain"
	apperrors "foodmarket/internal/errors"
	"foodmarket/internal/infrastructure/mysql"
)

type CartRepository interface {
	LockOrCreate(ctx context.Context, tx *sql.Tx, userID, newID string) (*domain.Cart, error)
	LockByUser(ctx context.Context, tx *sql.Tx, userID string) (*domain.Cart, error)
	FindByUser(ctx context.Context, userID string) (*domain.Cart, error)
	ListLines(ctx context.Context, tx *sql.Tx, cartID string) ([]domain.CartLine, error)
	FindLine(ctx context.Context, tx *sql.Tx, lineID string) (*domain.CartLine, error)
	InsertLine(ctx context.Context, tx *sql.Tx, line domain.CartLine) error
	SetLineQuantity(ctx context.Context, tx *sql.Tx, lineID string, quantity int) error
	IncrementLine(ctx context.Context, tx *sql.Tx, lineID string, delta int) error
	DeleteLine(ctx context.Context, tx *sql.Tx, lineID string) error
	SetGroupQuantity(ctx context.Context, tx *sql.Tx, cartID, groupID string, quantity int) (int64, error)
	IncrementGroup(ctx context.Context, tx *sql.Tx, cartID, groupID string, delta int) (int64, error)
	DeleteGroup(ctx context.Context, tx *sql.Tx, cartID, groupID string) (int64, error)
	DeleteAllLines(ctx context.Context, tx *sql.Tx, cartID string) (int64, error)
	PricedLines(ctx context.Context, tx *sql.Tx, cartID string) ([]domain.PricedLine, error)
}

var errCrossRestaurant = apperrors.NewConflictError("cart already holds items from another restaurant; clear the cart first")

func checkGrowth(current, delta int) error {
	if current+delta > domain.MaxLineQuantity {
		return apperrors.NewValidationError("invalid quantity", apperrors.ValidationDetail{
			Field:   "quantity",
			Message: fmt.Sprintf("line would hold %d items, at most %d allowed", current+delta, domain.MaxLineQuantity),
		})
	}
	return nil
}

// CartService applies cart mutations. Every mutation locks the cart row
// first, so concurrent mutations of one cart are serialised and the
// single-restaurant check always sees the committed lines.
type CartService struct {
	db        mysql.TransactionManager
	repo      CartRepository
	logger    *zap.Logger
	txTimeout time.Duration
	newID     func() string
}

func NewCartService(db mysql.TransactionManager, repo CartRepository, logger *zap.Logger, txTimeout time.Duration) *CartService {
	return &CartService{
		db:        db,
		repo:      repo,
		logger:    logger,
		txTimeout: txTimeout,
		newID:     func() string { return uuid.New().String() },
	}
}

func (s *CartService) inTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(txCtx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		s.logger.Error("failed to begin transaction", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	if err := fn(txCtx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("failed to commit transaction", zap.Error(err))
		return err
	}
	return nil
}

func (s *CartService) lockWithLines(ctx context.Context, tx *sql.Tx, userID string) (*domain.Cart, []domain.CartLine, error) {
	cart, err := s.repo.LockOrCreate(ctx, tx, userID, s.newID())
	if err != nil {
		return nil, nil, err
	}

	lines, err := s.repo.ListLines(ctx, tx, cart.ID)
	if err != nil {
		return nil, nil, err
	}
	return cart, lines, nil
}

func (s *CartService) AddLine(ctx context.Context, userID string, variant domain.Variant, quantity int) error {
	return s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cart, lines, err := s.lockWithLines(ctx, tx, userID)
		if err != nil {
			return err
		}

		if r := domain.CartRestaurant(lines); r != "" && r != variant.RestaurantID {
			return errCrossRestaurant
		}

		for _, l := range lines {
			if !l.InBundle() && l.VariantID == variant.ID {
				if err := checkGrowth(l.Quantity, quantity); err != nil {
					return err
				}
				s.logger.Debug("incrementing existing cart line", zap.String("lineId", l.ID), zap.Int("delta", quantity))
				return s.repo.IncrementLine(ctx, tx, l.ID, quantity)
			}
		}

		return s.repo.InsertLine(ctx, tx, domain.CartLine{
			ID:           s.newID(),
			CartID:       cart.ID,
			ProductID:    variant.ProductID,
			VariantID:    variant.ID,
			RestaurantID: variant.RestaurantID,
			Quantity:     quantity,
		})
	})
}

// AddBundle adds one line per variant, all sharing a new group id. When the
// cart already holds a group of the same menu, that group grows instead.
func (s *CartService) AddBundle(ctx context.Context, userID string, menu domain.Menu, variants []domain.Variant, quantity int) (string, error) {
	var groupID string
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cart, lines, err := s.lockWithLines(ctx, tx, userID)
		if err != nil {
			return err
		}

		if r := domain.CartRestaurant(lines); r != "" && r != menu.RestaurantID {
			return errCrossRestaurant
		}

		for _, l := range lines {
			if l.InBundle() && l.MenuID != nil && *l.MenuID == menu.ID {
				groupID = *l.MenuGroupID
				if err := checkGrowth(l.Quantity, quantity); err != nil {
					return err
				}
				_, err := s.repo.IncrementGroup(ctx, tx, cart.ID, groupID, quantity)
				return err
			}
		}

		groupID = s.newID()
		menuID := menu.ID
		for _, v := range variants {
			if err := s.repo.InsertLine(ctx, tx, domain.CartLine{
				ID:           s.newID(),
				CartID:       cart.ID,
				ProductID:    v.ProductID,
				VariantID:    v.ID,
				RestaurantID: menu.RestaurantID,
				Quantity:     quantity,
				MenuID:       &menuID,
				MenuGroupID:  &groupID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return groupID, nil
}

// lockOwnLine loads lineID under the cart lock and checks it belongs to the
// caller and is not part of a bundle.
func (s *CartService) lockOwnLine(ctx context.Context, tx *sql.Tx, userID, lineID string) (*domain.CartLine, error) {
	cart, err := s.repo.LockByUser(ctx, tx, userID)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return nil, apperrors.NewNotFoundError("cart line not found")
		}
		return nil, err
	}

	line, err := s.repo.FindLine(ctx, tx, lineID)
	if err != nil {
		return nil, err
	}
	if line.CartID != cart.ID {
		return nil, apperrors.NewForbiddenError("not authorized")
	}
	if line.InBundle() {
		return nil, apperrors.NewConflictError("line belongs to a menu bundle; change the bundle instead")
	}
	return line, nil
}

func (s *CartService) UpdateLine(ctx context.Context, userID, lineID string, quantity int) error {
	return s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		line, err := s.lockOwnLine(ctx, tx, userID, lineID)
		if err != nil {
			return err
		}
		return s.repo.SetLineQuantity(ctx, tx, line.ID, quantity)
	})
}

func (s *CartService) RemoveLine(ctx context.Context, userID, lineID string) error {
	return s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		line, err := s.lockOwnLine(ctx, tx, userID, lineID)
		if err != nil {
			return err
		}
		return s.repo.DeleteLine(ctx, tx, line.ID)
	})
}

func (s *CartService) UpdateBundle(ctx context.Context, userID, groupID string, quantity int) error {
	return s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cart, err := s.repo.LockByUser(ctx, tx, userID)
		if err != nil {
			return bundleNotFound(err)
		}
		n, err := s.repo.SetGroupQuantity(ctx, tx, cart.ID, groupID, quantity)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperrors.NewNotFoundError("menu bundle not found")
		}
		return nil
	})
}

func (s *CartService) RemoveBundle(ctx context.Context, userID, groupID string) error {
	return s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cart, err := s.repo.LockByUser(ctx, tx, userID)
		if err != nil {
			return bundleNotFound(err)
		}
		n, err := s.repo.DeleteGroup(ctx, tx, cart.ID, groupID)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperrors.NewNotFoundError("menu bundle not found")
		}
		return nil
	})
}

func bundleNotFound(err error) error {
	if _, ok := apperrors.IsNotFoundError(err); ok {
		return apperrors.NewNotFoundError("menu bundle not found")
	}
	return err
}

// Clear empties the caller's cart. A user without a cart has nothing to clear.
func (s *CartService) Clear(ctx context.Context, userID string) error {
	return s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cart, err := s.repo.LockByUser(ctx, tx, userID)
		if err != nil {
			if _, ok := apperrors.IsNotFoundError(err); ok {
				return nil
			}
			return err
		}
		n, err := s.repo.DeleteAllLines(ctx, tx, cart.ID)
		if err != nil {
			return err
		}
		s.logger.Info("cart cleared", zap.String("cartId", cart.ID), zap.Int64("lines", n))
		return nil
	})
}

// Snapshot prices the caller's cart with the variant prices current at call
// time. A user without a cart gets an empty snapshot.
func (s *CartService) Snapshot(ctx context.Context, userID string) (*domain.CartSnapshot, error) {
	cart, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return &domain.CartSnapshot{UserID: userID}, nil
		}
		return nil, err
	}

	lines, err := s.repo.PricedLines(ctx, nil, cart.ID)
	if err != nil {
		return nil, err
	}

	return buildSnapshot(cart, lines), nil
}

func buildSnapshot(cart *domain.Cart, lines []domain.PricedLine) *domain.CartSnapshot {
	snap := &domain.CartSnapshot{CartID: cart.ID, UserID: cart.UserID, Lines: lines}
	if len(lines) > 0 {
		snap.RestaurantID = lines[0].RestaurantID
	}
	return snap
}
