package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"foodmarket/internal/domain"
	"foodmarket/internal/errors"
	"foodmarket/internal/infrastructure/mysql"
)

type MySQLOrderRepository struct {
	db *sql.DB
}

func NewMySQLOrderRepository(db *sql.DB) *MySQLOrderRepository {
	return &MySQLOrderRepository{db: db}
}

const orderColumns = `id, userId, restaurantId, subTotal, deliveryFee, total, isDelivery, paymentMethod,
	notes, deliveryAddress, status, paidAt, hiddenForBuyer, createdAt, updatedAt`

func scanOrder(scan func(dest ...interface{}) error) (*domain.Order, error) {
	var (
		o       domain.Order
		notes   sql.NullString
		address sql.NullString
		paidAt  sql.NullTime
	)
	err := scan(
		&o.ID, &o.UserID, &o.RestaurantID, &o.SubTotal, &o.DeliveryFee, &o.Total, &o.IsDelivery,
		&o.PaymentMethod, &notes, &address, &o.Status, &paidAt, &o.HiddenForBuyer,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if notes.Valid {
		o.Notes = &notes.String
	}
	if address.Valid {
		o.DeliveryAddress = &address.String
	}
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}
	return &o, nil
}

func (r *MySQLOrderRepository) Insert(ctx context.Context, tx *sql.Tx, o *domain.Order) error {
	query := `
		INSERT INTO Orders (id, userId, restaurantId, subTotal, deliveryFee, total, isDelivery,
		                    paymentMethod, notes, deliveryAddress, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.ExecContext(ctx, query,
		o.ID, o.UserID, o.RestaurantID, o.SubTotal, o.DeliveryFee, o.Total, o.IsDelivery,
		o.PaymentMethod, o.Notes, o.DeliveryAddress, o.Status,
	)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

func (r *MySQLOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.findByID(ctx, r.db, id, "")
}

// LockByID reads the order with a row lock held until tx ends.
func (r *MySQLOrderRepository) LockByID(ctx context.Context, tx *sql.Tx, id string) (*domain.Order, error) {
	return r.findByID(ctx, tx, id, " FOR UPDATE")
}

func (r *MySQLOrderRepository) findByID(ctx context.Context, q mysql.Querier, id, suffix string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM Orders WHERE id = ?` + suffix

	o, err := scanOrder(q.QueryRowContext(ctx, query, id).Scan)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("order with id %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying order by id: %w", err)
	}
	return o, nil
}

// UpdateStatus moves the order from one status to another. The update only
// applies while the row still holds from; otherwise a ConflictError is
// returned.
func (r *MySQLOrderRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id string, from, to domain.OrderStatus) error {
	query := `UPDATE Orders SET status = ? WHERE id = ? AND status = ?`

	result, err := tx.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("updating order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return errors.NewConflictError(fmt.Sprintf("order %s is no longer %s", id, from))
	}

	return nil
}

// MarkPaid moves a PENDING order to PAID. It reports false when the order
// was not PENDING anymore.
func (r *MySQLOrderRepository) MarkPaid(ctx context.Context, tx *sql.Tx, id string, paidAt time.Time) (bool, error) {
	query := `UPDATE Orders SET status = ?, paidAt = ? WHERE id = ? AND status = ?`

	result, err := tx.ExecContext(ctx, query, domain.OrderStatusPaid, paidAt, id, domain.OrderStatusPending)
	if err != nil {
		return false, fmt.Errorf("marking order paid: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// ListByUser returns one page of the buyer's visible orders, newest first,
// together with the number of visible orders.
func (r *MySQLOrderRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Order, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM Orders WHERE userId = ? AND hiddenForBuyer = 0`, userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	query := `SELECT ` + orderColumns + ` FROM Orders
		WHERE userId = ? AND hiddenForBuyer = 0
		ORDER BY createdAt DESC, id
		LIMIT ? OFFSET ?`

	orders, err := r.list(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *MySQLOrderRepository) ListByRestaurant(ctx context.Context, restaurantID string) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM Orders WHERE restaurantId = ? ORDER BY createdAt DESC, id`
	return r.list(ctx, query, restaurantID)
}

func (r *MySQLOrderRepository) list(ctx context.Context, query string, args ...interface{}) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning order row: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order rows: %w", err)
	}

	return orders, nil
}

func (r *MySQLOrderRepository) Hide(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE Orders SET hiddenForBuyer = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("hiding order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return errors.NewNotFoundError(fmt.Sprintf("order with id %s not found", id))
	}

	return nil
}
