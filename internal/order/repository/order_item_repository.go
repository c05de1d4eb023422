package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"foodmarket/internal/domain"
	"foodmarket/internal/infrastructure/mysql"
)

type MySQLOrderItemRepository struct {
	db *sql.DB
}

func NewMySQLOrderItemRepository(db *sql.DB) *MySQLOrderItemRepository {
	return &MySQLOrderItemRepository{db: db}
}

// InsertBatch writes all items in one statement. Each item's index in
// items is stored as its position so reads return them in the same order.
func (r *MySQLOrderItemRepository) InsertBatch(ctx context.Context, tx *sql.Tx, items []domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	rows := make([]string, 0, len(items))
	args := make([]interface{}, 0, len(items)*8)
	for i, it := range items {
		rows = append(rows, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, it.ID, it.OrderID, i, it.ProductID, it.VariantID, it.VariantLabel, it.Quantity, it.UnitPrice)
	}

	query := `INSERT INTO OrderItems (id, orderId, position, productId, variantId, variantLabel, quantity, unitPrice) VALUES ` +
		strings.Join(rows, ", ")

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting order items: %w", err)
	}
	return nil
}

// FindByOrderIDs groups the items of the given orders by order id.
func (r *MySQLOrderItemRepository) FindByOrderIDs(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	out := make(map[string][]domain.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}

	marks, args := mysql.Placeholders(orderIDs)
	query := `SELECT id, orderId, productId, variantId, variantLabel, quantity, unitPrice
		FROM OrderItems WHERE orderId IN (` + marks + `) ORDER BY orderId, position`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.VariantLabel, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scanning order item row: %w", err)
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order item rows: %w", err)
	}

	return out, nil
}

func (r *MySQLOrderItemRepository) FindByOrderID(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	byOrder, err := r.FindByOrderIDs(ctx, []string{orderID})
	if err != nil {
		return nil, err
	}
	return byOrder[orderID], nil
}
