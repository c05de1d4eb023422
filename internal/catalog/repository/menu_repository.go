package repository

import (
	"context"
	"database/sql"
	"fmt"

	"foodmarket/internal/domain"
	"foodmarket/internal/errors"
)

type MySQLMenuRepository struct {
	db *sql.DB
}

func NewMySQLMenuRepository(db *sql.DB) *MySQLMenuRepository {
	return &MySQLMenuRepository{db: db}
}

func (r *MySQLMenuRepository) FindByID(ctx context.Context, id string) (*domain.Menu, error) {
	query := `
		SELECT id, restaurantId, name, startsAt, endsAt, isActive
		FROM Menus
		WHERE id = ?
	`

	var (
		m        domain.Menu
		startsAt sql.NullTime
		endsAt   sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.RestaurantID, &m.Name, &startsAt, &endsAt, &m.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("menu with id %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying menu by id: %w", err)
	}
	if startsAt.Valid {
		m.StartsAt = &startsAt.Time
	}
	if endsAt.Valid {
		m.EndsAt = &endsAt.Time
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT productId FROM MenuProducts WHERE menuId = ? ORDER BY position, productId
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying menu products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var productID string
		if err := rows.Scan(&productID); err != nil {
			return nil, fmt.Errorf("scanning menu product row: %w", err)
		}
		m.ProductIDs = append(m.ProductIDs, productID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating menu product rows: %w", err)
	}

	return &m, nil
}
