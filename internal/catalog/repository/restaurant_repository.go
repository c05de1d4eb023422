package repository

import (
	"context"
	"database/sql"
	"fmt"

	"foodmarket/internal/domain"
	"foodmarket/internal/errors"
)

type MySQLRestaurantRepository struct {
	db *sql.DB
}

func NewMySQLRestaurantRepository(db *sql.DB) *MySQLRestaurantRepository {
	return &MySQLRestaurantRepository{db: db}
}

func (r *MySQLRestaurantRepository) FindByID(ctx context.Context, id string) (*domain.Restaurant, error) {
	var rest domain.Restaurant
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, ownerId FROM Restaurants WHERE id = ?
	`, id).Scan(&rest.ID, &rest.Name, &rest.OwnerID)

	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("restaurant with id %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying restaurant by id: %w", err)
	}

	return &rest, nil
}

func (r *MySQLRestaurantRepository) FindByOwner(ctx context.Context, ownerID string) (*domain.Restaurant, error) {
	var rest domain.Restaurant
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, ownerId FROM Restaurants WHERE ownerId = ? ORDER BY createdAt LIMIT 1
	`, ownerID).Scan(&rest.ID, &rest.Name, &rest.OwnerID)

	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("no restaurant owned by caller")
	}
	if err != nil {
		return nil, fmt.Errorf("querying restaurant by owner: %w", err)
	}

	return &rest, nil
}
