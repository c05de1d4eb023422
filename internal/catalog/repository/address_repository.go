package repository

import (
	"context"
	"database/sql"
	"fmt"

	"foodmarket/internal/domain"
	"foodmarket/internal/errors"
)

type MySQLAddressRepository struct {
	db *sql.DB
}

func NewMySQLAddressRepository(db *sql.DB) *MySQLAddressRepository {
	return &MySQLAddressRepository{db: db}
}

func (r *MySQLAddressRepository) FindByID(ctx context.Context, id string) (*domain.Address, error) {
	var a domain.Address
	err := r.db.QueryRowContext(ctx, `
		SELECT id, userId, street, city, country FROM Addresses WHERE id = ?
	`, id).Scan(&a.ID, &a.UserID, &a.Street, &a.City, &a.Country)

	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("address with id %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying address by id: %w", err)
	}

	return &a, nil
}
