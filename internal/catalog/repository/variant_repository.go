package repository

import (
	"context"
	"database/sql"
	"fmt"

	"foodmarket/internal/domain"
	"foodmarket/internal/errors"
	"foodmarket/internal/infrastructure/mysql"
)

type MySQLVariantRepository struct {
	db *sql.DB
}

func NewMySQLVariantRepository(db *sql.DB) *MySQLVariantRepository {
	return &MySQLVariantRepository{db: db}
}

const variantColumns = `
	v.id, v.productId, p.name, p.restaurantId, v.label, v.price, v.isAvailable, v.position`

func (r *MySQLVariantRepository) FindByID(ctx context.Context, id string) (*domain.Variant, error) {
	query := `SELECT` + variantColumns + `
		FROM ProductVariants v
		JOIN Products p ON p.id = v.productId
		WHERE v.id = ? AND p.isDeleted = 0`

	var v domain.Variant
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&v.ID, &v.ProductID, &v.ProductName, &v.RestaurantID, &v.Label, &v.Price, &v.IsAvailable, &v.Position,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("variant with id %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying variant by id: %w", err)
	}

	return &v, nil
}

// FindByProductIDs returns every variant of the given products ordered by
// product and position, so the first available variant of a product comes
// first.
func (r *MySQLVariantRepository) FindByProductIDs(ctx context.Context, productIDs []string) ([]domain.Variant, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	marks, args := mysql.Placeholders(productIDs)
	query := fmt.Sprintf(`SELECT`+variantColumns+`
		FROM ProductVariants v
		JOIN Products p ON p.id = v.productId
		WHERE v.productId IN (%s) AND p.isDeleted = 0
		ORDER BY v.productId, v.position, v.id`, marks)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying variants: %w", err)
	}
	defer rows.Close()

	var variants []domain.Variant
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(
			&v.ID, &v.ProductID, &v.ProductName, &v.RestaurantID, &v.Label, &v.Price, &v.IsAvailable, &v.Position,
		); err != nil {
			return nil, fmt.Errorf("scanning variant row: %w", err)
		}
		variants = append(variants, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating variant rows: %w", err)
	}

	return variants, nil
}
