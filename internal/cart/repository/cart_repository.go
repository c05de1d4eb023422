package repository

import (
	"context"
	"database/sql"
	"fmt"

	"foodmarket/internal/domain"
	"foodmarket/internal/errors"
	"foodmarket/internal/infrastructure/mysql"
)

type MySQLCartRepository struct {
	db *sql.DB
}

func NewMySQLCartRepository(db *sql.DB) *MySQLCartRepository {
	return &MySQLCartRepository{db: db}
}

// LockOrCreate returns the caller's cart locked for the rest of tx, creating
// it first when the user has none yet.
func (r *MySQLCartRepository) LockOrCreate(ctx context.Context, tx *sql.Tx, userID, newID string) (*domain.Cart, error) {
	if _, err := tx.ExecContext(ctx, `INSERT IGNORE INTO Carts (id, userId) VALUES (?, ?)`, newID, userID); err != nil {
		return nil, fmt.Errorf("creating cart: %w", err)
	}
	return r.LockByUser(ctx, tx, userID)
}

func (r *MySQLCartRepository) LockByUser(ctx context.Context, tx *sql.Tx, userID string) (*domain.Cart, error) {
	return r.findByUser(ctx, tx, userID, " FOR UPDATE")
}

func (r *MySQLCartRepository) FindByUser(ctx context.Context, userID string) (*domain.Cart, error) {
	return r.findByUser(ctx, r.db, userID, "")
}

func (r *MySQLCartRepository) findByUser(ctx context.Context, q mysql.Querier, userID, suffix string) (*domain.Cart, error) {
	query := `SELECT id, userId, createdAt, updatedAt FROM Carts WHERE userId = ?` + suffix

	var c domain.Cart
	err := q.QueryRowContext(ctx, query, userID).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("cart not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying cart by user: %w", err)
	}

	return &c, nil
}

const lineColumns = `id, cartId, productId, variantId, restaurantId, quantity, menuId, menuGroupId`

func scanLine(scan func(dest ...interface{}) error) (domain.CartLine, error) {
	var (
		l       domain.CartLine
		menuID  sql.NullString
		groupID sql.NullString
	)
	if err := scan(&l.ID, &l.CartID, &l.ProductID, &l.VariantID, &l.RestaurantID, &l.Quantity, &menuID, &groupID); err != nil {
		return l, err
	}
	if menuID.Valid {
		l.MenuID = &menuID.String
	}
	if groupID.Valid {
		l.MenuGroupID = &groupID.String
	}
	return l, nil
}

func (r *MySQLCartRepository) ListLines(ctx context.Context, tx *sql.Tx, cartID string) ([]domain.CartLine, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+lineColumns+` FROM CartItems WHERE cartId = ? ORDER BY createdAt, id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("querying cart lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		l, err := scanLine(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning cart line row: %w", err)
		}
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cart line rows: %w", err)
	}

	return lines, nil
}

func (r *MySQLCartRepository) FindLine(ctx context.Context, tx *sql.Tx, lineID string) (*domain.CartLine, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+lineColumns+` FROM CartItems WHERE id = ?`, lineID)
	l, err := scanLine(row.Scan)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("cart line with id %s not found", lineID))
	}
	if err != nil {
		return nil, fmt.Errorf("querying cart line by id: %w", err)
	}
	return &l, nil
}

func (r *MySQLCartRepository) InsertLine(ctx context.Context, tx *sql.Tx, l domain.CartLine) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO CartItems (id, cartId, productId, variantId, restaurantId, quantity, menuId, menuGroupId)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.CartID, l.ProductID, l.VariantID, l.RestaurantID, l.Quantity, l.MenuID, l.MenuGroupID)
	if err != nil {
		return fmt.Errorf("inserting cart line: %w", err)
	}
	return nil
}

func (r *MySQLCartRepository) SetLineQuantity(ctx context.Context, tx *sql.Tx, lineID string, quantity int) error {
	return r.execOne(ctx, tx, "updating cart line quantity",
		`UPDATE CartItems SET quantity = ? WHERE id = ?`, quantity, lineID)
}

func (r *MySQLCartRepository) IncrementLine(ctx context.Context, tx *sql.Tx, lineID string, delta int) error {
	return r.execOne(ctx, tx, "incrementing cart line",
		`UPDATE CartItems SET quantity = quantity + ? WHERE id = ?`, delta, lineID)
}

func (r *MySQLCartRepository) DeleteLine(ctx context.Context, tx *sql.Tx, lineID string) error {
	return r.execOne(ctx, tx, "deleting cart line", `DELETE FROM CartItems WHERE id = ?`, lineID)
}

func (r *MySQLCartRepository) SetGroupQuantity(ctx context.Context, tx *sql.Tx, cartID, groupID string, quantity int) (int64, error) {
	return r.execMany(ctx, tx, "updating menu bundle quantity",
		`UPDATE CartItems SET quantity = ? WHERE cartId = ? AND menuGroupId = ?`, quantity, cartID, groupID)
}

func (r *MySQLCartRepository) IncrementGroup(ctx context.Context, tx *sql.Tx, cartID, groupID string, delta int) (int64, error) {
	return r.execMany(ctx, tx, "incrementing menu bundle",
		`UPDATE CartItems SET quantity = quantity + ? WHERE cartId = ? AND menuGroupId = ?`, delta, cartID, groupID)
}

func (r *MySQLCartRepository) DeleteGroup(ctx context.Context, tx *sql.Tx, cartID, groupID string) (int64, error) {
	return r.execMany(ctx, tx, "deleting menu bundle",
		`DELETE FROM CartItems WHERE cartId = ? AND menuGroupId = ?`, cartID, groupID)
}

func (r *MySQLCartRepository) DeleteAllLines(ctx context.Context, tx *sql.Tx, cartID string) (int64, error) {
	return r.execMany(ctx, tx, "clearing cart", `DELETE FROM CartItems WHERE cartId = ?`, cartID)
}

const pricedLinesQuery = `
	SELECT ci.id, ci.productId, p.name, ci.variantId, v.label, ci.restaurantId, ci.quantity, v.price, v.isAvailable,
	       ci.menuId, ci.menuGroupId
	FROM CartItems ci
	JOIN ProductVariants v ON v.id = ci.variantId
	JOIN Products p ON p.id = ci.productId
	WHERE ci.cartId = ?
	ORDER BY ci.createdAt, ci.id`

// PricedLines joins the cart lines with the current variant prices. Pass the
// transaction to read under the cart lock, or nil to read outside one.
func (r *MySQLCartRepository) PricedLines(ctx context.Context, tx *sql.Tx, cartID string) ([]domain.PricedLine, error) {
	var q mysql.Querier = r.db
	if tx != nil {
		q = tx
	}

	rows, err := q.QueryContext(ctx, pricedLinesQuery, cartID)
	if err != nil {
		return nil, fmt.Errorf("querying priced cart lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.PricedLine
	for rows.Next() {
		var (
			l       domain.PricedLine
			menuID  sql.NullString
			groupID sql.NullString
		)
		if err := rows.Scan(&l.LineID, &l.ProductID, &l.ProductName, &l.VariantID, &l.VariantLabel,
			&l.RestaurantID, &l.Quantity, &l.UnitPrice, &l.IsAvailable, &menuID, &groupID); err != nil {
			return nil, fmt.Errorf("scanning priced cart line row: %w", err)
		}
		if menuID.Valid {
			l.MenuID = &menuID.String
		}
		if groupID.Valid {
			l.MenuGroupID = &groupID.String
		}
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating priced cart line rows: %w", err)
	}

	return lines, nil
}

func (r *MySQLCartRepository) execOne(ctx context.Context, tx *sql.Tx, op, query string, args ...interface{}) error {
	n, err := r.execMany(ctx, tx, op, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NewNotFoundError("cart line not found")
	}
	return nil
}

func (r *MySQLCartRepository) execMany(ctx context.Context, tx *sql.Tx, op, query string, args ...interface{}) (int64, error) {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	return n, nil
}
