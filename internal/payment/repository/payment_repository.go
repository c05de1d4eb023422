package repository

import (
	"context"
	"database/sql"
	"fmt"

	"foodmarket/internal/domain"
	"foodmarket/internal/errors"
	"foodmarket/internal/infrastructure/mysql"
)

type MySQLPaymentRepository struct {
	db *sql.DB
}

func NewMySQLPaymentRepository(db *sql.DB) *MySQLPaymentRepository {
	return &MySQLPaymentRepository{db: db}
}

const paymentColumns = `id, orderId, amount, currency, phoneNumber, status, provider,
	providerTransactionId, metadata, createdAt, updatedAt`

func scanPayment(scan func(dest ...interface{}) error) (*domain.Payment, error) {
	var (
		p     domain.Payment
		txRef sql.NullString
	)
	err := scan(
		&p.ID, &p.OrderID, &p.Amount, &p.Currency, &p.PhoneNumber, &p.Status, &p.Provider,
		&txRef, &p.Metadata, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if txRef.Valid {
		p.ProviderTransactionID = &txRef.String
	}
	return &p, nil
}

// Insert writes a new attempt. createdAt comes from the caller's clock
// because payment expiry is measured against it.
func (r *MySQLPaymentRepository) Insert(ctx context.Context, q mysql.Querier, p *domain.Payment) error {
	query := `
		INSERT INTO Payments (id, orderId, amount, currency, phoneNumber, status, provider, metadata, createdAt, updatedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		p.ID, p.OrderID, p.Amount, p.Currency, p.PhoneNumber, p.Status, p.Provider, p.Metadata,
		p.CreatedAt, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting payment: %w", err)
	}
	return nil
}

func (r *MySQLPaymentRepository) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.findOne(ctx, r.db, `WHERE id = ?`, "", id)
}

// LockByID reads the payment with a row lock held until tx ends.
func (r *MySQLPaymentRepository) LockByID(ctx context.Context, tx *sql.Tx, id string) (*domain.Payment, error) {
	return r.findOne(ctx, tx, `WHERE id = ?`, " FOR UPDATE", id)
}

// FindByReference looks a payment up by the reference the provider knows it
// under.
func (r *MySQLPaymentRepository) FindByReference(ctx context.Context, provider, reference string) (*domain.Payment, error) {
	return r.findOne(ctx, r.db, `WHERE provider = ? AND providerTransactionId = ?`, "", provider, reference)
}

// LatestForOrder returns the most recent payment attempt of an order.
func (r *MySQLPaymentRepository) LatestForOrder(ctx context.Context, q mysql.Querier, orderID string) (*domain.Payment, error) {
	return r.findOne(ctx, q, `WHERE orderId = ? ORDER BY createdAt DESC, id DESC LIMIT 1`, "", orderID)
}

func (r *MySQLPaymentRepository) findOne(ctx context.Context, q mysql.Querier, where, suffix string, args ...interface{}) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM Payments ` + where + suffix

	p, err := scanPayment(q.QueryRowContext(ctx, query, args...).Scan)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("payment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying payment: %w", err)
	}
	return p, nil
}

// ListPending returns up to limit PENDING payments, oldest first. Attempts
// without a provider reference are included so they can time out.
func (r *MySQLPaymentRepository) ListPending(ctx context.Context, limit int) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM Payments
		WHERE status = ?
		ORDER BY createdAt ASC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, domain.PaymentStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pending payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}
		payments = append(payments, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating payments: %w", err)
	}

	return payments, nil
}

// SetReference stores the provider reference once the provider accepted the
// request.
func (r *MySQLPaymentRepository) SetReference(ctx context.Context, id, reference string, meta domain.PaymentMetadata) error {
	query := `UPDATE Payments SET providerTransactionId = ?, metadata = ? WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, reference, meta, id); err != nil {
		return fmt.Errorf("setting payment reference: %w", err)
	}
	return nil
}

// UpdateStatus moves the payment from one status to another and replaces its
// metadata. It reports false when the row no longer holds from.
func (r *MySQLPaymentRepository) UpdateStatus(ctx context.Context, q mysql.Querier, id string, from, to domain.PaymentStatus, meta domain.PaymentMetadata) (bool, error) {
	query := `UPDATE Payments SET status = ?, metadata = ? WHERE id = ? AND status = ?`

	result, err := q.ExecContext(ctx, query, to, meta, id, from)
	if err != nil {
		return false, fmt.Errorf("updating payment status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// UpdateMetadata replaces the metadata without touching the status.
func (r *MySQLPaymentRepository) UpdateMetadata(ctx context.Context, q mysql.Querier, id string, meta domain.PaymentMetadata) error {
	if _, err := q.ExecContext(ctx, `UPDATE Payments SET metadata = ? WHERE id = ?`, meta, id); err != nil {
		return fmt.Errorf("updating payment metadata: %w", err)
	}
	return nil
}
