package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodmarket/internal/domain"
	"foodmarket/internal/errors"
	"foodmarket/internal/testutil"
)

// Unit Tests

func TestPaymentRepository_UpdateStatus_Conditional(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLPaymentRepository(db)

	mock.ExpectExec("UPDATE Payments SET status = \\?, metadata = \\? WHERE id = \\? AND status = \\?").
		WithArgs("SUCCESS", sqlmock.AnyArg(), "p-1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.UpdateStatus(context.Background(), db, "p-1", domain.PaymentStatusPending, domain.PaymentStatusSuccess, domain.PaymentMetadata{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_FindByID_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLPaymentRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM Payments WHERE id = \\?").
		WithArgs("p-1").
		WillReturnError(sql.ErrConnDone)

	_, err = repo.FindByID(context.Background(), "p-1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestPaymentRepository_InsertUsesCallerClock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLPaymentRepository(db)
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO Payments").
		WithArgs("p-1", "o-1", int64(5500), "XAF", "242061234567", "PENDING", "MTN_MOMO", sqlmock.AnyArg(), createdAt, createdAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), db, newPayment("p-1", "o-1", createdAt)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_ListPendingIncludesUnreferenced(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLPaymentRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM Payments\\s+WHERE status = \\?\\s+ORDER BY createdAt ASC").
		WithArgs("PENDING", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "orderId", "amount", "currency", "phoneNumber", "status", "provider",
			"providerTransactionId", "metadata", "createdAt", "updatedAt"}).
			AddRow("p-1", "o-1", 5500, "XAF", "242061234567", "PENDING", "MTN_MOMO", nil, []byte(`{}`), time.Now(), time.Now()))

	pending, err := repo.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Nil(t, pending[0].ProviderTransactionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Integration Tests

func newPayment(id, orderID string, createdAt time.Time) *domain.Payment {
	return &domain.Payment{
		ID:          id,
		OrderID:     orderID,
		Amount:      5500,
		Currency:    "XAF",
		PhoneNumber: "242061234567",
		Status:      domain.PaymentStatusPending,
		Provider:    domain.ProviderMTNMoMo,
		CreatedAt:   createdAt,
	}
}

func TestPaymentRepository_Lifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	ctx := context.Background()
	repo := NewMySQLPaymentRepository(db)

	require.NoError(t, repo.Insert(ctx, db, newPayment("p-1", "o-1", time.Now().UTC())))

	pending, err := repo.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1, "attempts without a reference are still swept")
	assert.Nil(t, pending[0].ProviderTransactionID)

	require.NoError(t, repo.SetReference(ctx, "p-1", "ref-1", domain.PaymentMetadata{ReferenceID: "ref-1"}))

	p, err := repo.FindByReference(ctx, domain.ProviderMTNMoMo, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)
	assert.Equal(t, "ref-1", p.Metadata.ReferenceID)

	pending, err = repo.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	locked, err := repo.LockByID(ctx, tx, "p-1")
	require.NoError(t, err)

	meta := locked.Metadata
	meta.FinancialTransactionID = "fin-1"
	ok, err := repo.UpdateStatus(ctx, tx, "p-1", domain.PaymentStatusPending, domain.PaymentStatusSuccess, meta)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, tx.Commit())

	ok, err = repo.UpdateStatus(ctx, db, "p-1", domain.PaymentStatusPending, domain.PaymentStatusFailed, meta)
	require.NoError(t, err)
	assert.False(t, ok)

	p, err = repo.FindByID(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, p.Status)
	assert.Equal(t, "fin-1", p.Metadata.FinancialTransactionID)
}

func TestPaymentRepository_LatestForOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	ctx := context.Background()
	repo := NewMySQLPaymentRepository(db)

	_, err := repo.LatestForOrder(ctx, db, "o-1")
	_, ok := errors.IsNotFoundError(err)
	assert.True(t, ok)

	require.NoError(t, repo.Insert(ctx, db, newPayment("p-1", "o-1", time.Now().UTC().Add(-time.Hour))))
	require.NoError(t, repo.Insert(ctx, db, newPayment("p-2", "o-1", time.Now().UTC())))

	p, err := repo.LatestForOrder(ctx, db, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "p-2", p.ID)
}
