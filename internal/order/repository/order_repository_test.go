package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodmarket/internal/domain"
	"foodmarket/internal/errors"
	"foodmarket/internal/testutil"
)

// Unit Tests

func TestNewMySQLOrderRepository(t *testing.T) {
	db := &sql.DB{}
	repo := NewMySQLOrderRepository(db)

	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}

// Integration Tests

func insertOrder(t *testing.T, db *sql.DB, repo *MySQLOrderRepository, o *domain.Order) {
	t.Helper()
	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(context.Background(), tx, o))
	require.NoError(t, tx.Commit())
}

func pendingOrder(id, userID string) *domain.Order {
	notes := "no onions"
	return &domain.Order{
		ID:            id,
		UserID:        userID,
		RestaurantID:  "r-1",
		SubTotal:      5000,
		DeliveryFee:   500,
		Total:         5500,
		IsDelivery:    true,
		PaymentMethod: domain.PaymentMethodMobileMoney,
		Notes:         &notes,
		Status:        domain.OrderStatusPending,
	}
}

func TestOrderRepository_InsertAndFind(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLOrderRepository(db)
	insertOrder(t, db, repo, pendingOrder("o-1", "u-1"))

	order, err := repo.FindByID(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5500), order.Total)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	require.NotNil(t, order.Notes)
	assert.Equal(t, "no onions", *order.Notes)
	assert.Nil(t, order.DeliveryAddress)
	assert.Nil(t, order.PaidAt)
}

func TestOrderRepository_FindByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLOrderRepository(db)

	order, err := repo.FindByID(context.Background(), "missing")
	assert.Error(t, err)
	assert.Nil(t, order)

	_, ok := errors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestOrderRepository_UpdateStatus_StaleRead(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLOrderRepository(db)
	insertOrder(t, db, repo, pendingOrder("o-2", "u-1"))

	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, repo.UpdateStatus(context.Background(), tx, "o-2", domain.OrderStatusPending, domain.OrderStatusCancelled))

	err = repo.UpdateStatus(context.Background(), tx, "o-2", domain.OrderStatusPending, domain.OrderStatusPaid)
	_, ok := errors.IsConflictError(err)
	assert.True(t, ok)
}

func TestOrderRepository_MarkPaid(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLOrderRepository(db)
	insertOrder(t, db, repo, pendingOrder("o-3", "u-1"))

	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)

	paid, err := repo.MarkPaid(context.Background(), tx, "o-3", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, paid)

	paid, err = repo.MarkPaid(context.Background(), tx, "o-3", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, paid)
	require.NoError(t, tx.Commit())

	order, err := repo.FindByID(context.Background(), "o-3")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, order.Status)
	assert.NotNil(t, order.PaidAt)
}

func TestOrderRepository_ListByUser_SkipsHidden(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLOrderRepository(db)
	insertOrder(t, db, repo, pendingOrder("o-4", "u-9"))
	insertOrder(t, db, repo, pendingOrder("o-5", "u-9"))
	insertOrder(t, db, repo, pendingOrder("o-6", "u-other"))
	require.NoError(t, repo.Hide(context.Background(), "o-5"))

	orders, total, err := repo.ListByUser(context.Background(), "u-9", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, orders, 1)
	assert.Equal(t, "o-4", orders[0].ID)
}
