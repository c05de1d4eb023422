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
	apperrors "foodmarket/internal/errors"
)

func newTxMock(t *testing.T) (*MySQLCartRepository, *sql.Tx, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	return NewMySQLCartRepository(db), tx, mock
}

var lineCols = []string{"id", "cartId", "productId", "variantId", "restaurantId", "quantity", "menuId", "menuGroupId"}

func TestCartRepository_LockOrCreate(t *testing.T) {
	repo, tx, mock := newTxMock(t)
	now := time.Now()

	mock.ExpectExec(`INSERT IGNORE INTO Carts`).WithArgs("cart-new", "u-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id, userId, createdAt, updatedAt FROM Carts WHERE userId = \? FOR UPDATE`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "userId", "createdAt", "updatedAt"}).AddRow("cart-1", "u-1", now, now))

	cart, err := repo.LockOrCreate(context.Background(), tx, "u-1", "cart-new")
	require.NoError(t, err)
	assert.Equal(t, "cart-1", cart.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepository_LockByUser_NotFound(t *testing.T) {
	repo, tx, mock := newTxMock(t)

	mock.ExpectQuery(`FROM Carts WHERE userId = \? FOR UPDATE`).WithArgs("u-2").WillReturnError(sql.ErrNoRows)

	_, err := repo.LockByUser(context.Background(), tx, "u-2")
	_, ok := apperrors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestCartRepository_ListLines(t *testing.T) {
	repo, tx, mock := newTxMock(t)

	mock.ExpectQuery(`FROM CartItems WHERE cartId = \?`).WithArgs("cart-1").
		WillReturnRows(sqlmock.NewRows(lineCols).
			AddRow("l-1", "cart-1", "p-1", "v-1", "r-1", 2, nil, nil).
			AddRow("l-2", "cart-1", "p-2", "v-2", "r-1", 1, "m-1", "g-1"))

	lines, err := repo.ListLines(context.Background(), tx, "cart-1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.False(t, lines[0].InBundle())
	require.True(t, lines[1].InBundle())
	assert.Equal(t, "g-1", *lines[1].MenuGroupID)
	assert.Equal(t, "m-1", *lines[1].MenuID)
}

func TestCartRepository_InsertLine(t *testing.T) {
	repo, tx, mock := newTxMock(t)
	group := "g-1"
	menu := "m-1"

	mock.ExpectExec(`INSERT INTO CartItems`).
		WithArgs("l-1", "cart-1", "p-1", "v-1", "r-1", 3, "m-1", "g-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.InsertLine(context.Background(), tx, domain.CartLine{
		ID: "l-1", CartID: "cart-1", ProductID: "p-1", VariantID: "v-1", RestaurantID: "r-1",
		Quantity: 3, MenuID: &menu, MenuGroupID: &group,
	})
	assert.NoError(t, err)
}

func TestCartRepository_IncrementLine_NotFound(t *testing.T) {
	repo, tx, mock := newTxMock(t)

	mock.ExpectExec(`UPDATE CartItems SET quantity = quantity \+ \? WHERE id = \?`).
		WithArgs(2, "l-x").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.IncrementLine(context.Background(), tx, "l-x", 2)
	_, ok := apperrors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestCartRepository_GroupOperations(t *testing.T) {
	repo, tx, mock := newTxMock(t)

	mock.ExpectExec(`UPDATE CartItems SET quantity = \? WHERE cartId = \? AND menuGroupId = \?`).
		WithArgs(4, "cart-1", "g-1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM CartItems WHERE cartId = \? AND menuGroupId = \?`).
		WithArgs("cart-1", "g-1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM CartItems WHERE cartId = \?`).
		WithArgs("cart-1").WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.SetGroupQuantity(context.Background(), tx, "cart-1", "g-1", 4)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = repo.DeleteGroup(context.Background(), tx, "cart-1", "g-1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = repo.DeleteAllLines(context.Background(), tx, "cart-1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepository_PricedLines(t *testing.T) {
	repo, tx, mock := newTxMock(t)

	mock.ExpectQuery(`JOIN ProductVariants v ON v.id = ci.variantId`).WithArgs("cart-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "productId", "name", "variantId", "label", "restaurantId", "quantity", "price", "isAvailable", "menuId", "menuGroupId"}).
			AddRow("l-1", "p-1", "Poulet DG", "v-1", "Standard", "r-1", 2, int64(3500), true, nil, nil))

	lines, err := repo.PricedLines(context.Background(), tx, "cart-1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(7000), lines[0].LineTotal())
	assert.Equal(t, "Poulet DG", lines[0].ProductName)
}
