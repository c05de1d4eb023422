package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "foodmarket/internal/errors"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var variantCols = []string{"id", "productId", "name", "restaurantId", "label", "price", "isAvailable", "position"}

func TestVariantRepository_FindByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMySQLVariantRepository(db)

	mock.ExpectQuery(`SELECT .* FROM ProductVariants v\s+JOIN Products p`).
		WithArgs("v-1").
		WillReturnRows(sqlmock.NewRows(variantCols).AddRow("v-1", "p-1", "Ndolé", "r-1", "Large", int64(2500), true, 0))

	v, err := repo.FindByID(context.Background(), "v-1")
	require.NoError(t, err)
	assert.Equal(t, "r-1", v.RestaurantID)
	assert.Equal(t, int64(2500), v.Price)
	assert.True(t, v.IsAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVariantRepository_FindByID_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMySQLVariantRepository(db)

	mock.ExpectQuery(`SELECT .* FROM ProductVariants`).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	v, err := repo.FindByID(context.Background(), "missing")
	assert.Nil(t, v)
	_, ok := apperrors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestVariantRepository_FindByProductIDs(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMySQLVariantRepository(db)

	mock.ExpectQuery(`WHERE v.productId IN \(\?, \?\)`).
		WithArgs("p-1", "p-2").
		WillReturnRows(sqlmock.NewRows(variantCols).
			AddRow("v-1", "p-1", "Ndolé", "r-1", "Standard", int64(2000), false, 0).
			AddRow("v-2", "p-1", "Ndolé", "r-1", "Large", int64(2500), true, 1).
			AddRow("v-3", "p-2", "Jus", "r-1", "Standard", int64(500), true, 0))

	variants, err := repo.FindByProductIDs(context.Background(), []string{"p-1", "p-2"})
	require.NoError(t, err)
	assert.Len(t, variants, 3)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVariantRepository_FindByProductIDs_Empty(t *testing.T) {
	db, _ := newMock(t)
	repo := NewMySQLVariantRepository(db)

	variants, err := repo.FindByProductIDs(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, variants)
}

func TestMenuRepository_FindByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMySQLMenuRepository(db)

	starts := time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM Menus`).WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "restaurantId", "name", "startsAt", "endsAt", "isActive"}).
			AddRow("m-1", "r-1", "Lunch", starts, nil, true))
	mock.ExpectQuery(`FROM MenuProducts`).WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{"productId"}).AddRow("p-1").AddRow("p-2"))

	m, err := repo.FindByID(context.Background(), "m-1")
	require.NoError(t, err)
	require.NotNil(t, m.StartsAt)
	assert.Nil(t, m.EndsAt)
	assert.Equal(t, []string{"p-1", "p-2"}, m.ProductIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMenuRepository_FindByID_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMySQLMenuRepository(db)

	mock.ExpectQuery(`FROM Menus`).WithArgs("m-x").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "m-x")
	_, ok := apperrors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestRestaurantRepository(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMySQLRestaurantRepository(db)

	mock.ExpectQuery(`FROM Restaurants WHERE id = \?`).WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "ownerId"}).AddRow("r-1", "Chez Mama", "owner-1"))
	mock.ExpectQuery(`FROM Restaurants WHERE ownerId = \?`).WithArgs("nobody").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM Restaurants WHERE id = \?`).WithArgs("r-2").WillReturnError(errors.New("connection lost"))

	r, err := repo.FindByID(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", r.OwnerID)

	_, err = repo.FindByOwner(context.Background(), "nobody")
	_, ok := apperrors.IsNotFoundError(err)
	assert.True(t, ok)

	_, err = repo.FindByID(context.Background(), "r-2")
	assert.Error(t, err)
	_, ok = apperrors.IsNotFoundError(err)
	assert.False(t, ok)
}

func TestAddressRepository_FindByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMySQLAddressRepository(db)

	mock.ExpectQuery(`FROM Addresses`).WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "userId", "street", "city", "country"}).
			AddRow("a-1", "u-1", "12 Rue Mbochi", "Brazzaville", "Congo"))

	a, err := repo.FindByID(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, "12 Rue Mbochi, Brazzaville, Congo", a.Format())
}
