package mysql

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	apperrors "foodmarket/internal/errors"
)

func createDeadlockError() error {
	return &mysql.MySQLError{Number: 1213}
}

func TestWithDeadlockRetry_SucceedsAfterDeadlock(t *testing.T) {
	calls := 0
	err := WithDeadlockRetry(context.Background(), zap.NewNop(), "checkout", 3, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("inserting order: %w", createDeadlockError())
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithDeadlockRetry_Exhausted(t *testing.T) {
	calls := 0
	err := WithDeadlockRetry(context.Background(), zap.NewNop(), "checkout", 3, func(ctx context.Context) error {
		calls++
		return &mysql.MySQLError{Number: 1205}
	})

	assert.Equal(t, 3, calls)
	_, ok := apperrors.IsDeadlockError(err)
	assert.True(t, ok)
}

func TestWithDeadlockRetry_NonDeadlockReturnsImmediately(t *testing.T) {
	calls := 0
	conflict := apperrors.NewConflictError("cart spans two restaurants")
	err := WithDeadlockRetry(context.Background(), zap.NewNop(), "add line", 3, func(ctx context.Context) error {
		calls++
		return conflict
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, conflict, err)
}

func TestWithDeadlockRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithDeadlockRetry(ctx, zap.NewNop(), "checkout", 5, func(ctx context.Context) error {
		calls++
		cancel()
		return createDeadlockError()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestIsDeadlock(t *testing.T) {
	assert.True(t, IsDeadlock(createDeadlockError()))
	assert.False(t, IsDeadlock(&mysql.MySQLError{Number: 1062}))
	assert.False(t, IsDeadlock(errors.New("boom")))
}
