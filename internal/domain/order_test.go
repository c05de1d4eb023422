package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusDelivering,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func TestCanTransition_Table(t *testing.T) {
	allowed := map[[2]OrderStatus]bool{
		{OrderStatusPending, OrderStatusPaid}:          true,
		{OrderStatusPending, OrderStatusCancelled}:     true,
		{OrderStatusPaid, OrderStatusPreparing}:        true,
		{OrderStatusPaid, OrderStatusCancelled}:        true,
		{OrderStatusPreparing, OrderStatusReady}:       true,
		{OrderStatusPreparing, OrderStatusCancelled}:   true,
		{OrderStatusReady, OrderStatusDelivering}:      true,
		{OrderStatusReady, OrderStatusDelivered}:       true,
		{OrderStatusDelivering, OrderStatusDelivered}:  true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			assert.Equal(t, allowed[[2]OrderStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_TerminalStatesHaveNoExit(t *testing.T) {
	for _, to := range allStatuses {
		assert.False(t, CanTransition(OrderStatusDelivered, to))
		assert.False(t, CanTransition(OrderStatusCancelled, to))
	}
	assert.True(t, OrderStatusDelivered.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusReady.IsTerminal())
}

func TestRoleAllows(t *testing.T) {
	tests := []struct {
		name string
		role ActorRole
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{"buyer cancels pending", RoleBuyer, OrderStatusPending, OrderStatusCancelled, true},
		{"buyer cannot cancel paid", RoleBuyer, OrderStatusPaid, OrderStatusCancelled, false},
		{"buyer cannot mark paid", RoleBuyer, OrderStatusPending, OrderStatusPaid, false},
		{"operator marks paid", RoleOperator, OrderStatusPending, OrderStatusPaid, true},
		{"operator prepares", RoleOperator, OrderStatusPaid, OrderStatusPreparing, true},
		{"operator cancels preparing", RoleOperator, OrderStatusPreparing, OrderStatusCancelled, true},
		{"operator skips to delivered", RoleOperator, OrderStatusPending, OrderStatusDelivered, false},
		{"operator cannot reopen", RoleOperator, OrderStatusCancelled, OrderStatusPending, false},
		{"operator cannot set pending", RoleOperator, OrderStatusPaid, OrderStatusPending, false},
		{"unknown role", ActorRole("COURIER"), OrderStatusReady, OrderStatusDelivered, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoleAllows(tt.role, tt.from, tt.to))
		})
	}
}

func TestOrder_RoleOf(t *testing.T) {
	order := &Order{UserID: "buyer-1"}

	role, ok := order.RoleOf("buyer-1", "owner-1")
	assert.True(t, ok)
	assert.Equal(t, RoleBuyer, role)

	role, ok = order.RoleOf("owner-1", "owner-1")
	assert.True(t, ok)
	assert.Equal(t, RoleOperator, role)

	_, ok = order.RoleOf("stranger", "owner-1")
	assert.False(t, ok)
}

func TestOrder_RefundAmount(t *testing.T) {
	paidAt := time.Now()

	assert.Equal(t, int64(2500), (&Order{Total: 2500, PaidAt: &paidAt}).RefundAmount(1000))
	assert.Equal(t, int64(1000), (&Order{Total: 1000, PaidAt: &paidAt}).RefundAmount(1000))
	assert.Equal(t, int64(0), (&Order{Total: 999, PaidAt: &paidAt}).RefundAmount(1000))
	assert.Equal(t, int64(0), (&Order{Total: 5000}).RefundAmount(1000))
}

func TestOrderStatus_Valid(t *testing.T) {
	for _, s := range allStatuses {
		assert.True(t, s.Valid())
	}
	assert.False(t, OrderStatus("EN_PREPARATION").Valid())
	assert.True(t, PaymentMethodCash.Valid())
	assert.False(t, PaymentMethod("CARD").Valid())
}

func TestItemCount(t *testing.T) {
	items := []OrderItem{{Quantity: 2, UnitPrice: 1500}, {Quantity: 1, UnitPrice: 700}}
	assert.Equal(t, 3, ItemCount(items))
	assert.Equal(t, int64(3000), items[0].LineTotal())
}
