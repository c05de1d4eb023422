package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusPreparing  OrderStatus = "PREPARING"
	OrderStatusReady      OrderStatus = "READY"
	OrderStatusDelivering OrderStatus = "DELIVERING"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusPreparing, OrderStatusReady,
		OrderStatusDelivering, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// orderTransitions is the complete state machine. Anything not listed is
// rejected.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing:  {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:      {OrderStatusDelivering, OrderStatusDelivered},
	OrderStatusDelivering: {OrderStatusDelivered},
}

func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ActorRole string

const (
	RoleBuyer    ActorRole = "BUYER"
	RoleOperator ActorRole = "OPERATOR"
)

var roleTargets = map[ActorRole][]OrderStatus{
	RoleBuyer: {OrderStatusCancelled},
	RoleOperator: {
		OrderStatusPaid,
		OrderStatusPreparing,
		OrderStatusReady,
		OrderStatusDelivering,
		OrderStatusDelivered,
		OrderStatusCancelled,
	},
}

// RoleAllows checks the per-role allow-list together with the state machine.
// A buyer may only cancel an order that is still PENDING.
func RoleAllows(role ActorRole, from, to OrderStatus) bool {
	allowed := false
	for _, s := range roleTargets[role] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	if role == RoleBuyer && from != OrderStatusPending {
		return false
	}
	return CanTransition(from, to)
}

type PaymentMethod string

const (
	PaymentMethodMobileMoney PaymentMethod = "MOBILE_MONEY"
	PaymentMethodCash        PaymentMethod = "CASH"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodMobileMoney || m == PaymentMethodCash
}

type Order struct {
	ID              string
	UserID          string
	RestaurantID    string
	Items           []OrderItem
	SubTotal        int64
	DeliveryFee     int64
	Total           int64
	IsDelivery      bool
	PaymentMethod   PaymentMethod
	Notes           *string
	DeliveryAddress *string
	Status          OrderStatus
	PaidAt          *time.Time
	HiddenForBuyer  bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RoleOf resolves how actorID relates to the order. ownerID is the owner of
// the order's restaurant.
func (o *Order) RoleOf(actorID, ownerID string) (ActorRole, bool) {
	switch actorID {
	case o.UserID:
		return RoleBuyer, true
	case ownerID:
		return RoleOperator, true
	}
	return "", false
}

// RefundAmount applies the minimum-amount policy: only paid orders whose
// total reaches minAmount are refunded, in full.
func (o *Order) RefundAmount(minAmount int64) int64 {
	if o.PaidAt == nil || o.Total < minAmount {
		return 0
	}
	return o.Total
}

type OrderItem struct {
	ID           string
	OrderID      string
	ProductID    string
	VariantID    string
	VariantLabel string
	Quantity     int
	UnitPrice    int64
}

func (i OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

func ItemCount(items []OrderItem) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}
