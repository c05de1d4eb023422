package events

import (
	"time"

	"foodmarket/internal/domain"
)

type Name string

const (
	NameOrderCreated       Name = "order.created"
	NameOrderStatusUpdated Name = "order.status.updated"
	NameOrderCancelled     Name = "order.cancelled"
	NamePaymentConfirmed   Name = "order.payment.confirmed"
	NamePaymentFailed      Name = "order.payment.failed"
	NamePaymentTimeout     Name = "order.payment.timeout"
)

// Event is implemented only by the payload types of this package.
type Event interface {
	Name() Name
	Target() Subject
	When() time.Time
	sealed()
}

// Subject identifies the order an event is about and who it concerns.
type Subject struct {
	OrderID      string `json:"orderId"`
	UserID       string `json:"userId"`
	RestaurantID string `json:"restaurantId,omitempty"`
}

type Meta struct {
	Subject
	OccurredAt time.Time `json:"occurredAt"`
}

func (m Meta) Target() Subject { return m.Subject }
func (m Meta) When() time.Time { return m.OccurredAt }
func (Meta) sealed()           {}

func newMeta(s Subject) Meta {
	return Meta{Subject: s, OccurredAt: time.Now().UTC()}
}

type OrderCreated struct {
	Meta
	TotalAmount    int64  `json:"totalAmount"`
	ItemCount      int    `json:"itemCount"`
	RestaurantName string `json:"restaurantName"`
}

func (OrderCreated) Name() Name { return NameOrderCreated }

func NewOrderCreated(s Subject, totalAmount int64, itemCount int, restaurantName string) OrderCreated {
	return OrderCreated{Meta: newMeta(s), TotalAmount: totalAmount, ItemCount: itemCount, RestaurantName: restaurantName}
}

type OrderStatusUpdated struct {
	Meta
	PreviousStatus domain.OrderStatus `json:"previousStatus"`
	NewStatus      domain.OrderStatus `json:"newStatus"`
	UpdatedBy      string             `json:"updatedBy"`
	RestaurantName string             `json:"restaurantName"`
	TotalAmount    int64              `json:"totalAmount"`
}

func (OrderStatusUpdated) Name() Name { return NameOrderStatusUpdated }

func NewOrderStatusUpdated(s Subject, previous, next domain.OrderStatus, updatedBy, restaurantName string, total int64) OrderStatusUpdated {
	return OrderStatusUpdated{
		Meta:           newMeta(s),
		PreviousStatus: previous,
		NewStatus:      next,
		UpdatedBy:      updatedBy,
		RestaurantName: restaurantName,
		TotalAmount:    total,
	}
}

type OrderCancelled struct {
	Meta
	CancelledBy    string  `json:"cancelledBy"`
	Reason         *string `json:"reason,omitempty"`
	RefundEligible bool    `json:"refundEligible"`
	RefundAmount   int64   `json:"refundAmount,omitempty"`
}

func (OrderCancelled) Name() Name { return NameOrderCancelled }

func NewOrderCancelled(s Subject, cancelledBy string, reason *string, refundAmount int64) OrderCancelled {
	return OrderCancelled{
		Meta:           newMeta(s),
		CancelledBy:    cancelledBy,
		Reason:         reason,
		RefundEligible: refundAmount > 0,
		RefundAmount:   refundAmount,
	}
}

type PaymentConfirmed struct {
	Meta
	PaymentID string `json:"paymentId"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

func (PaymentConfirmed) Name() Name { return NamePaymentConfirmed }

func NewPaymentConfirmed(s Subject, paymentID string, amount int64, currency string) PaymentConfirmed {
	return PaymentConfirmed{Meta: newMeta(s), PaymentID: paymentID, Amount: amount, Currency: currency}
}

type PaymentFailed struct {
	Meta
	PaymentID string `json:"paymentId"`
	Reason    string `json:"reason"`
}

func (PaymentFailed) Name() Name { return NamePaymentFailed }

func NewPaymentFailed(s Subject, paymentID, reason string) PaymentFailed {
	return PaymentFailed{Meta: newMeta(s), PaymentID: paymentID, Reason: reason}
}

type PaymentTimedOut struct {
	Meta
	PaymentID string `json:"paymentId"`
}

func (PaymentTimedOut) Name() Name { return NamePaymentTimeout }

func NewPaymentTimedOut(s Subject, paymentID string) PaymentTimedOut {
	return PaymentTimedOut{Meta: newMeta(s), PaymentID: paymentID}
}
