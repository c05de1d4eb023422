package dto

import "time"

type CheckoutRequest struct {
	AddressID     *string `json:"addressId"`
	PaymentMethod string  `json:"paymentMethod"`
	Notes         *string `json:"notes"`
	IsDelivery    *bool   `json:"isDelivery"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
}

type CancelOrderRequest struct {
	Reason *string `json:"reason"`
}

type OrderItemDTO struct {
	ID           string `json:"id"`
	ProductID    string `json:"productId"`
	VariantID    string `json:"variantId"`
	VariantLabel string `json:"variantLabel"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unitPrice"`
	LineTotal    int64  `json:"lineTotal"`
}

type OrderDTO struct {
	ID              string         `json:"id"`
	UserID          string         `json:"userId"`
	RestaurantID    string         `json:"restaurantId"`
	Status          string         `json:"status"`
	SubTotal        int64          `json:"subTotal"`
	DeliveryFee     int64          `json:"deliveryFee"`
	Total           int64          `json:"total"`
	IsDelivery      bool           `json:"isDelivery"`
	PaymentMethod   string         `json:"paymentMethod"`
	Notes           *string        `json:"notes,omitempty"`
	DeliveryAddress *string        `json:"deliveryAddress,omitempty"`
	PaidAt          *time.Time     `json:"paidAt,omitempty"`
	Items           []OrderItemDTO `json:"items"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

type OrderResponse struct {
	TraceID string   `json:"traceId"`
	Order   OrderDTO `json:"order"`
}

type PageMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type OrderListResponse struct {
	TraceID string     `json:"traceId"`
	Data    []OrderDTO `json:"data"`
	Meta    *PageMeta  `json:"meta,omitempty"`
}

type OrderStatusResponse struct {
	TraceID string `json:"traceId"`
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type ReorderItemDTO struct {
	ProductID    string `json:"productId"`
	VariantID    string `json:"variantId,omitempty"`
	VariantLabel string `json:"variantLabel"`
	Quantity     int    `json:"quantity"`
}

type ReorderResponse struct {
	TraceID     string           `json:"traceId"`
	Added       []ReorderItemDTO `json:"added"`
	Unavailable []ReorderItemDTO `json:"unavailable"`
}
