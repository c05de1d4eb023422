package dto

import "time"

type InitiatePaymentRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

type PaymentDTO struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"orderId"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	PhoneNumber   string    `json:"phoneNumber"`
	Status        string    `json:"status"`
	Provider      string    `json:"provider"`
	ReferenceID   *string   `json:"referenceId,omitempty"`
	FailureReason string    `json:"failureReason,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type PaymentResponse struct {
	TraceID string     `json:"traceId"`
	Payment PaymentDTO `json:"payment"`
}

// WebhookPayload is the provider callback body.
type WebhookPayload struct {
	ReferenceID            string  `json:"referenceId"`
	Status                 string  `json:"status"`
	FinancialTransactionID *string `json:"financialTransactionId,omitempty"`
	Reason                 *string `json:"reason,omitempty"`
}

type GatewayHealthResponse struct {
	TraceID string `json:"traceId"`
	Ready   bool   `json:"ready"`
	Error   string `json:"error,omitempty"`
}
