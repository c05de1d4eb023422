package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

const ProviderMTNMoMo = "MTN_MOMO"

// GatewayStatus is the transaction status reported by the payment provider.
type GatewayStatus string

const (
	GatewayStatusPending    GatewayStatus = "PENDING"
	GatewayStatusSuccessful GatewayStatus = "SUCCESSFUL"
	GatewayStatusFailed     GatewayStatus = "FAILED"
)

func (s GatewayStatus) Valid() bool {
	return s == GatewayStatusPending || s == GatewayStatusSuccessful || s == GatewayStatusFailed
}

type Payment struct {
	ID                    string
	OrderID               string
	Amount                int64
	Currency              string
	PhoneNumber           string
	Status                PaymentStatus
	Provider              string
	ProviderTransactionID *string
	Metadata              PaymentMetadata
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TimedOut reports whether the payment was failed locally by the timeout
// path rather than by the provider.
func (p *Payment) TimedOut() bool {
	return p.Status == PaymentStatusFailed && p.Metadata.TimeoutAt != nil
}

// Expired reports whether a pending payment has outlived timeout at now.
func (p *Payment) Expired(now time.Time, timeout time.Duration) bool {
	return p.Status == PaymentStatusPending && now.Sub(p.CreatedAt) >= timeout
}

type PaymentMetadata struct {
	ReferenceID            string     `json:"referenceId,omitempty"`
	LastStatusCheck        *time.Time `json:"lastStatusCheck,omitempty"`
	TimeoutAt              *time.Time `json:"timeoutAt,omitempty"`
	FailureReason          string     `json:"failureReason,omitempty"`
	FailureKind            string     `json:"failureKind,omitempty"`
	FinancialTransactionID string     `json:"financialTransactionId,omitempty"`
	RequiresReview         bool       `json:"requiresReview,omitempty"`
	LateReconciledAt       *time.Time `json:"lateReconciledAt,omitempty"`
}

func (m PaymentMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *PaymentMetadata) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = PaymentMetadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	if len(raw) == 0 {
		*m = PaymentMetadata{}
		return nil
	}
	return json.Unmarshal(raw, m)
}
