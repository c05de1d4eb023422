package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentMetadata_ValueScan(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	meta := PaymentMetadata{ReferenceID: "ref-1", TimeoutAt: &at, RequiresReview: true}

	v, err := meta.Value()
	require.NoError(t, err)

	var back PaymentMetadata
	require.NoError(t, back.Scan([]byte(v.(string))))
	assert.Equal(t, "ref-1", back.ReferenceID)
	assert.True(t, back.RequiresReview)
	require.NotNil(t, back.TimeoutAt)
	assert.True(t, at.Equal(*back.TimeoutAt))
}

func TestPaymentMetadata_ScanNull(t *testing.T) {
	meta := PaymentMetadata{ReferenceID: "stale"}
	require.NoError(t, meta.Scan(nil))
	assert.Equal(t, PaymentMetadata{}, meta)

	assert.Error(t, meta.Scan(42))
}

func TestPayment_TimedOutAndExpired(t *testing.T) {
	created := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	p := &Payment{Status: PaymentStatusPending, CreatedAt: created}

	assert.False(t, p.Expired(created.Add(4*time.Minute), 5*time.Minute))
	assert.True(t, p.Expired(created.Add(5*time.Minute), 5*time.Minute))
	assert.False(t, p.TimedOut())

	at := created.Add(5 * time.Minute)
	p.Status = PaymentStatusFailed
	p.Metadata.TimeoutAt = &at
	assert.True(t, p.TimedOut())
	assert.False(t, p.Expired(created.Add(time.Hour), 5*time.Minute))
}
