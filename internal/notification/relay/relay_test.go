package relay

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodmarket/internal/events"
)

type published struct {
	topic   string
	key     []byte
	value   []byte
	headers []kafka.Header
}

type recordingPublisher struct {
	msgs []published
}

func (p *recordingPublisher) Publish(topic string, key, value []byte, headers ...kafka.Header) error {
	p.msgs = append(p.msgs, published{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func TestRelay_Envelope(t *testing.T) {
	pub := &recordingPublisher{}
	r := New(pub, "order.events")
	r.newID = func() string { return "evt-1" }

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	e := events.NewPaymentConfirmed(events.Subject{OrderID: "o-1", UserID: "u-1", RestaurantID: "r-1"}, "p-1", 5500, "XAF")
	require.NoError(t, r.Handle(ctx, e))

	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, "order.events", msg.topic)
	assert.Equal(t, "o-1", string(msg.key))
	assert.Equal(t, "order.payment.confirmed", string(msg.headers[0].Value))

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.value, &env))
	assert.Equal(t, "evt-1", env["eventId"])
	assert.Equal(t, "order.payment.confirmed", env["eventType"])
	assert.Equal(t, float64(1), env["eventVersion"])
	assert.Equal(t, "foodmarket-api", env["producer"])
	assert.Equal(t, "req-42", env["correlationId"])

	payload := env["payload"].(map[string]interface{})
	assert.Equal(t, "o-1", payload["orderId"])
	assert.Equal(t, "p-1", payload["paymentId"])
	assert.Equal(t, float64(5500), payload["amount"])
}

func TestRelay_CorrelationFallsBackToEventID(t *testing.T) {
	pub := &recordingPublisher{}
	r := New(pub, "order.events")
	r.newID = func() string { return "evt-2" }

	require.NoError(t, r.Handle(context.Background(), events.NewPaymentTimedOut(events.Subject{OrderID: "o-1", UserID: "u-1"}, "p-1")))

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(pub.msgs[0].value, &raw))
	assert.Equal(t, "evt-2", raw["correlationId"])
}
