package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"foodmarket/internal/events"
)

const (
	Producer     = "foodmarket-api"
	EventVersion = 1
)

type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafka.Header) error
}

// Envelope is the wire format of every event on the events topic.
type Envelope struct {
	EventID       string       `json:"eventId"`
	EventType     string       `json:"eventType"`
	EventVersion  int          `json:"eventVersion"`
	OccurredAt    time.Time    `json:"occurredAt"`
	Producer      string       `json:"producer"`
	CorrelationID string       `json:"correlationId"`
	Payload       events.Event `json:"payload"`
}

// Relay forwards domain events to Kafka, keyed by order id so that the events
// of one order stay in one partition.
type Relay struct {
	publisher Publisher
	topic     string
	newID     func() string
}

func New(publisher Publisher, topic string) *Relay {
	return &Relay{
		publisher: publisher,
		topic:     topic,
		newID:     func() string { return uuid.New().String() },
	}
}

func (r *Relay) Register(bus *events.Bus) {
	bus.SubscribeAll("kafka-relay", r.Handle)
}

func (r *Relay) Handle(ctx context.Context, e events.Event) error {
	id := r.newID()
	correlationID := middleware.GetReqID(ctx)
	if correlationID == "" {
		correlationID = id
	}

	value, err := json.Marshal(Envelope{
		EventID:       id,
		EventType:     string(e.Name()),
		EventVersion:  EventVersion,
		OccurredAt:    e.When(),
		Producer:      Producer,
		CorrelationID: correlationID,
		Payload:       e,
	})
	if err != nil {
		return fmt.Errorf("encoding event envelope: %w", err)
	}

	return r.publisher.Publish(r.topic, []byte(e.Target().OrderID), value,
		kafka.Header{Key: "eventType", Value: []byte(e.Name())},
	)
}
