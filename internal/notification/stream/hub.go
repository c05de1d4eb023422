package stream

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"foodmarket/internal/domain"
	apperrors "foodmarket/internal/errors"
	"foodmarket/internal/events"
	"foodmarket/internal/infrastructure/metrics"
)

// Message is one server-sent event.
type Message struct {
	Type string
	Data interface{}
}

type Subscription struct {
	id     uint64
	userID string
	ch     chan Message
}

func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Hub keeps the live connections of each user. Every subscription has a
// bounded buffer; a message for a full buffer is dropped.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[uint64]*Subscription
	nextID uint64
	closed bool

	buffer  int
	maxConn int
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewHub(buffer, maxConnsPerUser int, logger *zap.Logger, m *metrics.Metrics) *Hub {
	if buffer < 1 {
		buffer = 16
	}
	if maxConnsPerUser < 1 {
		maxConnsPerUser = 5
	}
	return &Hub{
		subs:    make(map[string]map[uint64]*Subscription),
		buffer:  buffer,
		maxConn: maxConnsPerUser,
		logger:  logger,
		metrics: m,
	}
}

func (h *Hub) Subscribe(userID string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, apperrors.NewConflictError("notification stream is shutting down")
	}
	if len(h.subs[userID]) >= h.maxConn {
		return nil, apperrors.NewConflictError("too many open notification streams")
	}

	h.nextID++
	sub := &Subscription{id: h.nextID, userID: userID, ch: make(chan Message, h.buffer)}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[uint64]*Subscription)
	}
	h.subs[userID][sub.id] = sub
	h.metrics.StreamOpened()
	return sub, nil
}

// Unsubscribe is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.subs[sub.userID]
	if !ok {
		return
	}
	if _, ok := conns[sub.id]; !ok {
		return
	}
	delete(conns, sub.id)
	if len(conns) == 0 {
		delete(h.subs, sub.userID)
	}
	close(sub.ch)
	h.metrics.StreamClosed()
}

// Send delivers msg to every connection of userID and returns how many
// received it.
func (h *Hub) Send(userID string, msg Message) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for _, sub := range h.subs[userID] {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			h.logger.Warn("stream buffer full, dropping message",
				zap.String("userId", userID),
				zap.String("type", msg.Type),
			)
		}
	}
	return delivered
}

func (h *Hub) Connections(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// Close ends every open stream.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for userID, conns := range h.subs {
		for _, sub := range conns {
			close(sub.ch)
			h.metrics.StreamClosed()
		}
		delete(h.subs, userID)
	}
}

type RestaurantRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Restaurant, error)
}

// Forwarder pushes domain events to the live streams of the buyer and of the
// restaurant owner of the order.
type Forwarder struct {
	hub         *Hub
	restaurants RestaurantRepository
}

func NewForwarder(hub *Hub, restaurants RestaurantRepository) *Forwarder {
	return &Forwarder{hub: hub, restaurants: restaurants}
}

func (f *Forwarder) Register(bus *events.Bus) {
	bus.SubscribeAll("stream", f.Handle)
}

func (f *Forwarder) Handle(ctx context.Context, e events.Event) error {
	target := e.Target()
	msg := Message{Type: string(e.Name()), Data: e}

	f.hub.Send(target.UserID, msg)

	if target.RestaurantID == "" {
		return nil
	}
	restaurant, err := f.restaurants.FindByID(ctx, target.RestaurantID)
	if err != nil {
		return err
	}
	if restaurant.OwnerID != target.UserID {
		f.hub.Send(restaurant.OwnerID, msg)
	}
	return nil
}
