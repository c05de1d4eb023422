package statuscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"foodmarket/internal/domain"
	"foodmarket/internal/events"
)

const keyOrderStatus = "order_status:%s"

// Store is the subset of the go-redis client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
}

type entry struct {
	Status       domain.OrderStatus `json:"status"`
	UserID       string             `json:"userId"`
	RestaurantID string             `json:"restaurantId"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// Cache mirrors the latest known status of each order in Redis. It is fed by
// domain events and read by the order status endpoint; the database stays
// the source of truth.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

func New(store Store, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{store: store, ttl: ttl, logger: logger}
}

// Lookup reports a miss on any Redis failure so that callers fall back to
// the database.
func (c *Cache) Lookup(ctx context.Context, orderID string) (domain.OrderStatus, string, bool) {
	e, err := c.get(ctx, orderID)
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.Warn("status cache read failed", zap.String("orderId", orderID), zap.Error(err))
		}
		return "", "", false
	}
	return e.Status, e.UserID, true
}

func (c *Cache) get(ctx context.Context, orderID string) (*entry, error) {
	raw, err := c.store.Get(ctx, fmt.Sprintf(keyOrderStatus, orderID)).Bytes()
	if err != nil {
		return nil, err
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decoding cached status: %w", err)
	}
	return &e, nil
}

func (c *Cache) Register(bus *events.Bus) {
	for _, name := range []events.Name{
		events.NameOrderCreated,
		events.NameOrderStatusUpdated,
		events.NameOrderCancelled,
		events.NamePaymentConfirmed,
	} {
		bus.Subscribe(name, "status-cache", c.Handle)
	}
}

func (c *Cache) Handle(ctx context.Context, e events.Event) error {
	status, ok := statusAfter(e)
	if !ok {
		return nil
	}
	target := e.Target()

	// deliveries run concurrently; never replace a newer status with an older one
	if current, err := c.get(ctx, target.OrderID); err == nil && current.UpdatedAt.After(e.When()) {
		return nil
	}

	data, err := json.Marshal(entry{
		Status:       status,
		UserID:       target.UserID,
		RestaurantID: target.RestaurantID,
		UpdatedAt:    e.When(),
	})
	if err != nil {
		return fmt.Errorf("encoding cached status: %w", err)
	}
	if err := c.store.Set(ctx, fmt.Sprintf(keyOrderStatus, target.OrderID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("caching order status: %w", err)
	}
	return nil
}

func statusAfter(e events.Event) (domain.OrderStatus, bool) {
	switch ev := e.(type) {
	case events.OrderCreated:
		return domain.OrderStatusPending, true
	case events.OrderStatusUpdated:
		return ev.NewStatus, true
	case events.OrderCancelled:
		return domain.OrderStatusCancelled, true
	case events.PaymentConfirmed:
		return domain.OrderStatusPaid, true
	}
	return "", false
}
