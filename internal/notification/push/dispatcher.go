package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"foodmarket/internal/domain"
	"foodmarket/internal/events"
)

type TokenRepository interface {
	FindByUser(ctx context.Context, userID string) ([]string, error)
}

type RestaurantRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Restaurant, error)
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafka.Header) error
}

// Message is what the push worker consuming the topic sends to devices.
type Message struct {
	UserID string            `json:"userId"`
	Tokens []string          `json:"tokens"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data"`
}

type notice struct {
	userID string
	title  string
	body   string
	data   map[string]string
}

type Dispatcher struct {
	tokens      TokenRepository
	restaurants RestaurantRepository
	publisher   Publisher
	topic       string
	logger      *zap.Logger
}

func NewDispatcher(tokens TokenRepository, restaurants RestaurantRepository, publisher Publisher, topic string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		tokens:      tokens,
		restaurants: restaurants,
		publisher:   publisher,
		topic:       topic,
		logger:      logger,
	}
}

// Register subscribes the dispatcher to every event that notifies someone.
func (d *Dispatcher) Register(bus *events.Bus) {
	for _, name := range []events.Name{
		events.NameOrderCreated,
		events.NameOrderStatusUpdated,
		events.NameOrderCancelled,
		events.NamePaymentConfirmed,
		events.NamePaymentFailed,
		events.NamePaymentTimeout,
	} {
		bus.Subscribe(name, "push", d.Handle)
	}
}

func (d *Dispatcher) Handle(ctx context.Context, e events.Event) error {
	notices, err := d.render(ctx, e)
	if err != nil {
		return err
	}

	var firstErr error
	for _, n := range notices {
		if err := d.send(ctx, n); err != nil {
			d.logger.Warn("push notification not sent",
				zap.String("event", string(e.Name())),
				zap.String("userId", n.userID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (d *Dispatcher) send(ctx context.Context, n notice) error {
	tokens, err := d.tokens.FindByUser(ctx, n.userID)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		d.logger.Debug("no push tokens, skipping", zap.String("userId", n.userID))
		return nil
	}

	payload, err := json.Marshal(Message{
		UserID: n.userID,
		Tokens: tokens,
		Title:  n.title,
		Body:   n.body,
		Data:   n.data,
	})
	if err != nil {
		return fmt.Errorf("encoding push message: %w", err)
	}
	return d.publisher.Publish(d.topic, []byte(n.userID), payload,
		kafka.Header{Key: "type", Value: []byte(n.data["type"])})
}

func (d *Dispatcher) render(ctx context.Context, e events.Event) ([]notice, error) {
	target := e.Target()

	switch ev := e.(type) {
	case events.OrderCreated:
		owner, err := d.owner(ctx, target.RestaurantID)
		if err != nil {
			return nil, err
		}
		return []notice{
			{
				userID: target.UserID,
				title:  "Order received",
				body:   fmt.Sprintf("Your order at %s was received. Amount: %d FCFA", ev.RestaurantName, ev.TotalAmount),
				data:   map[string]string{"orderId": target.OrderID, "type": "order_created", "restaurantId": target.RestaurantID},
			},
			{
				userID: owner,
				title:  "New order",
				body:   fmt.Sprintf("New order of %d FCFA (%d items)", ev.TotalAmount, ev.ItemCount),
				data:   map[string]string{"orderId": target.OrderID, "type": "new_order", "customerId": target.UserID},
			},
		}, nil

	case events.OrderStatusUpdated:
		// order.cancelled carries the cancellation notices
		if ev.NewStatus == domain.OrderStatusCancelled {
			return nil, nil
		}
		title, body := statusMessage(ev.NewStatus, ev.RestaurantName)
		out := []notice{{
			userID: target.UserID,
			title:  title,
			body:   body,
			data:   map[string]string{"orderId": target.OrderID, "type": "status_update", "status": string(ev.NewStatus), "restaurantId": target.RestaurantID},
		}}
		if ev.NewStatus == domain.OrderStatusDelivered {
			owner, err := d.owner(ctx, target.RestaurantID)
			if err != nil {
				return nil, err
			}
			out = append(out, notice{
				userID: owner,
				title:  "Order status updated",
				body:   fmt.Sprintf("Order %s: %s", shortID(target.OrderID), ev.NewStatus),
				data:   map[string]string{"orderId": target.OrderID, "type": "status_update_restaurant", "status": string(ev.NewStatus)},
			})
		}
		return out, nil

	case events.OrderCancelled:
		body := "Your order was cancelled"
		if ev.Reason != nil && *ev.Reason != "" {
			body = "Your order was cancelled: " + *ev.Reason
		}
		data := map[string]string{"orderId": target.OrderID, "type": "order_cancelled"}
		if ev.RefundEligible {
			data["refundAmount"] = strconv.FormatInt(ev.RefundAmount, 10)
		}
		out := []notice{{userID: target.UserID, title: "Order cancelled", body: body, data: data}}

		owner, err := d.owner(ctx, target.RestaurantID)
		if err != nil {
			return nil, err
		}
		if ev.CancelledBy != owner {
			out = append(out, notice{
				userID: owner,
				title:  "Order cancelled",
				body:   fmt.Sprintf("Order %s was cancelled by the customer", shortID(target.OrderID)),
				data:   map[string]string{"orderId": target.OrderID, "type": "order_cancelled_restaurant"},
			})
		}
		return out, nil

	case events.PaymentConfirmed:
		restaurant, err := d.restaurants.FindByID(ctx, target.RestaurantID)
		if err != nil {
			return nil, err
		}
		amount := strconv.FormatInt(ev.Amount, 10)
		return []notice{
			{
				userID: target.UserID,
				title:  "Payment confirmed",
				body:   fmt.Sprintf("Your payment of %s %s was confirmed. %s is preparing your order.", amount, ev.Currency, restaurant.Name),
				data: map[string]string{
					"orderId": target.OrderID, "paymentId": ev.PaymentID, "type": "payment_confirmed",
					"amount": amount, "currency": ev.Currency, "restaurantId": target.RestaurantID,
				},
			},
			{
				userID: restaurant.OwnerID,
				title:  "Payment received",
				body:   fmt.Sprintf("Payment of %s %s received for order %s", amount, ev.Currency, shortID(target.OrderID)),
				data: map[string]string{
					"orderId": target.OrderID, "paymentId": ev.PaymentID, "type": "payment_received",
					"amount": amount, "currency": ev.Currency, "customerId": target.UserID,
				},
			},
		}, nil

	case events.PaymentFailed:
		return []notice{{
			userID: target.UserID,
			title:  "Payment failed",
			body:   "The payment for your order failed. Reason: " + ev.Reason,
			data:   map[string]string{"orderId": target.OrderID, "paymentId": ev.PaymentID, "type": "payment_failed", "reason": ev.Reason},
		}}, nil

	case events.PaymentTimedOut:
		return []notice{{
			userID: target.UserID,
			title:  "Payment expired",
			body:   "The payment for your order was not completed in time. You can try again.",
			data:   map[string]string{"orderId": target.OrderID, "paymentId": ev.PaymentID, "type": "payment_timeout"},
		}}, nil
	}

	return nil, nil
}

func (d *Dispatcher) owner(ctx context.Context, restaurantID string) (string, error) {
	r, err := d.restaurants.FindByID(ctx, restaurantID)
	if err != nil {
		return "", err
	}
	return r.OwnerID, nil
}

func statusMessage(status domain.OrderStatus, restaurant string) (string, string) {
	switch status {
	case domain.OrderStatusPaid:
		return "Payment received", fmt.Sprintf("Your order at %s is paid", restaurant)
	case domain.OrderStatusPreparing:
		return "Preparing", fmt.Sprintf("Your order at %s is being prepared", restaurant)
	case domain.OrderStatusReady:
		return "Order ready", fmt.Sprintf("Your order at %s is ready!", restaurant)
	case domain.OrderStatusDelivering:
		return "On the way", fmt.Sprintf("Your order at %s is on its way", restaurant)
	case domain.OrderStatusDelivered:
		return "Order delivered", fmt.Sprintf("Your order at %s was delivered. Enjoy your meal!", restaurant)
	}
	return "Order update", fmt.Sprintf("Order status: %s", status)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
