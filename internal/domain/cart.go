package domain

import "time"

// MaxLineQuantity caps the quantity of a single cart line or bundle.
const MaxLineQuantity = 99

type Cart struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartLine is one row of a cart. Lines carrying a MenuGroupID belong to a
// bundle and only change together with the rest of the group.
type CartLine struct {
	ID           string
	CartID       string
	ProductID    string
	VariantID    string
	RestaurantID string
	Quantity     int
	MenuID       *string
	MenuGroupID  *string
}

func (l CartLine) InBundle() bool {
	return l.MenuGroupID != nil
}

// CartRestaurant returns the restaurant every line belongs to, or "" for an
// empty cart.
func CartRestaurant(lines []CartLine) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[0].RestaurantID
}

// PricedLine is a cart line joined with the current price of its variant.
type PricedLine struct {
	LineID       string
	ProductID    string
	ProductName  string
	VariantID    string
	VariantLabel string
	RestaurantID string
	Quantity     int
	UnitPrice    int64
	IsAvailable  bool
	MenuID       *string
	MenuGroupID  *string
}

func (l PricedLine) LineTotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

type CartSnapshot struct {
	CartID       string
	UserID       string
	RestaurantID string
	Lines        []PricedLine
}

func (s *CartSnapshot) Empty() bool {
	return len(s.Lines) == 0
}

func (s *CartSnapshot) SubTotal() int64 {
	var total int64
	for _, l := range s.Lines {
		total += l.LineTotal()
	}
	return total
}

// OrderItems copies the priced lines into order items for orderID.
func (s *CartSnapshot) OrderItems(orderID string, newID func() string) []OrderItem {
	items := make([]OrderItem, 0, len(s.Lines))
	for _, l := range s.Lines {
		label := l.VariantLabel
		if label == "" {
			label = DefaultVariantLabel
		}
		items = append(items, OrderItem{
			ID:           newID(),
			OrderID:      orderID,
			ProductID:    l.ProductID,
			VariantID:    l.VariantID,
			VariantLabel: label,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
		})
	}
	return items
}
