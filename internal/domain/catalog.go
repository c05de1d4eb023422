package domain

import (
	"strings"
	"time"
)

const DefaultVariantLabel = "Standard"

type Restaurant struct {
	ID      string
	Name    string
	OwnerID string
}

type Variant struct {
	ID           string
	ProductID    string
	ProductName  string
	RestaurantID string
	Label        string
	Price        int64
	IsAvailable  bool
	Position     int
}

// Menu is a bundle of products sold together during an activation window.
type Menu struct {
	ID           string
	RestaurantID string
	Name         string
	StartsAt     *time.Time
	EndsAt       *time.Time
	IsActive     bool
	ProductIDs   []string
}

func (m *Menu) IsOpenAt(t time.Time) bool {
	if !m.IsActive {
		return false
	}
	if m.StartsAt != nil && t.Before(*m.StartsAt) {
		return false
	}
	if m.EndsAt != nil && t.After(*m.EndsAt) {
		return false
	}
	return true
}

type Address struct {
	ID      string
	UserID  string
	Street  string
	City    string
	Country string
}

func (a *Address) Format() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{a.Street, a.City, a.Country} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
