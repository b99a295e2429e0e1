package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PartnerStatus is the coarse availability state reported by the partner app.
type PartnerStatus string

const (
	PartnerOnline  PartnerStatus = "ONLINE"
	PartnerOffline PartnerStatus = "OFFLINE"
	PartnerOnBreak PartnerStatus = "ON_BREAK"
)

// AvailableForDelivery reports whether the partner may receive offers.
func (s PartnerStatus) AvailableForDelivery() bool { return s == PartnerOnline }

// DeliveryPartner is a snapshot of a partner's dispatchable state.
type DeliveryPartner struct {
	ID              string        `json:"id"`
	Status          PartnerStatus `json:"status"`
	Location        GeoPoint      `json:"location"`
	LocationAt      time.Time     `json:"location_at"`
	Capacity        int           `json:"capacity"`
	ActiveJobs      int           `json:"active_jobs"`
	CompletedJobs   int           `json:"completed_jobs"`
	LastAssignedAt  time.Time     `json:"last_assigned_at,omitempty"`
	RegistrationsAt time.Time     `json:"registered_at"`
}

// UnderCapacity reports whether the partner can take another job or bundle.
func (p DeliveryPartner) UnderCapacity() bool { return p.ActiveJobs < p.Capacity }

// Restaurant is the catalog view of a pickup location. The catalog itself is
// an external collaborator; only the fields the core consults appear here.
type Restaurant struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Location GeoPoint `json:"location"`
	Open     bool     `json:"open"`
}

// MenuItem is the catalog view of an orderable item.
type MenuItem struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

// Validate checks that the catalog entry is orderable.
func (m MenuItem) Validate() error {
	if !m.Available {
		return fmt.Errorf("menu item %s is unavailable", m.ID)
	}
	if m.Price.IsNegative() {
		return fmt.Errorf("menu item %s has negative price", m.ID)
	}
	return nil
}
