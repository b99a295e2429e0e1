package logging

import (
	"context"
	"time"
)

// LogRecord captures one terminal dispatch decision.
type LogRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	OfferID      string    `json:"offer_id"`
	OrderIDs     []string  `json:"order_ids"`
	GroupID      string    `json:"group_id,omitempty"`
	RestaurantID string    `json:"restaurant_id"`
	Outcome      string    `json:"outcome"`
	PartnerID    string    `json:"partner_id,omitempty"`
	RadiusKM     float64   `json:"radius_km"`
	Attempt      int       `json:"attempt"`
	Candidates   []string  `json:"candidates"`
	Reason       string    `json:"reason,omitempty"`
}

// LogQuery defines filters for retrieving records.
type LogQuery struct {
	Start     time.Time
	End       time.Time
	OrderID   string
	PartnerID string
	Outcome   string
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}
