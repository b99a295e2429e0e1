package events

import "time"

// OfferEvent is published when a delivery offer is broadcast or its search
// radius widens.
type OfferEvent struct {
	OfferID    string
	OrderIDs   []string
	GroupID    string
	RadiusKM   float64
	Attempt    int
	Candidates int
}

// AcceptEvent is published for each partner accept, won or lost.
type AcceptEvent struct {
	OfferID   string
	PartnerID string
	Won       bool
	Err       error
	Latency   time.Duration
}

// OutcomeEvent is published when an offer reaches a terminal outcome:
// "assigned", "timeout" or "cancelled".
type OutcomeEvent struct {
	OfferID   string
	Outcome   string
	PartnerID string
}
