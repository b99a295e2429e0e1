// Package events defines the dispatch related events emitted on the event bus.
//
// Available event types:
//   - OfferEvent: a delivery offer was broadcast or widened
//   - AcceptEvent: a partner accept was won or lost
//   - OutcomeEvent: an offer reached a terminal outcome
package events
