// Package storage - reconstructor.go
// Rebuilds company financial state from the event log.
// This is the core of Event Sourcing: state = f(events).
package storage

import (
	"context"
	"fmt"
)

// Reconstructor rebuilds company state from the event log.
// This is used for:
// 1. Sanity-checking a save slot against its own history
// 2. Rebuilding the ledger after cache invalidation
// 3. Auditing and debugging
type Reconstructor struct {
	eventRepo EventRepository
}

// NewReconstructor creates a new state reconstructor.
func NewReconstructor(eventRepo EventRepository) *Reconstructor {
	return &Reconstructor{eventRepo: eventRepo}
}

// RebuiltState holds the reconstructed company financials.
type RebuiltState struct {
	Funds          int64
	Reputation     float64
	ActiveRentals  int
	TotalPayments  int64
	TotalOverheads int64
	EventsReplayed int
}

// RecapEvent is a simplified event for the "what happened" screen.
type RecapEvent struct {
	Timestamp string `json:"timestamp"`
	EventType string `json:"event_type"`
	Summary   string `json:"summary"` // Human-readable description
	Impact    string `json:"impact"`  // "POSITIVE", "NEGATIVE", "NEUTRAL"
}

// RebuildCompanyState replays the full event log over an initial state.
func (r *Reconstructor) RebuildCompanyState(ctx context.Context, initialState RebuiltState) (*RebuiltState, error) {
	events, err := r.eventRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	state := initialState

	// Process events in chronological order
	for _, e := range events {
		r.applyEventToState(&state, e)
		state.EventsReplayed++
	}

	return &state, nil
}

// GenerateRecap creates the activity recap since a given in-game day.
func (r *Reconstructor) GenerateRecap(ctx context.Context, sinceDay int) ([]RecapEvent, error) {
	allEvents, err := r.eventRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	var recap []RecapEvent

	for _, e := range allEvents {
		// Filter: only events from the requested day onwards
		if e.GameDay < sinceDay {
			continue
		}

		// Ticks carry no information worth recapping
		if e.EventType == "TIME_TICK" {
			continue
		}

		recap = append(recap, RecapEvent{
			Timestamp: e.Timestamp.Format("15:04 Jan 2"),
			EventType: e.EventType,
			Summary:   r.summarizeEvent(e),
			Impact:    r.determineImpact(e),
		})
	}

	return recap, nil
}

// applyEventToState modifies state based on event type.
func (r *Reconstructor) applyEventToState(state *RebuiltState, event GameEvent) {
	switch event.EventType {
	case "PAYMENT_PROCESSED":
		amount := payloadInt64(event.Payload, "amount") + payloadInt64(event.Payload, "bonus")
		state.Funds += amount
		state.TotalPayments += amount
	case "REQUEST_ACTIVATED":
		state.ActiveRentals++
		credit := payloadInt64(event.Payload, "first_credit")
		state.Funds += credit
		state.TotalPayments += credit
	case "REQUEST_RENEWED":
		amount := payloadInt64(event.Payload, "amount")
		state.Funds += amount
		state.TotalPayments += amount
	case "REQUEST_EXPIRED":
		if state.ActiveRentals > 0 {
			state.ActiveRentals--
		}
	case "OVERHEAD_CHARGED":
		total := payloadInt64(event.Payload, "total")
		state.Funds -= total
		state.TotalOverheads += total
	case "REPUTATION_CHANGE":
		if rep, ok := payloadFloat(event.Payload, "reputation"); ok {
			state.Reputation = rep
		}
	}

	// Reputation stays on the rating scale
	if state.Reputation < 1.0 {
		state.Reputation = 1.0
	}
	if state.Reputation > 5.0 {
		state.Reputation = 5.0
	}
}

// summarizeEvent creates a human-readable summary.
func (r *Reconstructor) summarizeEvent(event GameEvent) string {
	switch event.EventType {
	case "REQUEST_CREATED":
		return "A customer asked for a VM."
	case "REQUEST_ACTIVATED":
		return "A VM went online."
	case "REQUEST_RENEWED":
		return "A customer renewed."
	case "REQUEST_EXPIRED":
		return "A rental ended."
	case "PAYMENT_PROCESSED":
		return "Rent came in."
	case "OVERHEAD_CHARGED":
		return "Operating costs were paid."
	case "PROVISION_FAILED":
		return "A deployment failed for lack of capacity."
	case "RACK_UPGRADED":
		return "A rack gained slots."
	default:
		return "Something happened at the datacenter."
	}
}

// determineImpact classifies the event impact.
func (r *Reconstructor) determineImpact(event GameEvent) string {
	switch event.EventType {
	case "PAYMENT_PROCESSED", "REQUEST_ACTIVATED", "REQUEST_RENEWED", "RACK_UPGRADED":
		return "POSITIVE"
	case "OVERHEAD_CHARGED", "REQUEST_EXPIRED", "PROVISION_FAILED":
		return "NEGATIVE"
	default:
		return "NEUTRAL"
	}
}

// payloadInt64 extracts a numeric payload field. JSON round-tripping turns
// all numbers into float64, so both forms are accepted.
func payloadInt64(payload map[string]interface{}, key string) int64 {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func payloadFloat(payload map[string]interface{}, key string) (float64, bool) {
	if payload == nil {
		return 0, false
	}
	if v, ok := payload[key].(float64); ok {
		return v, true
	}
	return 0, false
}
