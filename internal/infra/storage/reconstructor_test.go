package storage

import (
	"context"
	"testing"
	"time"
)

// memoryEventRepository is an in-memory EventRepository for tests.
type memoryEventRepository struct {
	events []GameEvent
}

func (m *memoryEventRepository) Append(_ context.Context, e GameEvent) error {
	m.events = append(m.events, e)
	return nil
}

func (m *memoryEventRepository) GetAll(context.Context) ([]GameEvent, error) {
	return append([]GameEvent(nil), m.events...), nil
}

func (m *memoryEventRepository) GetByActorID(_ context.Context, actorID string) ([]GameEvent, error) {
	var out []GameEvent
	for _, e := range m.events {
		if e.ActorID == actorID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryEventRepository) GetByGameDay(_ context.Context, day int) ([]GameEvent, error) {
	var out []GameEvent
	for _, e := range m.events {
		if e.GameDay == day {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryEventRepository) GetByEventType(_ context.Context, eventType string) ([]GameEvent, error) {
	var out []GameEvent
	for _, e := range m.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}

func storedEvent(id, eventType string, day int, payload map[string]interface{}) GameEvent {
	return GameEvent{
		ID:        id,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		EventType: eventType,
		ActorID:   "SYSTEM",
		Payload:   payload,
		GameDay:   day,
	}
}

func TestRebuildCompanyStateReplaysFinancials(t *testing.T) {
	repo := &memoryEventRepository{}
	ctx := context.Background()

	// Round-tripped JSON payloads arrive as float64.
	repo.Append(ctx, storedEvent("e1", "REQUEST_ACTIVATED", 1, map[string]interface{}{"first_credit": float64(600)}))
	repo.Append(ctx, storedEvent("e2", "PAYMENT_PROCESSED", 4, map[string]interface{}{"amount": float64(600), "bonus": float64(60)}))
	repo.Append(ctx, storedEvent("e3", "REQUEST_RENEWED", 7, map[string]interface{}{"amount": float64(600)}))
	repo.Append(ctx, storedEvent("e4", "OVERHEAD_CHARGED", 30, map[string]interface{}{"total": float64(2300)}))
	repo.Append(ctx, storedEvent("e5", "REQUEST_EXPIRED", 35, nil))
	repo.Append(ctx, storedEvent("e6", "REPUTATION_CHANGE", 35, map[string]interface{}{"reputation": 3.4}))
	repo.Append(ctx, storedEvent("e7", "TIME_TICK", 36, nil))

	recon := NewReconstructor(repo)
	state, err := recon.RebuildCompanyState(ctx, RebuiltState{Funds: 25_000, Reputation: 1.0})
	if err != nil {
		t.Fatalf("RebuildCompanyState: %v", err)
	}

	if state.Funds != 25_000+600+660+600-2300 {
		t.Errorf("funds = %d, want %d", state.Funds, 25_000+600+660+600-2300)
	}
	if state.Reputation != 3.4 {
		t.Errorf("reputation = %v, want 3.4", state.Reputation)
	}
	if state.ActiveRentals != 0 {
		t.Errorf("active rentals = %d, want 0 (activated then expired)", state.ActiveRentals)
	}
	if state.TotalPayments != 600+660+600 {
		t.Errorf("total payments = %d", state.TotalPayments)
	}
	if state.TotalOverheads != 2300 {
		t.Errorf("total overheads = %d", state.TotalOverheads)
	}
	if state.EventsReplayed != 7 {
		t.Errorf("events replayed = %d, want 7", state.EventsReplayed)
	}
}

func TestRebuildCompanyStateEmptyHistory(t *testing.T) {
	recon := NewReconstructor(&memoryEventRepository{})

	state, err := recon.RebuildCompanyState(context.Background(), RebuiltState{Funds: 25_000, Reputation: 1.0})
	if err != nil {
		t.Fatalf("RebuildCompanyState: %v", err)
	}
	if state.EventsReplayed != 0 {
		t.Errorf("events replayed = %d, want 0", state.EventsReplayed)
	}
	if state.Funds != 25_000 || state.Reputation != 1.0 {
		t.Errorf("empty history must leave the initial state untouched, got %+v", state)
	}
}

func TestRebuildCompanyStateClampsReputation(t *testing.T) {
	repo := &memoryEventRepository{}
	ctx := context.Background()
	repo.Append(ctx, storedEvent("e1", "REPUTATION_CHANGE", 1, map[string]interface{}{"reputation": 9.0}))

	recon := NewReconstructor(repo)
	state, err := recon.RebuildCompanyState(ctx, RebuiltState{Reputation: 3.0})
	if err != nil {
		t.Fatalf("RebuildCompanyState: %v", err)
	}
	if state.Reputation != 5.0 {
		t.Errorf("reputation = %v, want clamped 5.0", state.Reputation)
	}
}

func TestGenerateRecapFiltersDaysAndTicks(t *testing.T) {
	repo := &memoryEventRepository{}
	ctx := context.Background()
	repo.Append(ctx, storedEvent("e1", "REQUEST_CREATED", 2, nil))
	repo.Append(ctx, storedEvent("e2", "TIME_TICK", 5, nil))
	repo.Append(ctx, storedEvent("e3", "PAYMENT_PROCESSED", 5, map[string]interface{}{"amount": float64(600)}))
	repo.Append(ctx, storedEvent("e4", "PROVISION_FAILED", 6, nil))

	recon := NewReconstructor(repo)
	recap, err := recon.GenerateRecap(ctx, 5)
	if err != nil {
		t.Fatalf("GenerateRecap: %v", err)
	}

	if len(recap) != 2 {
		t.Fatalf("expected 2 recap entries (no ticks, nothing before day 5), got %d", len(recap))
	}
	if recap[0].EventType != "PAYMENT_PROCESSED" || recap[0].Impact != "POSITIVE" {
		t.Errorf("unexpected first entry: %+v", recap[0])
	}
	if recap[1].EventType != "PROVISION_FAILED" || recap[1].Impact != "NEGATIVE" {
		t.Errorf("unexpected second entry: %+v", recap[1])
	}
}
