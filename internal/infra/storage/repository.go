// Package storage provides the persistence layer for the simulation server.
// This package implements the repository pattern to keep the domain pure.
package storage

import (
	"context"
	"time"
)

// GameEvent mirrors the domain event structure for persistence.
// The domain package should NOT import this; use interfaces instead.
type GameEvent struct {
	ID        string                 `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	EventType string                 `json:"event_type" db:"event_type"`
	ActorID   string                 `json:"actor_id" db:"actor_id"`
	TargetID  string                 `json:"target_id" db:"target_id"`
	Payload   map[string]interface{} `json:"payload" db:"payload"`
	GameDay   int                    `json:"game_day" db:"game_day"`
}

// EventRepository defines the interface for event persistence.
// The domain uses this interface; the implementation is in infra.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event GameEvent) error

	// GetAll retrieves the full event history in chronological order.
	GetAll(ctx context.Context) ([]GameEvent, error)

	// GetByActorID retrieves all events performed by an actor.
	GetByActorID(ctx context.Context, actorID string) ([]GameEvent, error)

	// GetByGameDay retrieves all events from a specific in-game day.
	GetByGameDay(ctx context.Context, day int) ([]GameEvent, error)

	// GetByEventType retrieves all events of a specific type.
	GetByEventType(ctx context.Context, eventType string) ([]GameEvent, error)
}

// CompanySnapshot is a durable save of the whole company state.
// The engine state itself travels as an opaque JSON document; the
// indexed columns exist so dashboards can list saves without decoding.
type CompanySnapshot struct {
	SaveID     string    `json:"save_id" db:"save_id"`
	SavedAt    time.Time `json:"saved_at" db:"saved_at"`
	GameDay    int       `json:"game_day" db:"game_day"`
	Funds      int64     `json:"funds" db:"funds"`
	Reputation float64   `json:"reputation" db:"reputation"`
	StateJSON  []byte    `json:"state_json" db:"state_json"`
}

// SnapshotRepository defines the interface for company state saves.
type SnapshotRepository interface {
	// Upsert writes or replaces a save slot.
	Upsert(ctx context.Context, snapshot CompanySnapshot) error

	// Get retrieves a save slot. Returns nil when the slot is empty.
	Get(ctx context.Context, saveID string) (*CompanySnapshot, error)

	// List retrieves metadata for all save slots (StateJSON omitted).
	List(ctx context.Context) ([]CompanySnapshot, error)

	// Delete removes a save slot.
	Delete(ctx context.Context, saveID string) error
}
