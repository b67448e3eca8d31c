// Package events provides the event sourcing system for the game.
// Every economically meaningful action lands here as an immutable record,
// so the company history can be replayed, audited, and rebuilt.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a game event.
type EventType string

const (
	EventTypeTimeTick         EventType = "TIME_TICK"
	EventTypeRequestCreated   EventType = "REQUEST_CREATED"
	EventTypeRequestActivated EventType = "REQUEST_ACTIVATED"
	EventTypeRequestRenewed   EventType = "REQUEST_RENEWED"
	EventTypeRequestExpired   EventType = "REQUEST_EXPIRED"
	EventTypeRequestArchived  EventType = "REQUEST_ARCHIVED"
	EventTypeProvisionFailed  EventType = "PROVISION_FAILED"
	EventTypePaymentProcessed EventType = "PAYMENT_PROCESSED"
	EventTypeOverheadCharged  EventType = "OVERHEAD_CHARGED"
	EventTypeRackUpgraded     EventType = "RACK_UPGRADED"
	EventTypeSkillAwarded     EventType = "SKILL_AWARDED"
	EventTypeReputationChange EventType = "REPUTATION_CHANGE"
)

// GameEvent represents an immutable record of an action in the game.
type GameEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	ActorID   string      `json:"actor_id"`  // Who performed the action ("SYSTEM", a request ID, "PLAYER")
	TargetID  string      `json:"target_id"` // What was affected (optional: request ID, rack ID)
	Payload   interface{} `json:"payload"`   // Event-specific data
	GameDay   int         `json:"game_day"`
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event GameEvent) error
}

// persistQueueSize bounds the write-through backlog. A stalled store
// drops events from persistence (never from the in-memory log) instead
// of stalling the simulation.
const persistQueueSize = 1024

// EventLog is the in-memory append-only log of game events.
type EventLog struct {
	mu            sync.RWMutex
	events        []GameEvent
	persister     EventPersister
	persistQ      chan GameEvent
	persistDone   chan struct{}
	persistClosed bool
}

// NewEventLog creates a new event log with an optional persister. Events
// are persisted in append order by a single worker goroutine; call Close
// to flush it at shutdown.
func NewEventLog(persister EventPersister) *EventLog {
	el := &EventLog{
		events:    make([]GameEvent, 0),
		persister: persister,
	}
	if persister != nil {
		el.persistQ = make(chan GameEvent, persistQueueSize)
		el.persistDone = make(chan struct{})
		go el.persistLoop()
	}
	return el
}

func (el *EventLog) persistLoop() {
	defer close(el.persistDone)
	for e := range el.persistQ {
		_ = el.persister.Append(e)
	}
}

// Append adds a new event to the log. Events are immutable once appended.
func (el *EventLog) Append(event GameEvent) {
	el.mu.Lock()
	el.events = append(el.events, event)
	if el.persistQ != nil && !el.persistClosed {
		select {
		case el.persistQ <- event:
		default:
			// Queue full: the in-memory log stays complete, the store
			// misses this event.
		}
	}
	el.mu.Unlock()
}

// Close stops the persistence worker after draining every queued event.
// Appends after Close still land in the in-memory log but are no longer
// persisted. No-op without a persister.
func (el *EventLog) Close() {
	if el.persistQ == nil {
		return
	}
	el.mu.Lock()
	if el.persistClosed {
		el.mu.Unlock()
		return
	}
	el.persistClosed = true
	el.mu.Unlock()

	close(el.persistQ)
	<-el.persistDone
}

// GetByActor returns all events performed by a specific actor.
func (el *EventLog) GetByActor(actorID string) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.ActorID == actorID {
			result = append(result, e)
		}
	}
	return result
}

// GetByDay returns all events that occurred on a specific game day.
func (el *EventLog) GetByDay(day int) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.GameDay == day {
			result = append(result, e)
		}
	}
	return result
}

// GetByType returns all events of one category.
func (el *EventLog) GetByType(t EventType) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns a snapshot of the full history for state reconstruction.
func (el *EventLog) Replay() []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	out := make([]GameEvent, len(el.events))
	copy(out, el.events)
	return out
}

// Len returns the number of recorded events.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
