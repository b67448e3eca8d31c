package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/events"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/infra/storage"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/logger"
)

// memoryEventStore is an in-memory storage.EventRepository for handler tests.
type memoryEventStore struct {
	events []storage.GameEvent
}

func (m *memoryEventStore) Append(_ context.Context, e storage.GameEvent) error {
	m.events = append(m.events, e)
	return nil
}

func (m *memoryEventStore) GetAll(_ context.Context) ([]storage.GameEvent, error) {
	return append([]storage.GameEvent(nil), m.events...), nil
}

func (m *memoryEventStore) GetByActorID(_ context.Context, actorID string) ([]storage.GameEvent, error) {
	var out []storage.GameEvent
	for _, e := range m.events {
		if e.ActorID == actorID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryEventStore) GetByGameDay(_ context.Context, day int) ([]storage.GameEvent, error) {
	var out []storage.GameEvent
	for _, e := range m.events {
		if e.GameDay == day {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryEventStore) GetByEventType(_ context.Context, eventType string) ([]storage.GameEvent, error) {
	var out []storage.GameEvent
	for _, e := range m.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}

func historyEvent(id, eventType, actorID string, day int) storage.GameEvent {
	return storage.GameEvent{
		ID:        id,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		EventType: eventType,
		ActorID:   actorID,
		GameDay:   day,
	}
}

func newReplayFixture(store storage.EventRepository) *ReplayHandler {
	return NewReplayHandler(events.NewEventLog(nil), store, logger.NewLogger())
}

func TestRecapSkipsTicksAndEarlierDays(t *testing.T) {
	store := &memoryEventStore{events: []storage.GameEvent{
		historyEvent("e1", "PAYMENT_PROCESSED", "req-1", 2),
		historyEvent("e2", "TIME_TICK", "CLOCK", 6),
		historyEvent("e3", "PAYMENT_PROCESSED", "req-1", 6),
		historyEvent("e4", "PROVISION_FAILED", "req-2", 7),
	}}
	rh := newReplayFixture(store)

	rec := httptest.NewRecorder()
	rh.HandleRecap(rec, httptest.NewRequest(http.MethodGet, "/api/history/recap?since_day=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		SinceDay int                  `json:"since_day"`
		Events   []storage.RecapEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 5, body.SinceDay)
	require.Len(t, body.Events, 2)
	assert.Equal(t, "PAYMENT_PROCESSED", body.Events[0].EventType)
	assert.Equal(t, "POSITIVE", body.Events[0].Impact)
	assert.Equal(t, "PROVISION_FAILED", body.Events[1].EventType)
	assert.Equal(t, "NEGATIVE", body.Events[1].Impact)
}

func TestRecapUnavailableWithoutStore(t *testing.T) {
	rh := newReplayFixture(nil)

	rec := httptest.NewRecorder()
	rh.HandleRecap(rec, httptest.NewRequest(http.MethodGet, "/api/history/recap", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecapRejectsInvalidSinceDay(t *testing.T) {
	rh := newReplayFixture(&memoryEventStore{})

	rec := httptest.NewRecorder()
	rh.HandleRecap(rec, httptest.NewRequest(http.MethodGet, "/api/history/recap?since_day=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryDayFilterReadsPersistedStore(t *testing.T) {
	store := &memoryEventStore{events: []storage.GameEvent{
		historyEvent("e1", "PAYMENT_PROCESSED", "req-1", 5),
		historyEvent("e2", "PAYMENT_PROCESSED", "req-1", 6),
		historyEvent("e3", "OVERHEAD_CHARGED", "SYSTEM", 6),
	}}
	// The in-memory log is empty, so results can only come from the store.
	rh := newReplayFixture(store)

	rec := httptest.NewRecorder()
	rh.HandleReplay(rec, httptest.NewRequest(http.MethodGet, "/api/history?day=6&type=PAYMENT_PROCESSED", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body ReplayResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.TotalEvents)
	assert.Equal(t, "Day 6", body.FilteredBy)
	require.Len(t, body.Events, 1)
	assert.Equal(t, "e2", body.Events[0].ID)
}

func TestHistoryActorFilterReadsPersistedStore(t *testing.T) {
	store := &memoryEventStore{events: []storage.GameEvent{
		historyEvent("e1", "RACK_UPGRADED", "PLAYER", 3),
		historyEvent("e2", "PAYMENT_PROCESSED", "req-1", 4),
		historyEvent("e3", "RACK_UPGRADED", "PLAYER", 9),
	}}
	rh := newReplayFixture(store)

	rec := httptest.NewRecorder()
	rh.HandleReplay(rec, httptest.NewRequest(http.MethodGet, "/api/history?actor=PLAYER", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body ReplayResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.TotalEvents)
	assert.Equal(t, "Actor PLAYER", body.FilteredBy)
}

func TestHistoryUnfilteredUsesMemoryLog(t *testing.T) {
	el := events.NewEventLog(nil)
	el.Append(events.GameEvent{
		ID:      "m1",
		Type:    events.EventTypeRequestCreated,
		ActorID: "req-1",
		GameDay: 1,
	})
	rh := NewReplayHandler(el, &memoryEventStore{}, logger.NewLogger())

	rec := httptest.NewRecorder()
	rh.HandleReplay(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body ReplayResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.TotalEvents)
	require.Len(t, body.Events, 1)
	assert.Equal(t, "m1", body.Events[0].ID)
}
