package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/engine"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/events"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/infra/cache"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/config"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/logger"
)

// memoryRedis is an in-memory cache.RedisClient for handler tests.
type memoryRedis struct {
	strings map[string]string
	hashes  map[string]map[string]string
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
	}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	v, ok := m.strings[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return v, nil
}

func (m *memoryRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	switch v := value.(type) {
	case []byte:
		m.strings[key] = string(v)
	case string:
		m.strings[key] = v
	}
	return nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.strings, k)
		delete(m.hashes, k)
	}
	return nil
}

func (m *memoryRedis) HGetAll(_ context.Context, key string) (map[string]string, error) {
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *memoryRedis) HSet(_ context.Context, key string, values ...interface{}) error {
	h := m.hashes[key]
	if h == nil {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = values[i+1].(string)
	}
	return nil
}

func newControlFixture(t *testing.T) (*ControlBridge, *cache.StatusCache) {
	t.Helper()
	eco := config.DefaultEconomy()
	eco.MinGenerateDelayMs = 3_600_000
	eco.MaxGenerateDelayMs = 3_600_000
	cfg := &config.Config{
		TickInterval:     time.Hour,
		GameDayMs:        60_000,
		BillingJobBuffer: 8,
		Economy:          eco,
	}
	el := events.NewEventLog(nil)
	log := logger.NewLogger()
	eng := engine.NewEngine(cfg, el, log)

	sc := cache.NewStatusCache(newMemoryRedis())
	cb := NewControlBridge(eng, el, nil, log)
	cb.SetStatusCache(sc, "default")
	return cb, sc
}

func TestStatusServedFromCache(t *testing.T) {
	cb, sc := newControlFixture(t)
	ctx := context.Background()

	require.NoError(t, sc.SetCompanyStatus(ctx, cache.CompanyStatus{
		SaveID:     "default",
		GameDay:    42,
		Funds:      77_000,
		Reputation: 4.2,
		ActiveVMs:  5,
		LastSync:   1700000000,
	}))
	require.NoError(t, sc.SetRackStates(ctx, "default", map[string]cache.RackStatus{
		"rack-1": {RackID: "rack-1", Max: 8, Unlocked: 4, Occupied: 3},
	}))

	rec := httptest.NewRecorder()
	cb.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/control/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "cache", body["source"])
	assert.Equal(t, float64(42), body["game_day"])
	assert.Equal(t, float64(77_000), body["funds"], "cached funds, not the live ledger")
	racks, ok := body["racks"].([]interface{})
	require.True(t, ok)
	require.Len(t, racks, 1)
}

func TestStatusFallsBackToLiveOnMiss(t *testing.T) {
	cb, _ := newControlFixture(t)

	rec := httptest.NewRecorder()
	cb.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/control/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "live", body["source"])
	assert.Equal(t, float64(config.DefaultEconomy().StartingFunds), body["funds"])
}

func TestMutationInvalidatesStatusCache(t *testing.T) {
	cb, sc := newControlFixture(t)
	ctx := context.Background()

	require.NoError(t, sc.SetCompanyStatus(ctx, cache.CompanyStatus{
		SaveID:  "default",
		GameDay: 42,
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/control/upgrade-rack",
		strings.NewReader(`{"rack_id":"rack-1"}`))
	cb.HandleUpgradeRack(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := sc.GetCompanyStatus(ctx, "default")
	assert.ErrorIs(t, err, cache.ErrCacheMiss, "mutations must drop the cached status")
}
