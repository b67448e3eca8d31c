package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/request"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/events"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/config"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/logger"
)

func newTestEngine() (*Engine, *events.EventLog) {
	eco := config.DefaultEconomy()
	// Keep the background loops inert so tests drive state directly.
	eco.MinGenerateDelayMs = 3_600_000
	eco.MaxGenerateDelayMs = 3_600_000
	eco.DeployDelaysMs = []int64{1}
	cfg := &config.Config{
		TickInterval:     time.Hour,
		GameDayMs:        testGameDayMs,
		BillingJobBuffer: 8,
		Economy:          eco,
	}
	el := events.NewEventLog(nil)
	return NewEngine(cfg, el, logger.NewLogger()), el
}

func TestEngineStartStopIdempotent(t *testing.T) {
	eng, _ := newTestEngine()
	eng.Start()
	eng.Start()
	eng.Stop()
	eng.Stop()
}

func TestEngineProvisionRequest(t *testing.T) {
	eng, _ := newTestEngine()

	req := request.New("r1", "Somchai", request.TierStartup, request.PeriodWeekly, 600, 0)
	eng.Lifecycle().Add(req)

	require.NoError(t, eng.ProvisionRequest("r1", "rack-1", nil))

	require.Eventually(t, func() bool {
		got := eng.Lifecycle().Get("r1")
		return got != nil && got.State == request.StateActive
	}, time.Second, time.Millisecond)

	assignments := eng.ActiveAssignments()
	require.Contains(t, assignments, "r1")
	assert.Equal(t, "rack-1", assignments["r1"].RackID)

	eng.Stop()
}

func TestEngineProvisionRequestUnknownRack(t *testing.T) {
	eng, _ := newTestEngine()
	err := eng.ProvisionRequest("r1", "rack-99", nil)
	assert.ErrorContains(t, err, "unknown rack")
}

func TestEngineUpgradeRack(t *testing.T) {
	eng, el := newTestEngine()

	ok, err := eng.UpgradeRack("rack-1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, unlocked, _ := eng.Rack("rack-1").Counters()
	assert.Equal(t, 5, unlocked)
	assert.Len(t, el.GetByType(events.EventTypeRackUpgraded), 1)

	_, err = eng.UpgradeRack("rack-99")
	assert.ErrorContains(t, err, "unknown rack")
}

func TestEngineUpgradeRackAtCapacity(t *testing.T) {
	eng, el := newTestEngine()

	for i := 0; i < 4; i++ {
		ok, err := eng.UpgradeRack("rack-1")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := eng.UpgradeRack("rack-1")
	require.NoError(t, err)
	assert.False(t, ok, "fully unlocked racks refuse further upgrades")
	assert.Len(t, el.GetByType(events.EventTypeRackUpgraded), 4, "a refused upgrade emits no event")
}

func TestEngineSnapshotRestoreRoundTrip(t *testing.T) {
	eng, _ := newTestEngine()

	eng.Clock().Tick(5 * testGameDayMs)
	eng.Ledger().Credit(1234)
	eng.Skills().Award(SkillSecurity, 250)
	req := request.New("r1", "Somchai", request.TierStartup, request.PeriodWeekly, 600, 0)
	eng.Lifecycle().Add(req)
	require.True(t, eng.Rack("rack-1").TryInstall(2))

	snap := eng.Snapshot()
	assert.Equal(t, int64(5*testGameDayMs), snap.ClockAccumulatedMs)
	assert.Equal(t, config.DefaultEconomy().StartingFunds+1234, snap.Funds)

	other, _ := newTestEngine()
	require.NoError(t, other.Restore(snap))

	assert.Equal(t, eng.Clock().Day(), other.Clock().Day())
	assert.Equal(t, eng.Ledger().Funds(), other.Ledger().Funds())
	assert.Equal(t, eng.Ledger().Reputation(), other.Ledger().Reputation())
	assert.Equal(t, 2, other.Skills().Level(SkillSecurity))

	restored := other.Lifecycle().Get("r1")
	require.NotNil(t, restored)
	assert.Equal(t, request.StatePending, restored.State)

	_, _, occupied := other.Rack("rack-1").Counters()
	assert.Equal(t, 2, occupied)
}

func TestEngineRestoreWhileRunningFails(t *testing.T) {
	eng, _ := newTestEngine()
	eng.Start()
	defer eng.Stop()

	err := eng.Restore(Snapshot{})
	require.Error(t, err)
}

func TestEngineRackLookup(t *testing.T) {
	eng, _ := newTestEngine()
	assert.NotNil(t, eng.Rack("rack-1"))
	assert.Nil(t, eng.Rack("rack-2"))
	assert.Len(t, eng.Racks(), 1)
}
