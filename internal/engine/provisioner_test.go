package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/ledger"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/rack"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/request"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/events"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/logger"
)

func newTestProvisioner(led *ledger.Ledger, deployDelaysMs []int64) (*Provisioner, *Lifecycle, *events.EventLog) {
	el := events.NewEventLog(nil)
	log := logger.NewLogger()
	lc := NewLifecycle(led, el, log, testGameDayMs, 500, nil, nil)
	p := NewProvisioner(lc, led, el, log,
		func() int64 { return 0 }, func() int { return 0 },
		deployDelaysMs, nil, nil, nil)
	return p, lc, el
}

func TestProvisionActivatesAfterDelay(t *testing.T) {
	led := ledger.New(0, 3.0)
	p, lc, el := newTestProvisioner(led, []int64{1})

	r := rack.New("rack-1", 4, 4)
	lc.RegisterRack(r)

	req := request.New("r1", "Somchai", request.TierStartup, request.PeriodWeekly, 600, 0)
	lc.Add(req)

	require.NoError(t, p.Provision("r1", r, nil))

	require.Eventually(t, func() bool {
		got := lc.Get("r1")
		return got != nil && got.State == request.StateActive
	}, time.Second, time.Millisecond)

	got := lc.Get("r1")
	require.NotNil(t, got.Assignment)
	assert.Equal(t, "rack-1", got.Assignment.RackID)
	assert.Equal(t, 1, got.Assignment.Slots)
	assert.Equal(t, got.Specs, got.Assignment.Provided, "nil provided means exactly what was asked")

	// Exact-spec delivery: zero rating delta, first payment collected.
	assert.Equal(t, int64(600), led.Funds())
	assert.Equal(t, 3.0, led.Reputation())

	require.Eventually(t, func() bool { return p.TaskCount() == 0 }, time.Second, time.Millisecond)
	assert.Len(t, el.GetByType(events.EventTypeRequestActivated), 1)
	assert.Len(t, el.GetByType(events.EventTypeReputationChange), 1)
}

// Enterprise needs 3 slots; a rack with 2 free must reject the request
// atomically and leave everything untouched.
func TestProvisionInsufficientCapacity(t *testing.T) {
	led := ledger.New(1000, 3.0)
	p, lc, el := newTestProvisioner(led, []int64{1})

	r := rack.New("rack-1", 2, 2)
	lc.RegisterRack(r)

	req := request.New("r1", "Somchai", request.TierEnterprise, request.PeriodMonthly, 6000, 0)
	lc.Add(req)

	err := p.Provision("r1", r, nil)
	require.ErrorIs(t, err, ErrInsufficientCapacity)

	got := lc.Get("r1")
	assert.Equal(t, request.StatePending, got.State, "rejected requests stay pending")
	assert.Nil(t, got.Assignment)
	assert.Equal(t, 2, r.AvailableSlots(), "failed admission must not leak slots")
	assert.Equal(t, int64(1000), led.Funds(), "no payment on failure")
	assert.Len(t, el.GetByType(events.EventTypeProvisionFailed), 1)
	assert.Equal(t, 0, p.TaskCount())
}

func TestProvisionRejectsWrongState(t *testing.T) {
	led := ledger.New(0, 3.0)
	p, lc, _ := newTestProvisioner(led, []int64{1})

	r := rack.New("rack-1", 4, 4)
	lc.RegisterRack(r)

	req := request.New("r1", "Somchai", request.TierStartup, request.PeriodWeekly, 600, 0)
	lc.Add(req)
	_, err := lc.Activate("r1", request.Assignment{RackID: "rack-1", Slots: 1}, 0)
	require.NoError(t, err)

	err = p.Provision("r1", r, nil)
	assert.Error(t, err, "an active request cannot be provisioned again")
}

func TestProvisionRejectsConcurrentTask(t *testing.T) {
	led := ledger.New(0, 3.0)
	p, lc, _ := newTestProvisioner(led, []int64{5000})

	r := rack.New("rack-1", 8, 8)
	lc.RegisterRack(r)

	req := request.New("r1", "Somchai", request.TierStartup, request.PeriodWeekly, 600, 0)
	lc.Add(req)

	require.NoError(t, p.Provision("r1", r, nil))
	err := p.Provision("r1", r, nil)
	require.ErrorIs(t, err, ErrAlreadyProvisioning)

	// The rejected call must roll back the slots it reserved.
	assert.Equal(t, 7, r.AvailableSlots())

	p.Shutdown()
}

func TestProvisionUnderProvisionLowersReputation(t *testing.T) {
	led := ledger.New(0, 3.0)
	p, lc, _ := newTestProvisioner(led, []int64{1})

	r := rack.New("rack-1", 8, 8)
	lc.RegisterRack(r)

	req := request.New("r1", "Somchai", request.TierBusiness, request.PeriodMonthly, 2500, 0)
	lc.Add(req)

	// Half the requested capacity.
	provided := request.VMSpec{VCPUs: 2, RAMGB: 4, DiskGB: 50}
	require.NoError(t, p.Provision("r1", r, &provided))

	require.Eventually(t, func() bool {
		got := lc.Get("r1")
		return got != nil && got.State == request.StateActive
	}, time.Second, time.Millisecond)

	assert.Less(t, led.Reputation(), 3.0, "skimping on specs costs rating")
	got := lc.Get("r1")
	assert.Equal(t, provided, got.Assignment.Provided)
}

func TestShutdownCancelsInFlightTasks(t *testing.T) {
	led := ledger.New(0, 3.0)
	p, lc, _ := newTestProvisioner(led, []int64{60_000})

	r := rack.New("rack-1", 4, 4)
	lc.RegisterRack(r)

	req := request.New("r1", "Somchai", request.TierStartup, request.PeriodWeekly, 600, 0)
	lc.Add(req)

	require.NoError(t, p.Provision("r1", r, nil))
	assert.Equal(t, 1, p.TaskCount())

	p.Shutdown()

	assert.Equal(t, 0, p.TaskCount(), "shutdown drains the task table")
	assert.Equal(t, 4, r.AvailableSlots(), "cancelled tasks roll back their reservation")
	assert.Equal(t, request.StatePending, lc.Get("r1").State)
	assert.Equal(t, int64(0), led.Funds())

	// A closed provisioner rejects new work.
	err := p.Provision("r1", r, nil)
	require.ErrorIs(t, err, ErrProvisionerClosed)
	assert.Equal(t, 4, r.AvailableSlots())
}

func TestProvisionArchivedMidBuildRollsBack(t *testing.T) {
	led := ledger.New(0, 3.0)
	p, lc, _ := newTestProvisioner(led, []int64{50})

	r := rack.New("rack-1", 4, 4)
	lc.RegisterRack(r)

	req := request.New("r1", "Somchai", request.TierStartup, request.PeriodWeekly, 600, 0)
	lc.Add(req)

	require.NoError(t, p.Provision("r1", r, nil))
	// Archive while the VM is still building; activation must then fail
	// and return the slots.
	require.NoError(t, lc.Archive("r1"))

	require.Eventually(t, func() bool { return p.TaskCount() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, 4, r.AvailableSlots())
	assert.Equal(t, int64(0), led.Funds())
}
