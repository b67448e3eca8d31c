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

func newTestBilling(led *ledger.Ledger, racks []*rack.Rack, monthly, perSlot int64, monthDays int) (*Billing, *Lifecycle, *events.EventLog) {
	el := events.NewEventLog(nil)
	log := logger.NewLogger()
	lc := NewLifecycle(led, el, log, testGameDayMs, 500, nil, nil)
	for _, r := range racks {
		lc.RegisterRack(r)
	}
	b := NewBilling(lc, led, racks, el, log, monthly, perSlot, monthDays, 8)
	return b, lc, el
}

func TestBillingChargesOverheadOnMonthBoundary(t *testing.T) {
	led := ledger.New(10_000, 3.0)
	r := rack.New("rack-1", 4, 4)
	b, _, el := newTestBilling(led, []*rack.Rack{r}, 2000, 100, 30)
	b.Start()
	defer b.Stop()

	require.True(t, r.TryInstall(3))

	b.OnDayChange(30*testGameDayMs, 30)
	require.Eventually(t, func() bool {
		return led.Funds() == 10_000-(2000+3*100)
	}, time.Second, time.Millisecond)

	charged := el.GetByType(events.EventTypeOverheadCharged)
	require.Len(t, charged, 1)
	payload, ok := charged[0].Payload.(OverheadPayload)
	require.True(t, ok)
	assert.Equal(t, int64(2000), payload.Base)
	assert.Equal(t, int64(100), payload.PerSlot)
	assert.Equal(t, 3, payload.OccupiedSlots)
	assert.Equal(t, int64(2300), payload.Total)
}

func TestBillingSkipsNonBoundaryDays(t *testing.T) {
	led := ledger.New(10_000, 3.0)
	b, _, el := newTestBilling(led, nil, 2000, 100, 30)
	b.Start()
	defer b.Stop()

	// Day zero and mid-month days carry no overhead.
	b.OnDayChange(0, 0)
	b.OnDayChange(15*testGameDayMs, 15)
	b.OnDayChange(29*testGameDayMs, 29)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(10_000), led.Funds())
	assert.Empty(t, el.GetByType(events.EventTypeOverheadCharged))
}

// If the exact boundary-day sweep never arrives (the queue-full path
// drops jobs), the month's overhead is still collected on the next one.
func TestBillingCatchesUpMissedMonthBoundary(t *testing.T) {
	led := ledger.New(10_000, 3.0)
	b, _, el := newTestBilling(led, nil, 2000, 100, 30)
	b.Start()
	defer b.Stop()

	b.OnDayChange(29*testGameDayMs, 29)
	// Day 30 is never delivered.
	b.OnDayChange(31*testGameDayMs, 31)
	require.Eventually(t, func() bool {
		return led.Funds() == 8000
	}, time.Second, time.Millisecond)
	assert.Len(t, el.GetByType(events.EventTypeOverheadCharged), 1)
}

func TestBillingChargesEachMonthOnce(t *testing.T) {
	led := ledger.New(10_000, 3.0)
	b, _, el := newTestBilling(led, nil, 2000, 0, 30)
	b.Start()
	defer b.Stop()

	b.OnDayChange(30*testGameDayMs, 30)
	b.OnDayChange(31*testGameDayMs, 31)
	b.OnDayChange(60*testGameDayMs, 60)
	require.Eventually(t, func() bool {
		return led.Funds() == 6000
	}, time.Second, time.Millisecond)
	assert.Len(t, el.GetByType(events.EventTypeOverheadCharged), 2)
}

func TestBillingSweepCollectsRent(t *testing.T) {
	led := ledger.New(0, 3.0)
	r := rack.New("rack-1", 4, 4)
	b, lc, _ := newTestBilling(led, []*rack.Rack{r}, 0, 0, 30)
	b.Start()
	defer b.Stop()

	req := request.New("r1", "Somchai", request.TierStartup, request.PeriodWeekly, 600, 0)
	lc.Add(req)
	require.True(t, r.TryInstall(1))
	_, err := lc.Activate("r1", request.Assignment{RackID: "rack-1", Slots: 1}, 0)
	require.NoError(t, err)

	// Weekly rent has two installments, one every 3.5 days.
	b.OnDayChange(4*testGameDayMs, 4)
	require.Eventually(t, func() bool { return led.Funds() == 600 }, time.Second, time.Millisecond)
}

func TestBillingSweepExpiresRentals(t *testing.T) {
	led := ledger.New(0, 3.0)
	r := rack.New("rack-1", 4, 4)
	b, lc, el := newTestBilling(led, []*rack.Rack{r}, 0, 0, 30)
	lc.randFloat = func() float64 { return 1.0 } // customer declines renewal
	b.Start()
	defer b.Stop()

	req := request.New("r1", "Somchai", request.TierIndividual, request.PeriodDaily, 750, 0)
	lc.Add(req)
	require.True(t, r.TryInstall(1))
	_, err := lc.Activate("r1", request.Assignment{RackID: "rack-1", Slots: 1}, 0)
	require.NoError(t, err)

	b.OnDayChange(1*testGameDayMs, 1)
	require.Eventually(t, func() bool {
		return lc.Get("r1").State == request.StateExpired
	}, time.Second, time.Millisecond)
	assert.Equal(t, 4, r.AvailableSlots())
	assert.NotEmpty(t, el.GetByType(events.EventTypeRequestExpired))
}

func TestBillingDropsJobsWhenQueueFull(t *testing.T) {
	led := ledger.New(0, 3.0)
	b, _, _ := newTestBilling(led, nil, 0, 0, 30)
	// Worker never started, so the buffered queue fills up and further
	// day changes must not block the caller.
	done := make(chan struct{})
	go func() {
		for day := 1; day <= 50; day++ {
			b.OnDayChange(int64(day)*testGameDayMs, day)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnDayChange blocked on a full queue")
	}
}

func TestBillingStopJoinsWorker(t *testing.T) {
	led := ledger.New(0, 3.0)
	b, _, _ := newTestBilling(led, nil, 0, 0, 30)
	b.Start()
	b.Stop()

	// A stopped scheduler ignores further work.
	b.OnDayChange(30*testGameDayMs, 30)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(0), led.Funds())
}
