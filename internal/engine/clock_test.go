package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/logger"
)

func newTestClock(gameDayMs int64) *GameClock {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return NewGameClock(start, gameDayMs, time.Hour, logger.NewLogger())
}

func TestTickAccumulates(t *testing.T) {
	c := newTestClock(1000)

	c.Tick(400)
	assert.Equal(t, int64(400), c.NowMs())
	assert.Equal(t, 0, c.Day())

	c.Tick(599)
	assert.Equal(t, 0, c.Day(), "999ms is still day 0")

	c.Tick(1)
	assert.Equal(t, 1, c.Day(), "1000ms crosses the day boundary")
}

func TestTickIgnoresNonPositive(t *testing.T) {
	c := newTestClock(1000)
	c.Tick(0)
	c.Tick(-50)
	assert.Equal(t, int64(0), c.NowMs())
}

func TestDayBoundaryNotifiesOncePerDay(t *testing.T) {
	c := newTestClock(1000)

	var days []int
	c.RegisterListener(func(_ time.Time, day int) {
		days = append(days, day)
	})

	// One large tick crosses three boundaries; each day fires exactly once.
	c.Tick(3500)
	assert.Equal(t, []int{1, 2, 3}, days)

	// No boundary crossed, no notification.
	c.Tick(400)
	assert.Equal(t, []int{1, 2, 3}, days)
}

func TestListenersFireInRegistrationOrder(t *testing.T) {
	c := newTestClock(1000)

	var order []string
	c.RegisterListener(func(time.Time, int) { order = append(order, "first") })
	c.RegisterListener(func(time.Time, int) { order = append(order, "second") })
	c.RegisterListener(func(time.Time, int) { order = append(order, "third") })

	c.Tick(1000)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestPanickingListenerIsIsolated(t *testing.T) {
	c := newTestClock(1000)

	fired := false
	c.RegisterListener(func(time.Time, int) { panic("boom") })
	c.RegisterListener(func(time.Time, int) { fired = true })

	require.NotPanics(t, func() { c.Tick(1000) })
	assert.True(t, fired, "listener after the panicking one must still run")
	assert.Equal(t, 1, c.Day(), "the tick itself must complete")
}

func TestListenerDateAdvances(t *testing.T) {
	c := newTestClock(1000)

	var dates []time.Time
	c.RegisterListener(func(date time.Time, _ int) { dates = append(dates, date) })

	c.Tick(2000)
	require.Len(t, dates, 2)
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), dates[0])
	assert.Equal(t, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), dates[1])
	assert.Equal(t, dates[1], c.Date())
}

func TestReset(t *testing.T) {
	c := newTestClock(1000)
	c.Tick(5000)
	require.Equal(t, 5, c.Day())

	newStart := time.Date(2030, 6, 15, 0, 0, 0, 0, time.UTC)
	c.Reset(newStart)

	assert.Equal(t, int64(0), c.NowMs())
	assert.Equal(t, 0, c.Day())
	assert.Equal(t, newStart, c.Date())
}

func TestRestoreDerivesDay(t *testing.T) {
	c := newTestClock(1000)
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	c.Restore(7500, start)
	assert.Equal(t, int64(7500), c.NowMs())
	assert.Equal(t, 7, c.Day())
	assert.Equal(t, start.AddDate(0, 0, 7), c.Date())
}

func TestStartStopJoins(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewGameClock(start, 50, time.Millisecond, logger.NewLogger())

	c.Start()
	c.Start() // idempotent

	time.Sleep(20 * time.Millisecond)
	c.Stop()
	c.Stop() // idempotent

	// After Stop returns the loop is joined; the accumulator is frozen.
	frozen := c.NowMs()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, frozen, c.NowMs())
	assert.Greater(t, frozen, int64(0), "the running clock should have accumulated time")
}
