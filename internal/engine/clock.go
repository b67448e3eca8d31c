// Package engine contains the game loop and simulation logic.
// This is the heartbeat of the VPS tycoon economy.
//
// ARCHITECTURAL RULE: components never reach for globals. The Engine
// wires the ledger, racks and lifecycle into each system at construction.
package engine

import (
	"sync"
	"time"

	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/logger"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/metrics"
)

// TimeListener is notified synchronously when the in-game calendar
// advances by one day. Listeners run in registration order.
type TimeListener func(date time.Time, day int)

// GameClock converts elapsed wall-clock time into accelerated game time.
// It accumulates real milliseconds; one in-game day is gameDayMs of
// accumulated time. The accumulator never decreases except on Reset.
type GameClock struct {
	mu           sync.Mutex
	log          *logger.Logger
	gameDayMs    int64
	tickInterval time.Duration

	accumulatedMs int64
	day           int       // full days elapsed since startDate
	startDate     time.Time // calendar date at accumulator zero
	listeners     []TimeListener

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewGameClock creates a stopped clock anchored at startDate.
func NewGameClock(startDate time.Time, gameDayMs int64, tickInterval time.Duration, log *logger.Logger) *GameClock {
	if gameDayMs <= 0 {
		gameDayMs = 60_000
	}
	return &GameClock{
		log:          log,
		gameDayMs:    gameDayMs,
		tickInterval: tickInterval,
		startDate:    startDate,
	}
}

// RegisterListener adds a day-boundary listener. Listeners registered
// earlier fire earlier.
func (c *GameClock) RegisterListener(fn TimeListener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Start spawns the driving loop. Starting a running clock is a no-op.
func (c *GameClock) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run()
}

func (c *GameClock) run() {
	defer close(c.done)
	c.log.Info("Game clock started.")

	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-c.stop:
			c.log.Info("Game clock stopped.")
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last).Milliseconds()
			last = now
			if elapsed > 0 {
				c.Tick(elapsed)
			}
		}
	}
}

// Tick advances accumulated game time by elapsedRealMs. When the
// accumulator crosses one or more day boundaries, the calendar advances
// and every listener is notified once per crossed day, synchronously,
// in registration order. A panicking listener is isolated and logged;
// it never aborts the tick.
func (c *GameClock) Tick(elapsedRealMs int64) {
	if elapsedRealMs <= 0 {
		return
	}

	c.mu.Lock()
	c.accumulatedMs += elapsedRealMs
	prevDay := c.day
	newDay := int(c.accumulatedMs / c.gameDayMs)
	c.day = newDay
	start := c.startDate
	listeners := make([]TimeListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	metrics.TicksTotal.Inc()

	for d := prevDay + 1; d <= newDay; d++ {
		date := start.AddDate(0, 0, d)
		metrics.GameDaysTotal.Inc()
		c.log.Event("DAY_CHANGE", "CLOCK", date.Format("2006-01-02"))
		for _, fn := range listeners {
			c.notify(fn, date, d)
		}
	}
}

// notify runs one listener with panic isolation.
func (c *GameClock) notify(fn TimeListener, date time.Time, day int) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("time listener panicked on day %d: %v", day, r)
		}
	}()
	fn(date, day)
}

// NowMs returns the accumulated game time in milliseconds.
func (c *GameClock) NowMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accumulatedMs
}

// Day returns full in-game days elapsed since the anchor date.
func (c *GameClock) Day() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.day
}

// Date returns the derived calendar date.
func (c *GameClock) Date() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startDate.AddDate(0, 0, c.day)
}

// GameDayMs returns the length of one in-game day.
func (c *GameClock) GameDayMs() int64 {
	return c.gameDayMs
}

// Reset stops the clock, zeroes the accumulator and anchors the calendar
// at newStartDate. The driving loop is joined before state changes, so
// no tick observes a half-reset clock.
func (c *GameClock) Reset(newStartDate time.Time) {
	c.Stop()
	c.mu.Lock()
	c.accumulatedMs = 0
	c.day = 0
	c.startDate = newStartDate
	c.mu.Unlock()
}

// Restore overwrites the accumulator and anchor, used when loading a
// saved game. The clock must be stopped.
func (c *GameClock) Restore(accumulatedMs int64, startDate time.Time) {
	c.mu.Lock()
	c.accumulatedMs = accumulatedMs
	c.day = int(accumulatedMs / c.gameDayMs)
	c.startDate = startDate
	c.mu.Unlock()
}

// Stop signals the driving loop and waits for it to fully exit. After
// Stop returns no listener will fire. Stopping a stopped clock is a no-op.
// The clock never resumes advancing implicitly; call Start again.
func (c *GameClock) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stop := c.stop
	done := c.done
	c.mu.Unlock()

	close(stop)
	<-done
}
