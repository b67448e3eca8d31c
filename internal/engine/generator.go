package engine

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/ledger"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/pricing"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/logger"
)

type generatorCmdKind int

const (
	genCmdPause generatorCmdKind = iota
	genCmdResume
	genCmdGenerateNow
	genCmdSetMaxPending
)

type generatorCmd struct {
	kind generatorCmdKind
	n    int
}

// Generator is the background producer of customer requests. It is a
// single-owner loop: pause, resume and tuning arrive as commands over a
// channel, so the loop state needs no locks. Spawn delay shrinks as
// reputation (and the marketing skill) grow; a full Pending backlog
// switches the loop to a fixed rate-limit sleep without generating.
type Generator struct {
	log       *logger.Logger
	lifecycle *Lifecycle
	ledger    *ledger.Ledger
	nowMsFn   func() int64

	minDelayMs   int64
	maxDelayMs   int64
	rateLimitMs  int64
	marketingFn  func() float64 // extra rate multiplier, >= 1.0
	rng          *rand.Rand     // owned by the loop goroutine

	cmds chan generatorCmd
	stop chan struct{}
	done chan struct{}

	mu      sync.Mutex
	started bool

	maxPending atomic.Int64
	paused     atomic.Bool
	generated  atomic.Int64
}

// NewGenerator creates a stopped generator. marketingFn may be nil.
func NewGenerator(
	lc *Lifecycle,
	led *ledger.Ledger,
	log *logger.Logger,
	nowMsFn func() int64,
	minDelayMs, maxDelayMs, rateLimitMs int64,
	maxPending int,
	marketingFn func() float64,
) *Generator {
	g := &Generator{
		log:         log,
		lifecycle:   lc,
		ledger:      led,
		nowMsFn:     nowMsFn,
		minDelayMs:  minDelayMs,
		maxDelayMs:  maxDelayMs,
		rateLimitMs: rateLimitMs,
		marketingFn: marketingFn,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		cmds:        make(chan generatorCmd, 16),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	if g.marketingFn == nil {
		g.marketingFn = func() float64 { return 1.0 }
	}
	g.maxPending.Store(int64(maxPending))
	return g
}

// Start spawns the generation loop. Starting twice is a no-op.
func (g *Generator) Start() {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return
	}
	g.started = true
	g.mu.Unlock()

	go g.run()
}

func (g *Generator) run() {
	defer close(g.done)
	g.log.Info("Request generator started.")

	paused := false
	nextDelay := g.spawnDelay()

	for {
		if paused {
			// Blocked until resumed or stopped; no timer runs while paused.
			select {
			case <-g.stop:
				return
			case cmd := <-g.cmds:
				paused = g.apply(cmd, paused)
				if !paused {
					nextDelay = g.spawnDelay()
				}
			}
			continue
		}

		timer := time.NewTimer(nextDelay)
		select {
		case <-g.stop:
			timer.Stop()
			g.log.Info("Request generator stopped.")
			return
		case cmd := <-g.cmds:
			timer.Stop()
			paused = g.apply(cmd, paused)
		case <-timer.C:
			if int64(g.lifecycle.PendingCount()) >= g.maxPending.Load() {
				// Backlog full: rate-limit sleep, no request this cycle.
				nextDelay = time.Duration(g.rateLimitMs) * time.Millisecond
				continue
			}
			g.generateOne()
			nextDelay = g.spawnDelay()
		}
	}
}

func (g *Generator) apply(cmd generatorCmd, paused bool) bool {
	switch cmd.kind {
	case genCmdPause:
		g.paused.Store(true)
		return true
	case genCmdResume:
		g.paused.Store(false)
		return false
	case genCmdGenerateNow:
		if int64(g.lifecycle.PendingCount()) < g.maxPending.Load() {
			g.generateOne()
		}
	case genCmdSetMaxPending:
		g.maxPending.Store(int64(cmd.n))
	}
	return paused
}

func (g *Generator) generateOne() {
	req := g.lifecycle.GenerateRandom(g.nowMsFn())
	g.lifecycle.Add(req)
	g.generated.Add(1)
}

// spawnDelay draws the next inter-arrival delay, scaled down by the
// reputation rate multiplier and the marketing skill.
func (g *Generator) spawnDelay() time.Duration {
	base := g.minDelayMs
	if spread := g.maxDelayMs - g.minDelayMs; spread > 0 {
		base += g.rng.Int63n(spread + 1)
	}
	mult := pricing.GenerationRateMultiplier(g.ledger.Reputation()) * g.marketingFn()
	if mult < pricing.RateMultiplierMin {
		mult = pricing.RateMultiplierMin
	}
	delayMs := float64(base) / mult
	if delayMs < 1 {
		delayMs = 1
	}
	return time.Duration(delayMs) * time.Millisecond
}

// Pause blocks the loop on its command channel until Resume.
func (g *Generator) Pause() {
	g.send(generatorCmd{kind: genCmdPause})
}

// Resume wakes a paused loop.
func (g *Generator) Resume() {
	g.send(generatorCmd{kind: genCmdResume})
}

// GenerateNow asks the loop to spawn one request immediately, still
// subject to the backlog limit.
func (g *Generator) GenerateNow() {
	g.send(generatorCmd{kind: genCmdGenerateNow})
}

// SetMaxPendingRequests adjusts the backlog limit at runtime.
func (g *Generator) SetMaxPendingRequests(n int) {
	if n < 0 {
		n = 0
	}
	g.send(generatorCmd{kind: genCmdSetMaxPending, n: n})
}

// MaxPendingRequests returns the current backlog limit.
func (g *Generator) MaxPendingRequests() int {
	return int(g.maxPending.Load())
}

// Paused reports the pause flag as last applied by the loop.
func (g *Generator) Paused() bool {
	return g.paused.Load()
}

// Generated returns how many requests this generator has spawned.
func (g *Generator) Generated() int64 {
	return g.generated.Load()
}

// send delivers a command unless the generator has already stopped.
func (g *Generator) send(cmd generatorCmd) {
	select {
	case g.cmds <- cmd:
	case <-g.done:
	}
}

// Stop signals the loop and waits for it to exit. The loop observes the
// stop signal between sleeps and on wake, so the wait is bounded.
func (g *Generator) Stop() {
	g.mu.Lock()
	if !g.started {
		g.mu.Unlock()
		return
	}
	g.started = false
	g.mu.Unlock()

	close(g.stop)
	<-g.done
}
