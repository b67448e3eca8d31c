package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/ledger"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/rack"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/request"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/events"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/config"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/logger"
)

// RackSnapshot captures one rack's counters for persistence.
type RackSnapshot struct {
	ID            string `json:"id"`
	MaxSlots      int    `json:"max_slots"`
	UnlockedSlots int    `json:"unlocked_slots"`
	OccupiedSlots int    `json:"occupied_slots"`
}

// Snapshot is the full mutable state of the engine, exposed for external
// serialization. The encoding is the persistence layer's concern.
type Snapshot struct {
	SavedAt            time.Time                  `json:"saved_at"`
	ClockAccumulatedMs int64                      `json:"clock_accumulated_ms"`
	ClockStartDate     time.Time                  `json:"clock_start_date"`
	Funds              int64                      `json:"funds"`
	Reputation         float64                    `json:"reputation"`
	Racks              []RackSnapshot             `json:"racks"`
	Requests           []*request.CustomerRequest `json:"requests"`
	SkillPoints        map[SkillCategory]int      `json:"skill_points"`
}

// Engine is the central orchestrator. It wires the ledger, racks and
// request lifecycle into the clock-driven systems and owns their
// goroutine lifetimes. No component reaches the shared state except
// through the references injected here.
type Engine struct {
	log      *logger.Logger
	eventLog *events.EventLog

	clock       *GameClock
	ledger      *ledger.Ledger
	racks       []*rack.Rack
	lifecycle   *Lifecycle
	generator   *Generator
	provisioner *Provisioner
	billing     *Billing
	skills      *SkillSystem

	mu      sync.Mutex
	running bool
}

// NewEngine builds the full simulation from configuration. Nothing runs
// until Start.
func NewEngine(cfg *config.Config, eventLog *events.EventLog, log *logger.Logger) *Engine {
	eco := cfg.Economy

	e := &Engine{
		log:      log,
		eventLog: eventLog,
		ledger:   ledger.New(eco.StartingFunds, eco.StartingReputation),
	}

	e.clock = NewGameClock(time.Now().UTC().Truncate(24*time.Hour), cfg.GameDayMs, cfg.TickInterval, log)
	e.skills = NewSkillSystem(eventLog, log, e.clock.Day)

	for i := 0; i < eco.RackCount; i++ {
		e.racks = append(e.racks, rack.New(fmt.Sprintf("rack-%d", i+1), eco.RackMaxSlots, eco.RackUnlockedSlots))
	}

	e.lifecycle = NewLifecycle(
		e.ledger, eventLog, log,
		cfg.GameDayMs, eco.BasePricePerSlot,
		e.clock.Day,
		func() float64 { return e.skills.SecurityBonusPct(eco.SecurityBonusStep) },
	)
	for _, r := range e.racks {
		e.lifecycle.RegisterRack(r)
	}

	e.generator = NewGenerator(
		e.lifecycle, e.ledger, log,
		e.clock.NowMs,
		eco.MinGenerateDelayMs, eco.MaxGenerateDelayMs, eco.RateLimitDelayMs,
		eco.MaxPendingRequests,
		func() float64 { return 1.0 + 0.1*float64(e.skills.Level(SkillMarketing)) },
	)

	e.provisioner = NewProvisioner(
		e.lifecycle, e.ledger, eventLog, log,
		e.clock.NowMs, e.clock.Day,
		eco.DeployDelaysMs,
		func() int { return e.skills.Level(SkillDeploy) },
		func() float64 { return eco.DeploySpeedBonus },
		func() float64 { return e.skills.SecurityBonusPct(eco.SecurityBonusStep) },
	)

	e.billing = NewBilling(
		e.lifecycle, e.ledger, e.racks, eventLog, log,
		eco.MonthlyOverhead, eco.PerSlotOverhead, eco.BillingMonthDays,
		cfg.BillingJobBuffer,
	)

	// Billing is the first registered listener, so the economy sweep is
	// enqueued before any external listener sees the new day.
	e.clock.RegisterListener(func(date time.Time, day int) {
		nowMs := e.clock.NowMs()
		e.billing.OnDayChange(nowMs, day)
		eventLog.Append(events.GameEvent{
			ID:        events.GenerateEventID(),
			Timestamp: time.Now(),
			Type:      events.EventTypeTimeTick,
			ActorID:   "CLOCK",
			Payload:   map[string]interface{}{"game_ms": nowMs, "date": date.Format("2006-01-02")},
			GameDay:   day,
		})
	})

	return e
}

// SetNotifier attaches the fire-and-forget UI notification sink to every
// system that emits player-facing messages.
func (e *Engine) SetNotifier(n Notifier) {
	e.lifecycle.SetNotifier(n)
	e.provisioner.SetNotifier(n)
	e.billing.SetNotifier(n)
}

// Start spawns the clock, generator and billing loops. Idempotent.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.log.Info("Starting simulation engine...")
	e.billing.Start()
	e.generator.Start()
	e.clock.Start()
}

// Stop tears the engine down: the clock stops first so no new work is
// scheduled, then the generator joins, outstanding provisioning tasks
// are cancelled and drained, and finally billing exits. After Stop no
// loop or timer fires against engine state.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	e.log.Info("Stopping simulation engine...")
	e.clock.Stop()
	e.generator.Stop()
	e.provisioner.Shutdown()
	e.billing.Stop()
	e.log.Info("Simulation engine stopped.")
}

// RegisterTimeListener exposes clock day-change notifications.
func (e *Engine) RegisterTimeListener(fn TimeListener) {
	e.clock.RegisterListener(fn)
}

// CurrentGameTime returns accumulated game time in milliseconds.
func (e *Engine) CurrentGameTime() int64 {
	return e.clock.NowMs()
}

// CurrentDate returns the derived in-game calendar date.
func (e *Engine) CurrentDate() time.Time {
	return e.clock.Date()
}

// PendingRequestCount returns the generator backlog size.
func (e *Engine) PendingRequestCount() int {
	return e.lifecycle.PendingCount()
}

// ActiveAssignments returns the current VM bindings by request id.
func (e *Engine) ActiveAssignments() map[string]request.Assignment {
	return e.lifecycle.ActiveAssignments()
}

// Ledger exposes the economic state.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Lifecycle exposes the request collection.
func (e *Engine) Lifecycle() *Lifecycle { return e.lifecycle }

// Generator exposes the request producer for pause/resume control.
func (e *Engine) Generator() *Generator { return e.generator }

// Skills exposes the skill tree.
func (e *Engine) Skills() *SkillSystem { return e.skills }

// Clock exposes the game clock.
func (e *Engine) Clock() *GameClock { return e.clock }

// Racks returns all racks.
func (e *Engine) Racks() []*rack.Rack { return e.racks }

// Rack returns one rack by id, or nil.
func (e *Engine) Rack(id string) *rack.Rack {
	for _, r := range e.racks {
		if r.ID() == id {
			return r
		}
	}
	return nil
}

// ProvisionRequest starts the VM creation workflow on the named rack.
func (e *Engine) ProvisionRequest(requestID, rackID string, provided *request.VMSpec) error {
	r := e.Rack(rackID)
	if r == nil {
		return fmt.Errorf("unknown rack %s", rackID)
	}
	return e.provisioner.Provision(requestID, r, provided)
}

// ArchiveRequest removes a request and frees its VM.
func (e *Engine) ArchiveRequest(requestID string) error {
	return e.lifecycle.Archive(requestID)
}

// UpgradeRack unlocks one more slot step on the named rack.
func (e *Engine) UpgradeRack(rackID string) (bool, error) {
	r := e.Rack(rackID)
	if r == nil {
		return false, fmt.Errorf("unknown rack %s", rackID)
	}
	ok := r.Upgrade()
	if ok {
		_, unlocked, _ := r.Counters()
		e.eventLog.Append(events.GameEvent{
			ID:        events.GenerateEventID(),
			Timestamp: time.Now(),
			Type:      events.EventTypeRackUpgraded,
			ActorID:   "PLAYER",
			TargetID:  rackID,
			Payload:   map[string]int{"unlocked_slots": unlocked},
			GameDay:   e.clock.Day(),
		})
	}
	return ok, nil
}

// Snapshot captures the full mutable engine state for persistence.
func (e *Engine) Snapshot() Snapshot {
	racks := make([]RackSnapshot, 0, len(e.racks))
	for _, r := range e.racks {
		maxSlots, unlocked, occupied := r.Counters()
		racks = append(racks, RackSnapshot{
			ID:            r.ID(),
			MaxSlots:      maxSlots,
			UnlockedSlots: unlocked,
			OccupiedSlots: occupied,
		})
	}
	return Snapshot{
		SavedAt:            time.Now(),
		ClockAccumulatedMs: e.clock.NowMs(),
		ClockStartDate:     e.clock.Date().AddDate(0, 0, -e.clock.Day()),
		Funds:              e.ledger.Funds(),
		Reputation:         e.ledger.Reputation(),
		Racks:              racks,
		Requests:           e.lifecycle.List(),
		SkillPoints:        e.skills.Points(),
	}
}

// Restore loads a snapshot into the engine. The engine must be stopped.
func (e *Engine) Restore(s Snapshot) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("cannot restore a running engine")
	}
	e.mu.Unlock()

	e.clock.Restore(s.ClockAccumulatedMs, s.ClockStartDate)
	e.ledger.Restore(s.Funds, s.Reputation)
	for _, rs := range s.Racks {
		if r := e.Rack(rs.ID); r != nil {
			r.Restore(rs.MaxSlots, rs.UnlockedSlots, rs.OccupiedSlots)
		}
	}
	e.lifecycle.Restore(s.Requests)
	e.skills.Restore(s.SkillPoints)
	e.log.Infof("Restored game state: day %d, funds %d, %d requests", e.clock.Day(), s.Funds, len(s.Requests))
	return nil
}
