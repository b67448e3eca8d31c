package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/ledger"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/rack"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/events"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/logger"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/metrics"
)

// OverheadPayload records a monthly operating cost deduction.
type OverheadPayload struct {
	Base          int64 `json:"base"`
	PerSlot       int64 `json:"per_slot"`
	OccupiedSlots int   `json:"occupied_slots"`
	Total         int64 `json:"total"`
}

type billingJob struct {
	nowMs int64
	day   int
}

// Billing runs the periodic economy sweep: rent collection and
// renewal/expiration once per in-game day, fixed overhead plus
// per-occupied-slot surcharge once per in-game month.
//
// The clock listener only enqueues a job; the sweep itself runs on the
// billing worker goroutine so the tick path never blocks on the economy.
type Billing struct {
	log       *logger.Logger
	eventLog  *events.EventLog
	lifecycle *Lifecycle
	ledger    *ledger.Ledger
	racks     []*rack.Rack
	notifier  Notifier

	monthlyOverhead int64
	perSlotOverhead int64
	monthDays       int

	jobs chan billingJob
	stop chan struct{}
	done chan struct{}

	// Worker-goroutine state: the last month index overhead was charged
	// for, so a dropped boundary job is caught up on the next sweep.
	lastChargedMonth int

	mu      sync.Mutex
	started bool
}

// NewBilling creates a stopped billing scheduler.
func NewBilling(
	lc *Lifecycle,
	led *ledger.Ledger,
	racks []*rack.Rack,
	eventLog *events.EventLog,
	log *logger.Logger,
	monthlyOverhead, perSlotOverhead int64,
	monthDays int,
	jobBuffer int,
) *Billing {
	if monthDays <= 0 {
		monthDays = 30
	}
	if jobBuffer <= 0 {
		jobBuffer = 8
	}
	return &Billing{
		log:             log,
		eventLog:        eventLog,
		lifecycle:       lc,
		ledger:          led,
		racks:           racks,
		monthlyOverhead: monthlyOverhead,
		perSlotOverhead: perSlotOverhead,
		monthDays:       monthDays,
		jobs:            make(chan billingJob, jobBuffer),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// SetNotifier attaches the UI notification sink.
func (b *Billing) SetNotifier(n Notifier) {
	b.mu.Lock()
	b.notifier = n
	b.mu.Unlock()
}

// Start spawns the billing worker.
func (b *Billing) Start() {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	go b.run()
}

// OnDayChange is the GameClock listener. It must return immediately:
// the sweep is dispatched as an async work item. A full queue drops the
// job rather than stall the clock; the next day catches up.
func (b *Billing) OnDayChange(nowMs int64, day int) {
	select {
	case b.jobs <- billingJob{nowMs: nowMs, day: day}:
	default:
		b.log.Warn(fmt.Sprintf("billing queue full, dropping sweep for day %d", day))
	}
}

func (b *Billing) run() {
	defer close(b.done)
	b.log.Info("Billing scheduler started.")

	for {
		select {
		case <-b.stop:
			b.log.Info("Billing scheduler stopped.")
			return
		case job := <-b.jobs:
			b.sweep(job)
		}
	}
}

func (b *Billing) sweep(job billingJob) {
	b.lifecycle.ProcessPayments(job.nowMs)
	b.lifecycle.CheckExpirations(job.nowMs)

	occupied := b.occupiedSlots()
	metrics.OccupiedSlotsGauge.Set(float64(occupied))

	if month := job.day / b.monthDays; month > b.lastChargedMonth {
		b.chargeOverhead(job.day, occupied)
		b.lastChargedMonth = month
	}
}

func (b *Billing) occupiedSlots() int {
	total := 0
	for _, r := range b.racks {
		_, _, occupied := r.Counters()
		total += occupied
	}
	return total
}

// chargeOverhead debits the fixed monthly cost plus the per-slot
// surcharge over all currently provisioned slots.
func (b *Billing) chargeOverhead(day, occupied int) {
	total := b.monthlyOverhead + b.perSlotOverhead*int64(occupied)
	b.ledger.Debit(total)
	metrics.FundsGauge.Set(float64(b.ledger.Funds()))

	b.log.Event("OVERHEAD", "BILLING", fmt.Sprintf("day %d: -%d (%d slots)", day, total, occupied))
	b.eventLog.Append(events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeOverheadCharged,
		ActorID:   "BILLING",
		Payload: OverheadPayload{
			Base:          b.monthlyOverhead,
			PerSlot:       b.perSlotOverhead,
			OccupiedSlots: occupied,
			Total:         total,
		},
		GameDay: day,
	})

	b.mu.Lock()
	notifier := b.notifier
	b.mu.Unlock()
	if notifier != nil {
		notifier.Notify("Monthly costs", fmt.Sprintf("Operating overhead charged: %d", total))
	}
}

// Stop signals the worker and waits for it to exit. Queued jobs that
// were not yet processed are discarded.
func (b *Billing) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	b.mu.Unlock()

	close(b.stop)
	<-b.done
}
