package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/ledger"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/pricing"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/rack"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/request"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/events"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/logger"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/metrics"
)

// Domain outcomes of provisioning. These are control flow, not failures.
var (
	ErrInsufficientCapacity = errors.New("insufficient rack capacity")
	ErrAlreadyProvisioning  = errors.New("request already has a provisioning task")
	ErrProvisionerClosed    = errors.New("provisioner is shut down")
)

// ActivationPayload records a completed provisioning.
type ActivationPayload struct {
	RequestID   string         `json:"request_id"`
	RackID      string         `json:"rack_id"`
	Slots       int            `json:"slots"`
	Provided    request.VMSpec `json:"provided"`
	RatingDelta float64        `json:"rating_delta"`
	FirstCredit int64          `json:"first_credit"`
}

// ProvisionFailedPayload records a capacity rejection.
type ProvisionFailedPayload struct {
	RequestID string `json:"request_id"`
	RackID    string `json:"rack_id"`
	Slots     int    `json:"slots"`
}

// Provisioner runs the asynchronous VM creation workflow. Each accepted
// request gets its own goroutine, registered in a cancellable task table
// keyed by request id so engine shutdown can drain everything.
type Provisioner struct {
	log       *logger.Logger
	eventLog  *events.EventLog
	lifecycle *Lifecycle
	ledger    *ledger.Ledger
	nowMsFn   func() int64
	dayFn     func() int
	notifier  Notifier

	deployDelaysMs []int64
	deployLevelFn  func() int     // indexes deployDelaysMs
	speedBonusFn   func() float64 // pct reduction of the creation delay
	paymentBonusFn func() float64 // pct bonus on the first payment

	mu     sync.Mutex
	closed bool
	tasks  map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// NewProvisioner creates the provisioning worker. The level and bonus
// callbacks may be nil.
func NewProvisioner(
	lc *Lifecycle,
	led *ledger.Ledger,
	eventLog *events.EventLog,
	log *logger.Logger,
	nowMsFn func() int64,
	dayFn func() int,
	deployDelaysMs []int64,
	deployLevelFn func() int,
	speedBonusFn func() float64,
	paymentBonusFn func() float64,
) *Provisioner {
	p := &Provisioner{
		log:            log,
		eventLog:       eventLog,
		lifecycle:      lc,
		ledger:         led,
		nowMsFn:        nowMsFn,
		dayFn:          dayFn,
		deployDelaysMs: deployDelaysMs,
		deployLevelFn:  deployLevelFn,
		speedBonusFn:   speedBonusFn,
		paymentBonusFn: paymentBonusFn,
		tasks:          make(map[string]context.CancelFunc),
	}
	if p.deployLevelFn == nil {
		p.deployLevelFn = func() int { return 0 }
	}
	if p.speedBonusFn == nil {
		p.speedBonusFn = func() float64 { return 0 }
	}
	if p.paymentBonusFn == nil {
		p.paymentBonusFn = func() float64 { return 0 }
	}
	return p
}

// SetNotifier attaches the UI notification sink.
func (p *Provisioner) SetNotifier(n Notifier) {
	p.mu.Lock()
	p.notifier = n
	p.mu.Unlock()
}

// Provision starts the creation workflow for a Pending (or Expired,
// manual re-provision) request on the target rack. provided is the VM
// spec actually handed out; nil means exactly what was requested.
//
// Capacity is reserved synchronously and atomically; the simulated
// creation delay then runs on its own goroutine. On capacity exhaustion
// the request stays Pending and the ledger is untouched.
func (p *Provisioner) Provision(requestID string, target *rack.Rack, provided *request.VMSpec) error {
	req := p.lifecycle.Get(requestID)
	if req == nil {
		return fmt.Errorf("provision: unknown request %s", requestID)
	}
	if req.State != request.StatePending && req.State != request.StateExpired {
		return fmt.Errorf("provision: request %s is %s", requestID, req.State)
	}

	slots := req.SlotsRequired()
	if !target.TryInstall(slots) {
		metrics.ProvisionsTotal.WithLabelValues("insufficient_capacity").Inc()
		p.eventLog.Append(events.GameEvent{
			ID:        events.GenerateEventID(),
			Timestamp: time.Now(),
			Type:      events.EventTypeProvisionFailed,
			ActorID:   "PROVISIONER",
			TargetID:  requestID,
			Payload:   ProvisionFailedPayload{RequestID: requestID, RackID: target.ID(), Slots: slots},
			GameDay:   p.dayFn(),
		})
		return ErrInsufficientCapacity
	}

	spec := req.Specs
	if provided != nil {
		spec = *provided
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		target.Uninstall(slots)
		return ErrProvisionerClosed
	}
	if _, busy := p.tasks[requestID]; busy {
		p.mu.Unlock()
		target.Uninstall(slots)
		return ErrAlreadyProvisioning
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.tasks[requestID] = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	go p.runTask(ctx, req, target, slots, spec)
	return nil
}

// runTask waits out the simulated creation delay and then activates the
// request. A cancelled task rolls back its slot reservation and never
// touches the ledger.
func (p *Provisioner) runTask(ctx context.Context, req *request.CustomerRequest, target *rack.Rack, slots int, provided request.VMSpec) {
	defer func() {
		p.mu.Lock()
		delete(p.tasks, req.ID)
		p.mu.Unlock()
		p.wg.Done()
	}()

	timer := time.NewTimer(p.creationDelay())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		target.Uninstall(slots)
		metrics.ProvisionsTotal.WithLabelValues("cancelled").Inc()
		return
	case <-timer.C:
	}

	assignment := request.Assignment{RackID: target.ID(), Slots: slots, Provided: provided}
	nowMs := p.nowMsFn()
	activated, err := p.lifecycle.Activate(req.ID, assignment, nowMs)
	if err != nil {
		// Request archived (or otherwise gone) while the VM was building.
		target.Uninstall(slots)
		metrics.ProvisionsTotal.WithLabelValues("cancelled").Inc()
		p.log.Warn("provisioning abandoned: " + err.Error())
		return
	}

	tierMult := request.TierRegistry[activated.Tier].Multiplier
	delta := pricing.RatingDelta(activated.Specs, provided, tierMult)
	newRep := p.ledger.AdjustReputation(delta)

	bonus := int64(float64(activated.PaymentAmount) * p.paymentBonusFn())
	credit := activated.PaymentAmount + bonus
	p.ledger.Credit(credit)

	metrics.ProvisionsTotal.WithLabelValues("success").Inc()
	metrics.ReputationGauge.Set(newRep)
	metrics.FundsGauge.Set(float64(p.ledger.Funds()))

	day := p.dayFn()
	p.eventLog.Append(events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeRequestActivated,
		ActorID:   "PROVISIONER",
		TargetID:  activated.ID,
		Payload: ActivationPayload{
			RequestID:   activated.ID,
			RackID:      target.ID(),
			Slots:       slots,
			Provided:    provided,
			RatingDelta: delta,
			FirstCredit: credit,
		},
		GameDay: day,
	})
	p.eventLog.Append(events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeReputationChange,
		ActorID:   "PROVISIONER",
		TargetID:  activated.ID,
		Payload:   map[string]float64{"delta": delta, "reputation": newRep},
		GameDay:   day,
	})

	p.mu.Lock()
	notifier := p.notifier
	p.mu.Unlock()
	if notifier != nil {
		notifier.Notify("VM online", fmt.Sprintf("%s is now active on %s", activated.CustomerName, target.ID()))
	}
}

// creationDelay reads the deploy-level table and applies the speed bonus.
func (p *Provisioner) creationDelay() time.Duration {
	level := p.deployLevelFn()
	if level < 0 {
		level = 0
	}
	if level >= len(p.deployDelaysMs) {
		level = len(p.deployDelaysMs) - 1
	}
	delayMs := float64(p.deployDelaysMs[level])

	bonus := p.speedBonusFn()
	if bonus > 0.9 {
		bonus = 0.9
	}
	if bonus > 0 {
		delayMs *= 1 - bonus
	}
	return time.Duration(delayMs) * time.Millisecond
}

// TaskCount returns the number of in-flight provisioning tasks.
func (p *Provisioner) TaskCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Shutdown cancels every outstanding task and waits for all of them to
// drain. Further Provision calls are rejected.
func (p *Provisioner) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	for _, cancel := range p.tasks {
		cancel()
	}
	p.mu.Unlock()

	p.wg.Wait()
}
