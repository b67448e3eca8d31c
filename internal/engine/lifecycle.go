package engine

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/ledger"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/pricing"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/rack"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/request"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/events"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/logger"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/metrics"
)

// Notifier is the fire-and-forget UI notification sink. Implementations
// must not block; the core never consumes a return value.
type Notifier interface {
	Notify(title, message string)
}

// customerNames seeds generated customer identities.
var customerNames = []string{
	"Somchai", "Nattapong", "Kanya", "Arthit", "Pim",
	"Malee", "Chatri", "Anong", "Prasert", "Dao",
}

// PaymentPayload records one rent installment.
type PaymentPayload struct {
	RequestID string `json:"request_id"`
	Amount    int64  `json:"amount"`
	Bonus     int64  `json:"bonus"`
}

// ExpirationPayload records a renewal decision.
type ExpirationPayload struct {
	RequestID   string  `json:"request_id"`
	Probability float64 `json:"probability"`
	Renewed     bool    `json:"renewed"`
}

// Lifecycle owns the collection of customer requests and their state
// machine. All collection access is serialized by one mutex; iteration
// passes work on cloned snapshots so external readers never observe a
// request mid-transition.
type Lifecycle struct {
	mu        sync.Mutex
	log       *logger.Logger
	eventLog  *events.EventLog
	ledger    *ledger.Ledger
	racks     map[string]*rack.Rack
	requests  map[string]*request.CustomerRequest
	gameDayMs int64
	dayFn     func() int
	notifier  Notifier

	basePricePerSlot int64
	bonusPctFn       func() float64 // security skill payment bonus

	// randFloat drives renewal decisions; replaced in tests for
	// deterministic outcomes.
	randFloat func() float64
	rng       *rand.Rand
}

// NewLifecycle creates the request collection. bonusPctFn may be nil.
func NewLifecycle(
	led *ledger.Ledger,
	eventLog *events.EventLog,
	log *logger.Logger,
	gameDayMs int64,
	basePricePerSlot int64,
	dayFn func() int,
	bonusPctFn func() float64,
) *Lifecycle {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	l := &Lifecycle{
		log:              log,
		eventLog:         eventLog,
		ledger:           led,
		racks:            make(map[string]*rack.Rack),
		requests:         make(map[string]*request.CustomerRequest),
		gameDayMs:        gameDayMs,
		dayFn:            dayFn,
		basePricePerSlot: basePricePerSlot,
		bonusPctFn:       bonusPctFn,
		rng:              rng,
	}
	l.randFloat = rng.Float64
	if l.dayFn == nil {
		l.dayFn = func() int { return 0 }
	}
	if l.bonusPctFn == nil {
		l.bonusPctFn = func() float64 { return 0 }
	}
	return l
}

// SetNotifier attaches the UI notification sink.
func (l *Lifecycle) SetNotifier(n Notifier) {
	l.mu.Lock()
	l.notifier = n
	l.mu.Unlock()
}

// RegisterRack makes a rack known for assignment release.
func (l *Lifecycle) RegisterRack(r *rack.Rack) {
	l.mu.Lock()
	l.racks[r.ID()] = r
	l.mu.Unlock()
}

// Add appends a request in Pending state.
func (l *Lifecycle) Add(req *request.CustomerRequest) {
	l.mu.Lock()
	l.requests[req.ID] = req
	notifier := l.notifier
	l.mu.Unlock()

	metrics.RequestsGeneratedTotal.WithLabelValues(string(req.Tier)).Inc()
	l.log.Event("REQUEST_CREATED", req.ID, fmt.Sprintf("%s %s/%s", req.CustomerName, req.Tier, req.Period))
	l.eventLog.Append(events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeRequestCreated,
		ActorID:   "GENERATOR",
		TargetID:  req.ID,
		Payload:   req.Clone(),
		GameDay:   l.dayFn(),
	})
	if notifier != nil {
		notifier.Notify("New customer", fmt.Sprintf("%s wants a %s VM (%s plan)", req.CustomerName, req.Tier, req.Period))
	}
}

// GenerateRandom draws a customer tier and rental period by their
// registry weights and computes the payment amount. The request is NOT
// added; the generator calls Add separately.
func (l *Lifecycle) GenerateRandom(nowMs int64) *request.CustomerRequest {
	l.mu.Lock()
	tier := l.drawTier()
	period := l.drawPeriod()
	name := customerNames[l.rng.Intn(len(customerNames))]
	l.mu.Unlock()

	payment := pricing.PaymentAmount(tier, period, l.basePricePerSlot)
	id := uuid.NewString()
	return request.New(id, name, tier, period, payment, nowMs)
}

func (l *Lifecycle) drawTier() request.Tier {
	total := 0
	for _, t := range request.TierOrder {
		total += request.TierRegistry[t].Weight
	}
	roll := l.rng.Intn(total)
	for _, t := range request.TierOrder {
		roll -= request.TierRegistry[t].Weight
		if roll < 0 {
			return t
		}
	}
	return request.TierIndividual
}

func (l *Lifecycle) drawPeriod() request.Period {
	periods := []request.Period{request.PeriodDaily, request.PeriodWeekly, request.PeriodMonthly, request.PeriodYearly}
	total := 0
	for _, p := range periods {
		total += request.PeriodRegistry[p].Weight
	}
	roll := l.rng.Intn(total)
	for _, p := range periods {
		roll -= request.PeriodRegistry[p].Weight
		if roll < 0 {
			return p
		}
	}
	return request.PeriodWeekly
}

// Activate transitions a Pending or Expired request to Active with the
// given assignment. Called by the provisioner after capacity was
// reserved. The caller owns the slot reservation until this succeeds.
func (l *Lifecycle) Activate(requestID string, a request.Assignment, nowMs int64) (*request.CustomerRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("activate: unknown request %s", requestID)
	}
	if req.Assignment != nil {
		return nil, fmt.Errorf("activate: request %s already assigned", requestID)
	}
	if err := req.TransitionTo(request.StateActive); err != nil {
		return nil, err
	}
	assignment := a
	req.Assignment = &assignment
	req.ActivatedAtMs = nowMs
	req.LastPaymentMs = nowMs
	return req.Clone(), nil
}

// ProcessPayments credits rent for every Active request whose installment
// interval has elapsed, applying the security skill bonus percentage.
func (l *Lifecycle) ProcessPayments(nowMs int64) {
	bonusPct := l.bonusPctFn()

	l.mu.Lock()
	var paid []PaymentPayload
	for _, req := range l.requests {
		if req.State != request.StateActive {
			continue
		}
		interval := req.InstallmentMs(l.gameDayMs)
		if interval <= 0 || nowMs-req.LastPaymentMs < interval {
			continue
		}
		bonus := int64(float64(req.PaymentAmount) * bonusPct)
		l.ledger.Credit(req.PaymentAmount + bonus)
		req.LastPaymentMs = nowMs
		paid = append(paid, PaymentPayload{RequestID: req.ID, Amount: req.PaymentAmount, Bonus: bonus})
	}
	day := l.dayFn()
	l.mu.Unlock()

	for _, p := range paid {
		metrics.PaymentsTotal.Inc()
		l.eventLog.Append(events.GameEvent{
			ID:        events.GenerateEventID(),
			Timestamp: time.Now(),
			Type:      events.EventTypePaymentProcessed,
			ActorID:   "BILLING",
			TargetID:  p.RequestID,
			Payload:   p,
			GameDay:   day,
		})
	}
	metrics.FundsGauge.Set(float64(l.ledger.Funds()))
}

// CheckExpirations decides renewal or expiration for every Active request
// whose rental period has fully elapsed. Renewal probability grows with
// reputation. Declined rentals release their slots back to the rack.
func (l *Lifecycle) CheckExpirations(nowMs int64) {
	reputation := l.ledger.Reputation()
	p := pricing.RenewalProbability(reputation)

	l.mu.Lock()
	var decisions []ExpirationPayload
	for _, req := range l.requests {
		if req.State != request.StateActive {
			continue
		}
		if nowMs < req.ActivatedAtMs+req.DurationMs(l.gameDayMs) {
			continue
		}
		renewed := l.randFloat() < p
		if renewed {
			req.ActivatedAtMs = nowMs
			req.LastPaymentMs = nowMs
			l.ledger.Credit(req.PaymentAmount)
		} else {
			// TransitionTo cannot fail from Active.
			_ = req.TransitionTo(request.StateExpired)
			l.releaseAssignmentLocked(req)
		}
		decisions = append(decisions, ExpirationPayload{RequestID: req.ID, Probability: p, Renewed: renewed})
	}
	day := l.dayFn()
	notifier := l.notifier
	l.mu.Unlock()

	for _, d := range decisions {
		typ := events.EventTypeRequestRenewed
		outcome := "renewed"
		if !d.Renewed {
			typ = events.EventTypeRequestExpired
			outcome = "expired"
		}
		metrics.RenewalsTotal.WithLabelValues(outcome).Inc()
		l.eventLog.Append(events.GameEvent{
			ID:        events.GenerateEventID(),
			Timestamp: time.Now(),
			Type:      typ,
			ActorID:   "BILLING",
			TargetID:  d.RequestID,
			Payload:   d,
			GameDay:   day,
		})
		if !d.Renewed && notifier != nil {
			notifier.Notify("Rental expired", fmt.Sprintf("Request %s did not renew", d.RequestID))
		}
	}
}

// Archive removes a request regardless of state, releasing any
// assignment. Archived is terminal.
func (l *Lifecycle) Archive(requestID string) error {
	l.mu.Lock()
	req, ok := l.requests[requestID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("archive: unknown request %s", requestID)
	}
	if err := req.TransitionTo(request.StateArchived); err != nil {
		l.mu.Unlock()
		return err
	}
	l.releaseAssignmentLocked(req)
	delete(l.requests, requestID)
	day := l.dayFn()
	l.mu.Unlock()

	l.eventLog.Append(events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeRequestArchived,
		ActorID:   "PLAYER",
		TargetID:  requestID,
		GameDay:   day,
	})
	return nil
}

// releaseAssignmentLocked frees the slots backing a request's VM.
// Caller holds l.mu.
func (l *Lifecycle) releaseAssignmentLocked(req *request.CustomerRequest) {
	if req.Assignment == nil {
		return
	}
	if r, ok := l.racks[req.Assignment.RackID]; ok {
		r.Uninstall(req.Assignment.Slots)
	} else {
		l.log.Warn("releasing assignment on unknown rack " + req.Assignment.RackID)
	}
	req.Assignment = nil
}

// Get returns a clone of one request, or nil.
func (l *Lifecycle) Get(requestID string) *request.CustomerRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	if req, ok := l.requests[requestID]; ok {
		return req.Clone()
	}
	return nil
}

// List returns clones of all requests, ordered by creation time.
func (l *Lifecycle) List() []*request.CustomerRequest {
	l.mu.Lock()
	out := make([]*request.CustomerRequest, 0, len(l.requests))
	for _, req := range l.requests {
		out = append(out, req.Clone())
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtMs == out[j].CreatedAtMs {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAtMs < out[j].CreatedAtMs
	})
	return out
}

// PendingCount returns the generator backlog size.
func (l *Lifecycle) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, req := range l.requests {
		if req.State == request.StatePending {
			n++
		}
	}
	return n
}

// ActiveAssignments returns the current VM bindings.
func (l *Lifecycle) ActiveAssignments() map[string]request.Assignment {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]request.Assignment)
	for id, req := range l.requests {
		if req.State == request.StateActive && req.Assignment != nil {
			out[id] = *req.Assignment
		}
	}
	return out
}

// Restore replaces the collection with saved requests.
func (l *Lifecycle) Restore(reqs []*request.CustomerRequest) {
	l.mu.Lock()
	l.requests = make(map[string]*request.CustomerRequest, len(reqs))
	for _, r := range reqs {
		l.requests[r.ID] = r.Clone()
	}
	l.mu.Unlock()
}
