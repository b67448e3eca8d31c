// Package request defines the core domain entities for customer VPS requests.
// This package is PURE and must NOT import any infrastructure packages (network, events, platform).
package request

import "fmt"

// State represents the lifecycle stage of a customer request.
type State string

const (
	StatePending  State = "PENDING"  // Created, waiting for a VM
	StateActive   State = "ACTIVE"   // Provisioned and paying rent
	StateExpired  State = "EXPIRED"  // Rental period ended, renewal declined
	StateArchived State = "ARCHIVED" // Removed from the game (terminal)
)

// Tier represents the customer category. Tiers are ordered: bigger
// customers demand more capacity and pay more per slot.
type Tier string

const (
	TierIndividual Tier = "INDIVIDUAL"
	TierStartup    Tier = "STARTUP"
	TierBusiness   Tier = "BUSINESS"
	TierEnterprise Tier = "ENTERPRISE"
)

// TierOrder lists tiers from smallest to largest customer.
var TierOrder = []Tier{TierIndividual, TierStartup, TierBusiness, TierEnterprise}

// VMSpec describes the compute capacity a request demands (or a VM provides).
type VMSpec struct {
	VCPUs  int `json:"vcpus"`
	RAMGB  int `json:"ram_gb"`
	DiskGB int `json:"disk_gb"`
}

// TierProfile provides the fixed per-tier tables: demanded capacity,
// payment multiplier and the weight used for random generation.
type TierProfile struct {
	Name       string
	Multiplier float64 // payment multiplier
	Specs      VMSpec  // capacity demanded by this tier
	Slots      int     // rack slots the VM occupies
	Weight     int     // draw weight for random generation
}

// TierRegistry contains all known customer tiers and their properties.
var TierRegistry = map[Tier]TierProfile{
	TierIndividual: {
		Name:       "Individual",
		Multiplier: 1.0,
		Specs:      VMSpec{VCPUs: 1, RAMGB: 1, DiskGB: 20},
		Slots:      1,
		Weight:     50,
	},
	TierStartup: {
		Name:       "Startup",
		Multiplier: 1.5,
		Specs:      VMSpec{VCPUs: 2, RAMGB: 4, DiskGB: 50},
		Slots:      1,
		Weight:     30,
	},
	TierBusiness: {
		Name:       "Business",
		Multiplier: 2.5,
		Specs:      VMSpec{VCPUs: 4, RAMGB: 8, DiskGB: 100},
		Slots:      2,
		Weight:     15,
	},
	TierEnterprise: {
		Name:       "Enterprise",
		Multiplier: 4.0,
		Specs:      VMSpec{VCPUs: 8, RAMGB: 32, DiskGB: 500},
		Slots:      3,
		Weight:     5,
	},
}

// Period represents the rental period category a customer signs up for.
type Period string

const (
	PeriodDaily   Period = "DAILY"
	PeriodWeekly  Period = "WEEKLY"
	PeriodMonthly Period = "MONTHLY"
	PeriodYearly  Period = "YEARLY"
)

// PeriodProfile combines a duration (in game days) with a price multiplier
// and the number of rent installments collected over the period.
type PeriodProfile struct {
	Name            string
	Days            int
	PriceMultiplier float64
	Installments    int // rent payments per period, >= 1
	Weight          int
}

// PeriodRegistry contains all known rental periods and their properties.
var PeriodRegistry = map[Period]PeriodProfile{
	PeriodDaily:   {Name: "Daily", Days: 1, PriceMultiplier: 1.5, Installments: 1, Weight: 20},
	PeriodWeekly:  {Name: "Weekly", Days: 7, PriceMultiplier: 1.2, Installments: 2, Weight: 40},
	PeriodMonthly: {Name: "Monthly", Days: 30, PriceMultiplier: 1.0, Installments: 4, Weight: 30},
	PeriodYearly:  {Name: "Yearly", Days: 365, PriceMultiplier: 0.8, Installments: 12, Weight: 10},
}

// Assignment binds a provisioned VM (a block of rack slots) to one request.
// A slot block maps to at most one request and vice versa.
type Assignment struct {
	RackID   string `json:"rack_id"`
	Slots    int    `json:"slots"`
	Provided VMSpec `json:"provided"`
}

// CustomerRequest represents one customer asking for (or holding) a VM.
// All timestamps are in accumulated game-time milliseconds.
type CustomerRequest struct {
	ID            string      `json:"id"`
	CustomerName  string      `json:"customer_name"`
	Tier          Tier        `json:"tier"`
	Period        Period      `json:"period"`
	Specs         VMSpec      `json:"specs"`
	PaymentAmount int64       `json:"payment_amount"`
	State         State       `json:"state"`
	CreatedAtMs   int64       `json:"created_at_ms"`
	ActivatedAtMs int64       `json:"activated_at_ms"`
	LastPaymentMs int64       `json:"last_payment_ms"`
	Assignment    *Assignment `json:"assignment,omitempty"`
}

// New creates a fresh request in Pending state.
func New(id, customerName string, tier Tier, period Period, payment int64, nowMs int64) *CustomerRequest {
	profile := TierRegistry[tier]
	return &CustomerRequest{
		ID:            id,
		CustomerName:  customerName,
		Tier:          tier,
		Period:        period,
		Specs:         profile.Specs,
		PaymentAmount: payment,
		State:         StatePending,
		CreatedAtMs:   nowMs,
	}
}

// SlotsRequired returns the rack slots this request's VM occupies.
func (r *CustomerRequest) SlotsRequired() int {
	return TierRegistry[r.Tier].Slots
}

// DurationMs converts the rental period to game milliseconds.
func (r *CustomerRequest) DurationMs(gameDayMs int64) int64 {
	return int64(PeriodRegistry[r.Period].Days) * gameDayMs
}

// InstallmentMs returns the interval between rent payments in game milliseconds.
func (r *CustomerRequest) InstallmentMs(gameDayMs int64) int64 {
	p := PeriodRegistry[r.Period]
	installments := p.Installments
	if installments < 1 {
		installments = 1
	}
	return r.DurationMs(gameDayMs) / int64(installments)
}

// validTransitions encodes the lifecycle state machine. Archived is terminal.
var validTransitions = map[State][]State{
	StatePending: {StateActive, StateArchived},
	StateActive:  {StateExpired, StateArchived},
	StateExpired: {StateActive, StateArchived},
}

// CanTransition reports whether moving to the target state is legal.
func (r *CustomerRequest) CanTransition(to State) bool {
	for _, s := range validTransitions[r.State] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the request to the target state, enforcing the
// state machine. Illegal transitions are programming errors.
func (r *CustomerRequest) TransitionTo(to State) error {
	if !r.CanTransition(to) {
		return fmt.Errorf("illegal request transition %s -> %s (request %s)", r.State, to, r.ID)
	}
	r.State = to
	return nil
}

// Clone returns a deep copy, used for copy-on-read iteration passes.
func (r *CustomerRequest) Clone() *CustomerRequest {
	cp := *r
	if r.Assignment != nil {
		a := *r.Assignment
		cp.Assignment = &a
	}
	return &cp
}
