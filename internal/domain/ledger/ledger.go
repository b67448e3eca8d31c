// Package ledger defines the shared economic state of the company:
// funds and reputation. This package is PURE and must NOT import any
// infrastructure packages.
package ledger

import "sync"

// Reputation bounds. Reputation is a star rating in [1.0, 5.0].
const (
	ReputationMin = 1.0
	ReputationMax = 5.0
)

// ReputationStepMax limits how far a single adjustment can move the
// rating, so no one event swings the company's standing.
const ReputationStepMax = 0.5

// Ledger holds the company funds and reputation. All mutations are
// serialized internally; callers from any goroutine are safe.
//
// Funds may go negative. The game has no bankruptcy rule: debts pile up
// and the player digs themselves out (or not).
type Ledger struct {
	mu         sync.RWMutex
	funds      int64
	reputation float64
}

// New creates a ledger with the given starting funds and reputation.
// Reputation is clamped to its valid range.
func New(startingFunds int64, startingReputation float64) *Ledger {
	return &Ledger{
		funds:      startingFunds,
		reputation: clampReputation(startingReputation),
	}
}

// Credit adds amount to funds.
func (l *Ledger) Credit(amount int64) {
	l.mu.Lock()
	l.funds += amount
	l.mu.Unlock()
}

// Debit subtracts amount from funds. Funds may go negative; there is no
// rejection path.
func (l *Ledger) Debit(amount int64) {
	l.mu.Lock()
	l.funds -= amount
	l.mu.Unlock()
}

// Funds returns the current balance.
func (l *Ledger) Funds() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.funds
}

// AdjustReputation applies delta, limited to one ReputationStepMax move
// in either direction, and clamps the result to [1.0, 5.0]. Returns the
// new reputation.
func (l *Ledger) AdjustReputation(delta float64) float64 {
	if delta > ReputationStepMax {
		delta = ReputationStepMax
	} else if delta < -ReputationStepMax {
		delta = -ReputationStepMax
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reputation = clampReputation(l.reputation + delta)
	return l.reputation
}

// Reputation returns the current star rating.
func (l *Ledger) Reputation() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reputation
}

// Restore overwrites both values, used when loading a saved game.
func (l *Ledger) Restore(funds int64, reputation float64) {
	l.mu.Lock()
	l.funds = funds
	l.reputation = clampReputation(reputation)
	l.mu.Unlock()
}

func clampReputation(v float64) float64 {
	if v < ReputationMin {
		return ReputationMin
	}
	if v > ReputationMax {
		return ReputationMax
	}
	return v
}
