// Package rack defines the capacity pool: physical racks whose slots back
// provisioned VMs. This package is PURE and must NOT import any
// infrastructure packages.
package rack

import (
	"fmt"
	"sync"
)

// Rack tracks allocatable slot capacity. Invariant, held across all
// concurrent calls:
//
//	0 <= occupiedSlots <= unlockedSlots <= maxSlots
//
// Multiple racks exist; each is an independent Rack with its own counters.
// Selecting the "current" rack is the caller's concern.
type Rack struct {
	mu            sync.Mutex
	id            string
	maxSlots      int
	unlockedSlots int
	occupiedSlots int
	upgradeStep   int // slots gained per upgrade
}

// New creates a rack. unlockedSlots is capped at maxSlots.
func New(id string, maxSlots, unlockedSlots int) *Rack {
	if unlockedSlots > maxSlots {
		unlockedSlots = maxSlots
	}
	if unlockedSlots < 0 {
		unlockedSlots = 0
	}
	return &Rack{
		id:            id,
		maxSlots:      maxSlots,
		unlockedSlots: unlockedSlots,
		upgradeStep:   1,
	}
}

// ID returns the rack identifier.
func (r *Rack) ID() string {
	return r.id
}

// TryInstall atomically reserves slotsRequired if they fit under the
// unlocked limit. Returns false (and changes nothing) when capacity is
// insufficient. This is the only admission path for new VMs.
func (r *Rack) TryInstall(slotsRequired int) bool {
	if slotsRequired <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.occupiedSlots+slotsRequired > r.unlockedSlots {
		return false
	}
	r.occupiedSlots += slotsRequired
	return true
}

// Uninstall releases previously reserved slots. Releasing more than is
// occupied is a programming error: reservations are never shared.
func (r *Rack) Uninstall(slots int) {
	if slots <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slots > r.occupiedSlots {
		panic(fmt.Sprintf("rack %s: uninstall of %d slots with only %d occupied", r.id, slots, r.occupiedSlots))
	}
	r.occupiedSlots -= slots
}

// Upgrade unlocks one more slot step, bounded by maxSlots. Returns false
// when the rack is already fully unlocked.
func (r *Rack) Upgrade() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unlockedSlots >= r.maxSlots {
		return false
	}
	r.unlockedSlots += r.upgradeStep
	if r.unlockedSlots > r.maxSlots {
		r.unlockedSlots = r.maxSlots
	}
	return true
}

// AvailableSlots returns unlocked minus occupied.
func (r *Rack) AvailableSlots() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unlockedSlots - r.occupiedSlots
}

// Counters returns a consistent snapshot of (max, unlocked, occupied).
func (r *Rack) Counters() (maxSlots, unlockedSlots, occupiedSlots int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxSlots, r.unlockedSlots, r.occupiedSlots
}

// Restore overwrites the counters, used when loading a saved game.
// The invariant is re-imposed rather than trusted.
func (r *Rack) Restore(maxSlots, unlockedSlots, occupiedSlots int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if maxSlots < 0 {
		maxSlots = 0
	}
	if unlockedSlots > maxSlots {
		unlockedSlots = maxSlots
	}
	if unlockedSlots < 0 {
		unlockedSlots = 0
	}
	if occupiedSlots > unlockedSlots {
		occupiedSlots = unlockedSlots
	}
	if occupiedSlots < 0 {
		occupiedSlots = 0
	}
	r.maxSlots = maxSlots
	r.unlockedSlots = unlockedSlots
	r.occupiedSlots = occupiedSlots
}
