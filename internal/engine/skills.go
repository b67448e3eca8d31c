package engine

import (
	"sync"
	"time"

	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/events"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/logger"
)

// SkillCategory identifies a branch of the company skill tree.
type SkillCategory string

const (
	SkillDeploy    SkillCategory = "DEPLOY"    // faster VM creation
	SkillSecurity  SkillCategory = "SECURITY"  // rent payment bonus
	SkillMarketing SkillCategory = "MARKETING" // more customer traffic
)

// PointsPerLevel is the cost of one skill level in every category.
const PointsPerLevel = 100

// SkillAwardPayload records a skill point grant.
type SkillAwardPayload struct {
	Category SkillCategory `json:"category"`
	Points   int           `json:"points"`
	NewLevel int           `json:"new_level"`
}

// SkillSystem owns the company skill points. Points are mutated only
// through Award; other components read derived levels.
type SkillSystem struct {
	mu       sync.RWMutex
	log      *logger.Logger
	eventLog *events.EventLog
	dayFn    func() int
	points   map[SkillCategory]int
}

// NewSkillSystem creates an empty skill tree.
func NewSkillSystem(eventLog *events.EventLog, log *logger.Logger, dayFn func() int) *SkillSystem {
	return &SkillSystem{
		log:      log,
		eventLog: eventLog,
		dayFn:    dayFn,
		points:   make(map[SkillCategory]int),
	}
}

// Award grants points to a category and returns the resulting level.
func (ss *SkillSystem) Award(category SkillCategory, points int) int {
	if points <= 0 {
		return ss.Level(category)
	}
	ss.mu.Lock()
	ss.points[category] += points
	level := ss.points[category] / PointsPerLevel
	ss.mu.Unlock()

	ss.log.Event("SKILL_AWARD", "PLAYER", string(category))
	ss.eventLog.Append(events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeSkillAwarded,
		ActorID:   "PLAYER",
		Payload:   SkillAwardPayload{Category: category, Points: points, NewLevel: level},
		GameDay:   ss.dayFn(),
	})
	return level
}

// Level returns the current level of a category.
func (ss *SkillSystem) Level(category SkillCategory) int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.points[category] / PointsPerLevel
}

// Points returns a copy of the raw point totals.
func (ss *SkillSystem) Points() map[SkillCategory]int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	out := make(map[SkillCategory]int, len(ss.points))
	for k, v := range ss.points {
		out[k] = v
	}
	return out
}

// SecurityBonusPct derives the rent bonus percentage from the security level.
func (ss *SkillSystem) SecurityBonusPct(step float64) float64 {
	return float64(ss.Level(SkillSecurity)) * step
}

// Restore overwrites the point totals, used when loading a saved game.
func (ss *SkillSystem) Restore(points map[SkillCategory]int) {
	ss.mu.Lock()
	ss.points = make(map[SkillCategory]int, len(points))
	for k, v := range points {
		ss.points[k] = v
	}
	ss.mu.Unlock()
}
