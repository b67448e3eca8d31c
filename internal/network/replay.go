// Package network - replay.go
// History endpoint - JSON export of the company's economic history.
//
// The dashboard uses this to render the ledger timeline: who signed up,
// which VMs went online, what rent was collected, and what it all cost.
package network

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/events"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/infra/storage"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/logger"
)

// ReplayHandler provides the history replay API. With a persisted store
// attached, filtered queries and the recap cover the full history across
// restarts; without one they fall back to the in-memory log.
type ReplayHandler struct {
	eventLog *events.EventLog
	store    storage.EventRepository
	recon    *storage.Reconstructor
	logger   *logger.Logger
}

// NewReplayHandler creates a new history handler. store may be nil; the
// recap endpoint then reports the history store as unavailable.
func NewReplayHandler(el *events.EventLog, store storage.EventRepository, log *logger.Logger) *ReplayHandler {
	rh := &ReplayHandler{
		eventLog: el,
		store:    store,
		logger:   log,
	}
	if store != nil {
		rh.recon = storage.NewReconstructor(store)
	}
	return rh
}

// ReplayEvent is a sanitized event for public viewing.
type ReplayEvent struct {
	ID        string                 `json:"id"`
	Timestamp string                 `json:"timestamp"`
	GameDay   int                    `json:"game_day"`
	Type      string                 `json:"type"`
	ActorID   string                 `json:"actor_id"`
	TargetID  string                 `json:"target_id,omitempty"`
	Summary   string                 `json:"summary"`
	Impact    string                 `json:"impact"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ReplayResponse is the API response for the history endpoint.
type ReplayResponse struct {
	TotalEvents int           `json:"total_events"`
	FilteredBy  string        `json:"filtered_by,omitempty"`
	GeneratedAt string        `json:"generated_at"`
	Events      []ReplayEvent `json:"events"`
}

// HandleReplay returns the event history.
// GET /api/history?day=N&type=PAYMENT_PROCESSED&actor=PLAYER
func (rh *ReplayHandler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dayStr := r.URL.Query().Get("day")
	eventType := r.URL.Query().Get("type")
	actorID := r.URL.Query().Get("actor")

	var replayEvents []ReplayEvent
	filterDesc := ""

	if rh.store != nil && (dayStr != "" || eventType != "" || actorID != "") {
		stored, desc, err := rh.queryStore(r, dayStr, eventType, actorID)
		if err != nil {
			rh.logger.Error("History query failed: " + err.Error())
			rh.jsonError(w, "History query failed", http.StatusInternalServerError)
			return
		}
		filterDesc = desc
		for _, e := range stored {
			if eventType != "" && e.EventType != eventType {
				continue
			}
			if actorID != "" && e.ActorID != actorID {
				continue
			}
			replayEvents = append(replayEvents, rh.convertStoredEvent(e))
		}
	} else {
		for _, e := range rh.eventLog.Replay() {
			if dayStr != "" {
				day, _ := strconv.Atoi(dayStr)
				if e.GameDay != day {
					continue
				}
				filterDesc = "Day " + dayStr
			}
			if eventType != "" && string(e.Type) != eventType {
				continue
			}
			if actorID != "" && e.ActorID != actorID {
				continue
			}
			replayEvents = append(replayEvents, rh.convertToReplayEvent(e))
		}
	}

	response := ReplayResponse{
		TotalEvents: len(replayEvents),
		FilteredBy:  filterDesc,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      replayEvents,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// queryStore picks the narrowest store index for the given filters; the
// caller applies the remaining ones in memory.
func (rh *ReplayHandler) queryStore(r *http.Request, dayStr, eventType, actorID string) ([]storage.GameEvent, string, error) {
	ctx := r.Context()
	if dayStr != "" {
		day, err := strconv.Atoi(dayStr)
		if err != nil {
			return nil, "", err
		}
		stored, err := rh.store.GetByGameDay(ctx, day)
		return stored, "Day " + dayStr, err
	}
	if eventType != "" {
		stored, err := rh.store.GetByEventType(ctx, eventType)
		return stored, "Type " + eventType, err
	}
	stored, err := rh.store.GetByActorID(ctx, actorID)
	return stored, "Actor " + actorID, err
}

// HandleEventDetail returns one event including its full payload.
// GET /api/history/event?event_id=XXX
func (rh *ReplayHandler) HandleEventDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		rh.jsonError(w, "Missing event_id", http.StatusBadRequest)
		return
	}

	for _, e := range rh.eventLog.Replay() {
		if e.ID == eventID {
			detail := rh.convertToReplayEvent(e)
			raw, err := json.Marshal(e.Payload)
			if err == nil {
				var payload map[string]interface{}
				if json.Unmarshal(raw, &payload) == nil {
					detail.Details = payload
				}
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(detail)
			return
		}
	}

	rh.jsonError(w, "Event not found", http.StatusNotFound)
}

// HandleStats returns aggregate statistics over the history.
// GET /api/history/stats
func (rh *ReplayHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	allEvents := rh.eventLog.Replay()

	stats := map[string]int{
		"total_events":       len(allEvents),
		"requests_created":   0,
		"vms_activated":      0,
		"payments":           0,
		"renewals":           0,
		"expirations":        0,
		"provision_failures": 0,
	}

	for _, e := range allEvents {
		switch e.Type {
		case events.EventTypeRequestCreated:
			stats["requests_created"]++
		case events.EventTypeRequestActivated:
			stats["vms_activated"]++
		case events.EventTypePaymentProcessed:
			stats["payments"]++
		case events.EventTypeRequestRenewed:
			stats["renewals"]++
		case events.EventTypeRequestExpired:
			stats["expirations"]++
		case events.EventTypeProvisionFailed:
			stats["provision_failures"]++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"generated_at": time.Now().Format(time.RFC3339),
		"stats":        stats,
	})
}

// HandleRecap returns the "what happened while you were away" digest,
// built from the persisted event store.
// GET /api/history/recap?since_day=N
func (rh *ReplayHandler) HandleRecap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if rh.recon == nil {
		rh.jsonError(w, "History store unavailable", http.StatusServiceUnavailable)
		return
	}

	sinceDay := 0
	if s := r.URL.Query().Get("since_day"); s != "" {
		d, err := strconv.Atoi(s)
		if err != nil || d < 0 {
			rh.jsonError(w, "Invalid since_day", http.StatusBadRequest)
			return
		}
		sinceDay = d
	}

	recap, err := rh.recon.GenerateRecap(r.Context(), sinceDay)
	if err != nil {
		rh.logger.Error("Recap generation failed: " + err.Error())
		rh.jsonError(w, "Failed to generate recap", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"since_day":    sinceDay,
		"generated_at": time.Now().Format(time.RFC3339),
		"events":       recap,
	})
}

// RegisterRoutes sets up the history API routes.
func (rh *ReplayHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/history", rh.HandleReplay)
	mux.HandleFunc("/api/history/event", rh.HandleEventDetail)
	mux.HandleFunc("/api/history/stats", rh.HandleStats)
	mux.HandleFunc("/api/history/recap", rh.HandleRecap)
}

// convertToReplayEvent transforms an internal event to the public format.
func (rh *ReplayHandler) convertToReplayEvent(e events.GameEvent) ReplayEvent {
	return ReplayEvent{
		ID:        e.ID,
		Timestamp: e.Timestamp.Format(time.RFC3339),
		GameDay:   e.GameDay,
		Type:      string(e.Type),
		ActorID:   e.ActorID,
		TargetID:  e.TargetID,
		Summary:   rh.summarizeEvent(e),
		Impact:    rh.determineImpact(e),
	}
}

// convertStoredEvent transforms a persisted event to the public format.
func (rh *ReplayHandler) convertStoredEvent(e storage.GameEvent) ReplayEvent {
	ge := events.GameEvent{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Type:      events.EventType(e.EventType),
		ActorID:   e.ActorID,
		TargetID:  e.TargetID,
		GameDay:   e.GameDay,
	}
	return rh.convertToReplayEvent(ge)
}

// summarizeEvent creates a human-readable summary.
func (rh *ReplayHandler) summarizeEvent(e events.GameEvent) string {
	switch e.Type {
	case events.EventTypeRequestCreated:
		return "A new customer asked for a VM."
	case events.EventTypeRequestActivated:
		return "A VM went online and started earning rent."
	case events.EventTypeRequestRenewed:
		return "A customer renewed their rental."
	case events.EventTypeRequestExpired:
		return "A rental ended without renewal; the VM was freed."
	case events.EventTypeRequestArchived:
		return "A request was archived."
	case events.EventTypeProvisionFailed:
		return "Provisioning failed: not enough rack capacity."
	case events.EventTypePaymentProcessed:
		return "Rent was collected."
	case events.EventTypeOverheadCharged:
		return "Monthly operating costs were deducted."
	case events.EventTypeRackUpgraded:
		return "A rack was upgraded with more slots."
	case events.EventTypeSkillAwarded:
		return "Skill points were awarded."
	case events.EventTypeReputationChange:
		return "The company rating changed."
	case events.EventTypeTimeTick:
		return "Time moved on."
	default:
		return "Something happened..."
	}
}

// determineImpact classifies the event impact for the dashboard.
func (rh *ReplayHandler) determineImpact(e events.GameEvent) string {
	switch e.Type {
	case events.EventTypeRequestActivated, events.EventTypePaymentProcessed,
		events.EventTypeRequestRenewed, events.EventTypeRackUpgraded:
		return "POSITIVE"
	case events.EventTypeRequestExpired, events.EventTypeProvisionFailed,
		events.EventTypeOverheadCharged:
		return "NEGATIVE"
	default:
		return "NEUTRAL"
	}
}

// jsonError sends an error response.
func (rh *ReplayHandler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
