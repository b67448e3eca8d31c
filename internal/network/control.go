// Package network - control.go
// ControlBridge - REST API for running the datacenter without a socket.
//
// The dashboard drives most actions over the websocket, but operators
// and scripts (the load generator included) use these plain HTTP
// endpoints to provision VMs, upgrade racks, and steer the generator.
package network

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/request"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/engine"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/events"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/infra/cache"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/logger"
)

// ControlBridge handles operator REST interactions.
type ControlBridge struct {
	engine      *engine.Engine
	eventLog    *events.EventLog
	wsHub       *Hub
	logger      *logger.Logger
	statusCache *cache.StatusCache
	saveID      string
}

// NewControlBridge creates a new operator control handler.
func NewControlBridge(eng *engine.Engine, el *events.EventLog, hub *Hub, log *logger.Logger) *ControlBridge {
	return &ControlBridge{
		engine:   eng,
		eventLog: el,
		wsHub:    hub,
		logger:   log,
	}
}

// SetStatusCache attaches the Redis status cache. When set, status reads
// are served from the cache and state-changing actions invalidate it.
func (cb *ControlBridge) SetStatusCache(sc *cache.StatusCache, saveID string) {
	cb.statusCache = sc
	cb.saveID = saveID
}

// invalidateStatusCache drops the cached status after a mutation so the
// next dashboard poll sees current state.
func (cb *ControlBridge) invalidateStatusCache(r *http.Request) {
	if cb.statusCache == nil {
		return
	}
	if err := cb.statusCache.Invalidate(r.Context(), cb.saveID); err != nil {
		cb.logger.Warn("Status cache invalidation failed: " + err.Error())
	}
}

// ProvisionRequest is the payload for assigning a VM to a customer request.
type ProvisionRequest struct {
	RequestID string `json:"request_id"`
	RackID    string `json:"rack_id"`
	VCPUs     int    `json:"vcpus"`
	RAMGB     int    `json:"ram_gb"`
	DiskGB    int    `json:"disk_gb"`
}

// ArchiveRequestBody is the payload for dismissing a request.
type ArchiveRequestBody struct {
	RequestID string `json:"request_id"`
}

// UpgradeRackBody is the payload for unlocking rack slots.
type UpgradeRackBody struct {
	RackID string `json:"rack_id"`
}

// SkillAwardBody is the payload for granting skill points.
type SkillAwardBody struct {
	Category string `json:"category"`
	Points   int    `json:"points"`
}

// GeneratorBody steers the customer request generator.
type GeneratorBody struct {
	Action     string `json:"action"` // "pause", "resume", "generate_now"
	MaxPending int    `json:"max_pending,omitempty"`
}

// HandleProvision assigns a request to a rack and starts deployment.
// POST /api/control/provision
func (cb *ControlBridge) HandleProvision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		cb.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cb.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.RequestID == "" || req.RackID == "" {
		cb.jsonError(w, "Missing request_id or rack_id", http.StatusBadRequest)
		return
	}

	var provided *request.VMSpec
	if req.VCPUs > 0 || req.RAMGB > 0 || req.DiskGB > 0 {
		provided = &request.VMSpec{VCPUs: req.VCPUs, RAMGB: req.RAMGB, DiskGB: req.DiskGB}
	}

	if err := cb.engine.ProvisionRequest(req.RequestID, req.RackID, provided); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrInsufficientCapacity) {
			status = http.StatusConflict
		} else if errors.Is(err, engine.ErrAlreadyProvisioning) {
			status = http.StatusConflict
		}
		cb.jsonError(w, err.Error(), status)
		return
	}

	cb.logger.Event("CONTROL_PROVISION", req.RequestID, "Rack:"+req.RackID)
	cb.invalidateStatusCache(r)
	cb.jsonSuccess(w, map[string]interface{}{
		"success":    true,
		"request_id": req.RequestID,
		"rack_id":    req.RackID,
	})
}

// HandleArchive dismisses a pending or expired request.
// POST /api/control/archive
func (cb *ControlBridge) HandleArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		cb.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ArchiveRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cb.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.RequestID == "" {
		cb.jsonError(w, "Missing request_id", http.StatusBadRequest)
		return
	}

	if err := cb.engine.ArchiveRequest(req.RequestID); err != nil {
		cb.jsonError(w, err.Error(), http.StatusConflict)
		return
	}

	cb.invalidateStatusCache(r)
	cb.jsonSuccess(w, map[string]interface{}{
		"success":    true,
		"request_id": req.RequestID,
		"archived":   true,
	})
}

// HandleUpgradeRack unlocks additional slots on a rack.
// POST /api/control/upgrade-rack
func (cb *ControlBridge) HandleUpgradeRack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		cb.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req UpgradeRackBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cb.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.RackID == "" {
		cb.jsonError(w, "Missing rack_id", http.StatusBadRequest)
		return
	}

	upgraded, err := cb.engine.UpgradeRack(req.RackID)
	if err != nil {
		cb.jsonError(w, err.Error(), http.StatusNotFound)
		return
	}

	if upgraded {
		cb.invalidateStatusCache(r)
	}
	cb.jsonSuccess(w, map[string]interface{}{
		"success":  true,
		"rack_id":  req.RackID,
		"upgraded": upgraded,
	})
}

// HandleSkillAward grants skill points to a category.
// POST /api/control/skill
func (cb *ControlBridge) HandleSkillAward(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		cb.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SkillAwardBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cb.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Category == "" || req.Points <= 0 {
		cb.jsonError(w, "Missing category or non-positive points", http.StatusBadRequest)
		return
	}

	level := cb.engine.Skills().Award(engine.SkillCategory(req.Category), req.Points)
	cb.jsonSuccess(w, map[string]interface{}{
		"success":  true,
		"category": req.Category,
		"level":    level,
	})
}

// HandleGenerator pauses, resumes, or pokes the request generator.
// POST /api/control/generator
func (cb *ControlBridge) HandleGenerator(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		cb.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req GeneratorBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cb.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	gen := cb.engine.Generator()
	switch req.Action {
	case "pause":
		gen.Pause()
	case "resume":
		gen.Resume()
	case "generate_now":
		gen.GenerateNow()
	case "set_max_pending":
		if req.MaxPending <= 0 {
			cb.jsonError(w, "max_pending must be positive", http.StatusBadRequest)
			return
		}
		gen.SetMaxPendingRequests(req.MaxPending)
	default:
		cb.jsonError(w, "Unknown action: "+req.Action, http.StatusBadRequest)
		return
	}

	cb.jsonSuccess(w, map[string]interface{}{
		"success": true,
		"action":  req.Action,
	})
}

// HandleStatus returns the current company state for dashboards.
// Served from the Redis cache when one is attached and warm; a miss
// falls through to the live engine.
// GET /api/control/status
func (cb *ControlBridge) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		cb.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if cb.statusCache != nil {
		if cb.serveCachedStatus(w, r) {
			return
		}
	}

	racks := make([]map[string]interface{}, 0)
	for _, rk := range cb.engine.Racks() {
		max, unlocked, occupied := rk.Counters()
		racks = append(racks, map[string]interface{}{
			"id":       rk.ID(),
			"max":      max,
			"unlocked": unlocked,
			"occupied": occupied,
		})
	}

	requests := make([]map[string]interface{}, 0)
	for _, cr := range cb.engine.Lifecycle().List() {
		requests = append(requests, map[string]interface{}{
			"id":       cr.ID,
			"customer": cr.CustomerName,
			"tier":     string(cr.Tier),
			"period":   string(cr.Period),
			"state":    string(cr.State),
		})
	}

	cb.jsonSuccess(w, map[string]interface{}{
		"source":     "live",
		"game_day":   cb.engine.Clock().Day(),
		"game_date":  cb.engine.CurrentDate().Format("2006-01-02"),
		"funds":      cb.engine.Ledger().Funds(),
		"reputation": cb.engine.Ledger().Reputation(),
		"racks":      racks,
		"requests":   requests,
		"timestamp":  time.Now().Unix(),
	})
}

// serveCachedStatus answers a status poll from the Redis cache. Returns
// false on a miss or error so the caller falls back to the live engine.
func (cb *ControlBridge) serveCachedStatus(w http.ResponseWriter, r *http.Request) bool {
	status, err := cb.statusCache.GetCompanyStatus(r.Context(), cb.saveID)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			cb.logger.Warn("Status cache read failed: " + err.Error())
		}
		return false
	}

	racks := make([]map[string]interface{}, 0)
	if cached, err := cb.statusCache.GetRackStates(r.Context(), cb.saveID); err == nil {
		for _, rk := range cached {
			racks = append(racks, map[string]interface{}{
				"id":       rk.RackID,
				"max":      rk.Max,
				"unlocked": rk.Unlocked,
				"occupied": rk.Occupied,
			})
		}
	}

	cb.jsonSuccess(w, map[string]interface{}{
		"source":     "cache",
		"game_day":   status.GameDay,
		"funds":      status.Funds,
		"reputation": status.Reputation,
		"active_vms": status.ActiveVMs,
		"pending":    status.Pending,
		"racks":      racks,
		"timestamp":  status.LastSync,
	})
	return true
}

// RegisterRoutes sets up the control API routes.
func (cb *ControlBridge) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/control/provision", cb.HandleProvision)
	mux.HandleFunc("/api/control/archive", cb.HandleArchive)
	mux.HandleFunc("/api/control/upgrade-rack", cb.HandleUpgradeRack)
	mux.HandleFunc("/api/control/skill", cb.HandleSkillAward)
	mux.HandleFunc("/api/control/generator", cb.HandleGenerator)
	mux.HandleFunc("/api/control/status", cb.HandleStatus)
}

// jsonError sends an error response.
func (cb *ControlBridge) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// jsonSuccess sends a success response.
func (cb *ControlBridge) jsonSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}
