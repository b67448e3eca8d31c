// Package main is the entry point for the VPS tycoon simulation server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/engine"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/events"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/infra/cache"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/infra/storage"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/network"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/config"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/logger"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/metrics"
)

// defaultSaveID is the single save slot the server plays in.
const defaultSaveID = "default"

// repoPersisterAdapter translates domain events to storage events.
type repoPersisterAdapter struct {
	repo storage.EventRepository
}

func (a *repoPersisterAdapter) Append(event events.GameEvent) error {
	payloadBytes, _ := json.Marshal(event.Payload)
	var payloadMap map[string]interface{}
	json.Unmarshal(payloadBytes, &payloadMap)

	storageEvent := storage.GameEvent{
		ID:        event.ID,
		Timestamp: event.Timestamp,
		EventType: string(event.Type),
		ActorID:   event.ActorID,
		TargetID:  event.TargetID,
		Payload:   payloadMap,
		GameDay:   event.GameDay,
	}
	if err := a.repo.Append(context.Background(), storageEvent); err != nil {
		metrics.EventWriteErrors.Inc()
		return err
	}
	return nil
}

// openRepositories selects the persistence backend from config.
func openRepositories(cfg *config.Config, appLogger *logger.Logger) (storage.EventRepository, storage.SnapshotRepository, error) {
	if cfg.DBDriver == "mysql" {
		appLogger.Infof("Connecting to MySQL...")
		db, err := storage.InitMySQL(cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewMySQLEventRepository(db), storage.NewMySQLSnapshotRepository(db), nil
	}

	appLogger.Infof("Initializing SQLite database %q...", cfg.DBPath)
	db, err := storage.InitSQLite(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return storage.NewSQLiteEventRepository(db), storage.NewSQLiteSnapshotRepository(db), nil
}

// restoreCompany loads the save slot, if any, into the engine. Without a
// usable snapshot it falls back to replaying the event history, so a lost
// or corrupt save still recovers the company financials.
func restoreCompany(ctx context.Context, snapRepo storage.SnapshotRepository, eventRepo storage.EventRepository, eng *engine.Engine, appLogger *logger.Logger) {
	saved, err := snapRepo.Get(ctx, defaultSaveID)
	if err != nil {
		appLogger.Error("Failed to query save slot: " + err.Error())
		return
	}
	if saved == nil {
		appLogger.Info("No save found. Rebuilding from event history...")
		rebuildCompany(ctx, eventRepo, eng, appLogger)
		return
	}

	var snap engine.Snapshot
	if err := json.Unmarshal(saved.StateJSON, &snap); err != nil {
		appLogger.Error("Save slot is corrupt, rebuilding from event history: " + err.Error())
		rebuildCompany(ctx, eventRepo, eng, appLogger)
		return
	}
	if err := eng.Restore(snap); err != nil {
		appLogger.Error("Failed to restore company state: " + err.Error())
		return
	}
	appLogger.Infof("Restored company from save (day %d, funds %d)", saved.GameDay, saved.Funds)
}

// rebuildCompany replays the persisted event log over the engine's
// starting financials. Requests and rack bindings are not recoverable
// from financial events; the ledger is.
func rebuildCompany(ctx context.Context, eventRepo storage.EventRepository, eng *engine.Engine, appLogger *logger.Logger) {
	recon := storage.NewReconstructor(eventRepo)
	state, err := recon.RebuildCompanyState(ctx, storage.RebuiltState{
		Funds:      eng.Ledger().Funds(),
		Reputation: eng.Ledger().Reputation(),
	})
	if err != nil {
		appLogger.Error("Event replay failed, starting fresh: " + err.Error())
		return
	}
	if state.EventsReplayed == 0 {
		appLogger.Info("No event history. Starting a fresh company.")
		return
	}

	eng.Ledger().Restore(state.Funds, state.Reputation)
	appLogger.Infof("Rebuilt ledger from %d events (funds %d, reputation %.2f)",
		state.EventsReplayed, state.Funds, state.Reputation)
}

// saveCompany serializes the engine state into the save slot.
func saveCompany(ctx context.Context, snapRepo storage.SnapshotRepository, eng *engine.Engine) error {
	snap := eng.Snapshot()
	stateJSON, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return snapRepo.Upsert(ctx, storage.CompanySnapshot{
		SaveID:     defaultSaveID,
		SavedAt:    snap.SavedAt,
		GameDay:    eng.Clock().Day(),
		Funds:      snap.Funds,
		Reputation: snap.Reputation,
		StateJSON:  stateJSON,
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewLogger().Error("Invalid configuration: " + err.Error())
		os.Exit(1)
	}

	appLogger := logger.NewLoggerWithLevel(cfg.LogLevel)
	appLogger.Info("Initializing VPS tycoon authoritative server...")

	eventRepo, snapRepo, err := openRepositories(cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize storage: " + err.Error())
		os.Exit(1)
	}

	appLogger.Info("Bootstrapping EventLog...")
	eventLog := events.NewEventLog(&repoPersisterAdapter{repo: eventRepo})

	appLogger.Info("Bootstrapping Engine Subsystems...")
	gameEngine := engine.NewEngine(cfg, eventLog, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	restoreCompany(ctx, snapRepo, eventRepo, gameEngine, appLogger)

	// Optional Redis read cache for dashboard status polling.
	var statusCache *cache.StatusCache
	if cfg.RedisAddr != "" {
		redisClient, err := cache.NewGoRedisClient(cfg.RedisAddr)
		if err != nil {
			appLogger.Warn("Redis unavailable, status cache disabled: " + err.Error())
		} else {
			statusCache = cache.NewStatusCache(redisClient)
			appLogger.Infof("Status cache connected at %s", cfg.RedisAddr)
		}
	}

	appLogger.Info("Bootstrapping WebSocket Hub...")
	hub := network.NewHub(appLogger)
	hub.SetEngine(gameEngine)
	gameEngine.SetNotifier(hub)
	go hub.Run(ctx)
	hub.StartEventPoller(ctx, eventLog)

	gameEngine.Start()

	// Automated State Backup Routine
	go func() {
		backupTicker := time.NewTicker(cfg.SaveInterval)
		defer backupTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-backupTicker.C:
				if err := saveCompany(ctx, snapRepo, gameEngine); err != nil {
					appLogger.Error("Periodic save failed: " + err.Error())
					continue
				}
				if statusCache != nil {
					status := cache.CompanyStatus{
						SaveID:     defaultSaveID,
						GameDay:    gameEngine.Clock().Day(),
						Funds:      gameEngine.Ledger().Funds(),
						Reputation: gameEngine.Ledger().Reputation(),
						ActiveVMs:  len(gameEngine.ActiveAssignments()),
						Pending:    gameEngine.PendingRequestCount(),
						LastSync:   time.Now().Unix(),
					}
					if err := statusCache.SetCompanyStatus(ctx, status); err != nil {
						appLogger.Warn("Status cache write failed: " + err.Error())
					}
					rackStates := make(map[string]cache.RackStatus)
					for _, rk := range gameEngine.Racks() {
						maxSlots, unlocked, occupied := rk.Counters()
						rackStates[rk.ID()] = cache.RackStatus{
							RackID:   rk.ID(),
							Max:      maxSlots,
							Unlocked: unlocked,
							Occupied: occupied,
						}
					}
					if err := statusCache.SetRackStates(ctx, defaultSaveID, rackStates); err != nil {
						appLogger.Warn("Rack cache write failed: " + err.Error())
					}
				}
			}
		}
	}()

	// Setup API Routes
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, cfg.ClientSendBuffer, w, r, appLogger)
	})

	controlBridge := network.NewControlBridge(gameEngine, eventLog, hub, appLogger)
	if statusCache != nil {
		controlBridge.SetStatusCache(statusCache, defaultSaveID)
	}
	controlBridge.RegisterRoutes(mux)

	replayHandler := network.NewReplayHandler(eventLog, eventRepo, appLogger)
	replayHandler.RegisterRoutes(mux)

	metrics.Register(mux)

	server := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: mux,
	}

	go func() {
		appLogger.Infof("HTTP API & WS server listening on %s", cfg.HTTPAddr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed: " + err.Error())
			os.Exit(1)
		}
	}()

	appLogger.Info("Server running. Press Ctrl+C to exit.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	gameEngine.Stop()
	eventLog.Close()

	if err := saveCompany(context.Background(), snapRepo, gameEngine); err != nil {
		appLogger.Error("Final save failed: " + err.Error())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP shutdown failed: " + err.Error())
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow cross-origin requests for the dashboard dev server
	},
}

// serveWs handles websocket requests from the peer.
func serveWs(hub *network.Hub, sendBuffer int, w http.ResponseWriter, r *http.Request, log *logger.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade websocket connection")
		return
	}

	client := network.NewClient(hub, conn, sendBuffer)
	client.Register()

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.WritePump()
	go client.ReadPump()
}
