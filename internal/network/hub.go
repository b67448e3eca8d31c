package network

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/engine"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/events"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/logger"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/platform/metrics"
)

// Hub maintains the set of active dashboard clients and broadcasts game
// events and notifications to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex
	logger     *logger.Logger
	engine     *engine.Engine
}

// SetEngine attaches the simulation engine so clients can route player
// actions into it.
func (h *Hub) SetEngine(e *engine.Engine) {
	h.engine = e
}

// NewHub initializes a new WebSocket Hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     log,
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket Hub shutting down.")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.WSConnectionsGauge.Inc()
			h.logger.Info("New dashboard client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.WSConnectionsGauge.Dec()
				h.logger.Info("Dashboard client disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
					metrics.WSConnectionsGauge.Dec()
				}
			}
			h.mu.Unlock()
		}
	}
}

// envelope is the wire format pushed to dashboard clients.
type envelope struct {
	Kind    string      `json:"kind"` // "event" | "notification"
	Payload interface{} `json:"payload"`
}

// notification is the player-facing message body.
type notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// BroadcastEvent serializes a GameEvent and sends it to all clients.
func (h *Hub) BroadcastEvent(event events.GameEvent) {
	payload, err := json.Marshal(envelope{Kind: "event", Payload: event})
	if err != nil {
		h.logger.Errorf("Failed to serialize GameEvent for broadcast: %v", err)
		return
	}
	h.send(payload)
}

// Notify implements the engine's fire-and-forget notification sink.
// It never blocks the caller: a saturated broadcast queue drops the
// message rather than stall a simulation loop.
func (h *Hub) Notify(title, message string) {
	payload, err := json.Marshal(envelope{Kind: "notification", Payload: notification{Title: title, Message: message}})
	if err != nil {
		h.logger.Errorf("Failed to serialize notification: %v", err)
		return
	}
	h.send(payload)
}

func (h *Hub) send(payload []byte) {
	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("Broadcast queue full, dropping message")
	}
}

// StartEventPoller spawns a goroutine that polls the EventLog and pushes
// new events to the Hub. The Hub runs independently from the engine's
// loops while picking up the same events.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.EventLog) {
	go func() {
		pollInterval := time.NewTicker(200 * time.Millisecond)
		defer pollInterval.Stop()

		lastProcessedEvent := 0

		for {
			select {
			case <-ctx.Done():
				return
			case <-pollInterval.C:
				allEvents := eventLog.Replay()
				if len(allEvents) > lastProcessedEvent {
					for _, event := range allEvents[lastProcessedEvent:] {
						h.BroadcastEvent(event)
					}
					lastProcessedEvent = len(allEvents)
				}
			}
		}
	}()
}
