package network

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/domain/request"
	"github.com/pscp-lovechotipat/VpsTycoon-sub000/internal/engine"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// PlayerAction represents an incoming command from the frontend.
type PlayerAction struct {
	Type    string          `json:"type"` // "PROVISION", "ARCHIVE", "UPGRADE_RACK", ...
	Payload json.RawMessage `json:"payload"`
}

// Client holds one dashboard connection.
type Client struct {
	hub            *Hub
	conn           *websocket.Conn
	send           chan []byte
	lastActionTime time.Time
}

// Register adds the client to the hub.
func (c *Client) Register() {
	c.hub.register <- c
}

// ReadPump pumps messages from the websocket connection into the engine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Errorf("websocket read: %v", err)
			}
			break
		}

		var action PlayerAction
		if err := json.Unmarshal(message, &action); err != nil {
			c.hub.logger.Error("Failed to parse PlayerAction from WebSocket: " + err.Error())
			continue
		}

		c.handlePlayerAction(action)
	}
}

func (c *Client) handlePlayerAction(action PlayerAction) {
	// Basic per-connection rate limit.
	if time.Since(c.lastActionTime) < 100*time.Millisecond {
		c.hub.logger.Warn("Rate limit exceeded for client action " + action.Type)
		return
	}
	c.lastActionTime = time.Now()

	eng := c.hub.engine
	if eng == nil {
		c.hub.logger.Error("PlayerAction received before engine was attached")
		return
	}

	switch action.Type {
	case "PROVISION":
		c.handleProvision(eng, action.Payload)
	case "ARCHIVE":
		c.handleArchive(eng, action.Payload)
	case "UPGRADE_RACK":
		c.handleUpgradeRack(eng, action.Payload)
	case "PAUSE_GENERATOR":
		eng.Generator().Pause()
	case "RESUME_GENERATOR":
		eng.Generator().Resume()
	case "GENERATE_NOW":
		eng.Generator().GenerateNow()
	case "AWARD_SKILL":
		c.handleAwardSkill(eng, action.Payload)
	default:
		c.hub.logger.Warn("Unknown PlayerAction type: " + action.Type)
	}
}

func (c *Client) handleProvision(eng *engine.Engine, rawPayload []byte) {
	var parsed struct {
		RequestID string          `json:"request_id"`
		RackID    string          `json:"rack_id"`
		Provided  *request.VMSpec `json:"provided,omitempty"`
	}
	if err := json.Unmarshal(rawPayload, &parsed); err != nil {
		c.hub.logger.Warn("Failed to parse provision payload: " + err.Error())
		return
	}
	if err := eng.ProvisionRequest(parsed.RequestID, parsed.RackID, parsed.Provided); err != nil {
		c.hub.logger.Event("PROVISION_REJECTED", parsed.RequestID, err.Error())
	}
}

func (c *Client) handleArchive(eng *engine.Engine, rawPayload []byte) {
	var parsed struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(rawPayload, &parsed); err != nil {
		c.hub.logger.Warn("Failed to parse archive payload: " + err.Error())
		return
	}
	if err := eng.ArchiveRequest(parsed.RequestID); err != nil {
		c.hub.logger.Warn("Archive failed: " + err.Error())
	}
}

func (c *Client) handleUpgradeRack(eng *engine.Engine, rawPayload []byte) {
	var parsed struct {
		RackID string `json:"rack_id"`
	}
	if err := json.Unmarshal(rawPayload, &parsed); err != nil {
		c.hub.logger.Warn("Failed to parse upgrade payload: " + err.Error())
		return
	}
	ok, err := eng.UpgradeRack(parsed.RackID)
	if err != nil {
		c.hub.logger.Warn("Rack upgrade failed: " + err.Error())
		return
	}
	if !ok {
		c.hub.logger.Event("UPGRADE_REJECTED", parsed.RackID, "rack fully unlocked")
	}
}

func (c *Client) handleAwardSkill(eng *engine.Engine, rawPayload []byte) {
	var parsed struct {
		Category string `json:"category"`
		Points   int    `json:"points"`
	}
	if err := json.Unmarshal(rawPayload, &parsed); err != nil {
		c.hub.logger.Warn("Failed to parse skill payload: " + err.Error())
		return
	}
	eng.Skills().Award(engine.SkillCategory(parsed.Category), parsed.Points)
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
