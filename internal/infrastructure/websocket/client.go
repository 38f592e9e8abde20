package websocket

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 256
)

// Client is one websocket connection for an authenticated participant. A
// participant may hold several clients at once (multiple tabs); each client
// joins and leaves conversation rooms independently.
type Client struct {
	ParticipantID string
	Conn          *websocket.Conn
	Send          chan []byte
	manager       *Manager
}

func NewClient(participantID string, conn *websocket.Conn, manager *Manager) *Client {
	return &Client{
		ParticipantID: participantID,
		Conn:          conn,
		Send:          make(chan []byte, sendBuffer),
		manager:       manager,
	}
}

// ClientFrame is what the browser sends: room membership changes and typing
// presence. Anything else is ignored with a log line.
type ClientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ServerFrame wraps a broadcast event with the conversation it belongs to, so
// a client subscribed to several rooms can route it.
type ServerFrame struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

func (c *Client) enqueueFrame(frame ServerFrame) {
	raw, err := json.Marshal(frame)
	if err != nil {
		log.Printf("WebSocket Error: Failed to marshal frame for %s: %v", c.ParticipantID, err)
		return
	}
	select {
	case c.Send <- raw:
	default:
		// The write pump is stalled; drop the client rather than block the room.
		// The unregister goes through a goroutine so a room fan-out holding the
		// manager lock never blocks on its own teardown.
		go func() { c.manager.Unregister <- c }()
	}
}

// ReadPump consumes client frames until the connection drops, then tears the
// client down through the manager.
func (c *Client) ReadPump() {
	defer func() {
		c.manager.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket Error: Unexpected close for %s: %v", c.ParticipantID, err)
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("WebSocket Error: Malformed frame from %s: %v", c.ParticipantID, err)
			continue
		}

		c.manager.HandleFrame(c, frame)
	}
}

// WritePump flushes the send queue and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
