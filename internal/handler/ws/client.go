package ws

import (
	"encoding/json"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	xlogger "MarketPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// clientCommand is what a browser sends to narrow its feed. An empty filter
// means everything.
type clientCommand struct {
	Action  string   `json:"action"` // "subscribe" or "reset"
	Sources []string `json:"sources"`
	Symbols []string `json:"symbols"`
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan envelope

	mu      sync.RWMutex
	sources map[models.Source]struct{}
	symbols map[string]struct{}
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  h,
		conn: conn,
		send: make(chan envelope, 256),
	}
}

// wants applies the client's filter to one tick.
func (c *Client) wants(t models.Tick) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.sources) > 0 {
		if _, ok := c.sources[t.Source]; !ok {
			return false
		}
	}
	if len(c.symbols) > 0 {
		if _, ok := c.symbols[t.Symbol]; !ok {
			return false
		}
	}
	return true
}

func (c *Client) applyCommand(cmd clientCommand) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch cmd.Action {
	case "subscribe":
		c.sources = make(map[models.Source]struct{}, len(cmd.Sources))
		for _, s := range cmd.Sources {
			c.sources[models.Source(s)] = struct{}{}
		}
		c.symbols = make(map[string]struct{}, len(cmd.Symbols))
		for _, s := range cmd.Symbols {
			c.symbols[s] = struct{}{}
		}
	case "reset":
		c.sources = nil
		c.symbols = nil
	}
}

// readPump consumes filter commands and doubles as the connection watchdog.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) && c.hub.logger != nil {
				c.hub.logger.Warn("websocket read error", xlogger.Error(err))
			}
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			// malformed command, drop it and keep the connection
			continue
		}
		c.applyCommand(cmd)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
