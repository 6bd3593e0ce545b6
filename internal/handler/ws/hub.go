package ws

import (
	"context"
	"net/http"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/broadcast"
	"MarketPulse/internal/service/tickcache"
	xlogger "MarketPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub fans live ticks out to connected WebSocket clients. It drains one
// broker subscription in a single loop; clients that cannot keep up are
// pruned so a slow consumer never stalls the feed for the rest.
type Hub struct {
	logger *xlogger.Logger
	broker *broadcast.Broker
	cache  *tickcache.Cache

	register   chan *Client
	unregister chan *Client
	clients    map[*Client]struct{}
}

func NewHub(logger *xlogger.Logger, broker *broadcast.Broker, cache *tickcache.Cache) *Hub {
	return &Hub{
		logger:     logger,
		broker:     broker,
		cache:      cache,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]struct{}),
	}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.serve)
}

// Run is the hub loop. It owns the clients map exclusively, so no locking is
// needed around it.
func (h *Hub) Run(ctx context.Context) {
	sub := h.broker.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.sendSnapshot(c)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case t, ok := <-sub.C:
			if !ok {
				return
			}
			msg := envelope{Type: "tick", Data: t}
			for c := range h.clients {
				if !c.wants(t) {
					continue
				}
				select {
				case c.send <- msg:
				default:
					// client too slow, prune it so the hub never blocks
					delete(h.clients, c)
					close(c.send)
					if h.logger != nil {
						h.logger.Warn("pruned slow websocket client")
					}
				}
			}
		}
	}
}

// sendSnapshot delivers the current cache contents so a fresh client starts
// with full state instead of waiting for the next tick of every symbol.
func (h *Hub) sendSnapshot(c *Client) {
	for _, src := range []models.Source{models.SourceCrypto, models.SourceEquity, models.SourceCarbon} {
		for _, e := range h.cache.GetAll(src) {
			if !c.wants(e.Tick) {
				continue
			}
			select {
			case c.send <- envelope{Type: "snapshot", Data: e.Tick}:
			default:
				return
			}
		}
	}
}

func (h *Hub) serve(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		}
		return nil
	}

	client := newClient(h, conn)
	h.register <- client

	go client.writePump()
	go client.readPump()
	return nil
}
