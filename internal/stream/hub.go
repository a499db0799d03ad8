// Package stream fans live market events out to websocket subscribers.
// The frontend uses it to refresh cards without polling /api/contracts.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventTrade      EventType = "trade"
	EventStatus     EventType = "status"
	EventSettlement EventType = "settlement"
)

// Event is one market update pushed to subscribers.
type Event struct {
	Type       EventType `json:"type"`
	PropID     string    `json:"prop_id"`
	Price      float64   `json:"price,omitempty"`
	Quantity   int       `json:"quantity,omitempty"`
	GameStatus string    `json:"game_status,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	clientBuffer   = 64
	broadcastQueue = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is consumed cross-origin by the static frontend.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks subscribers and broadcasts events to them. Slow subscribers
// are dropped rather than allowed to back-pressure the trading path.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan Event
	clients    map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Event, broadcastQueue),
		clients:    make(map[*client]struct{}),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	logger := log.With().Str("component", "stream_hub").Logger()
	logger.Info().Msg("starting event stream hub")

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			logger.Info().Msg("shutting down event stream hub")
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			logger.Debug().Int("clients", len(h.clients)).Msg("subscriber connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case event := <-h.broadcast:
			payload, err := json.Marshal(event)
			if err != nil {
				logger.Error().Err(err).Msg("failed to encode event")
				continue
			}
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					delete(h.clients, c)
					close(c.send)
					logger.Warn().Msg("dropped slow subscriber")
				}
			}
		}
	}
}

// Publish queues an event for broadcast. It never blocks the caller; if
// the queue is full the event is dropped.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	select {
	case h.broadcast <- event:
	default:
		log.Warn().Str("prop_id", event.PropID).Msg("event queue full, dropping event")
	}
}

// ServeWS upgrades the request and subscribes the connection to all events.
func (h *Hub) ServeWS() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
		if err != nil {
			log.Error().Err(err).Msg("websocket upgrade failed")
			return
		}

		c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
		h.register <- c

		go c.writePump()
		go c.readPump(h)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

// readPump drains inbound frames so pong/close handling works, then
// unregisters on any error.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
