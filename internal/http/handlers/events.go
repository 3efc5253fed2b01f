package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bloomin8/eink-canvas-addon/internal/coordinator"
)

const (
	// Time allowed to write a message to the peer.
	hubWriteWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	hubPongWait = 60 * time.Second
	// Ping period; must stay below hubPongWait.
	hubPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Ingress terminates auth in front of the add-on.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsEnvelope frames everything the hub sends.
type wsEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Hub fans coordinator events out to websocket subscribers on the HA side.
type Hub struct {
	logger *slog.Logger
	done   chan struct{}

	mu         sync.RWMutex
	clients    map[*hubClient]bool
	broadcast  chan []byte
	register   chan *hubClient
	unregister chan *hubClient
}

type hubClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an idle hub; call Run to start it.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		done:       make(chan struct{}),
		clients:    make(map[*hubClient]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
	}
}

// Run pumps registrations and broadcasts until ctx ends, then hangs up on
// every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client connected", "clients", count)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client disconnected", "clients", count)
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop it rather than stall the loop.
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues one coordinator event for every connected client. It never
// blocks; a saturated hub drops the event, the next refresh carries newer
// state anyway.
func (h *Hub) Publish(event coordinator.Event) {
	data, err := json.Marshal(wsEnvelope{Type: "snapshot", Payload: event})
	if err != nil {
		h.logger.Warn("encode ws event failed", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Debug("ws broadcast queue full, dropping event")
	}
}

// ClientCount reports connected websocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// Events upgrades the request and streams coordinator events until either
// side hangs up.
func (a *API) Events(w http.ResponseWriter, r *http.Request) {
	if a.hub == nil {
		writeError(w, http.StatusNotFound, "events_disabled", "Event stream not enabled")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	client := &hubClient{hub: a.hub, conn: conn, send: make(chan []byte, 16)}
	select {
	case a.hub.register <- client:
	case <-a.hub.done:
		_ = conn.Close()
		return
	}

	if data, err := json.Marshal(wsEnvelope{Type: "connected"}); err == nil {
		client.send <- data
	}

	go client.writePump()
	go client.readPump()
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(hubPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *hubClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		// Any client frame counts as a keepalive.
		_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	}
}

// EventLog returns recent persisted action and refresh log entries.
func (a *API) EventLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}
	entries, err := a.events.RecentEvents(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "event_log_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}
