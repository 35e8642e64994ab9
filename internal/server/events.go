package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skypro1111/ladiocast/internal/audio"
	"github.com/skypro1111/ladiocast/internal/broadcast"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 64
)

// EventMessage is one frame of the /events feed.
type EventMessage struct {
	Type      string    `json:"type"` // event, state or loudness
	Event     string    `json:"event,omitempty"`
	Code      *int      `json:"code,omitempty"`
	Error     bool      `json:"error,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	DB        *float64  `json:"db,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventHub fans broadcaster notifications out to WebSocket clients. Slow
// clients lose messages instead of stalling the broadcast stages.
type EventHub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu             sync.Mutex
	clients        map[*wsClient]struct{}
	notifier       *broadcast.Notifier
	detach         []func()
	detachLoudness func()
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// NewEventHub creates a hub without subscriptions
func NewEventHub(logger *slog.Logger) *EventHub {
	return &EventHub{
		logger: logger.With(slog.String("component", "event_hub")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Attach subscribes the hub to n. Loudness is only subscribed while at least
// one client is connected.
func (h *EventHub) Attach(n *broadcast.Notifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifier = n
	if len(h.clients) > 0 {
		h.subscribeLoudness()
	}
	h.detach = append(h.detach,
		n.OnEvent(func(e broadcast.Event) {
			code := int(e)
			h.publish(EventMessage{Type: "event", Event: e.String(), Code: &code, Error: e.IsError()})
		}),
		n.OnStateChange(func(from, to broadcast.State) {
			h.publish(EventMessage{Type: "state", From: from.String(), To: to.String()})
		}),
	)
}

// subscribeLoudness must be called with h.mu held.
func (h *EventHub) subscribeLoudness() {
	if h.notifier == nil || h.detachLoudness != nil {
		return
	}
	h.detachLoudness = h.notifier.OnLoudness(func(db float64) {
		db = audio.FiniteDB(db)
		h.publish(EventMessage{Type: "loudness", DB: &db})
	})
}

// unsubscribeLoudness must be called with h.mu held.
func (h *EventHub) unsubscribeLoudness() {
	if h.detachLoudness != nil {
		h.detachLoudness()
		h.detachLoudness = nil
	}
}

// Close drops every client and removes the notifier subscriptions
func (h *EventHub) Close() {
	h.mu.Lock()
	detach := h.detach
	h.detach = nil
	h.unsubscribeLoudness()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
	for c := range clients {
		close(c.done)
		c.conn.Close()
	}
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *EventHub) publish(msg EventMessage) {
	msg.Timestamp = time.Now().UTC()
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("Failed to marshal event message", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("Dropped event for slow client",
				slog.String("remote", c.conn.RemoteAddr().String()),
			)
		}
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, clientSendSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.subscribeLoudness()
	h.mu.Unlock()
	h.logger.Info("Event client connected", slog.String("remote", conn.RemoteAddr().String()))

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client frames and detects disconnects.
func (h *EventHub) readPump(c *wsClient) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("Event write failed", slog.String("error", err.Error()))
				c.conn.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

func (h *EventHub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	if len(h.clients) == 0 {
		h.unsubscribeLoudness()
	}
	h.mu.Unlock()

	if ok {
		close(c.done)
		c.conn.Close()
		h.logger.Info("Event client disconnected", slog.String("remote", c.conn.RemoteAddr().String()))
	}
}
