// Package stream fans the orchestrator's typed event bus (engine/events)
// out to WebSocket subscribers (spec §6 "external consumers subscribe" to
// the event surface), in the teacher lineage's hub/register/unregister
// style but with a bounded per-connection outbound buffer and
// drop-on-slow-subscriber semantics instead of a blocking broadcast write.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/R3E-Network/pipeline-orchestrator/engine/events"
	"github.com/R3E-Network/pipeline-orchestrator/pkg/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// outboundBuffer bounds how far a client can lag before Hub starts
// dropping events for it rather than blocking the broadcaster.
const outboundBuffer = 128

type client struct {
	conn *websocket.Conn
	send chan events.Event
}

// Hub registers WebSocket clients and forwards every event published on a
// source events.Bus to each of them, independently and without blocking on
// a slow client.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	source  *events.Bus
	log     *logging.Logger
	done    chan struct{}
}

// NewHub subscribes to source and begins fanning events out immediately.
func NewHub(source *events.Bus, log *logging.Logger) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		source:  source,
		log:     log,
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	ch := h.source.Subscribe()
	defer h.source.Unsubscribe(ch)

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(ev)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) broadcast(ev events.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			// Slow subscriber: drop this event rather than block the fan-out.
		}
	}
}

// ServeWS upgrades r to a WebSocket connection and registers it as a
// subscriber until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.WithError(err).Warn("websocket upgrade failed")
		}
		return
	}

	c := &client{conn: conn, send: make(chan events.Event, outboundBuffer)}
	h.register(c)

	go h.readPump(c)
	h.writePump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// readPump drains (and discards) inbound frames so ping/pong and close
// control frames are processed; clients never send data the hub acts on.
func (h *Hub) readPump(c *client) {
	defer c.conn.Close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.unregister(c)
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for ev := range c.send {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.unregister(c)
			return
		}
	}
}

// Close stops the hub's fan-out loop. Registered clients are left to
// disconnect on their own read/write errors.
func (h *Hub) Close() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// ClientCount returns the number of currently registered subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
