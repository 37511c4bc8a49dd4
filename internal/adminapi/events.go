package adminapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/atcsecure/xhub/internal/adminstore"
	"github.com/atcsecure/xhub/pkg/logging"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventType names one kind of event streamed over GET /ws.
type EventType string

const (
	EventPeerConnected       EventType = "peer_connected"
	EventPeerDisconnected    EventType = "peer_disconnected"
	EventTransactionJoined   EventType = "transaction_joined"
	EventTransactionHold     EventType = "transaction_hold"
	EventTransactionPaid     EventType = "transaction_paid"
	EventTransactionFinished EventType = "transaction_finished"
	EventSendInjected        EventType = "send_injected"
)

// Event is one message sent to a subscribed client.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp int64     `json:"timestamp"`
}

// client is one connected WebSocket subscriber.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// EventHub fans published events out to every connected GET /ws client.
// Mirrors the teacher's rpc.WSHub, trimmed: every client receives every
// event, there is no per-type subscribe/unsubscribe protocol.
type EventHub struct {
	clients    map[*client]bool
	broadcast  chan *Event
	register   chan *client
	unregister chan *client
	log        *logging.Logger
	store      *adminstore.Store
	mu         sync.RWMutex
}

// NewEventHub constructs an EventHub. store may be nil: events are then
// streamed to live WebSocket clients only, with no audit row kept. Call
// Run in a goroutine before accepting connections.
func NewEventHub(log *logging.Logger, store *adminstore.Store) *EventHub {
	if log == nil {
		log = logging.GetDefault()
	}
	return &EventHub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		log:        log.Component("adminapi-hub"),
		store:      store,
	}
}

// Run drives the hub's event loop. Blocks; call in its own goroutine.
func (h *EventHub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Error("failed to marshal event", "err", err)
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					h.log.Warn("client send buffer full, dropping")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish records the event to the audit log (if a store is attached) and
// enqueues it for delivery to every connected client. The broadcast side
// never blocks: a full channel drops the event with a warning.
func (h *EventHub) Publish(t EventType, data any) {
	if h.store != nil {
		txID, peerID, detail := auditFields(data)
		if err := h.store.RecordEvent(string(t), txID, peerID, detail); err != nil {
			h.log.Warn("failed to record event audit row", "err", err)
		}
	}

	ev := &Event{Type: t, Data: data, Timestamp: time.Now().Unix()}
	select {
	case h.broadcast <- ev:
	default:
		h.log.Warn("broadcast channel full, dropping event", "type", t)
	}
}

// auditFields pulls the tx/peer id out of an event's data (when present)
// and renders the rest as a short "key=value" detail string.
func auditFields(data any) (txID, peerID, detail string) {
	m, ok := data.(map[string]any)
	if !ok {
		return "", "", ""
	}
	if v, ok := m["id"].(string); ok {
		txID = v
	}
	if v, ok := m["peer"].(string); ok {
		peerID = v
	}

	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(parts)
	return txID, peerID, strings.Join(parts, " ")
}

// ClientCount returns the number of currently connected subscribers.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 256)}
	s.hub.register <- c

	go c.writePump(s.hub)
	go c.readPump(s.hub)
}

func (c *client) readPump(h *EventHub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *client) writePump(h *EventHub) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
