// Package eventbus fans out topic-tagged supervisor events to connected
// orchestrator/UI clients over WebSocket, generalizing the persistent
// connection handling in the reference agent's websocket client
// (ping/pong keepalive, write deadlines, JSON envelopes) into a
// server-side hub that accepts many simultaneous subscribers instead of
// dialing a single upstream Console.
package eventbus

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 50 * time.Second
)

// Topic names published onto the bus.
const (
	TopicSessionsChanged   = "sessions.changed"
	TopicInboxChanged      = "inbox.changed"
	TopicWorkspacesChanged = "workspaces.changed"
	TopicSupervisorHealth  = "supervisor.health"
)

// Envelope is the wire shape of every published event.
type Envelope struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

// Hub holds the set of currently-connected subscribers and lets callers
// publish events to all of them.
type Hub struct {
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[int]*subscriber
	next int
}

type subscriber struct {
	conn *websocket.Conn
	send chan Envelope
}

// NewHub constructs an empty Hub. The upgrader allows cross-origin
// connections, matching a local-control-plane deployment where the UI is
// served from a different port than the daemon's socket-to-HTTP bridge.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subs: make(map[int]*subscriber),
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers it as a
// subscriber until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("eventbus: upgrade failed: %v", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan Envelope, 64)}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	go h.writePump(id, sub)
	h.readPump(id, sub)
}

// Publish fans payload out to every connected subscriber under topic. A
// marshal failure logs and drops the event rather than panicking the
// caller, matching the supervisor's general best-effort posture toward
// ambient observability.
func (h *Hub) Publish(topic string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("eventbus: marshal payload for %s: %v", topic, err)
		return
	}
	env := Envelope{ID: uuid.NewString(), Topic: topic, Time: time.Now().UTC(), Payload: raw}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		select {
		case sub.send <- env:
		default:
			log.Printf("eventbus: subscriber %d backlog full, dropping event %s", id, topic)
		}
	}
}

// Count returns the number of currently-connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) writePump(id int, sub *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
		h.remove(id)
	}()

	for {
		select {
		case env, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(id int, sub *subscriber) {
	defer h.remove(id)

	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Subscribers are read-only from the bus's point of view; we
		// still must read to drive the pong handler and detect
		// disconnects.
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.send)
	}
}
