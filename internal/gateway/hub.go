// Package gateway streams live trading activity to WebSocket clients:
// every completed cycle is fanned out as it happens, and reconnecting
// clients catch up from a bounded backlog.
package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trade-arena/internal/engine"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Envelope is the wire format for every hub message.
type Envelope struct {
	Type    string          `json:"type"` // "cycle"
	Seq     int64           `json:"seq"`
	AgentID int64           `json:"agent_id,omitempty"`
	TS      string          `json:"ts"`
	Data    json.RawMessage `json:"data,omitempty"`
	Initial bool            `json:"initial,omitempty"`
}

// Hub fans trading events out to connected WebSocket clients. It is fed by
// the engine manager's cycle callback and never blocks the trading loop: a
// client that cannot keep up has messages dropped, and the backlog covers
// reconnect gaps.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[int64][]byte // most recent cycle envelope per agent
	seq     int64

	backlog *Backlog
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[int64][]byte),
		backlog: NewBacklog(256),
	}
}

// BroadcastCycle publishes a finished cycle to all clients. Safe to use as
// the manager's OnCycle callback.
func (h *Hub) BroadcastCycle(result engine.CycleResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		log.Printf("[gateway] marshal cycle result: %v", err)
		return
	}

	h.mu.Lock()
	h.seq++
	envelope, err := json.Marshal(Envelope{
		Type:    "cycle",
		Seq:     h.seq,
		AgentID: result.AgentID,
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		Data:    payload,
	})
	if err != nil {
		h.mu.Unlock()
		return
	}
	h.latest[result.AgentID] = envelope
	h.backlog.Push(h.seq, envelope)
	for client := range h.clients {
		select {
		case client.send <- envelope:
		default: // slow client, drop
		}
	}
	h.mu.Unlock()
}

// DropAgent forgets the latest-state entry for a deleted agent.
func (h *Hub) DropAgent(agentID int64) {
	h.mu.Lock()
	delete(h.latest, agentID)
	h.mu.Unlock()
}

// HandleWS upgrades the request and registers the client. A last_seq query
// parameter replays missed envelopes from the backlog; otherwise the client
// receives the latest known state per agent.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}
	conn.EnableWriteCompression(true)

	client := &Client{conn: conn, send: make(chan []byte, 64), hub: h}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.sendInitialState(r.URL.Query().Get("last_seq"))
	go client.writePump()
	go client.readPump()
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the sequence number of the last broadcast envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}
