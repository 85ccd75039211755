package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trade-arena/internal/engine"
)

func dialHub(t *testing.T, hub *Hub, query string) *websocket.Conn {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// wsReader splits coalesced frames back into individual envelopes.
type wsReader struct {
	conn  *websocket.Conn
	queue []Envelope
}

func (r *wsReader) next(t *testing.T) Envelope {
	t.Helper()
	if len(r.queue) == 0 {
		r.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := r.conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		for _, line := range strings.Split(string(msg), "\n") {
			var e Envelope
			if err := json.Unmarshal([]byte(line), &e); err != nil {
				t.Fatalf("unmarshal %q: %v", line, err)
			}
			r.queue = append(r.queue, e)
		}
	}
	e := r.queue[0]
	r.queue = r.queue[1:]
	return e
}

func TestBroadcastCycleReachesClient(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "")

	waitForClients(t, hub, 1)
	hub.BroadcastCycle(engine.CycleResult{AgentID: 7, Success: true})

	r := &wsReader{conn: conn}
	e := r.next(t)
	if e.Type != "cycle" || e.AgentID != 7 || e.Seq != 1 {
		t.Errorf("envelope = %+v", e)
	}
	var result engine.CycleResult
	if err := json.Unmarshal(e.Data, &result); err != nil || !result.Success {
		t.Errorf("payload = %s (%v)", e.Data, err)
	}
}

func TestNewClientGetsLatestStatePerAgent(t *testing.T) {
	hub := NewHub()
	hub.BroadcastCycle(engine.CycleResult{AgentID: 1, Success: true})
	hub.BroadcastCycle(engine.CycleResult{AgentID: 1, Success: false, Error: "x"})
	hub.BroadcastCycle(engine.CycleResult{AgentID: 2, Success: true})

	conn := dialHub(t, hub, "")

	r := &wsReader{conn: conn}
	seen := map[int64]Envelope{}
	for i := 0; i < 2; i++ {
		e := r.next(t)
		if !e.Initial {
			t.Errorf("state envelope not marked initial: %+v", e)
		}
		seen[e.AgentID] = e
	}
	if e, ok := seen[1]; !ok || e.Seq != 2 {
		t.Errorf("agent 1 latest = %+v, want seq 2", seen[1])
	}
	if _, ok := seen[2]; !ok {
		t.Errorf("agent 2 state missing")
	}
}

func TestReconnectReplaysFromBacklog(t *testing.T) {
	hub := NewHub()
	for i := 1; i <= 4; i++ {
		hub.BroadcastCycle(engine.CycleResult{AgentID: int64(i), Success: true})
	}

	conn := dialHub(t, hub, "?last_seq=2")

	first := (&wsReader{conn: conn}).next(t)
	if first.Seq != 3 || first.Initial {
		t.Errorf("first replayed = %+v, want seq 3 live envelope", first)
	}
}

func TestDroppedAgentStateIsForgotten(t *testing.T) {
	hub := NewHub()
	hub.BroadcastCycle(engine.CycleResult{AgentID: 1, Success: true})
	hub.DropAgent(1)

	hub.mu.RLock()
	_, ok := hub.latest[1]
	hub.mu.RUnlock()
	if ok {
		t.Errorf("latest state survived DropAgent")
	}
}

func TestInitialStateAfterDisconnectIsANoOp(t *testing.T) {
	hub := NewHub()
	hub.BroadcastCycle(engine.CycleResult{AgentID: 1, Success: true})
	hub.BroadcastCycle(engine.CycleResult{AgentID: 2, Success: true})

	// A peer can drop before its catchup goroutine runs, so removeClient
	// has already closed the send channel. Both catchup paths must notice
	// the client is gone instead of sending on the closed channel.
	for _, lastSeq := range []string{"1", ""} {
		c := &Client{send: make(chan []byte, 4), hub: hub}
		hub.mu.Lock()
		hub.clients[c] = true
		hub.mu.Unlock()
		hub.removeClient(c)

		c.sendInitialState(lastSeq)
		if len(c.send) != 0 {
			t.Errorf("last_seq=%q: sent %d envelopes to a removed client", lastSeq, len(c.send))
		}
	}
}

func TestClientCountTracksDisconnects(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "")
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBacklogEvictsOldest(t *testing.T) {
	b := NewBacklog(3)
	for seq := int64(1); seq <= 5; seq++ {
		b.Push(seq, []byte(fmt.Sprintf("m%d", seq)))
	}

	if b.Len() != 3 {
		t.Fatalf("len = %d, want 3", b.Len())
	}
	got := b.Since(0)
	if len(got) != 3 || string(got[0]) != "m3" || string(got[2]) != "m5" {
		t.Errorf("since(0) = %q", got)
	}
	if got := b.Since(4); len(got) != 1 || string(got[0]) != "m5" {
		t.Errorf("since(4) = %q", got)
	}
	if got := b.Since(5); len(got) != 0 {
		t.Errorf("since(5) = %q", got)
	}
}
