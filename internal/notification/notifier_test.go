package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"trade-arena/internal/engine"
)

func TestAlertsForFailedCycle(t *testing.T) {
	alerts := AlertsForCycle(engine.CycleResult{AgentID: 3, Error: "oracle: upstream 500"})

	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Level != AlertWarning || alerts[0].AgentID != 3 {
		t.Errorf("alert = %+v", alerts[0])
	}
	if !strings.Contains(alerts[0].Message, "upstream 500") {
		t.Errorf("message = %q", alerts[0].Message)
	}
}

func TestAlertsForExecutedTrades(t *testing.T) {
	alerts := AlertsForCycle(engine.CycleResult{
		AgentID: 1,
		Success: true,
		Executions: []engine.ExecutionResult{
			{Asset: "BTC", Signal: "buy_to_enter", Accepted: true, Quantity: 1, Price: 50000, Leverage: 10},
			{Asset: "ETH", Signal: "hold", Accepted: true},
			{Asset: "SOL", Signal: "buy_to_enter", Accepted: false, Error: "insufficient cash"},
			{Asset: "DOGE", Signal: "close_position", Accepted: true, Quantity: 100, Price: 0.5, Leverage: 2, PnL: -12.5},
		},
	})

	if len(alerts) != 2 {
		t.Fatalf("alerts = %+v, want entry and close only", alerts)
	}
	if !strings.Contains(alerts[0].Message, "BTC") {
		t.Errorf("entry alert = %+v", alerts[0])
	}
	if !strings.Contains(alerts[1].Message, "pnl=-12.50") {
		t.Errorf("close alert = %+v", alerts[1])
	}
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "Trade executed", Message: "x", AgentID: 9})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["title"] != "Trade executed" || got["agent_id"].(float64) != 9 {
		t.Errorf("payload = %+v", got)
	}
}

func TestWebhookNotifierRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{}); err == nil {
		t.Errorf("expected error on 502")
	}
}

func TestTelegramNotifierEscapesMarkdown(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "chat")
	n.baseURL = srv.URL
	err := n.Send(context.Background(), Alert{Level: AlertCritical, Title: "cycle.failed", Message: "a_b"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	text, _ := body["text"].(string)
	if !strings.Contains(text, `cycle\.failed`) || !strings.Contains(text, `a\_b`) {
		t.Errorf("text not escaped: %q", text)
	}
}

func TestMultiKeepsGoingOnFailure(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	var delivered int
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered++
		w.WriteHeader(http.StatusOK)
	}))
	defer good.Close()

	m := Multi{NewWebhookNotifier(bad.URL), NewWebhookNotifier(good.URL)}
	if err := m.Send(context.Background(), Alert{Title: "t"}); err != nil {
		t.Fatalf("multi send: %v", err)
	}
	if delivered != 1 {
		t.Errorf("second backend not reached")
	}
}
