package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"trade-arena/internal/model"
)

func testMarket() model.MarketState {
	return model.MarketState{
		"BTC": {Price: 50000, Change24h: 2.5, Indicators: map[string]float64{"sma_7": 49000, "sma_14": 48000, "rsi_14": 60}},
		"ETH": {Price: 3000, Change24h: -1.0},
	}
}

func TestDecideRoundTrip(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Model != "gpt-test" || len(req.Messages) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "```json\n{\"BTC\": {\"signal\": \"buy_to_enter\", \"quantity\": 1, \"leverage\": 10}}\n```"}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient("secret", srv.URL, "gpt-test")
	decisions, raw, err := c.Decide(context.Background(), testMarket(), model.Valuation{TotalValue: 100000, Cash: 100000}, AccountInfo{InitialCapital: 100000})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if raw == "" {
		t.Error("raw response should be preserved for audit")
	}
	d := decisions["BTC"]
	if d.Signal != model.SignalBuyToEnter || d.Quantity != 1 || d.Leverage != 10 {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestDecideAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "invalid key"}}`))
	}))
	defer srv.Close()

	c := NewClient("bad", srv.URL, "gpt-test")
	_, _, err := c.Decide(context.Background(), testMarket(), model.Valuation{}, AccountInfo{})
	if err == nil {
		t.Fatal("expected error on 401")
	}
	if !strings.Contains(err.Error(), "invalid key") {
		t.Errorf("error should carry upstream message: %v", err)
	}
}

func TestDecideEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL, "m")
	decisions, _, err := c.Decide(context.Background(), testMarket(), model.Valuation{}, AccountInfo{})
	if err != nil {
		t.Fatalf("empty choices should not be fatal: %v", err)
	}
	if len(decisions) != 0 {
		t.Errorf("expected no decisions, got %v", decisions)
	}
}

func TestBuildPromptContents(t *testing.T) {
	v := model.Valuation{
		TotalValue: 105000,
		Cash:       95000,
		Positions: []model.Position{
			{Asset: "BTC", Side: model.SideLong, Quantity: 1, AvgPrice: 50000, Leverage: 10},
		},
	}
	prompt := BuildPrompt(testMarket(), v, AccountInfo{InitialCapital: 100000, TotalReturn: 5})

	for _, want := range []string{
		"MARKET DATA:",
		"BTC: $50000.00 (+2.50%)",
		"SMA7: $49000.00",
		"ACCOUNT STATUS:",
		"- Cash: $95000.00",
		"- Total Return: 5.00%",
		"- BTC long: 1.0000 @ $50000.00 (10x)",
		"OUTPUT FORMAT (JSON only):",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	// ETH has no indicators; no indicator line should follow it.
	if strings.Contains(prompt, "ETH: $3000.00 (-1.00%)\n  SMA7") {
		t.Error("indicators should be omitted when absent")
	}
}

func TestPromptSummary(t *testing.T) {
	v := model.Valuation{Positions: []model.Position{{Asset: "BTC"}}}
	got := PromptSummary(testMarket(), v, AccountInfo{TotalReturn: 1.5})
	want := "Market State: 2 coins, Portfolio: 1 positions, Return: 1.50%"
	if got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
}
