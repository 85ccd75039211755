package oracle

import (
	"testing"

	"trade-arena/internal/model"
)

func TestParseDecisionsPlainJSON(t *testing.T) {
	raw := `{"BTC": {"signal": "buy_to_enter", "quantity": 0.5, "leverage": 10, "confidence": 0.8, "justification": "breakout"}}`

	decisions := ParseDecisions(raw)
	if len(decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(decisions))
	}
	d := decisions["BTC"]
	if d.Signal != model.SignalBuyToEnter || d.Quantity != 0.5 || d.Leverage != 10 {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestParseDecisionsMarkdownFenced(t *testing.T) {
	raw := "Here are my decisions:\n```json\n{\"ETH\": {\"signal\": \"close_position\"}}\n```\nGood luck."

	decisions := ParseDecisions(raw)
	if d, ok := decisions["ETH"]; !ok || d.Signal != model.SignalClosePosition {
		t.Errorf("fenced JSON not extracted: %+v", decisions)
	}
}

func TestParseDecisionsBareFence(t *testing.T) {
	raw := "```\n{\"SOL\": {\"signal\": \"hold\"}}\n```"

	decisions := ParseDecisions(raw)
	if d, ok := decisions["SOL"]; !ok || d.Signal != model.SignalHold {
		t.Errorf("bare fence not extracted: %+v", decisions)
	}
}

func TestParseDecisionsMalformedIsEmpty(t *testing.T) {
	for _, raw := range []string{"", "not json at all", "{\"BTC\": ", "[1,2,3"} {
		decisions := ParseDecisions(raw)
		if len(decisions) != 0 {
			t.Errorf("raw %q: expected empty map, got %v", raw, decisions)
		}
	}
}

func TestParseDecisionsUnknownSignalPreserved(t *testing.T) {
	raw := `{"BTC": {"signal": "yolo_all_in", "quantity": 1}}`

	d := ParseDecisions(raw)["BTC"]
	if d.Signal != model.SignalUnknown {
		t.Errorf("expected unknown signal kind, got %q", d.Signal)
	}
	if d.RawSignal != "yolo_all_in" {
		t.Errorf("raw signal not preserved: %q", d.RawSignal)
	}
}

func TestParseDecisionsSkipsMalformedEntry(t *testing.T) {
	raw := `{"BTC": {"signal": "hold"}, "ETH": "oops"}`

	decisions := ParseDecisions(raw)
	if len(decisions) != 1 {
		t.Fatalf("expected the valid entry to survive, got %v", decisions)
	}
	if _, ok := decisions["BTC"]; !ok {
		t.Error("valid BTC entry dropped")
	}
}

func TestParseDecisionsNormalizesAssetKey(t *testing.T) {
	raw := `{" btc ": {"signal": "hold"}}`

	decisions := ParseDecisions(raw)
	if _, ok := decisions["BTC"]; !ok {
		t.Errorf("asset key not normalized: %v", decisions)
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://api.example.com", "https://api.example.com/v1"},
		{"https://api.example.com/", "https://api.example.com/v1"},
		{"https://api.example.com/v1", "https://api.example.com/v1"},
		{"https://api.example.com/v1/chat/completions", "https://api.example.com/v1"},
	}
	for _, c := range cases {
		if got := normalizeBaseURL(c.in); got != c.want {
			t.Errorf("normalizeBaseURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
