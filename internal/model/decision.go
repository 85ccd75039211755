package model

import "strings"

// SignalKind is the recognized decision signal set. Unrecognized signals are
// kept as SignalUnknown with the raw string preserved on the Decision.
type SignalKind string

const (
	SignalBuyToEnter    SignalKind = "buy_to_enter"
	SignalSellToEnter   SignalKind = "sell_to_enter"
	SignalClosePosition SignalKind = "close_position"
	SignalHold          SignalKind = "hold"
	SignalUnknown       SignalKind = "unknown"
)

// ParseSignalKind maps a raw oracle signal string to a SignalKind.
func ParseSignalKind(raw string) SignalKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy_to_enter":
		return SignalBuyToEnter
	case "sell_to_enter":
		return SignalSellToEnter
	case "close_position":
		return SignalClosePosition
	case "hold":
		return SignalHold
	default:
		return SignalUnknown
	}
}

// Decision is one per-asset instruction from the decision oracle.
type Decision struct {
	Signal    SignalKind `json:"signal"`
	RawSignal string     `json:"raw_signal,omitempty"` // original string when Signal is unknown

	Quantity     float64 `json:"quantity,omitempty"`
	Leverage     int     `json:"leverage,omitempty"`
	ProfitTarget float64 `json:"profit_target,omitempty"`
	StopLoss     float64 `json:"stop_loss,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
	Justification string `json:"justification,omitempty"`
}

// DecisionMap maps asset symbol to the oracle's decision for it.
type DecisionMap map[string]Decision
