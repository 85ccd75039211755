package model

import "time"

// Side is the direction of an open position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Position represents an open leveraged exposure to one asset on one side.
// At most one row exists per (agent, asset, side); re-entering replaces
// quantity and average price instead of lot-averaging.
type Position struct {
	AgentID   int64     `json:"agent_id"`
	Asset     string    `json:"asset"`
	Quantity  float64   `json:"quantity"`
	AvgPrice  float64   `json:"avg_price"`
	Leverage  int       `json:"leverage"`
	Side      Side      `json:"side"`
	UpdatedAt time.Time `json:"updated_at"`

	// Mark-to-market fields, filled by the portfolio calculator when a
	// current price is known. Never persisted.
	CurrentPrice *float64 `json:"current_price,omitempty"`
	PnL          float64  `json:"pnl"`
}

// Margin returns the capital reserved against this position.
func (p *Position) Margin() float64 {
	if p.Leverage < 1 {
		return p.Quantity * p.AvgPrice
	}
	return p.Quantity * p.AvgPrice / float64(p.Leverage)
}

// Notional returns the position's notional value at entry.
func (p *Position) Notional() float64 {
	return p.Quantity * p.AvgPrice
}

// UnrealizedPnL computes the mark-to-market P&L against currentPrice.
func (p *Position) UnrealizedPnL(currentPrice float64) float64 {
	if p.Side == SideShort {
		return (p.AvgPrice - currentPrice) * p.Quantity
	}
	return (currentPrice - p.AvgPrice) * p.Quantity
}
