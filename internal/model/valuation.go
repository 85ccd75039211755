package model

// Valuation is a derived, never-persisted view of an agent's account:
//
//	cash        = initial_capital + realized_pnl - margin_used
//	total_value = initial_capital + realized_pnl + unrealized_pnl
//
// It is recomputable purely from the immutable trade log and the current open
// positions. During a trading cycle the valuation is captured once and used
// as an immutable input for every margin check in that cycle.
type Valuation struct {
	AgentID        int64      `json:"agent_id"`
	Cash           float64    `json:"cash"`
	Positions      []Position `json:"positions"`
	PositionsValue float64    `json:"positions_value"`
	MarginUsed     float64    `json:"margin_used"`
	TotalValue     float64    `json:"total_value"`
	RealizedPnL    float64    `json:"realized_pnl"`
	UnrealizedPnL  float64    `json:"unrealized_pnl"`
}

// FindPosition returns the first open position for asset, or nil.
// When an agent holds both sides of the same asset the earlier-opened
// side wins, matching insertion order of the ledger query.
func (v *Valuation) FindPosition(asset string) *Position {
	for i := range v.Positions {
		if v.Positions[i].Asset == asset {
			return &v.Positions[i]
		}
	}
	return nil
}
