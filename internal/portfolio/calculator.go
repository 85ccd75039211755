// Package portfolio computes account valuations from the ledger.
//
// A valuation is derived on demand from the immutable trade log and the
// current open-position set; there is no running balance that can drift
// from its derivation.
package portfolio

import (
	"fmt"

	"trade-arena/internal/model"
)

// Ledger is the read-only slice of the store the calculator needs.
type Ledger interface {
	GetAgent(id int64) (model.Agent, error)
	OpenPositions(agentID int64) ([]model.Position, error)
	SumRealizedPnL(agentID int64) (float64, error)
}

// Calculator computes valuations for agents.
type Calculator struct {
	ledger Ledger
}

// NewCalculator creates a Calculator backed by the given ledger.
func NewCalculator(ledger Ledger) *Calculator {
	return &Calculator{ledger: ledger}
}

// Valuation computes the agent's account valuation. prices maps asset symbol
// to current market price; a nil or partial map is valid — positions without
// a price report zero unrealized P&L and no current price.
func (c *Calculator) Valuation(agentID int64, prices map[string]float64) (model.Valuation, error) {
	agent, err := c.ledger.GetAgent(agentID)
	if err != nil {
		return model.Valuation{}, fmt.Errorf("valuation: %w", err)
	}

	positions, err := c.ledger.OpenPositions(agentID)
	if err != nil {
		return model.Valuation{}, fmt.Errorf("valuation: %w", err)
	}

	realized, err := c.ledger.SumRealizedPnL(agentID)
	if err != nil {
		return model.Valuation{}, fmt.Errorf("valuation: %w", err)
	}

	var marginUsed, positionsValue, unrealized float64
	for i := range positions {
		p := &positions[i]
		marginUsed += p.Margin()
		positionsValue += p.Notional()

		if price, ok := prices[p.Asset]; ok {
			cp := price
			p.CurrentPrice = &cp
			p.PnL = p.UnrealizedPnL(price)
			unrealized += p.PnL
		} else {
			p.CurrentPrice = nil
			p.PnL = 0
		}
	}

	return model.Valuation{
		AgentID:        agentID,
		Cash:           agent.InitialCapital + realized - marginUsed,
		Positions:      positions,
		PositionsValue: positionsValue,
		MarginUsed:     marginUsed,
		TotalValue:     agent.InitialCapital + realized + unrealized,
		RealizedPnL:    realized,
		UnrealizedPnL:  unrealized,
	}, nil
}
