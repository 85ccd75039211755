package model

import "time"

// Trade is an immutable append-only ledger entry. PnL is zero for entries
// and carries the realized profit/loss for closes. Trades are the source of
// truth for an agent's realized P&L; nothing else keeps a running balance.
type Trade struct {
	ID        int64     `json:"id"`
	AgentID   int64     `json:"agent_id"`
	Asset     string    `json:"asset"`
	Signal    string    `json:"signal"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Leverage  int       `json:"leverage"`
	Side      Side      `json:"side"`
	PnL       float64   `json:"pnl"`
	Timestamp time.Time `json:"timestamp"`
}

// AccountSnapshot is a periodic record of an agent's account value, appended
// once per completed cycle. Snapshots are derived from the trade log and open
// positions and may lag the ledger by at most one failed cycle.
type AccountSnapshot struct {
	ID             int64     `json:"id"`
	AgentID        int64     `json:"agent_id"`
	TotalValue     float64   `json:"total_value"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
	Timestamp      time.Time `json:"timestamp"`
}

// Conversation is an audit record of one oracle exchange: the prompt summary
// sent and the raw response received.
type Conversation struct {
	ID        int64     `json:"id"`
	AgentID   int64     `json:"agent_id"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}
