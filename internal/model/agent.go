// Package model defines the core domain types shared across the trading
// arena: agents, positions, trades, decisions, and account snapshots.
package model

import "time"

// Agent represents one simulated trader with its own capital and ledger.
// OracleAPIKey / OracleAPIURL / OracleModel are the decision-oracle
// credentials and are opaque to the trading core.
type Agent struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	OracleAPIKey   string    `json:"-"`
	OracleAPIURL   string    `json:"api_url"`
	OracleModel    string    `json:"model_name"`
	InitialCapital float64   `json:"initial_capital"` // immutable after creation
	CreatedAt      time.Time `json:"created_at"`
}
