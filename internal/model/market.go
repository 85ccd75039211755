package model

// AssetState is the market view of one tracked asset for a single cycle:
// current price, 24h change, and optional technical indicators. Indicators
// is nil when history was unavailable; absent indicators are omitted from
// oracle requests rather than zero-filled.
type AssetState struct {
	Price      float64            `json:"price"`
	Change24h  float64            `json:"change_24h"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// MarketState maps asset symbol to its current state.
type MarketState map[string]AssetState

// Prices extracts the plain price map used for valuations.
func (m MarketState) Prices() map[string]float64 {
	prices := make(map[string]float64, len(m))
	for asset, state := range m {
		prices[asset] = state.Price
	}
	return prices
}
