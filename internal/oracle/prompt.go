package oracle

import (
	"fmt"
	"sort"
	"strings"

	"trade-arena/internal/model"
)

// BuildPrompt renders the full oracle request: market data, account status,
// open positions, trading rules, and the required output format.
func BuildPrompt(market model.MarketState, valuation model.Valuation, account AccountInfo) string {
	var b strings.Builder

	b.WriteString("You are a professional cryptocurrency trader. Analyze the market and make trading decisions.\n\n")

	b.WriteString("MARKET DATA:\n")
	for _, asset := range sortedAssets(market) {
		state := market[asset]
		fmt.Fprintf(&b, "%s: $%.2f (%+.2f%%)\n", asset, state.Price, state.Change24h)
		if len(state.Indicators) > 0 {
			fmt.Fprintf(&b, "  SMA7: $%.2f, SMA14: $%.2f, RSI: %.1f\n",
				state.Indicators["sma_7"], state.Indicators["sma_14"], state.Indicators["rsi_14"])
		}
	}

	b.WriteString("\nACCOUNT STATUS:\n")
	fmt.Fprintf(&b, "- Initial Capital: $%.2f\n", account.InitialCapital)
	fmt.Fprintf(&b, "- Total Value: $%.2f\n", valuation.TotalValue)
	fmt.Fprintf(&b, "- Cash: $%.2f\n", valuation.Cash)
	fmt.Fprintf(&b, "- Total Return: %.2f%%\n\n", account.TotalReturn)

	b.WriteString("CURRENT POSITIONS:\n")
	if len(valuation.Positions) == 0 {
		b.WriteString("None\n")
	} else {
		for _, pos := range valuation.Positions {
			fmt.Fprintf(&b, "- %s %s: %.4f @ $%.2f (%dx)\n",
				pos.Asset, pos.Side, pos.Quantity, pos.AvgPrice, pos.Leverage)
		}
	}

	b.WriteString("\nTRADING RULES:\n")
	b.WriteString("1. Signals: buy_to_enter (long), sell_to_enter (short), close_position, hold\n")
	b.WriteString("2. Risk Management:\n   - Max 3 positions\n   - Risk 1-5% per trade\n   - Use appropriate leverage (1-20x)\n")
	b.WriteString("3. Position Sizing:\n   - Conservative: 1-2% risk\n   - Moderate: 2-4% risk\n   - Aggressive: 4-5% risk\n")
	b.WriteString("4. Exit Strategy:\n   - Close losing positions quickly\n   - Let winners run\n   - Use technical indicators\n\n")

	b.WriteString("OUTPUT FORMAT (JSON only):\n```json\n{\n  \"COIN\": {\n    \"signal\": \"buy_to_enter|sell_to_enter|hold|close_position\",\n    \"quantity\": 0.5,\n    \"leverage\": 10,\n    \"profit_target\": 45000.0,\n    \"stop_loss\": 42000.0,\n    \"confidence\": 0.75,\n    \"justification\": \"Brief reason\"\n  }\n}\n```\n\nAnalyze and output JSON only.")

	return b.String()
}

// PromptSummary is the short form persisted with each conversation record.
func PromptSummary(market model.MarketState, valuation model.Valuation, account AccountInfo) string {
	return fmt.Sprintf("Market State: %d coins, Portfolio: %d positions, Return: %.2f%%",
		len(market), len(valuation.Positions), account.TotalReturn)
}

func sortedAssets(market model.MarketState) []string {
	assets := make([]string, 0, len(market))
	for asset := range market {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}
