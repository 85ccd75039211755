package oracle

import (
	"encoding/json"
	"log"
	"strings"

	"trade-arena/internal/model"
)

// ParseDecisions extracts a decision map from a raw oracle response. LLMs
// wrap JSON in markdown fences more often than not, so fences are stripped
// first. A response that cannot be parsed at all yields an empty map;
// individually malformed per-asset entries are skipped.
func ParseDecisions(raw string) model.DecisionMap {
	text := stripFences(strings.TrimSpace(raw))
	if text == "" {
		return model.DecisionMap{}
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		log.Printf("[oracle] unparseable response (%v), treating as no decisions", err)
		return model.DecisionMap{}
	}

	decisions := make(model.DecisionMap, len(entries))
	for asset, rawEntry := range entries {
		var wire struct {
			Signal        string  `json:"signal"`
			Quantity      float64 `json:"quantity"`
			Leverage      float64 `json:"leverage"`
			ProfitTarget  float64 `json:"profit_target"`
			StopLoss      float64 `json:"stop_loss"`
			Confidence    float64 `json:"confidence"`
			Justification string  `json:"justification"`
		}
		if err := json.Unmarshal(rawEntry, &wire); err != nil {
			log.Printf("[oracle] skipping malformed decision for %s: %v", asset, err)
			continue
		}

		d := model.Decision{
			Signal:        model.ParseSignalKind(wire.Signal),
			Quantity:      wire.Quantity,
			Leverage:      int(wire.Leverage),
			ProfitTarget:  wire.ProfitTarget,
			StopLoss:      wire.StopLoss,
			Confidence:    wire.Confidence,
			Justification: wire.Justification,
		}
		if d.Signal == model.SignalUnknown {
			d.RawSignal = wire.Signal
		}
		decisions[strings.ToUpper(strings.TrimSpace(asset))] = d
	}
	return decisions
}

// stripFences removes a surrounding ```json ... ``` (or bare ```) block.
func stripFences(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		text = text[idx+len("```json"):]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	} else if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+len("```"):]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}
	return strings.TrimSpace(text)
}
