package engine

import (
	"fmt"
	"log"
	"time"

	"trade-arena/internal/metrics"
	"trade-arena/internal/model"
)

// Ledger is the store surface the engine needs: agent lookup, the open
// position book, the trade journal and the conversation/snapshot history.
// *sqlite.Store satisfies it.
type Ledger interface {
	GetAgent(id int64) (model.Agent, error)
	OpenPositions(agentID int64) ([]model.Position, error)
	SumRealizedPnL(agentID int64) (float64, error)
	UpsertPosition(agentID int64, asset string, quantity, avgPrice float64, leverage int, side model.Side) error
	DeletePosition(agentID int64, asset string, side model.Side) error
	AppendTrade(t model.Trade) error
	AppendConversation(agentID int64, prompt, response string) error
	AppendSnapshot(agentID int64, totalValue, cash, positionsValue float64) error
}

// ExecutionResult records the outcome of applying one decision to one asset.
type ExecutionResult struct {
	Asset    string  `json:"asset"`
	Signal   string  `json:"signal"`
	Quantity float64 `json:"quantity,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Leverage int     `json:"leverage,omitempty"`
	PnL      float64 `json:"pnl"`
	Accepted bool    `json:"accepted"`
	Error    string  `json:"error,omitempty"`

	reason string // metrics label, not serialized
}

// Executor applies a batch of oracle decisions for a single agent against
// the ledger. Margin checks run against the valuation snapshot taken before
// the batch started; the snapshot is not revised between entries, so two
// entries that each fit the starting cash are both accepted even when their
// combined margin exceeds it. The post-cycle valuation settles the book.
type Executor struct {
	agentID int64
	ledger  Ledger
	tracked map[string]bool
	metrics *metrics.Metrics
}

func NewExecutor(agentID int64, ledger Ledger, assets []string, m *metrics.Metrics) *Executor {
	tracked := make(map[string]bool, len(assets))
	for _, a := range assets {
		tracked[a] = true
	}
	return &Executor{agentID: agentID, ledger: ledger, tracked: tracked, metrics: m}
}

// Execute applies every decision in the map. Assets outside the tracked set
// are dropped silently. A failure on one asset never blocks the others.
func (x *Executor) Execute(decisions model.DecisionMap, market model.MarketState, snapshot model.Valuation) []ExecutionResult {
	results := make([]ExecutionResult, 0, len(decisions))
	for asset, d := range decisions {
		if !x.tracked[asset] {
			continue
		}
		res := x.apply(asset, d, market, snapshot)
		if x.metrics != nil {
			if res.Accepted {
				x.metrics.TradesTotal.WithLabelValues(res.Signal).Inc()
			} else if res.Error != "" {
				x.metrics.TradeErrors.WithLabelValues(res.reason).Inc()
			}
		}
		results = append(results, res)
	}
	return results
}

func (x *Executor) apply(asset string, d model.Decision, market model.MarketState, snapshot model.Valuation) ExecutionResult {
	res := ExecutionResult{Asset: asset, Signal: string(d.Signal)}
	switch d.Signal {
	case model.SignalBuyToEnter:
		return x.enter(res, asset, d, model.SideLong, market, snapshot)
	case model.SignalSellToEnter:
		return x.enter(res, asset, d, model.SideShort, market, snapshot)
	case model.SignalClosePosition:
		return x.close(res, asset, market, snapshot)
	case model.SignalHold:
		res.Accepted = true
		return res
	default:
		res.Signal = string(model.SignalUnknown)
		res.reason = "unknown_signal"
		res.Error = fmt.Sprintf("%v: %q", ErrUnknownSignal, d.RawSignal)
		return res
	}
}

func (x *Executor) enter(res ExecutionResult, asset string, d model.Decision, side model.Side, market model.MarketState, snapshot model.Valuation) ExecutionResult {
	state, ok := market[asset]
	if !ok || state.Price <= 0 {
		res.reason = "no_market_price"
		res.Error = fmt.Sprintf("%v for %s", ErrNoMarketPrice, asset)
		return res
	}
	if d.Quantity <= 0 {
		res.reason = "invalid_quantity"
		res.Error = fmt.Sprintf("%v: %g", ErrInvalidQuantity, d.Quantity)
		return res
	}
	leverage := d.Leverage
	if leverage < 1 {
		leverage = 1
	}
	margin := d.Quantity * state.Price / float64(leverage)
	if margin > snapshot.Cash {
		res.reason = "insufficient_cash"
		res.Error = fmt.Sprintf("%v: need %.2f margin, have %.2f", ErrInsufficientCash, margin, snapshot.Cash)
		return res
	}

	// Replace semantics: an entry on an asset/side the agent already holds
	// overwrites quantity, price and leverage instead of averaging in.
	if err := x.ledger.UpsertPosition(x.agentID, asset, d.Quantity, state.Price, leverage, side); err != nil {
		res.reason = "store_error"
		res.Error = err.Error()
		return res
	}
	if err := x.ledger.AppendTrade(model.Trade{
		AgentID:   x.agentID,
		Asset:     asset,
		Signal:    string(d.Signal),
		Side:      side,
		Quantity:  d.Quantity,
		Price:     state.Price,
		Leverage:  leverage,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		res.reason = "store_error"
		res.Error = err.Error()
		return res
	}
	res.Accepted = true
	res.Quantity = d.Quantity
	res.Price = state.Price
	res.Leverage = leverage
	log.Printf("[engine] agent %d opened %s %s qty=%g price=%.2f lev=%d", x.agentID, side, asset, d.Quantity, state.Price, leverage)
	return res
}

func (x *Executor) close(res ExecutionResult, asset string, market model.MarketState, snapshot model.Valuation) ExecutionResult {
	pos := snapshot.FindPosition(asset)
	if pos == nil {
		res.reason = "position_not_found"
		res.Error = fmt.Sprintf("%v: %s", ErrPositionNotFound, asset)
		return res
	}
	state, ok := market[asset]
	if !ok || state.Price <= 0 {
		res.reason = "no_market_price"
		res.Error = fmt.Sprintf("%v for %s", ErrNoMarketPrice, asset)
		return res
	}
	pnl := pos.UnrealizedPnL(state.Price)
	if err := x.ledger.DeletePosition(x.agentID, asset, pos.Side); err != nil {
		res.reason = "store_error"
		res.Error = err.Error()
		return res
	}
	if err := x.ledger.AppendTrade(model.Trade{
		AgentID:   x.agentID,
		Asset:     asset,
		Signal:    string(model.SignalClosePosition),
		Side:      pos.Side,
		Quantity:  pos.Quantity,
		Price:     state.Price,
		Leverage:  pos.Leverage,
		PnL:       pnl,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		res.reason = "store_error"
		res.Error = err.Error()
		return res
	}
	res.Accepted = true
	res.Quantity = pos.Quantity
	res.Price = state.Price
	res.Leverage = pos.Leverage
	res.PnL = pnl
	log.Printf("[engine] agent %d closed %s %s qty=%g price=%.2f pnl=%.2f", x.agentID, pos.Side, asset, pos.Quantity, state.Price, pnl)
	return res
}
