package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"trade-arena/internal/marketdata"
	"trade-arena/internal/metrics"
	"trade-arena/internal/model"
	"trade-arena/internal/oracle"
	"trade-arena/internal/portfolio"
)

// MarketSource supplies live quotes and technical indicators.
// *marketdata.Fetcher satisfies it.
type MarketSource interface {
	CurrentPrices(ctx context.Context, assets []string) (map[string]marketdata.Quote, error)
	Indicators(ctx context.Context, asset string) (map[string]float64, error)
}

// DecisionSource turns market and account state into per-asset decisions.
// *oracle.Client satisfies it.
type DecisionSource interface {
	Decide(ctx context.Context, market model.MarketState, valuation model.Valuation, account oracle.AccountInfo) (model.DecisionMap, string, error)
}

// CycleResult is the outcome of one full trading cycle for one agent.
type CycleResult struct {
	AgentID    int64             `json:"agent_id"`
	Success    bool              `json:"success"`
	Decisions  model.DecisionMap `json:"decisions,omitempty"`
	Executions []ExecutionResult `json:"executions,omitempty"`
	Portfolio  *model.Valuation  `json:"portfolio,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration"`
}

// Engine runs trading cycles for one agent. A cycle gathers market state,
// values the account, asks the oracle for decisions, applies them, then
// revalues and snapshots the account. Cycles are not atomic: applied trades
// stay applied even if a later step fails, and the next successful cycle's
// snapshot catches the history up.
//
// RunCycle is not safe for concurrent use on the same agent; the manager
// serializes cycles per agent.
type Engine struct {
	agent    model.Agent
	ledger   Ledger
	calc     *portfolio.Calculator
	market   MarketSource
	oracle   DecisionSource
	executor *Executor
	assets   []string
	metrics  *metrics.Metrics
}

func New(agent model.Agent, ledger Ledger, market MarketSource, decider DecisionSource, assets []string, m *metrics.Metrics) *Engine {
	return &Engine{
		agent:    agent,
		ledger:   ledger,
		calc:     portfolio.NewCalculator(ledger),
		market:   market,
		oracle:   decider,
		executor: NewExecutor(agent.ID, ledger, assets, m),
		assets:   assets,
		metrics:  m,
	}
}

func (e *Engine) AgentID() int64 { return e.agent.ID }

// RunCycle executes one full cycle. It always returns a CycleResult; a
// failure in any step (including a panic below the boundary) produces a
// failed result, never an escaping panic.
func (e *Engine) RunCycle(ctx context.Context) (result CycleResult) {
	start := time.Now().UTC()
	result = CycleResult{AgentID: e.agent.ID, StartedAt: start}
	defer func() {
		result.Duration = time.Since(start)
		if r := recover(); r != nil {
			log.Printf("[engine] agent %d cycle panic: %v", e.agent.ID, r)
			result = CycleResult{
				AgentID:   e.agent.ID,
				StartedAt: start,
				Duration:  time.Since(start),
				Error:     fmt.Sprintf("cycle panic: %v", r),
			}
		}
		if e.metrics != nil {
			status := "failure"
			if result.Success {
				status = "success"
			}
			e.metrics.CyclesTotal.WithLabelValues(status).Inc()
			e.metrics.CycleDuration.Observe(result.Duration.Seconds())
		}
	}()

	market, err := e.gatherMarket(ctx)
	if err != nil {
		result.Error = fmt.Sprintf("market data: %v", err)
		return result
	}

	valuation, err := e.calc.Valuation(e.agent.ID, market.Prices())
	if err != nil {
		result.Error = fmt.Sprintf("valuation: %v", err)
		return result
	}

	account := oracle.AccountInfo{
		CurrentTime:    start.Format("2006-01-02 15:04:05 UTC"),
		InitialCapital: e.agent.InitialCapital,
	}
	if e.agent.InitialCapital > 0 {
		account.TotalReturn = (valuation.TotalValue - e.agent.InitialCapital) / e.agent.InitialCapital * 100
	}

	if e.metrics != nil {
		e.metrics.OracleCalls.Inc()
	}
	decisions, raw, err := e.oracle.Decide(ctx, market, valuation, account)
	if err != nil {
		if e.metrics != nil {
			e.metrics.OracleErrors.Inc()
		}
		result.Error = fmt.Sprintf("oracle: %v", err)
		return result
	}
	if err := e.ledger.AppendConversation(e.agent.ID, oracle.PromptSummary(market, valuation, account), raw); err != nil {
		result.Error = fmt.Sprintf("record conversation: %v", err)
		return result
	}
	result.Decisions = decisions

	// All margin checks in this batch run against the pre-decision valuation.
	result.Executions = e.executor.Execute(decisions, market, valuation)

	updated, err := e.calc.Valuation(e.agent.ID, market.Prices())
	if err != nil {
		result.Error = fmt.Sprintf("revaluation: %v", err)
		return result
	}
	if err := e.ledger.AppendSnapshot(e.agent.ID, updated.TotalValue, updated.Cash, updated.PositionsValue); err != nil {
		if e.metrics != nil {
			e.metrics.SnapshotFailures.Inc()
		}
		result.Error = fmt.Sprintf("snapshot: %v", err)
		return result
	}

	result.Portfolio = &updated
	result.Success = true
	log.Printf("[engine] agent %d cycle done: %d decisions, %d executions, total=%.2f",
		e.agent.ID, len(decisions), len(result.Executions), updated.TotalValue)
	return result
}

// gatherMarket fetches quotes for every tracked asset and decorates each
// with indicators. A missing indicator set is not fatal; the asset is sent
// to the oracle with price data only.
func (e *Engine) gatherMarket(ctx context.Context) (model.MarketState, error) {
	quotes, err := e.market.CurrentPrices(ctx, e.assets)
	if err != nil {
		return nil, err
	}
	state := make(model.MarketState, len(quotes))
	for _, asset := range e.assets {
		q, ok := quotes[asset]
		if !ok {
			continue
		}
		as := model.AssetState{Price: q.Price, Change24h: q.Change24h}
		ind, err := e.market.Indicators(ctx, asset)
		if err != nil {
			log.Printf("[engine] indicators for %s unavailable: %v", asset, err)
		} else if ind != nil {
			as.Indicators = ind
		}
		state[asset] = as
	}
	if len(state) == 0 {
		return nil, fmt.Errorf("no market data for tracked assets")
	}
	return state, nil
}
