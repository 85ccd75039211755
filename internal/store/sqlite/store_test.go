package sqlite

import (
	"path/filepath"
	"testing"

	"trade-arena/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestAgent(t *testing.T, s *Store, capital float64) int64 {
	t.Helper()
	id, err := s.CreateAgent(model.Agent{
		Name:           "test-agent",
		OracleAPIKey:   "key",
		OracleAPIURL:   "https://api.example.com/v1",
		OracleModel:    "gpt-test",
		InitialCapital: capital,
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return id
}

func TestAgentLifecycle(t *testing.T) {
	s := openTestStore(t)

	id := createTestAgent(t, s, 100000)

	a, err := s.GetAgent(id)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if a.Name != "test-agent" || a.InitialCapital != 100000 {
		t.Errorf("unexpected agent: %+v", a)
	}

	agents, err := s.ListAgents()
	if err != nil {
		t.Fatalf("list agents: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(agents))
	}

	if _, err := s.GetAgent(9999); err != ErrAgentNotFound {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestDeleteAgentCascades(t *testing.T) {
	s := openTestStore(t)
	id := createTestAgent(t, s, 100000)

	if err := s.UpsertPosition(id, "BTC", 1, 50000, 10, model.SideLong); err != nil {
		t.Fatalf("upsert position: %v", err)
	}
	if err := s.AppendTrade(model.Trade{AgentID: id, Asset: "BTC", Signal: "buy_to_enter", Quantity: 1, Price: 50000, Leverage: 10, Side: model.SideLong}); err != nil {
		t.Fatalf("append trade: %v", err)
	}
	if err := s.AppendConversation(id, "prompt", "{}"); err != nil {
		t.Fatalf("append conversation: %v", err)
	}
	if err := s.AppendSnapshot(id, 100000, 95000, 50000); err != nil {
		t.Fatalf("append snapshot: %v", err)
	}

	if err := s.DeleteAgent(id); err != nil {
		t.Fatalf("delete agent: %v", err)
	}

	if _, err := s.GetAgent(id); err != ErrAgentNotFound {
		t.Errorf("agent still present after delete: %v", err)
	}
	positions, _ := s.OpenPositions(id)
	if len(positions) != 0 {
		t.Errorf("positions not cascaded: %d left", len(positions))
	}
	trades, _ := s.ListTrades(id, 10)
	if len(trades) != 0 {
		t.Errorf("trades not cascaded: %d left", len(trades))
	}
	convs, _ := s.ListConversations(id, 10)
	if len(convs) != 0 {
		t.Errorf("conversations not cascaded: %d left", len(convs))
	}
	snaps, _ := s.ListSnapshots(id, 10)
	if len(snaps) != 0 {
		t.Errorf("snapshots not cascaded: %d left", len(snaps))
	}
}

func TestUpsertPositionReplaces(t *testing.T) {
	s := openTestStore(t)
	id := createTestAgent(t, s, 100000)

	if err := s.UpsertPosition(id, "BTC", 1, 50000, 10, model.SideLong); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Re-entering overwrites quantity/avg-price, it does not average.
	if err := s.UpsertPosition(id, "BTC", 2, 60000, 5, model.SideLong); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	positions, err := s.OpenPositions(id)
	if err != nil {
		t.Fatalf("open positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	p := positions[0]
	if p.Quantity != 2 || p.AvgPrice != 60000 || p.Leverage != 5 {
		t.Errorf("replace semantics violated: %+v", p)
	}
}

func TestSameAssetBothSides(t *testing.T) {
	s := openTestStore(t)
	id := createTestAgent(t, s, 100000)

	if err := s.UpsertPosition(id, "ETH", 1, 3000, 2, model.SideLong); err != nil {
		t.Fatalf("upsert long: %v", err)
	}
	if err := s.UpsertPosition(id, "ETH", 2, 3100, 3, model.SideShort); err != nil {
		t.Fatalf("upsert short: %v", err)
	}

	positions, _ := s.OpenPositions(id)
	if len(positions) != 2 {
		t.Fatalf("expected simultaneous long+short, got %d rows", len(positions))
	}

	if err := s.DeletePosition(id, "ETH", model.SideShort); err != nil {
		t.Fatalf("delete position: %v", err)
	}
	positions, _ = s.OpenPositions(id)
	if len(positions) != 1 || positions[0].Side != model.SideLong {
		t.Errorf("expected only long side remaining: %+v", positions)
	}
}

func TestTradesNewestFirstAndPnLSum(t *testing.T) {
	s := openTestStore(t)
	id := createTestAgent(t, s, 100000)

	for i, pnl := range []float64{0, 0, 5000} {
		tr := model.Trade{
			AgentID: id, Asset: "BTC", Signal: "buy_to_enter",
			Quantity: float64(i + 1), Price: 50000, Leverage: 1,
			Side: model.SideLong, PnL: pnl,
		}
		if err := s.AppendTrade(tr); err != nil {
			t.Fatalf("append trade %d: %v", i, err)
		}
	}

	trades, err := s.ListTrades(id, 2)
	if err != nil {
		t.Fatalf("list trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("limit not applied: got %d", len(trades))
	}
	if trades[0].Quantity != 3 {
		t.Errorf("expected newest first, got quantity %v", trades[0].Quantity)
	}

	pnl, err := s.SumRealizedPnL(id)
	if err != nil {
		t.Fatalf("sum pnl: %v", err)
	}
	if pnl != 5000 {
		t.Errorf("expected realized pnl 5000, got %v", pnl)
	}

	// Agent with no trades sums to zero, not an error.
	other := createTestAgent(t, s, 1000)
	pnl, err = s.SumRealizedPnL(other)
	if err != nil || pnl != 0 {
		t.Errorf("expected 0 pnl for fresh agent, got %v err=%v", pnl, err)
	}
}

func TestSnapshotHistory(t *testing.T) {
	s := openTestStore(t)
	id := createTestAgent(t, s, 100000)

	for i := 0; i < 3; i++ {
		if err := s.AppendSnapshot(id, 100000+float64(i), 95000, 5000); err != nil {
			t.Fatalf("append snapshot %d: %v", i, err)
		}
	}

	snaps, err := s.ListSnapshots(id, 10)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snaps))
	}
	if snaps[0].TotalValue != 100002 {
		t.Errorf("expected newest first, got %v", snaps[0].TotalValue)
	}
}
