// Package sqlite implements the durable ledger store for agents, positions,
// trades, oracle conversations, and account snapshots.
//
// Trades and snapshots are append-only; positions are an upsert keyed by
// (agent_id, asset, side). All keys are agent-scoped so cycles for different
// agents never contend on the same rows.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"trade-arena/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// ErrAgentNotFound is returned when an agent id has no row.
var ErrAgentNotFound = errors.New("agent not found")

// Store provides ledger access backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database with WAL mode and the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[store] opened ledger at %s", path)
	return &Store{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS agents (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		name            TEXT NOT NULL,
		api_key         TEXT NOT NULL,
		api_url         TEXT NOT NULL,
		model_name      TEXT NOT NULL,
		initial_capital REAL NOT NULL DEFAULT 10000,
		created_at      TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id   INTEGER NOT NULL,
		asset      TEXT NOT NULL,
		quantity   REAL NOT NULL,
		avg_price  REAL NOT NULL,
		leverage   INTEGER NOT NULL DEFAULT 1,
		side       TEXT NOT NULL DEFAULT 'long',
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(agent_id, asset, side)
	);

	CREATE TABLE IF NOT EXISTS trades (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id  INTEGER NOT NULL,
		asset     TEXT NOT NULL,
		signal    TEXT NOT NULL,
		quantity  REAL NOT NULL,
		price     REAL NOT NULL,
		leverage  INTEGER NOT NULL DEFAULT 1,
		side      TEXT NOT NULL DEFAULT 'long',
		pnl       REAL NOT NULL DEFAULT 0,
		timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_agent ON trades(agent_id, id);

	CREATE TABLE IF NOT EXISTS conversations (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id  INTEGER NOT NULL,
		prompt    TEXT NOT NULL,
		response  TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_agent ON conversations(agent_id, id);

	CREATE TABLE IF NOT EXISTS account_snapshots (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id        INTEGER NOT NULL,
		total_value     REAL NOT NULL,
		cash            REAL NOT NULL,
		positions_value REAL NOT NULL,
		timestamp       TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_agent ON account_snapshots(agent_id, id);
	`)
	return err
}

// CreateAgent inserts a new agent and returns its id.
func (s *Store) CreateAgent(a model.Agent) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`INSERT INTO agents (name, api_key, api_url, model_name, initial_capital, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.Name, a.OracleAPIKey, a.OracleAPIURL, a.OracleModel, a.InitialCapital, a.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert agent: %w", err)
	}
	return res.LastInsertId()
}

// GetAgent returns the agent with the given id, or ErrAgentNotFound.
func (s *Store) GetAgent(id int64) (model.Agent, error) {
	var a model.Agent
	err := s.db.QueryRow(
		`SELECT id, name, api_key, api_url, model_name, initial_capital, created_at
		 FROM agents WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.OracleAPIKey, &a.OracleAPIURL, &a.OracleModel, &a.InitialCapital, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Agent{}, ErrAgentNotFound
	}
	if err != nil {
		return model.Agent{}, fmt.Errorf("select agent: %w", err)
	}
	return a, nil
}

// ListAgents returns all agents, newest first.
func (s *Store) ListAgents() ([]model.Agent, error) {
	rows, err := s.db.Query(
		`SELECT id, name, api_key, api_url, model_name, initial_capital, created_at
		 FROM agents ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("select agents: %w", err)
	}
	defer rows.Close()

	var agents []model.Agent
	for rows.Next() {
		var a model.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.OracleAPIKey, &a.OracleAPIURL, &a.OracleModel, &a.InitialCapital, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// DeleteAgent removes an agent and all of its dependent ledger rows.
func (s *Store) DeleteAgent(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, q := range []string{
		`DELETE FROM agents WHERE id = ?`,
		`DELETE FROM positions WHERE agent_id = ?`,
		`DELETE FROM trades WHERE agent_id = ?`,
		`DELETE FROM conversations WHERE agent_id = ?`,
		`DELETE FROM account_snapshots WHERE agent_id = ?`,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			tx.Rollback()
			return fmt.Errorf("delete agent rows: %w", err)
		}
	}
	return tx.Commit()
}

// UpsertPosition sets the position for (agent, asset, side). An existing row
// is replaced outright: quantity and average price are overwritten, not
// weighted into the prior lot.
func (s *Store) UpsertPosition(agentID int64, asset string, quantity, avgPrice float64, leverage int, side model.Side) error {
	_, err := s.db.Exec(
		`INSERT INTO positions (agent_id, asset, quantity, avg_price, leverage, side, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(agent_id, asset, side) DO UPDATE SET
			quantity   = excluded.quantity,
			avg_price  = excluded.avg_price,
			leverage   = excluded.leverage,
			updated_at = excluded.updated_at`,
		agentID, asset, quantity, avgPrice, leverage, string(side), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// DeletePosition removes the position for (agent, asset, side).
func (s *Store) DeletePosition(agentID int64, asset string, side model.Side) error {
	_, err := s.db.Exec(
		`DELETE FROM positions WHERE agent_id = ? AND asset = ? AND side = ?`,
		agentID, asset, string(side),
	)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

// OpenPositions returns all open positions for an agent.
func (s *Store) OpenPositions(agentID int64) ([]model.Position, error) {
	rows, err := s.db.Query(
		`SELECT agent_id, asset, quantity, avg_price, leverage, side, updated_at
		 FROM positions WHERE agent_id = ? AND quantity > 0 ORDER BY id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("select positions: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var side string
		if err := rows.Scan(&p.AgentID, &p.Asset, &p.Quantity, &p.AvgPrice, &p.Leverage, &side, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.Side = model.Side(side)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// AppendTrade appends an immutable trade record.
func (s *Store) AppendTrade(t model.Trade) error {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO trades (agent_id, asset, signal, quantity, price, leverage, side, pnl, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.AgentID, t.Asset, t.Signal, t.Quantity, t.Price, t.Leverage, string(t.Side), t.PnL, t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListTrades returns the last limit trades for an agent, newest first.
func (s *Store) ListTrades(agentID int64, limit int) ([]model.Trade, error) {
	rows, err := s.db.Query(
		`SELECT id, agent_id, asset, signal, quantity, price, leverage, side, pnl, timestamp
		 FROM trades WHERE agent_id = ? ORDER BY id DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("select trades: %w", err)
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.AgentID, &t.Asset, &t.Signal, &t.Quantity, &t.Price, &t.Leverage, &side, &t.PnL, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = model.Side(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SumRealizedPnL returns the sum of all trade P&L for an agent.
func (s *Store) SumRealizedPnL(agentID int64) (float64, error) {
	var pnl float64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE agent_id = ?`, agentID,
	).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("sum pnl: %w", err)
	}
	return pnl, nil
}

// AppendConversation records one oracle prompt/response exchange for audit.
func (s *Store) AppendConversation(agentID int64, prompt, response string) error {
	_, err := s.db.Exec(
		`INSERT INTO conversations (agent_id, prompt, response, timestamp) VALUES (?, ?, ?, ?)`,
		agentID, prompt, response, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// ListConversations returns the last limit conversations, newest first.
func (s *Store) ListConversations(agentID int64, limit int) ([]model.Conversation, error) {
	rows, err := s.db.Query(
		`SELECT id, agent_id, prompt, response, timestamp
		 FROM conversations WHERE agent_id = ? ORDER BY id DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("select conversations: %w", err)
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.AgentID, &c.Prompt, &c.Response, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// AppendSnapshot records an account-value snapshot.
func (s *Store) AppendSnapshot(agentID int64, totalValue, cash, positionsValue float64) error {
	_, err := s.db.Exec(
		`INSERT INTO account_snapshots (agent_id, total_value, cash, positions_value, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		agentID, totalValue, cash, positionsValue, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns the last limit account snapshots, newest first.
func (s *Store) ListSnapshots(agentID int64, limit int) ([]model.AccountSnapshot, error) {
	rows, err := s.db.Query(
		`SELECT id, agent_id, total_value, cash, positions_value, timestamp
		 FROM account_snapshots WHERE agent_id = ? ORDER BY id DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("select snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []model.AccountSnapshot
	for rows.Next() {
		var snap model.AccountSnapshot
		if err := rows.Scan(&snap.ID, &snap.AgentID, &snap.TotalValue, &snap.Cash, &snap.PositionsValue, &snap.Timestamp); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
