// Package api exposes the REST surface of the trading arena: agent CRUD,
// portfolio and history reads, on-demand cycle execution, market prices,
// and the leaderboard.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"trade-arena/config"
	"trade-arena/internal/engine"
	"trade-arena/internal/manager"
	"trade-arena/internal/model"
	"trade-arena/internal/portfolio"
	"trade-arena/internal/store/sqlite"
)

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// Server wires the HTTP handlers to the store, the engine manager and the
// market data source.
type Server struct {
	store   *sqlite.Store
	calc    *portfolio.Calculator
	manager *manager.Manager
	market  engine.MarketSource
	cfg     *config.Config
	assets  []string
}

func NewServer(store *sqlite.Store, mgr *manager.Manager, market engine.MarketSource, cfg *config.Config) *Server {
	return &Server{
		store:   store,
		calc:    portfolio.NewCalculator(store),
		manager: mgr,
		market:  market,
		cfg:     cfg,
		assets:  cfg.ParseAssets(),
	}
}

// RegisterRoutes registers all REST routes on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/models", s.handleModels)
	mux.HandleFunc("/api/models/", s.handleModelByID)
	mux.HandleFunc("/api/market/prices", s.handleMarketPrices)
	mux.HandleFunc("/api/leaderboard", s.handleLeaderboard)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleModels serves GET (list) and POST (create) on /api/models.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		agents, err := s.store.ListAgents()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, agents)
	case http.MethodPost:
		var req struct {
			Name           string  `json:"name"`
			APIKey         string  `json:"api_key"`
			APIURL         string  `json:"api_url"`
			ModelName      string  `json:"model_name"`
			InitialCapital float64 `json:"initial_capital"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if req.Name == "" || req.APIKey == "" || req.APIURL == "" || req.ModelName == "" {
			writeError(w, http.StatusBadRequest, "name, api_key, api_url and model_name are required")
			return
		}
		if req.InitialCapital <= 0 {
			req.InitialCapital = s.cfg.DefaultInitialCapital
		}
		id, err := s.store.CreateAgent(model.Agent{
			Name:           req.Name,
			OracleAPIKey:   req.APIKey,
			OracleAPIURL:   req.APIURL,
			OracleModel:    req.ModelName,
			InitialCapital: req.InitialCapital,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if _, err := s.manager.Register(id); err != nil {
			log.Printf("[api] engine registration for agent %d failed: %v", id, err)
		}
		agent, err := s.store.GetAgent(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		log.Printf("[api] created agent %d (%s)", id, req.Name)
		writeJSON(w, http.StatusCreated, agent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleModelByID routes /api/models/{id} and its sub-resources:
// portfolio, trades, conversations, history, execute.
func (s *Server) handleModelByID(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/models/")
	idStr, sub, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodDelete:
		s.deleteAgent(w, id)
	case sub == "" && r.Method == http.MethodGet:
		agent, err := s.store.GetAgent(id)
		if err != nil {
			s.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agent)
	case sub == "portfolio" && r.Method == http.MethodGet:
		s.portfolio(w, r, id)
	case sub == "trades" && r.Method == http.MethodGet:
		s.trades(w, r, id)
	case sub == "conversations" && r.Method == http.MethodGet:
		s.conversations(w, r, id)
	case sub == "history" && r.Method == http.MethodGet:
		s.history(w, r, id)
	case sub == "execute" && r.Method == http.MethodPost:
		s.execute(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, sqlite.ErrAgentNotFound) || errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) deleteAgent(w http.ResponseWriter, id int64) {
	if _, err := s.store.GetAgent(id); err != nil {
		s.storeError(w, err)
		return
	}
	s.manager.Unregister(id)
	if err := s.store.DeleteAgent(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Printf("[api] deleted agent %d", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) portfolio(w http.ResponseWriter, r *http.Request, id int64) {
	prices := s.currentPrices(r.Context())
	v, err := s.calc.Valuation(id, prices)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) trades(w http.ResponseWriter, r *http.Request, id int64) {
	if _, err := s.store.GetAgent(id); err != nil {
		s.storeError(w, err)
		return
	}
	limit := queryLimit(r, s.cfg.MaxTradesReturned)
	trades, err := s.store.ListTrades(id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) conversations(w http.ResponseWriter, r *http.Request, id int64) {
	if _, err := s.store.GetAgent(id); err != nil {
		s.storeError(w, err)
		return
	}
	limit := queryLimit(r, s.cfg.MaxConversationsReturned)
	convos, err := s.store.ListConversations(id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, convos)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request, id int64) {
	if _, err := s.store.GetAgent(id); err != nil {
		s.storeError(w, err)
		return
	}
	limit := queryLimit(r, s.cfg.AccountHistoryLimit)
	snaps, err := s.store.ListSnapshots(id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, id int64) {
	result, err := s.manager.ExecuteNow(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMarketPrices(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	quotes, err := s.market.CurrentPrices(r.Context(), s.assets)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	out := make(map[string]map[string]float64, len(quotes))
	for asset, q := range quotes {
		out[asset] = map[string]float64{"price": q.Price, "change_24h": q.Change24h}
	}
	writeJSON(w, http.StatusOK, out)
}

// leaderboardEntry is one agent's standing, ranked by total account value.
type leaderboardEntry struct {
	AgentID       int64   `json:"agent_id"`
	Name          string  `json:"name"`
	ModelName     string  `json:"model_name"`
	TotalValue    float64 `json:"total_value"`
	Cash          float64 `json:"cash"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	ReturnPct     float64 `json:"return_pct"`
	OpenPositions int     `json:"open_positions"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	agents, err := s.store.ListAgents()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	prices := s.currentPrices(r.Context())

	entries := make([]leaderboardEntry, 0, len(agents))
	for _, a := range agents {
		v, err := s.calc.Valuation(a.ID, prices)
		if err != nil {
			log.Printf("[api] leaderboard valuation for agent %d failed: %v", a.ID, err)
			continue
		}
		e := leaderboardEntry{
			AgentID:       a.ID,
			Name:          a.Name,
			ModelName:     a.OracleModel,
			TotalValue:    v.TotalValue,
			Cash:          v.Cash,
			RealizedPnL:   v.RealizedPnL,
			UnrealizedPnL: v.UnrealizedPnL,
			OpenPositions: len(v.Positions),
		}
		if a.InitialCapital > 0 {
			e.ReturnPct = (v.TotalValue - a.InitialCapital) / a.InitialCapital * 100
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].TotalValue > entries[j].TotalValue })
	writeJSON(w, http.StatusOK, entries)
}

// currentPrices fetches live prices for the tracked set. Read endpoints
// degrade to entry-price valuations when the market is unreachable.
func (s *Server) currentPrices(ctx context.Context) map[string]float64 {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	quotes, err := s.market.CurrentPrices(ctx, s.assets)
	if err != nil {
		log.Printf("[api] market prices unavailable: %v", err)
		return nil
	}
	prices := make(map[string]float64, len(quotes))
	for asset, q := range quotes {
		prices[asset] = q.Price
	}
	return prices
}

func queryLimit(r *http.Request, def int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 && l <= 1000 {
			return l
		}
	}
	return def
}
