package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading arena.
type Metrics struct {
	CyclesTotal   *prometheus.CounterVec // labels: status=success|failure
	CycleDuration prometheus.Histogram
	TradesTotal   *prometheus.CounterVec // labels: signal
	TradeErrors   *prometheus.CounterVec // labels: reason

	OracleCalls      prometheus.Counter
	OracleErrors     prometheus.Counter
	MarketFallbacks  prometheus.Counter
	MarketFetchDur   prometheus.Histogram
	EnginesActive    prometheus.Gauge
	SnapshotFailures prometheus.Counter
}

// New registers and returns all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_cycles_total",
			Help: "Trading cycles executed, by outcome",
		}, []string{"status"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arena_cycle_duration_seconds",
			Help:    "Full trading cycle latency per agent",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_trades_total",
			Help: "Executed trades, by signal",
		}, []string{"signal"}),
		TradeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_trade_errors_total",
			Help: "Per-asset execution failures, by reason",
		}, []string{"reason"}),
		OracleCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_oracle_calls_total",
			Help: "Decision oracle invocations",
		}),
		OracleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_oracle_errors_total",
			Help: "Decision oracle failures (unreachable or malformed)",
		}),
		MarketFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_market_fallbacks_total",
			Help: "Price fetches served by the secondary source",
		}),
		MarketFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arena_market_fetch_duration_seconds",
			Help:    "Market data fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		EnginesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arena_engines_active",
			Help: "Currently registered trading engines",
		}),
		SnapshotFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_snapshot_failures_total",
			Help: "Account snapshot writes that failed after trades committed",
		}),
	}

	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.TradesTotal,
		m.TradeErrors,
		m.OracleCalls,
		m.OracleErrors,
		m.MarketFallbacks,
		m.MarketFetchDur,
		m.EnginesActive,
		m.SnapshotFailures,
	)

	return m
}

// HealthStatus represents system health.
type HealthStatus struct {
	mu sync.RWMutex

	SQLiteOK       bool      `json:"sqlite_ok"`
	RedisConnected bool      `json:"redis_connected"`
	LastCycleTime  time.Time `json:"last_cycle_time"`

	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

// SetLastCycleTime records when the scheduler last completed a cycle pass.
func (h *HealthStatus) SetLastCycleTime(t time.Time) {
	h.mu.Lock()
	h.LastCycleTime = t
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	httpCode := http.StatusOK
	if !h.SQLiteOK {
		status = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if !h.RedisConnected {
		// Redis is a cache; losing it degrades but does not break trading.
		status = "degraded"
	}

	lastCycle := ""
	if !h.LastCycleTime.IsZero() {
		lastCycle = h.LastCycleTime.Format(time.RFC3339)
	}

	out := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		LastCycleTime   string  `json:"last_cycle_time"`
	}{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		LastCycleTime:   lastCycle,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(out)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv:    &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
