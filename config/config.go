package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	ListenAddr    string
	MetricsAddr   string

	// Tracked assets (comma-separated symbols, e.g. "BTC,ETH,SOL")
	TrackedAssets string

	// Scheduler
	LoopInterval time.Duration // wait between automated trading cycle passes
	IdleInterval time.Duration // wait when no engines are registered
	CycleTimeout time.Duration // ceiling for one agent's full cycle

	// Starting balance for agents created without one
	DefaultInitialCapital float64

	// Alert channels; empty values disable a channel
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string

	// API history limits
	MaxTradesReturned        int
	MaxConversationsReturned int
	AccountHistoryLimit      int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		SQLitePath:    getEnv("SQLITE_PATH", "data/arena.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		TrackedAssets: getEnv("TRACKED_ASSETS", "BTC,ETH,SOL,BNB,XRP,DOGE"),

		LoopInterval: getDuration("LOOP_INTERVAL", 180*time.Second),
		IdleInterval: getDuration("IDLE_INTERVAL", 30*time.Second),
		CycleTimeout: getDuration("CYCLE_TIMEOUT", 120*time.Second),

		DefaultInitialCapital: getFloat("DEFAULT_INITIAL_CAPITAL", 100000),

		WebhookURL:       getEnv("ALERT_WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		MaxTradesReturned:        getInt("MAX_TRADES_RETURNED", 50),
		MaxConversationsReturned: getInt("MAX_CONVERSATIONS_RETURNED", 20),
		AccountHistoryLimit:      getInt("ACCOUNT_HISTORY_LIMIT", 100),
	}
}

// ParseAssets parses the TrackedAssets string into a slice of symbols.
func (c *Config) ParseAssets() []string {
	parts := strings.Split(c.TrackedAssets, ",")
	assets := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		assets = append(assets, p)
	}
	return assets
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Accept plain seconds ("180") or a Go duration ("3m").
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return d
}
