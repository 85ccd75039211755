package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trade-arena/config"
	"trade-arena/internal/api"
	"trade-arena/internal/engine"
	"trade-arena/internal/gateway"
	"trade-arena/internal/logger"
	"trade-arena/internal/manager"
	"trade-arena/internal/marketdata"
	"trade-arena/internal/metrics"
	"trade-arena/internal/notification"
	"trade-arena/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("trade-arena", slog.LevelInfo)
	log.Println("[server] starting...")

	cfg := config.Load()

	store, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[server] sqlite open failed: %v", err)
	}
	defer store.Close()
	log.Printf("[server] sqlite ready at %s", cfg.SQLitePath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis backs the market data cache. The service runs without it; the
	// cache degrades to in-memory and health reports degraded.
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[server] WARNING: redis unavailable at %s: %v", cfg.RedisAddr, err)
		rdb = nil
	} else {
		log.Printf("[server] redis connected at %s", cfg.RedisAddr)
	}

	m := metrics.New()
	health := metrics.NewHealthStatus()
	health.StartLivenessChecker(ctx, rdb, store.DB(), 15*time.Second)

	cache := marketdata.NewCache(rdb, 5*time.Second)
	fetcher := marketdata.NewFetcher(cache, m)

	hub := gateway.NewHub()

	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}

	mgr := manager.New(manager.Options{
		Store:        store,
		Market:       fetcher,
		Metrics:      m,
		Health:       health,
		Assets:       cfg.ParseAssets(),
		LoopInterval: cfg.LoopInterval,
		IdleInterval: cfg.IdleInterval,
		CycleTimeout: cfg.CycleTimeout,
		OnCycle: func(result engine.CycleResult) {
			hub.BroadcastCycle(result)
			notification.NotifyCycle(ctx, notifiers, result)
		},
		OnDelete: hub.DropAgent,
	})
	if err := mgr.InitializeEngines(); err != nil {
		log.Fatalf("[server] engine initialization failed: %v", err)
	}
	mgr.Start()

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	mux := http.NewServeMux()
	api.NewServer(store, mgr, fetcher, cfg).RegisterRoutes(mux)
	mux.HandleFunc("/ws", hub.HandleWS)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[server] serving at http://localhost%s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[server] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[server] shutting down...")
	cancel()
	mgr.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
}
