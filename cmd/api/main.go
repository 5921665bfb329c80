package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agoranet/backend/internal/agents"
	"github.com/agoranet/backend/internal/config"
	"github.com/agoranet/backend/internal/economy"
	"github.com/agoranet/backend/internal/fabric"
	"github.com/agoranet/backend/internal/fulfillment"
	"github.com/agoranet/backend/internal/handlers"
	"github.com/agoranet/backend/internal/hedera"
	"github.com/agoranet/backend/internal/infra"
	"github.com/agoranet/backend/internal/middleware"
	"github.com/agoranet/backend/internal/monitoring"
)

func main() {
	// .env is optional; real deployments inject environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Server.Env == "development" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Consensus backend: mock unless an operator private key is configured.
	bus := hedera.NewClient(cfg.Hedera.AccountID, cfg.Hedera.PrivateKey, cfg.Hedera.Network)
	slog.Info("Consensus client ready",
		"network", bus.Network(), "account", bus.AccountID(), "mock", bus.IsMock())

	topics, err := bus.EnsureTopics(ctx, agents.TopicNames(), cfg.Hedera.Topics)
	if err != nil {
		slog.Error("Failed to ensure topics", "error", err)
		os.Exit(1)
	}

	// Event bus: Redis-backed fan-out when configured, in-process otherwise.
	var eventBus fabric.EventBus = fabric.NewLocalEventBus()
	if cfg.Redis.Addr != "" {
		redisClient, err := infra.NewGoRedisAdapter(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			slog.Warn("Redis unavailable, using local event bus", "error", err)
		} else {
			defer redisClient.Close()
			eventBus = fabric.NewRedisEventBus(redisClient, "economy:events:")
		}
	}

	store := economy.NewStore(
		economy.WithHistoryCaps(cfg.Economy.MessageHistory, cfg.Economy.TransactionHistory),
		economy.WithEventBus(eventBus),
	)
	store.SetTopics(topics)

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	// Fulfillment backend: Anthropic when a key is present, canned otherwise.
	var completer fulfillment.Completer = fulfillment.NewCannedCompleter()
	if cfg.Fulfillment.APIKey != "" {
		anthropic, err := fulfillment.NewAnthropicClient(fulfillment.AnthropicConfig{
			APIKey:    cfg.Fulfillment.APIKey,
			BaseURL:   cfg.Fulfillment.BaseURL,
			Model:     cfg.Fulfillment.Model,
			MaxTokens: cfg.Fulfillment.MaxTokens,
		})
		if err != nil {
			slog.Warn("Anthropic client unavailable, using canned fulfillment", "error", err)
		} else {
			completer = anthropic
			slog.Info("Fulfillment backend ready", "model", cfg.Fulfillment.Model)
		}
	} else {
		slog.Info("No fulfillment API key, responses will be canned")
	}

	// Agent roster. Workers register executable handles in the directory;
	// the broker resolves assignments through it.
	directory := agents.NewDirectory()

	registry := agents.NewRegistry(bus, store,
		time.Duration(cfg.Economy.HeartbeatSeconds)*time.Second, metrics)

	settlement := agents.NewSettlement(bus, store, cfg.Economy.SettlementQueueSize, metrics)

	broker := agents.NewBroker(bus, store, directory, metrics,
		agents.WithBrokerQueueSize(cfg.Economy.TaskQueueSize),
		agents.WithSettlement(settlement))

	workers := make([]*agents.Worker, 0, len(cfg.Workers))
	for _, profile := range cfg.Workers {
		w := agents.NewWorker(bus, store, completer,
			profile.Type, profile.Skills, cfg.Economy.WorkerShare, metrics)
		directory.Register(w)
		workers = append(workers, w)
	}
	metrics.AgentsTotal.Set(float64(len(store.Agents())))

	// One goroutine per agent, all torn down by the signal context.
	var wg sync.WaitGroup
	runAgent := func(run func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx)
		}()
	}
	runAgent(registry.Run)
	runAgent(settlement.Run)
	runAgent(broker.Run)
	for _, w := range workers {
		runAgent(w.Run)
	}

	stream := fabric.NewStream(
		func() any { return store.Snapshot() },
		time.Duration(cfg.Economy.SnapshotSeconds)*time.Second,
		eventBus)
	runAgent(stream.Run)

	limiter := middleware.NewRateLimiter(60)

	router := mux.NewRouter()
	router.HandleFunc("/health", handlers.Health(bus, store)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/ws", stream.HandleWebSocket)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/state", handlers.State(store)).Methods("GET")
	api.HandleFunc("/agents", handlers.Agents(store)).Methods("GET")
	api.HandleFunc("/messages", handlers.Messages(store)).Methods("GET")
	api.HandleFunc("/transactions", handlers.Transactions(store)).Methods("GET")
	api.Handle("/task", limiter.Middleware(handlers.SubmitTask(broker))).Methods("POST")
	api.HandleFunc("/demo/run", handlers.DemoRun(broker)).Methods("POST")

	router.Use(middleware.CORS)
	router.Use(middleware.Logging)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
		// Task submission is synchronous and may wait on the fulfillment
		// backend, so the write timeout stays generous.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Agent economy API listening",
			"port", cfg.Server.Port, "env", cfg.Server.Env, "workers", len(workers))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Server shutdown", "error", err)
	}

	wg.Wait()
	slog.Info("All agents stopped")
}
