package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/crypto_bot_engine/internal/config"
	"github.com/vitos/crypto_bot_engine/internal/events"
	"github.com/vitos/crypto_bot_engine/internal/infrastructure/exchange"
	"github.com/vitos/crypto_bot_engine/internal/infrastructure/logger"
	"github.com/vitos/crypto_bot_engine/internal/infrastructure/notify"
	"github.com/vitos/crypto_bot_engine/internal/infrastructure/storage"
	"github.com/vitos/crypto_bot_engine/internal/strategy"
	"github.com/vitos/crypto_bot_engine/internal/usecase"
	"github.com/vitos/crypto_bot_engine/internal/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Init Storage
	kv, err := openStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("Failed to init storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer kv.Close()
	repo := storage.NewRepository(kv)

	// 4. Init Exchange
	gateway := exchange.NewBinanceAdapter(
		cfg.Exchange.APIKey,
		cfg.Exchange.APISecret,
		cfg.Exchange.RESTEndpoint,
		cfg.Exchange.RecvWindowMs,
		cfg.ExchangeTimeout(),
		log.Named("binance"),
	)
	if err := gateway.Ping(ctx); err != nil {
		log.Warn("Exchange ping failed", zap.Error(err))
	}

	// 5. Events and notification sinks
	hub := events.NewHub()
	defer hub.Close()

	var sinks []notify.Sink
	if cfg.Notify.Kafka.Enabled {
		w, err := notify.NewKafkaWriter(cfg.Notify.Kafka.Brokers, cfg.Notify.Kafka.Topic)
		if err != nil {
			log.Fatal("Failed to init kafka writer", zap.Error(err))
		}
		sinks = append(sinks, notify.NewKafkaSink(w))
	}
	if cfg.Notify.Telegram.Enabled {
		tg, err := notify.NewTelegramSink(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
		if err != nil {
			log.Error("Failed to init telegram, notifications disabled", zap.Error(err))
		} else {
			sinks = append(sinks, tg)
		}
	}
	for _, sink := range sinks {
		go notify.Forward(ctx, hub.Subscribe(256), sink, log)
		defer sink.Close()
	}

	// 6. Init Engine
	scheduler := usecase.NewCronScheduler(cfg.Location(), cfg.Engine.DailyHour, log)
	engine := usecase.NewBotEngine(
		gateway,
		repo,
		repo,
		strategy.DefaultRegistry(),
		hub,
		scheduler,
		usecase.EngineConfig{
			CandleLimit:        cfg.Engine.CandleLimit,
			DefaultCredentials: cfg.Credentials(),
		},
		log.Named("engine"),
	)
	scheduler.Start()

	resumed, err := engine.Resume(ctx, cfg.Engine.ResumeOnStart)
	if err != nil {
		log.Error("Failed to resume bots", zap.Error(err))
	} else if resumed > 0 {
		log.Info("Resumed bots", zap.Int("count", resumed))
	}

	for _, spec := range cfg.Bots {
		id, err := engine.Start(ctx, spec.BotConfig())
		if err != nil {
			log.Error("Failed to start configured bot", zap.String("symbol", spec.Symbol), zap.Error(err))
			continue
		}
		log.Info("Configured bot started", zap.String("bot_id", id))
	}

	// 7. Init Web Server
	server := web.NewServer(cfg.Server.Port, engine, hub, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	// 8. Wait for Shutdown
	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}

	// Resumable bots stay active in storage; otherwise every bot is stopped.
	n := engine.Close(shutdownCtx, !cfg.Engine.ResumeOnStart)
	log.Info("Bots halted", zap.Int("count", n), zap.Bool("resumable", cfg.Engine.ResumeOnStart))

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("Scheduler did not drain in time")
	}
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.KV, error) {
	switch cfg.Driver {
	case "sqlite":
		return storage.NewSQLiteStore(cfg.SQLitePath)
	case "redis":
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return storage.NewRedisStore(pingCtx, storage.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	case "memory":
		return storage.NewMemoryStore(), nil
	}
	return nil, errors.New("unknown storage driver: " + cfg.Driver)
}
