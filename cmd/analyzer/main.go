package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vitos/crypto_bot_engine/internal/config"
	"github.com/vitos/crypto_bot_engine/internal/infrastructure/storage"
	"github.com/vitos/crypto_bot_engine/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	botID := flag.String("bot", "", "only analyze this bot")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var kv storage.KV
	switch cfg.Storage.Driver {
	case "sqlite":
		kv, err = storage.NewSQLiteStore(cfg.Storage.SQLitePath)
	case "redis":
		kv, err = storage.NewRedisStore(ctx, storage.RedisConfig{
			Addr:     cfg.Storage.Redis.Addr,
			Username: cfg.Storage.Redis.Username,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			Prefix:   cfg.Storage.Redis.Prefix,
		})
	default:
		fmt.Printf("Storage driver %q keeps no history to analyze\n", cfg.Storage.Driver)
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer kv.Close()
	repo := storage.NewRepository(kv)

	trades, err := repo.ListTrades(ctx, *botID)
	if err != nil {
		fmt.Printf("Failed to list trades: %v\n", err)
		os.Exit(1)
	}
	if len(trades) == 0 {
		fmt.Println("No trades found.")
		return
	}

	states, err := repo.ListStates(ctx)
	if err != nil {
		fmt.Printf("Failed to list bot states: %v\n", err)
		os.Exit(1)
	}
	status := make(map[string]string, len(states))
	for _, st := range states {
		status[st.BotID] = string(st.Status)
	}

	results := usecase.SummarizeTrades(trades)

	fmt.Printf("\nBot performance (%d trades across %d bots):\n", len(trades), len(results))
	fmt.Printf("%-28s | %-10s | %-8s | %6s | %6s | %8s | %14s | %12s | %s\n",
		"Bot", "Symbol", "Status", "Trades", "Manual", "Win %", "Profit", "Drawdown", "Last trade")
	fmt.Println("------------------------------------------------------------------------------------------------------------------------------")
	for _, r := range results {
		st := status[r.BotID]
		if st == "" {
			st = "-"
		}
		fmt.Printf("%-28s | %-10s | %-8s | %6d | %6d | %7.1f%% | %14s | %12s | %s\n",
			r.BotID,
			r.Symbol,
			st,
			r.Trades,
			r.Manual,
			r.WinRate(),
			r.Profit.StringFixed(4),
			r.MaxDrawdown.StringFixed(4),
			r.LastTrade.Format(time.RFC3339),
		)
	}
}
