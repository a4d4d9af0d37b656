package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/vitos/crypto_bot_engine/internal/infrastructure/storage"
)

func main() {
	dbPath := flag.String("db", "bot.db", "sqlite database path")
	errLimit := flag.Int("errors", 3, "recent errors to show per bot")
	purge := flag.String("purge", "", "delete all stored data of this stopped bot and exit")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	repo := storage.NewRepository(store)

	ctx := context.Background()
	if *purge != "" {
		removed, err := repo.PurgeBot(ctx, *purge)
		if err != nil {
			fmt.Printf("Failed to purge %s: %v\n", *purge, err)
			os.Exit(1)
		}
		fmt.Printf("Purged %s: %d keys removed\n", *purge, removed)
		return
	}

	states, err := repo.ListStates(ctx)
	if err != nil {
		fmt.Printf("Failed to list bots: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d bots:\n", len(states))
	for _, st := range states {
		fmt.Printf("- Bot ID: %s, Status: %s, Trades: %d, Profit: %s\n",
			st.BotID, st.Status, st.TradesExecuted, st.TotalProfit.StringFixed(4))

		cfg, err := repo.GetConfig(ctx, st.BotID)
		if err != nil {
			fmt.Printf("  ❌ Failed to get config: %v\n", err)
		} else {
			fmt.Printf("  ✅ Config: %s %s every %s, amount=%s tp=%s%% sl=%s%%\n",
				cfg.StrategyID, cfg.Symbol, cfg.Interval, cfg.Amount, cfg.TakeProfitPct, cfg.StopLossPct)
		}

		assets := make([]string, 0, len(st.OpenPositions))
		for asset := range st.OpenPositions {
			assets = append(assets, asset)
		}
		sort.Strings(assets)
		for _, asset := range assets {
			fmt.Printf("  Position %s: %s (cost %s)\n", asset, st.OpenPositions[asset], st.CostBasis[asset])
		}

		if st.LastSignal != nil {
			fmt.Printf("  Last signal: %s @ %f (%s)\n", st.LastSignal.Action, st.LastSignal.Price, st.LastSignal.Reason)
		}
		if st.LastError != "" {
			fmt.Printf("  ⚠️ Last error: %s\n", st.LastError)
		}

		errs, err := repo.ListErrors(ctx, st.BotID)
		if err != nil {
			fmt.Printf("  ❌ Failed to list errors: %v\n", err)
			continue
		}
		if len(errs) > *errLimit {
			errs = errs[len(errs)-*errLimit:]
		}
		for _, e := range errs {
			fmt.Printf("  [%s] %s: %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Stage, e.Message)
		}
	}
}
