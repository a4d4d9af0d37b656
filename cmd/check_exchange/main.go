package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/vitos/crypto_bot_engine/internal/config"
	"github.com/vitos/crypto_bot_engine/internal/domain"
	"github.com/vitos/crypto_bot_engine/internal/infrastructure/exchange"
	"github.com/vitos/crypto_bot_engine/internal/strategy"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	symbol := flag.String("symbol", "BNBUSDT", "symbol to probe")
	interval := flag.String("interval", "15m", "candle interval")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Testing Binance Interaction...\n")
	fmt.Printf("Endpoint: %s\n", cfg.Exchange.RESTEndpoint)
	fmt.Printf("Credentials: %s\n", cfg.Credentials())

	adapter := exchange.NewBinanceAdapter(
		cfg.Exchange.APIKey,
		cfg.Exchange.APISecret,
		cfg.Exchange.RESTEndpoint,
		cfg.Exchange.RecvWindowMs,
		cfg.ExchangeTimeout(),
		zap.NewNop(),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := false

	// 2. Connectivity
	if err := adapter.Ping(ctx); err != nil {
		fmt.Printf("❌ Ping failed: %v\n", err)
		failed = true
	} else {
		fmt.Printf("✅ Ping OK\n")
	}

	// 3. Public Endpoints (Price, Candles)
	price, err := adapter.GetCurrentPrice(ctx, *symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get price: %v\n", err)
		failed = true
	} else {
		fmt.Printf("✅ Current Price (%s): %f\n", *symbol, price)
	}

	candles, err := adapter.GetCandles(ctx, *symbol, *interval, cfg.Engine.CandleLimit)
	if err != nil {
		fmt.Printf("❌ Failed to get candles: %v\n", err)
		failed = true
	} else {
		fmt.Printf("✅ Candles (%s %s): %d\n", *symbol, *interval, len(candles))

		registry := strategy.DefaultRegistry()
		for _, id := range registry.IDs() {
			sig := registry.Evaluate(id, candles, price)
			fmt.Printf("   %-10s %-4s %s\n", id, sig.Action, sig.Reason)
		}
	}

	// 4. Private Endpoint (Account)
	acc, err := adapter.GetAccountInfo(ctx, domain.Credentials{})
	if err != nil {
		fmt.Printf("❌ Failed to get account: %v\n", err)
		failed = true
	} else {
		fmt.Printf("✅ Account: canTrade=%t\n", acc.CanTrade)
		assets := make([]string, 0, len(acc.Balances))
		for asset := range acc.Balances {
			assets = append(assets, asset)
		}
		sort.Strings(assets)
		for _, asset := range assets {
			fmt.Printf("   %-6s %s\n", asset, acc.Balances[asset])
		}
	}

	if failed {
		os.Exit(1)
	}
}
