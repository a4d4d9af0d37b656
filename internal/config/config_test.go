package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_bot_engine/internal/domain"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")

	cfg, err := Parse([]byte("exchange:\n  api_key: k\n  api_secret: s\n"))
	require.NoError(t, err)

	assert.Equal(t, "binance", cfg.Exchange.Name)
	assert.Equal(t, 5000, cfg.Exchange.RecvWindowMs)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "bot.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 100, cfg.Engine.CandleLimit)
	assert.False(t, cfg.Engine.ResumeOnStart)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, domain.Credentials{APIKey: "k", APISecret: "s"}, cfg.Credentials())
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "config.example.yaml"))
	require.NoError(t, err)

	require.Len(t, cfg.Bots, 1)
	bot := cfg.Bots[0].BotConfig()
	assert.Equal(t, "BNBUSDT", bot.Symbol)
	assert.Equal(t, "crossover", bot.StrategyID)
	assert.True(t, bot.Amount.Equal(decimal.RequireFromString("0.1")))
	assert.True(t, bot.TakeProfitPct.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestParse_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "env-key")
	t.Setenv("BINANCE_API_SECRET", "env-secret")

	cfg, err := Parse([]byte("exchange:\n  api_key: file-key\n"))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Exchange.APIKey)
	assert.Equal(t, "env-secret", cfg.Exchange.APISecret)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"driver", "storage:\n  driver: mongo\n", "storage.driver"},
		{"candle limit", "engine:\n  candle_limit: 10\n", "candle_limit"},
		{"daily hour", "engine:\n  daily_hour: 24\n", "daily_hour"},
		{"timezone", "engine:\n  timezone: Mars/Olympus\n", "timezone"},
		{"kafka brokers", "notify:\n  kafka:\n    enabled: true\n", "brokers"},
		{"telegram chat", "notify:\n  telegram:\n    enabled: true\n    bot_token: t\n", "chat_id"},
		{"bot amount", "bots:\n  - symbol: BNBUSDT\n    strategy: rsi\n    interval: 1h\n    take_profit_pct: 1\n    stop_loss_pct: 1\n", "bots[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
