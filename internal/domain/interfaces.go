package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway defines market data and order execution against an exchange.
type Gateway interface {
	Ping(ctx context.Context) error
	GetAccountInfo(ctx context.Context, creds Credentials) (*Account, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	PlaceMarketOrder(ctx context.Context, creds Credentials, symbol string, side Action, quantity decimal.Decimal) (*Fill, error)
}

// EventPublisher receives boundary events. Publish must not block.
type EventPublisher interface {
	Publish(ev Event)
}

// BotRepository persists bot configuration and state snapshots.
type BotRepository interface {
	SaveConfig(ctx context.Context, id string, cfg BotConfig) error
	GetConfig(ctx context.Context, id string) (*BotConfig, error)
	SaveState(ctx context.Context, state *BotState) error
	GetState(ctx context.Context, id string) (*BotState, error)
	ListStates(ctx context.Context) ([]*BotState, error)
	SaveError(ctx context.Context, rec ErrorRecord) error
	ListErrors(ctx context.Context, botID string) ([]ErrorRecord, error)
}

// TradeRepository persists trade records.
type TradeRepository interface {
	AppendTrade(ctx context.Context, trade *TradeRecord) error
	ListTrades(ctx context.Context, botID string) ([]*TradeRecord, error)
}
