package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeSource string

const (
	TradeSourceAuto   TradeSource = "auto"
	TradeSourceManual TradeSource = "manual"
)

// TradeRecord is append-only.
type TradeRecord struct {
	ID         string          `json:"id"`
	BotID      string          `json:"bot_id"`
	Symbol     string          `json:"symbol"`
	Side       Action          `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	OrderID    string          `json:"order_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	StrategyID string          `json:"strategy_id"`
	Reason     string          `json:"reason"`
	Profit     decimal.Decimal `json:"profit"`
	Source     TradeSource     `json:"source"`
}

// ErrorRecord is a persisted tick failure.
type ErrorRecord struct {
	BotID     string    `json:"bot_id"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Account is the gateway's balance snapshot.
type Account struct {
	CanTrade bool                       `json:"can_trade"`
	Balances map[string]decimal.Decimal `json:"balances"`
}

// Fill is the outcome of a market order.
type Fill struct {
	OrderID    string
	Symbol     string
	Side       Action
	Quantity   decimal.Decimal
	Price      decimal.Decimal // average executed price, zero if unknown
	Commission decimal.Decimal // in quote asset
}
