package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventStatus        EventType = "status"
	EventTradeExecuted EventType = "trade-executed"
	EventError         EventType = "error"
)

// Status event messages.
const (
	MsgBotStarted    = "bot started"
	MsgBotStopped    = "bot stopped"
	MsgBotResumed    = "bot resumed"
	MsgTickCompleted = "tick completed"
	MsgTickFailed    = "tick failed"
	MsgTradeExecuted = "trade executed"
	MsgManualTrade   = "manual trade executed"
)

// Event is one of StatusEvent, TradeExecutedEvent or ErrorEvent.
type Event interface {
	Type() EventType
	// Bot returns the bot id the event refers to, empty if none.
	Bot() string
}

type StatusEvent struct {
	BotID          string          `json:"botId"`
	Status         BotStatus       `json:"status"`
	LastCheckAt    *time.Time      `json:"lastCheckAt"`
	Signal         Action          `json:"signal,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	TradesExecuted int64           `json:"tradesExecuted"`
	TotalProfit    decimal.Decimal `json:"totalProfit"`
	Message        string          `json:"message"`
}

func (StatusEvent) Type() EventType { return EventStatus }
func (e StatusEvent) Bot() string { return e.BotID }

type TradeExecutedEvent struct {
	BotID    string          `json:"botId"`
	Time     time.Time       `json:"time"`
	Symbol   string          `json:"symbol"`
	Side     Action          `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Reason   string          `json:"reason"`
	Profit   decimal.Decimal `json:"profit"`
}

func (TradeExecutedEvent) Type() EventType { return EventTradeExecuted }
func (e TradeExecutedEvent) Bot() string { return e.BotID }

type ErrorEvent struct {
	BotID     string    `json:"botId,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (ErrorEvent) Type() EventType { return EventError }
func (e ErrorEvent) Bot() string { return e.BotID }

// StatusFromState builds the status event the boundary renders.
func StatusFromState(s *BotState, message string) StatusEvent {
	ev := StatusEvent{
		BotID:          s.BotID,
		Status:         s.Status,
		LastCheckAt:    s.LastCheckAt,
		TradesExecuted: s.TradesExecuted,
		TotalProfit:    s.TotalProfit,
		Message:        message,
	}
	if s.LastSignal != nil {
		ev.Signal = s.LastSignal.Action
		ev.Reason = s.LastSignal.Reason
	}
	return ev
}
