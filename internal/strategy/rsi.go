package strategy

import (
	"fmt"

	"github.com/vitos/crypto_bot_engine/internal/domain"
)

const (
	DefaultRSIPeriod  = 14
	DefaultOversold   = 30.0
	DefaultOverbought = 70.0
)

// RSIStrategy buys oversold and sells overbought momentum.
type RSIStrategy struct {
	period     int
	oversold   float64
	overbought float64
}

func NewRSI(period int, oversold, overbought float64) *RSIStrategy {
	if period <= 0 {
		period = DefaultRSIPeriod
	}
	if oversold <= 0 || overbought <= oversold || overbought >= 100 {
		oversold, overbought = DefaultOversold, DefaultOverbought
	}
	return &RSIStrategy{period: period, oversold: oversold, overbought: overbought}
}

func (s *RSIStrategy) ID() string { return "rsi" }

func (s *RSIStrategy) Evaluate(candles []domain.Candle, price float64) domain.Signal {
	closes := domain.Closes(candles)
	price = resolvePrice(closes, price)
	value, ok := RSI(closes, s.period)
	if !ok {
		return domain.Hold(ReasonInsufficientData, price)
	}

	switch {
	case value < s.oversold:
		return domain.Signal{Action: domain.ActionBuy, Reason: fmt.Sprintf("RSI %.2f below %.0f (oversold)", value, s.oversold), Price: price}
	case value > s.overbought:
		return domain.Signal{Action: domain.ActionSell, Reason: fmt.Sprintf("RSI %.2f above %.0f (overbought)", value, s.overbought), Price: price}
	}
	return domain.Hold(fmt.Sprintf("RSI %.2f neutral", value), price)
}
