package strategy

import (
	"fmt"

	"github.com/vitos/crypto_bot_engine/internal/domain"
)

const (
	DefaultShortWindow = 5
	DefaultLongWindow  = 20
)

// Crossover trades short/long simple moving average crossings.
type Crossover struct {
	short int
	long  int
}

func NewCrossover(short, long int) *Crossover {
	if short <= 0 {
		short = DefaultShortWindow
	}
	if long <= short {
		long = DefaultLongWindow
	}
	return &Crossover{short: short, long: long}
}

func (c *Crossover) ID() string { return "crossover" }

func (c *Crossover) Evaluate(candles []domain.Candle, price float64) domain.Signal {
	closes := domain.Closes(candles)
	price = resolvePrice(closes, price)
	if len(closes) < c.long+1 {
		return domain.Hold(ReasonInsufficientData, price)
	}

	prev := closes[:len(closes)-1]
	prevShort, prevLong := SMA(prev, c.short), SMA(prev, c.long)
	curShort, curLong := SMA(closes, c.short), SMA(closes, c.long)

	switch {
	case prevShort <= prevLong && curShort > curLong:
		return domain.Signal{
			Action: domain.ActionBuy,
			Reason: fmt.Sprintf("SMA%d crossed above SMA%d (%.4f > %.4f)", c.short, c.long, curShort, curLong),
			Price:  price,
		}
	case prevShort >= prevLong && curShort < curLong:
		return domain.Signal{
			Action: domain.ActionSell,
			Reason: fmt.Sprintf("SMA%d crossed below SMA%d (%.4f < %.4f)", c.short, c.long, curShort, curLong),
			Price:  price,
		}
	}
	return domain.Hold(fmt.Sprintf("no crossover (SMA%d %.4f, SMA%d %.4f)", c.short, curShort, c.long, curLong), price)
}
