package strategy

import (
	"fmt"

	"github.com/vitos/crypto_bot_engine/internal/domain"
)

const (
	DefaultBandWindow = 20
	DefaultBandK      = 2.0
)

// Bollinger trades touches of the volatility bands around an SMA.
type Bollinger struct {
	window int
	k      float64
}

func NewBollinger(window int, k float64) *Bollinger {
	if window <= 1 {
		window = DefaultBandWindow
	}
	if k <= 0 {
		k = DefaultBandK
	}
	return &Bollinger{window: window, k: k}
}

func (b *Bollinger) ID() string { return "bollinger" }

func (b *Bollinger) Evaluate(candles []domain.Candle, price float64) domain.Signal {
	closes := domain.Closes(candles)
	price = resolvePrice(closes, price)
	if len(closes) < b.window {
		return domain.Hold(ReasonInsufficientData, price)
	}

	middle := SMA(closes, b.window)
	dev := StdDev(closes, b.window)
	if dev == 0 && price == middle {
		return domain.Hold("bands collapsed at price", price)
	}
	upper, lower := middle+b.k*dev, middle-b.k*dev

	switch {
	case price <= lower:
		return domain.Signal{Action: domain.ActionBuy, Reason: fmt.Sprintf("price %.4f at or below lower band %.4f", price, lower), Price: price}
	case price >= upper:
		return domain.Signal{Action: domain.ActionSell, Reason: fmt.Sprintf("price %.4f at or above upper band %.4f", price, upper), Price: price}
	}
	return domain.Hold(fmt.Sprintf("price inside bands [%.4f, %.4f]", lower, upper), price)
}
