package domain

import "time"

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is the strategy decision for one tick.
type Signal struct {
	Action Action  `json:"action"`
	Reason string  `json:"reason"`
	Price  float64 `json:"price"`
}

func Hold(reason string, price float64) Signal {
	return Signal{Action: ActionHold, Reason: reason, Price: price}
}

type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Closes extracts closing prices, oldest first.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func (c Candle) OpenTime() time.Time { return time.UnixMilli(c.Time) }
