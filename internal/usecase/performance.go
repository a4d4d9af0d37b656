package usecase

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_bot_engine/internal/domain"
)

// BotPerformance summarizes a bot's recorded trades.
type BotPerformance struct {
	BotID       string
	Symbol      string
	Trades      int
	Buys        int
	Sells       int
	Wins        int
	Losses      int
	Manual      int
	Profit      decimal.Decimal
	Commission  decimal.Decimal
	MaxDrawdown decimal.Decimal // largest peak-to-trough drop of cumulative profit
	FirstTrade  time.Time
	LastTrade   time.Time
}

// WinRate is wins over closing sells, in percent.
func (p BotPerformance) WinRate() float64 {
	closed := p.Wins + p.Losses
	if closed == 0 {
		return 0
	}
	return float64(p.Wins) / float64(closed) * 100
}

// SummarizeTrades groups trades by bot and returns one summary per bot,
// most profitable first.
func SummarizeTrades(trades []*domain.TradeRecord) []BotPerformance {
	byBot := make(map[string][]*domain.TradeRecord)
	for _, t := range trades {
		byBot[t.BotID] = append(byBot[t.BotID], t)
	}

	results := make([]BotPerformance, 0, len(byBot))
	for botID, list := range byBot {
		sort.Slice(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })

		p := BotPerformance{
			BotID:      botID,
			Symbol:     list[0].Symbol,
			FirstTrade: list[0].Timestamp,
			LastTrade:  list[len(list)-1].Timestamp,
		}
		peak := decimal.Zero
		for _, t := range list {
			p.Trades++
			if t.Source == domain.TradeSourceManual {
				p.Manual++
			}
			switch t.Side {
			case domain.ActionBuy:
				p.Buys++
			case domain.ActionSell:
				p.Sells++
				if t.Profit.IsPositive() {
					p.Wins++
				} else if t.Profit.IsNegative() {
					p.Losses++
				}
			}
			p.Profit = p.Profit.Add(t.Profit)
			p.Commission = p.Commission.Add(t.Commission)

			if p.Profit.GreaterThan(peak) {
				peak = p.Profit
			}
			if dd := peak.Sub(p.Profit); dd.GreaterThan(p.MaxDrawdown) {
				p.MaxDrawdown = dd
			}
		}
		results = append(results, p)
	}

	sort.Slice(results, func(i, j int) bool {
		if !results[i].Profit.Equal(results[j].Profit) {
			return results[i].Profit.GreaterThan(results[j].Profit)
		}
		return results[i].BotID < results[j].BotID
	})
	return results
}
