package usecase

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_bot_engine/internal/domain"
)

type TradeExecutor struct {
	gateway domain.Gateway
}

func NewTradeExecutor(gateway domain.Gateway) *TradeExecutor {
	return &TradeExecutor{
		gateway: gateway,
	}
}

// Execute places a market order and fills in missing fill details from the
// request: a zero fill price becomes refPrice, a zero quantity the requested one.
func (e *TradeExecutor) Execute(ctx context.Context, creds domain.Credentials, symbol string, side domain.Action, quantity decimal.Decimal, refPrice float64) (*domain.Fill, error) {
	if side != domain.ActionBuy && side != domain.ActionSell {
		return nil, fmt.Errorf("invalid side: %s", side)
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("invalid quantity: %s", quantity)
	}

	fill, err := e.gateway.PlaceMarketOrder(ctx, creds, symbol, side, quantity)
	if err != nil {
		return nil, err
	}
	if fill == nil {
		fill = &domain.Fill{}
	}

	out := *fill
	out.Symbol = symbol
	out.Side = side
	if !out.Quantity.IsPositive() {
		out.Quantity = quantity
	}
	if !out.Price.IsPositive() {
		out.Price = decimal.NewFromFloat(refPrice)
	}
	return &out, nil
}

// ApplyFill books a fill into the state's positions using average cost and
// returns the realized profit. Buys realize nothing; sells realize
// (price - avgCost) * closedQty - commission against the held quantity only.
// A sell with nothing held realizes just the commission.
func ApplyFill(st *domain.BotState, fill *domain.Fill) decimal.Decimal {
	symbol := fill.Symbol
	held := st.OpenPositions[symbol]
	cost := st.CostBasis[symbol]

	switch fill.Side {
	case domain.ActionBuy:
		st.OpenPositions[symbol] = held.Add(fill.Quantity)
		st.CostBasis[symbol] = cost.Add(fill.Quantity.Mul(fill.Price)).Add(fill.Commission)
		return decimal.Zero

	case domain.ActionSell:
		if !held.IsPositive() {
			return fill.Commission.Neg()
		}
		closed := decimal.Min(fill.Quantity, held)
		avg := cost.Div(held)
		profit := fill.Price.Sub(avg).Mul(closed).Sub(fill.Commission)

		remaining := held.Sub(closed)
		if remaining.IsPositive() {
			st.OpenPositions[symbol] = remaining
			st.CostBasis[symbol] = cost.Sub(avg.Mul(closed))
		} else {
			delete(st.OpenPositions, symbol)
			delete(st.CostBasis, symbol)
		}
		return profit
	}
	return decimal.Zero
}

// riskExit returns a forced SELL when the held position crossed the bot's
// take-profit or stop-loss threshold, nil otherwise.
func riskExit(st *domain.BotState, cfg domain.BotConfig, price float64) (*domain.Signal, decimal.Decimal) {
	qty, avg := st.Position(cfg.Symbol)
	if !qty.IsPositive() || !avg.IsPositive() || price <= 0 {
		return nil, decimal.Zero
	}

	hundred := decimal.NewFromInt(100)
	p := decimal.NewFromFloat(price)
	tp := avg.Mul(decimal.NewFromInt(1).Add(cfg.TakeProfitPct.Div(hundred)))
	sl := avg.Mul(decimal.NewFromInt(1).Sub(cfg.StopLossPct.Div(hundred)))

	switch {
	case p.GreaterThanOrEqual(tp):
		return &domain.Signal{
			Action: domain.ActionSell,
			Reason: fmt.Sprintf("take profit reached (%s >= %s)", p.StringFixed(4), tp.StringFixed(4)),
			Price:  price,
		}, qty
	case p.LessThanOrEqual(sl):
		return &domain.Signal{
			Action: domain.ActionSell,
			Reason: fmt.Sprintf("stop loss reached (%s <= %s)", p.StringFixed(4), sl.StringFixed(4)),
			Price:  price,
		}, qty
	}
	return nil, decimal.Zero
}
