package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_bot_engine/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fillGateway struct {
	MockGateway
	fill *domain.Fill
	err  error
}

func (g *fillGateway) PlaceMarketOrder(ctx context.Context, creds domain.Credentials, symbol string, side domain.Action, quantity decimal.Decimal) (*domain.Fill, error) {
	return g.fill, g.err
}

func TestTradeExecutor_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("fills in missing price and quantity", func(t *testing.T) {
		ex := NewTradeExecutor(&fillGateway{fill: &domain.Fill{OrderID: "1"}})
		fill, err := ex.Execute(ctx, domain.Credentials{}, "BTCUSDT", domain.ActionBuy, d("0.5"), 42000)
		require.NoError(t, err)
		assert.Equal(t, "BTCUSDT", fill.Symbol)
		assert.Equal(t, domain.ActionBuy, fill.Side)
		assert.True(t, fill.Quantity.Equal(d("0.5")))
		assert.True(t, fill.Price.Equal(d("42000")))
	})

	t.Run("keeps exchange fill", func(t *testing.T) {
		ex := NewTradeExecutor(&fillGateway{fill: &domain.Fill{Quantity: d("0.4"), Price: d("41950.5"), Commission: d("0.02")}})
		fill, err := ex.Execute(ctx, domain.Credentials{}, "BTCUSDT", domain.ActionSell, d("0.5"), 42000)
		require.NoError(t, err)
		assert.True(t, fill.Quantity.Equal(d("0.4")))
		assert.True(t, fill.Price.Equal(d("41950.5")))
		assert.True(t, fill.Commission.Equal(d("0.02")))
	})

	t.Run("rejects hold and empty quantity", func(t *testing.T) {
		ex := NewTradeExecutor(&fillGateway{})
		_, err := ex.Execute(ctx, domain.Credentials{}, "BTCUSDT", domain.ActionHold, d("1"), 1)
		assert.Error(t, err)
		_, err = ex.Execute(ctx, domain.Credentials{}, "BTCUSDT", domain.ActionBuy, decimal.Zero, 1)
		assert.Error(t, err)
	})

	t.Run("propagates gateway error", func(t *testing.T) {
		ex := NewTradeExecutor(&fillGateway{err: errors.New("insufficient balance")})
		_, err := ex.Execute(ctx, domain.Credentials{}, "BTCUSDT", domain.ActionBuy, d("1"), 1)
		assert.EqualError(t, err, "insufficient balance")
	})
}

func TestApplyFill_AverageCost(t *testing.T) {
	st := domain.NewBotState("ETHUSDT_1", testTime)

	p := ApplyFill(st, &domain.Fill{Symbol: "ETHUSDT", Side: domain.ActionBuy, Quantity: d("1"), Price: d("100")})
	assert.True(t, p.IsZero())
	p = ApplyFill(st, &domain.Fill{Symbol: "ETHUSDT", Side: domain.ActionBuy, Quantity: d("1"), Price: d("200"), Commission: d("2")})
	assert.True(t, p.IsZero())

	qty, avg := st.Position("ETHUSDT")
	assert.True(t, qty.Equal(d("2")))
	assert.True(t, avg.Equal(d("151")), "avg %s", avg)

	// partial close at 161 with 1 commission: (161-151)*1 - 1
	p = ApplyFill(st, &domain.Fill{Symbol: "ETHUSDT", Side: domain.ActionSell, Quantity: d("1"), Price: d("161"), Commission: d("1")})
	assert.True(t, p.Equal(d("9")), "profit %s", p)
	qty, avg = st.Position("ETHUSDT")
	assert.True(t, qty.Equal(d("1")))
	assert.True(t, avg.Equal(d("151")))

	// oversell closes only what is held
	p = ApplyFill(st, &domain.Fill{Symbol: "ETHUSDT", Side: domain.ActionSell, Quantity: d("5"), Price: d("141")})
	assert.True(t, p.Equal(d("-10")), "profit %s", p)
	assert.Empty(t, st.OpenPositions)
	assert.Empty(t, st.CostBasis)
}

func TestApplyFill_SellWithoutPosition(t *testing.T) {
	st := domain.NewBotState("ETHUSDT_1", testTime)
	p := ApplyFill(st, &domain.Fill{Symbol: "ETHUSDT", Side: domain.ActionSell, Quantity: d("1"), Price: d("100")})
	assert.True(t, p.IsZero())
	assert.Empty(t, st.OpenPositions)

	p = ApplyFill(st, &domain.Fill{Symbol: "ETHUSDT", Side: domain.ActionSell, Quantity: d("1"), Price: d("100"), Commission: d("0.1")})
	assert.True(t, p.Equal(d("-0.1")), "profit %s", p)
	assert.Empty(t, st.OpenPositions)
	assert.Empty(t, st.CostBasis)
}

func TestRiskExit(t *testing.T) {
	cfg := bnbConfig()
	st := domain.NewBotState("BNBUSDT_1", testTime)

	sig, _ := riskExit(st, cfg, 500)
	assert.Nil(t, sig, "no position, no exit")

	ApplyFill(st, &domain.Fill{Symbol: "BNBUSDT", Side: domain.ActionBuy, Quantity: d("0.1"), Price: d("100")})

	tests := []struct {
		name   string
		price  float64
		exit   bool
		reason string
	}{
		{"inside band", 101, false, ""},
		{"take profit at threshold", 103, true, "take profit"},
		{"take profit above", 110, true, "take profit"},
		{"stop loss at threshold", 98, true, "stop loss"},
		{"just above stop loss", 98.5, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, qty := riskExit(st, cfg, tt.price)
			if !tt.exit {
				assert.Nil(t, sig)
				return
			}
			require.NotNil(t, sig)
			assert.Equal(t, domain.ActionSell, sig.Action)
			assert.Contains(t, sig.Reason, tt.reason)
			assert.True(t, qty.Equal(d("0.1")))
		})
	}
}
