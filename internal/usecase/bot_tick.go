package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_bot_engine/internal/domain"
	"go.uber.org/zap"
)

const (
	stagePrice   = "price"
	stageCandles = "candles"
	stageOrder   = "order"
	stagePanic   = "panic"
)

// runTick executes one tick on the runner goroutine. Nothing escapes it:
// failures and panics are persisted and reported as error events.
func (e *BotEngine) runTick(r *botRunner) {
	defer r.publishSnapshot()
	defer func() {
		if rec := recover(); rec != nil {
			e.tickFailed(r, &domain.TickError{BotID: r.id, Stage: stagePanic, Err: fmt.Errorf("%v", rec)})
		}
	}()

	if err := e.executeTick(e.ctx, r); err != nil {
		e.tickFailed(r, err)
	}
}

func (e *BotEngine) executeTick(ctx context.Context, r *botRunner) error {
	cfg := r.cfg
	st := r.state

	now := e.now()
	st.LastCheckAt = &now

	price, err := e.gateway.GetCurrentPrice(ctx, cfg.Symbol)
	if err != nil {
		return &domain.TickError{BotID: r.id, Stage: stagePrice, Err: err}
	}
	candles, err := e.gateway.GetCandles(ctx, cfg.Symbol, r.candleInterval, e.cfg.CandleLimit)
	if err != nil {
		return &domain.TickError{BotID: r.id, Stage: stageCandles, Err: err}
	}

	var signal domain.Signal
	quantity := cfg.Amount
	if exit, held := riskExit(st, cfg, price); exit != nil {
		signal = *exit
		quantity = held
	} else {
		signal = e.strategies.Evaluate(cfg.StrategyID, candles, price)
	}
	if signal.Price <= 0 {
		signal.Price = price
	}
	st.LastSignal = &signal

	if signal.Action == domain.ActionHold {
		st.LastError = ""
		if err := e.bots.SaveState(ctx, st); err != nil {
			e.logger.Error("Failed to persist bot state", zap.String("bot_id", r.id), zap.Error(err))
		}
		e.logger.Debug("Tick hold",
			zap.String("bot_id", r.id),
			zap.Float64("price", price),
			zap.String("reason", signal.Reason))
		e.events.Publish(domain.StatusFromState(st, domain.MsgTickCompleted))
		return nil
	}

	if _, err := e.trade(ctx, r, signal.Action, quantity, signal.Price, signal.Reason, domain.TradeSourceAuto); err != nil {
		return &domain.TickError{BotID: r.id, Stage: stageOrder, Err: err}
	}
	st.LastError = ""
	e.events.Publish(domain.StatusFromState(st, domain.MsgTradeExecuted))
	return nil
}

// trade places an order and books the fill into the runner's state.
// Must run on the runner goroutine.
func (e *BotEngine) trade(ctx context.Context, r *botRunner, side domain.Action, quantity decimal.Decimal, refPrice float64, reason string, source domain.TradeSource) (*domain.TradeRecord, error) {
	cfg := r.cfg
	st := r.state

	fill, err := e.executor.Execute(ctx, cfg.Credentials, cfg.Symbol, side, quantity, refPrice)
	if err != nil {
		return nil, err
	}

	profit := ApplyFill(st, fill)
	st.TradesExecuted++
	st.TotalProfit = st.TotalProfit.Add(profit)

	rec := &domain.TradeRecord{
		ID:         e.newID(),
		BotID:      r.id,
		Symbol:     cfg.Symbol,
		Side:       side,
		Quantity:   fill.Quantity,
		Price:      fill.Price,
		Commission: fill.Commission,
		OrderID:    fill.OrderID,
		Timestamp:  e.now(),
		StrategyID: cfg.StrategyID,
		Reason:     reason,
		Profit:     profit,
		Source:     source,
	}
	if err := e.trades.AppendTrade(ctx, rec); err != nil {
		e.logger.Error("Failed to persist trade", zap.String("bot_id", r.id), zap.String("order_id", fill.OrderID), zap.Error(err))
	}
	if err := e.bots.SaveState(ctx, st); err != nil {
		e.logger.Error("Failed to persist bot state", zap.String("bot_id", r.id), zap.Error(err))
	}

	e.logger.Info("Trade executed",
		zap.String("bot_id", r.id),
		zap.String("symbol", cfg.Symbol),
		zap.String("side", string(side)),
		zap.Stringer("qty", fill.Quantity),
		zap.Stringer("price", fill.Price),
		zap.Stringer("profit", profit),
		zap.String("source", string(source)))

	e.events.Publish(domain.TradeExecutedEvent{
		BotID:    r.id,
		Time:     rec.Timestamp,
		Symbol:   rec.Symbol,
		Side:     side,
		Price:    rec.Price,
		Quantity: rec.Quantity,
		Reason:   reason,
		Profit:   profit,
	})
	return rec, nil
}

func (e *BotEngine) tickFailed(r *botRunner, err error) {
	now := e.now()
	st := r.state
	st.LastError = err.Error()

	stage := "tick"
	var te *domain.TickError
	if errors.As(err, &te) {
		stage = te.Stage
	}

	if saveErr := e.bots.SaveState(e.ctx, st); saveErr != nil {
		e.logger.Error("Failed to persist bot state", zap.String("bot_id", r.id), zap.Error(saveErr))
	}
	rec := domain.ErrorRecord{BotID: r.id, Stage: stage, Message: err.Error(), Timestamp: now}
	if saveErr := e.bots.SaveError(e.ctx, rec); saveErr != nil {
		e.logger.Error("Failed to persist bot error", zap.String("bot_id", r.id), zap.Error(saveErr))
	}

	e.logger.Warn("Tick failed", zap.String("bot_id", r.id), zap.String("stage", stage), zap.Error(err))
	e.publishError(r.id, err.Error())
	e.events.Publish(domain.StatusFromState(st, domain.MsgTickFailed))
}

type ManualTradeRequest struct {
	BotID    string          `json:"botId"`
	Side     domain.Action   `json:"side"`
	Quantity decimal.Decimal `json:"quantity"` // zero means the bot's configured amount
}

// ManualTrade places an order for a running bot outside its schedule. The
// order is serialized with the bot's ticks.
func (e *BotEngine) ManualTrade(ctx context.Context, req ManualTradeRequest) (*domain.TradeRecord, error) {
	side := domain.Action(strings.ToUpper(string(req.Side)))
	if side != domain.ActionBuy && side != domain.ActionSell {
		return nil, fmt.Errorf("%w: side must be BUY or SELL", domain.ErrValidation)
	}
	if req.Quantity.IsNegative() {
		return nil, fmt.Errorf("%w: quantity must not be negative", domain.ErrValidation)
	}

	e.mu.Lock()
	r, ok := e.runners[req.BotID]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("bot %s: %w", req.BotID, domain.ErrNotFound)
	}

	msg := manualRequest{ctx: ctx, side: side, qty: req.Quantity, reply: make(chan manualResult, 1)}
	select {
	case r.manual <- msg:
	case <-r.done:
		return nil, fmt.Errorf("bot %s: %w", req.BotID, domain.ErrNotFound)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-msg.reply:
		return res.trade, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *BotEngine) runManual(ctx context.Context, r *botRunner, side domain.Action, qty decimal.Decimal) (*domain.TradeRecord, error) {
	defer r.publishSnapshot()

	if qty.IsZero() {
		qty = r.cfg.Amount
	}
	price, err := e.gateway.GetCurrentPrice(ctx, r.cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("get price: %w", err)
	}

	rec, err := e.trade(ctx, r, side, qty, price, "manual order", domain.TradeSourceManual)
	if err != nil {
		e.logger.Warn("Manual trade failed", zap.String("bot_id", r.id), zap.Error(err))
		return nil, fmt.Errorf("place order: %w", err)
	}
	e.events.Publish(domain.StatusFromState(r.state, domain.MsgManualTrade))
	return rec, nil
}
