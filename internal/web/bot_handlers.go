package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_bot_engine/internal/domain"
	"github.com/vitos/crypto_bot_engine/internal/usecase"
	"go.uber.org/zap"
)

type startBotRequest struct {
	Symbol        string          `json:"symbol"`
	StrategyID    string          `json:"strategyId"`
	Amount        decimal.Decimal `json:"amount"`
	Interval      string          `json:"interval"`
	TakeProfitPct decimal.Decimal `json:"takeProfitPct"`
	StopLossPct   decimal.Decimal `json:"stopLossPct"`
	APIKey        string          `json:"apiKey,omitempty"`
	APISecret     string          `json:"apiSecret,omitempty"`
}

type botResponse struct {
	ID             string                     `json:"id"`
	Symbol         string                     `json:"symbol"`
	StrategyID     string                     `json:"strategyId"`
	Amount         decimal.Decimal            `json:"amount"`
	Interval       string                     `json:"interval"`
	TakeProfitPct  decimal.Decimal            `json:"takeProfitPct"`
	StopLossPct    decimal.Decimal            `json:"stopLossPct"`
	Status         domain.BotStatus           `json:"status"`
	LastCheckAt    *time.Time                 `json:"lastCheckAt"`
	LastSignal     *domain.Signal             `json:"lastSignal"`
	TradesExecuted int64                      `json:"tradesExecuted"`
	TotalProfit    decimal.Decimal            `json:"totalProfit"`
	OpenPositions  map[string]decimal.Decimal `json:"openPositions"`
	LastError      string                     `json:"lastError,omitempty"`
	CreatedAt      time.Time                  `json:"createdAt"`
}

func toBotResponse(b domain.Bot) botResponse {
	return botResponse{
		ID:             b.ID,
		Symbol:         b.Config.Symbol,
		StrategyID:     b.Config.StrategyID,
		Amount:         b.Config.Amount,
		Interval:       b.Config.Interval,
		TakeProfitPct:  b.Config.TakeProfitPct,
		StopLossPct:    b.Config.StopLossPct,
		Status:         b.State.Status,
		LastCheckAt:    b.State.LastCheckAt,
		LastSignal:     b.State.LastSignal,
		TradesExecuted: b.State.TradesExecuted,
		TotalProfit:    b.State.TotalProfit,
		OpenPositions:  b.State.OpenPositions,
		LastError:      b.State.LastError,
		CreatedAt:      b.State.CreatedAt,
	}
}

func (s *Server) handleStartBot(w http.ResponseWriter, r *http.Request) {
	var req startBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	cfg := domain.BotConfig{
		Symbol:        req.Symbol,
		StrategyID:    req.StrategyID,
		Amount:        req.Amount,
		Interval:      req.Interval,
		TakeProfitPct: req.TakeProfitPct,
		StopLossPct:   req.StopLossPct,
		Credentials:   domain.Credentials{APIKey: req.APIKey, APISecret: req.APISecret},
	}

	id, err := s.engine.Start(r.Context(), cfg)
	if err != nil {
		s.logger.Warn("Failed to start bot", zap.String("symbol", req.Symbol), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"botId": id})
}

func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	bots := s.engine.Bots()
	out := make([]botResponse, 0, len(bots))
	for _, b := range bots {
		out = append(out, toBotResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStopBot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	stopped, err := s.engine.Stop(r.Context(), id)
	if err != nil {
		s.logger.Error("Failed to stop bot", zap.String("bot_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !stopped {
		writeError(w, http.StatusNotFound, "bot not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"botId": id, "stopped": true})
}

func (s *Server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	n := s.engine.StopAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"stopped": n})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	states, err := s.engine.History(r.Context())
	if err != nil {
		s.logger.Error("Failed to list bot history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list bot history")
		return
	}
	if states == nil {
		states = []*domain.BotState{}
	}
	writeJSON(w, http.StatusOK, states)
}

func (s *Server) handleBotTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.engine.Trades(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []*domain.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleBotErrors(w http.ResponseWriter, r *http.Request) {
	records, err := s.engine.Errors(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("Failed to list bot errors", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list bot errors")
		return
	}
	if records == nil {
		records = []domain.ErrorRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"strategies": s.engine.Strategies()})
}

func (s *Server) handleManualTrade(w http.ResponseWriter, r *http.Request) {
	var req usecase.ManualTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	trade, err := s.engine.ManualTrade(r.Context(), req)
	if err != nil {
		s.logger.Warn("Manual trade failed", zap.String("bot_id", req.BotID), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, trade)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConnectivity):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
