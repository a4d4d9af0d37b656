package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_bot_engine/internal/domain"
	"github.com/vitos/crypto_bot_engine/internal/events"
	"github.com/vitos/crypto_bot_engine/internal/usecase"
	"go.uber.org/zap"
)

// BotEngine is the engine surface the HTTP boundary drives.
type BotEngine interface {
	Start(ctx context.Context, cfg domain.BotConfig) (string, error)
	Stop(ctx context.Context, id string) (bool, error)
	StopAll(ctx context.Context) int
	Bots() []domain.Bot
	History(ctx context.Context) ([]*domain.BotState, error)
	Trades(ctx context.Context, botID string) ([]*domain.TradeRecord, error)
	Errors(ctx context.Context, botID string) ([]domain.ErrorRecord, error)
	Strategies() []string
	ManualTrade(ctx context.Context, req usecase.ManualTradeRequest) (*domain.TradeRecord, error)
}

type Server struct {
	router   *http.ServeMux
	server   *http.Server
	engine   BotEngine
	hub      *events.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewServer(port int, engine BotEngine, hub *events.Hub, logger *zap.Logger) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		engine:   engine,
		hub:      hub,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// Bots
	s.router.HandleFunc("POST /api/bots", s.handleStartBot)
	s.router.HandleFunc("GET /api/bots", s.handleListBots)
	s.router.HandleFunc("DELETE /api/bots", s.handleStopAll)
	s.router.HandleFunc("DELETE /api/bots/{id}", s.handleStopBot)
	s.router.HandleFunc("GET /api/bots/history", s.handleHistory)
	s.router.HandleFunc("GET /api/bots/{id}/trades", s.handleBotTrades)
	s.router.HandleFunc("GET /api/bots/{id}/errors", s.handleBotErrors)

	// Strategies
	s.router.HandleFunc("GET /api/strategies", s.handleStrategies)

	// Trades
	s.router.HandleFunc("POST /api/trades/manual", s.handleManualTrade)

	// Events
	s.router.HandleFunc("GET /ws/events", s.handleEvents)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
