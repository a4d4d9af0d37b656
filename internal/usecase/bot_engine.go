package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_bot_engine/internal/domain"
	"github.com/vitos/crypto_bot_engine/internal/strategy"
	"go.uber.org/zap"
)

const DefaultCandleLimit = 100

type EngineConfig struct {
	CandleLimit int
	// Credentials used when a start request carries none.
	DefaultCredentials domain.Credentials
}

// BotEngine is the registry of running bots. It starts and stops bots and
// drives their ticks from the scheduler.
type BotEngine struct {
	gateway    domain.Gateway
	bots       domain.BotRepository
	trades     domain.TradeRepository
	strategies *strategy.Registry
	events     domain.EventPublisher
	scheduler  Scheduler
	executor   *TradeExecutor
	logger     *zap.Logger
	cfg        EngineConfig

	ctx    context.Context
	cancel context.CancelFunc

	timeFunc func() time.Time
	newID    func() string

	mu      sync.Mutex
	runners map[string]*botRunner
	issued  map[string]struct{}
}

func NewBotEngine(
	gateway domain.Gateway,
	bots domain.BotRepository,
	trades domain.TradeRepository,
	strategies *strategy.Registry,
	events domain.EventPublisher,
	scheduler Scheduler,
	cfg EngineConfig,
	logger *zap.Logger,
) *BotEngine {
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = DefaultCandleLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BotEngine{
		gateway:    gateway,
		bots:       bots,
		trades:     trades,
		strategies: strategies,
		events:     events,
		scheduler:  scheduler,
		executor:   NewTradeExecutor(gateway),
		logger:     logger,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		timeFunc:   func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.NewString() },
		runners:    make(map[string]*botRunner),
		issued:     make(map[string]struct{}),
	}
}

// WithNow allows injecting deterministic time for tests.
func (e *BotEngine) WithNow(now func() time.Time) *BotEngine {
	e.timeFunc = now
	return e
}

func (e *BotEngine) now() time.Time { return e.timeFunc() }

// Start validates cfg, probes the gateway and schedules a new bot.
// The first tick fires on the next interval boundary.
func (e *BotEngine) Start(ctx context.Context, cfg domain.BotConfig) (string, error) {
	cfg.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Symbol))
	cfg.StrategyID = strings.TrimSpace(cfg.StrategyID)
	cfg.Interval = strings.TrimSpace(cfg.Interval)

	if err := e.validate(cfg); err != nil {
		e.publishError("", err.Error())
		return "", err
	}
	if cfg.Credentials.IsZero() {
		cfg.Credentials = e.cfg.DefaultCredentials
	}

	now := e.now()
	id := e.reserveID(cfg.Symbol, now)

	if err := e.bots.SaveConfig(ctx, id, cfg); err != nil {
		e.publishError("", fmt.Sprintf("save config: %v", err))
		return "", fmt.Errorf("save config: %w", err)
	}

	if _, err := e.gateway.GetAccountInfo(ctx, cfg.Credentials); err != nil {
		err = fmt.Errorf("%w: account probe failed: %v", domain.ErrConnectivity, err)
		e.logger.Warn("Bot start rejected", zap.String("symbol", cfg.Symbol), zap.Error(err))
		e.publishError("", err.Error())
		return "", err
	}

	state := domain.NewBotState(id, now)
	state.Status = domain.BotStatusActive
	if err := e.bots.SaveState(ctx, state); err != nil {
		e.publishError("", fmt.Sprintf("save state: %v", err))
		return "", fmt.Errorf("save state: %w", err)
	}

	if err := e.register(id, cfg, state); err != nil {
		state.Status = domain.BotStatusError
		state.LastError = err.Error()
		if saveErr := e.bots.SaveState(ctx, state); saveErr != nil {
			e.logger.Error("Failed to persist bot state", zap.String("bot_id", id), zap.Error(saveErr))
		}
		e.publishError(id, err.Error())
		return "", err
	}

	e.logger.Info("Bot started",
		zap.String("bot_id", id),
		zap.String("symbol", cfg.Symbol),
		zap.String("strategy", cfg.StrategyID),
		zap.String("interval", cfg.Interval),
		zap.Stringer("amount", cfg.Amount))
	e.events.Publish(domain.StatusFromState(state, domain.MsgBotStarted))
	return id, nil
}

func (e *BotEngine) validate(cfg domain.BotConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, ok := e.strategies.Get(cfg.StrategyID); !ok {
		return fmt.Errorf("%w: unknown strategy %q (available: %s)",
			domain.ErrValidation, cfg.StrategyID, strings.Join(e.strategies.IDs(), ", "))
	}
	return nil
}

// reserveID returns an id never handed out before in this process.
func (e *BotEngine) reserveID(symbol string, now time.Time) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	base := domain.NewBotID(symbol, now)
	id := base
	for n := 2; ; n++ {
		if _, taken := e.issued[id]; !taken {
			break
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
	e.issued[id] = struct{}{}
	return id
}

// register spawns the runner and its recurring trigger.
func (e *BotEngine) register(id string, cfg domain.BotConfig, state *domain.BotState) error {
	r := newBotRunner(id, cfg, state)
	go r.run(e)

	trigger, err := e.scheduler.Schedule(cfg.Interval, func() {
		if _, ok := e.tick(id); !ok {
			e.logger.Debug("Tick skipped", zap.String("bot_id", id))
		}
	})
	if err != nil {
		r.requestStop(false)
		<-r.done
		return fmt.Errorf("schedule bot %s: %w", id, err)
	}

	e.mu.Lock()
	r.trigger = trigger
	e.runners[id] = r
	e.mu.Unlock()
	return nil
}

// tick asks the bot's runner to run one tick. It is a no-op for unknown or
// stopped bots and while a previous tick for the same bot is still running.
func (e *BotEngine) tick(id string) (<-chan struct{}, bool) {
	e.mu.Lock()
	r, ok := e.runners[id]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}
	return r.requestTick()
}

func (e *BotEngine) detach(id string) *botRunner {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runners[id]
	if !ok {
		return nil
	}
	delete(e.runners, id)
	return r
}

// Stop cancels the bot's trigger, lets an in-flight tick finish and persists
// the stopped state. It reports false when no such bot is running.
func (e *BotEngine) Stop(ctx context.Context, id string) (bool, error) {
	r := e.detach(id)
	if r == nil {
		return false, nil
	}
	e.scheduler.Cancel(r.trigger)
	r.requestStop(true)

	select {
	case <-r.done:
		return true, nil
	case <-ctx.Done():
		return true, fmt.Errorf("stop bot %s: %w", id, ctx.Err())
	}
}

// StopAll stops every registered bot and returns how many were stopped.
func (e *BotEngine) StopAll(ctx context.Context) int {
	return e.haltAll(ctx, true)
}

// Suspend halts every bot without the stop transition, leaving persisted
// states active so Resume can pick them up on the next launch.
func (e *BotEngine) Suspend(ctx context.Context) int {
	return e.haltAll(ctx, false)
}

func (e *BotEngine) haltAll(ctx context.Context, finalize bool) int {
	e.mu.Lock()
	runners := make([]*botRunner, 0, len(e.runners))
	for id, r := range e.runners {
		runners = append(runners, r)
		delete(e.runners, id)
	}
	e.mu.Unlock()

	for _, r := range runners {
		e.scheduler.Cancel(r.trigger)
		r.requestStop(finalize)
	}

	stopped := 0
	for _, r := range runners {
		select {
		case <-r.done:
		case <-ctx.Done():
			e.logger.Warn("Bot did not stop in time", zap.String("bot_id", r.id), zap.Error(ctx.Err()))
		}
		stopped++
	}
	return stopped
}

// Close halts all bots and releases the engine context.
func (e *BotEngine) Close(ctx context.Context, finalize bool) int {
	n := e.haltAll(ctx, finalize)
	e.cancel()
	return n
}

func (e *BotEngine) finalizeStop(r *botRunner) {
	now := e.now()
	r.state.Status = domain.BotStatusStopped
	r.state.StoppedAt = &now
	if err := e.bots.SaveState(e.ctx, r.state); err != nil {
		e.logger.Error("Failed to persist stopped state", zap.String("bot_id", r.id), zap.Error(err))
	}
	r.publishSnapshot()

	e.logger.Info("Bot stopped",
		zap.String("bot_id", r.id),
		zap.Int64("trades", r.state.TradesExecuted),
		zap.Stringer("total_profit", r.state.TotalProfit))
	e.events.Publish(domain.StatusFromState(r.state, domain.MsgBotStopped))
}

// Resume re-registers bots persisted as active by a previous run. When
// reschedule is false they are marked stopped instead.
func (e *BotEngine) Resume(ctx context.Context, reschedule bool) (int, error) {
	states, err := e.bots.ListStates(ctx)
	if err != nil {
		return 0, fmt.Errorf("list bot states: %w", err)
	}

	resumed := 0
	for _, st := range states {
		if st.Status != domain.BotStatusActive && st.Status != domain.BotStatusStarting {
			continue
		}
		if e.isRunning(st.BotID) {
			continue
		}

		if !reschedule {
			now := e.now()
			st.Status = domain.BotStatusStopped
			st.StoppedAt = &now
			st.LastError = "not resumed after restart"
			if err := e.bots.SaveState(ctx, st); err != nil {
				return resumed, fmt.Errorf("save state %s: %w", st.BotID, err)
			}
			continue
		}

		if err := e.resumeOne(ctx, st); err != nil {
			e.logger.Error("Failed to resume bot", zap.String("bot_id", st.BotID), zap.Error(err))
			e.publishError(st.BotID, err.Error())
			continue
		}
		resumed++
	}
	return resumed, nil
}

func (e *BotEngine) resumeOne(ctx context.Context, st *domain.BotState) error {
	cfg, err := e.bots.GetConfig(ctx, st.BotID)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Credentials = e.cfg.DefaultCredentials

	e.mu.Lock()
	e.issued[st.BotID] = struct{}{}
	e.mu.Unlock()

	if _, err := e.gateway.GetAccountInfo(ctx, cfg.Credentials); err != nil {
		st.Status = domain.BotStatusError
		st.LastError = err.Error()
		if saveErr := e.bots.SaveState(ctx, st); saveErr != nil {
			e.logger.Error("Failed to persist state", zap.String("bot_id", st.BotID), zap.Error(saveErr))
		}
		return fmt.Errorf("%w: %v", domain.ErrConnectivity, err)
	}

	if st.OpenPositions == nil {
		st.OpenPositions = make(map[string]decimal.Decimal)
	}
	if st.CostBasis == nil {
		st.CostBasis = make(map[string]decimal.Decimal)
	}
	st.Status = domain.BotStatusActive
	if err := e.bots.SaveState(ctx, st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err := e.register(st.BotID, *cfg, st); err != nil {
		st.Status = domain.BotStatusError
		st.LastError = err.Error()
		if saveErr := e.bots.SaveState(ctx, st); saveErr != nil {
			e.logger.Error("Failed to persist state", zap.String("bot_id", st.BotID), zap.Error(saveErr))
		}
		return err
	}

	e.logger.Info("Bot resumed", zap.String("bot_id", st.BotID), zap.String("symbol", cfg.Symbol))
	e.events.Publish(domain.StatusFromState(st, domain.MsgBotResumed))
	return nil
}

func (e *BotEngine) isRunning(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.runners[id]
	return ok
}

// Bots returns snapshots of every running bot, oldest first.
func (e *BotEngine) Bots() []domain.Bot {
	e.mu.Lock()
	runners := make([]*botRunner, 0, len(e.runners))
	for _, r := range e.runners {
		runners = append(runners, r)
	}
	e.mu.Unlock()

	out := make([]domain.Bot, 0, len(runners))
	for _, r := range runners {
		out = append(out, domain.Bot{ID: r.id, Config: r.cfg, State: r.Snapshot()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].State.CreatedAt.Equal(out[j].State.CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].State.CreatedAt.Before(out[j].State.CreatedAt)
	})
	return out
}

// Bot returns a running bot by id.
func (e *BotEngine) Bot(id string) (domain.Bot, bool) {
	e.mu.Lock()
	r, ok := e.runners[id]
	e.mu.Unlock()
	if !ok {
		return domain.Bot{}, false
	}
	return domain.Bot{ID: r.id, Config: r.cfg, State: r.Snapshot()}, true
}

// History lists every persisted bot state, running or not.
func (e *BotEngine) History(ctx context.Context) ([]*domain.BotState, error) {
	return e.bots.ListStates(ctx)
}

func (e *BotEngine) Trades(ctx context.Context, botID string) ([]*domain.TradeRecord, error) {
	return e.trades.ListTrades(ctx, botID)
}

func (e *BotEngine) Errors(ctx context.Context, botID string) ([]domain.ErrorRecord, error) {
	return e.bots.ListErrors(ctx, botID)
}

func (e *BotEngine) Strategies() []string {
	return e.strategies.IDs()
}

func (e *BotEngine) publishError(botID, msg string) {
	e.events.Publish(domain.ErrorEvent{BotID: botID, Message: msg, Timestamp: e.now()})
}
