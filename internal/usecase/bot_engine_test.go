package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_bot_engine/internal/domain"
	"github.com/vitos/crypto_bot_engine/internal/events"
	"github.com/vitos/crypto_bot_engine/internal/infrastructure/storage"
	"github.com/vitos/crypto_bot_engine/internal/strategy"
	"go.uber.org/zap"
)

// MockGateway replays a close series: every tick sees one more candle.
type MockGateway struct {
	mu      sync.Mutex
	series  []float64
	visible int

	price      float64 // overrides the last close when set
	accountErr error
	priceErr   error
	orderErr   error

	orderEntered chan struct{}
	orderRelease chan struct{}

	orders []domain.Action
}

func newMockGateway(series []float64, visible int) *MockGateway {
	return &MockGateway{series: series, visible: visible}
}

func (m *MockGateway) Ping(ctx context.Context) error { return nil }

func (m *MockGateway) GetAccountInfo(ctx context.Context, creds domain.Credentials) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accountErr != nil {
		return nil, m.accountErr
	}
	return &domain.Account{CanTrade: true}, nil
}

func (m *MockGateway) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.priceErr != nil {
		return 0, m.priceErr
	}
	if m.price > 0 {
		return m.price, nil
	}
	n := m.visible
	if n > len(m.series) {
		n = len(m.series)
	}
	if n == 0 {
		return 0, errors.New("no data")
	}
	return m.series[n-1], nil
}

func (m *MockGateway) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.visible
	if n > len(m.series) {
		n = len(m.series)
	}
	candles := make([]domain.Candle, n)
	for i := 0; i < n; i++ {
		c := m.series[i]
		candles[i] = domain.Candle{Time: int64(i) * 60_000, Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	m.visible++
	return candles, nil
}

func (m *MockGateway) PlaceMarketOrder(ctx context.Context, creds domain.Credentials, symbol string, side domain.Action, quantity decimal.Decimal) (*domain.Fill, error) {
	if m.orderEntered != nil {
		m.orderEntered <- struct{}{}
	}
	if m.orderRelease != nil {
		<-m.orderRelease
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orderErr != nil {
		return nil, m.orderErr
	}
	m.orders = append(m.orders, side)
	return &domain.Fill{OrderID: fmt.Sprintf("ord-%d", len(m.orders)), Quantity: quantity}, nil
}

func (m *MockGateway) setPrice(p float64) {
	m.mu.Lock()
	m.price = p
	m.mu.Unlock()
}

func (m *MockGateway) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// manualScheduler records jobs and only runs them when told to.
type manualScheduler struct {
	mu   sync.Mutex
	next TriggerID
	jobs map[TriggerID]func()
	err  error
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{jobs: make(map[TriggerID]func())}
}

func (s *manualScheduler) Schedule(interval string, job func()) (TriggerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.next++
	s.jobs[s.next] = job
	return s.next, nil
}

func (s *manualScheduler) Cancel(id TriggerID) {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
}

func (s *manualScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

type testEnv struct {
	engine    *BotEngine
	gateway   *MockGateway
	repo      *storage.Repository
	recorder  *events.Recorder
	scheduler *manualScheduler
}

func newTestEnv(t *testing.T, gw *MockGateway) *testEnv {
	t.Helper()
	return newTestEnvWithRepo(t, gw, storage.NewRepository(storage.NewMemoryStore()))
}

func newTestEnvWithRepo(t *testing.T, gw *MockGateway, repo *storage.Repository) *testEnv {
	t.Helper()

	rec := &events.Recorder{}
	sched := newManualScheduler()
	engine := NewBotEngine(gw, repo, repo, strategy.DefaultRegistry(), rec, sched, EngineConfig{}, zap.NewNop())

	var mu sync.Mutex
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	engine.WithNow(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		engine.Close(ctx, true)
	})
	return &testEnv{engine: engine, gateway: gw, repo: repo, recorder: rec, scheduler: sched}
}

// runTick fires one tick and waits for it to complete.
func (env *testEnv) runTick(t *testing.T, id string) {
	t.Helper()
	done, ok := env.engine.tick(id)
	require.True(t, ok, "tick for %s was not accepted", id)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("tick for %s did not finish", id)
	}
}

func bnbConfig() domain.BotConfig {
	return domain.BotConfig{
		Symbol:        "BNBUSDT",
		StrategyID:    "crossover",
		Amount:        decimal.RequireFromString("0.1"),
		Interval:      "15m",
		TakeProfitPct: decimal.RequireFromString("3.0"),
		StopLossPct:   decimal.RequireFromString("2.0"),
	}
}

// risingSeries is flat at 100 for flat candles, then climbs 0.1 per candle.
func risingSeries(flat, rising int) []float64 {
	out := make([]float64, 0, flat+rising)
	for i := 0; i < flat; i++ {
		out = append(out, 100)
	}
	for i := 1; i <= rising; i++ {
		out = append(out, 100+0.1*float64(i))
	}
	return out
}

func TestBotEngine_CrossoverScenario(t *testing.T) {
	// 21 flat candles on the first tick; the crossing appears on the sixth.
	gw := newMockGateway(risingSeries(25, 30), 21)
	env := newTestEnv(t, gw)
	ctx := context.Background()

	id, err := env.engine.Start(ctx, bnbConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, env.scheduler.count())
	assert.Empty(t, env.recorder.OfType(domain.EventTradeExecuted, id), "first tick must not run synchronously")

	for i := 0; i < 10; i++ {
		env.runTick(t, id)
	}

	trades := env.recorder.OfType(domain.EventTradeExecuted, id)
	require.Len(t, trades, 1)
	ev := trades[0].(domain.TradeExecutedEvent)
	assert.Equal(t, domain.ActionBuy, ev.Side)
	assert.Equal(t, "BNBUSDT", ev.Symbol)
	assert.True(t, ev.Quantity.Equal(decimal.RequireFromString("0.1")), "quantity %s", ev.Quantity)
	assert.True(t, ev.Profit.IsZero())

	bot, ok := env.engine.Bot(id)
	require.True(t, ok)
	assert.Equal(t, int64(1), bot.State.TradesExecuted)
	assert.Equal(t, domain.BotStatusActive, bot.State.Status)
	require.NotNil(t, bot.State.LastSignal)

	stored, err := env.repo.ListTrades(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.TradeSourceAuto, stored[0].Source)
	assert.Equal(t, "crossover", stored[0].StrategyID)
	assert.NotEmpty(t, stored[0].ID)

	// one status event per tick plus the start event
	assert.Len(t, env.recorder.OfType(domain.EventStatus, id), 11)
}

func TestBotEngine_InsufficientBalance(t *testing.T) {
	gw := newMockGateway(risingSeries(20, 1), 21)
	gw.orderErr = errors.New("insufficient balance")
	env := newTestEnv(t, gw)
	ctx := context.Background()

	id, err := env.engine.Start(ctx, bnbConfig())
	require.NoError(t, err)

	env.runTick(t, id)

	errs := env.recorder.OfType(domain.EventError, id)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].(domain.ErrorEvent).Message, "insufficient balance")
	assert.Empty(t, env.recorder.OfType(domain.EventTradeExecuted, id))

	state, err := env.repo.GetState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.TradesExecuted)
	assert.Equal(t, domain.BotStatusActive, state.Status)
	require.NotNil(t, state.LastCheckAt)
	require.NotNil(t, state.LastSignal)
	assert.Equal(t, domain.ActionBuy, state.LastSignal.Action)
	assert.Empty(t, state.OpenPositions)

	records, err := env.repo.ListErrors(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, stageOrder, records[0].Stage)

	// the trigger keeps firing
	assert.Equal(t, 1, env.scheduler.count())
}

func TestBotEngine_StartThenStop(t *testing.T) {
	env := newTestEnv(t, newMockGateway(risingSeries(30, 0), 21))
	ctx := context.Background()

	id, err := env.engine.Start(ctx, bnbConfig())
	require.NoError(t, err)

	stopped, err := env.engine.Stop(ctx, id)
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, 0, env.scheduler.count())

	state, err := env.repo.GetState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.BotStatusStopped, state.Status)
	assert.Equal(t, int64(0), state.TradesExecuted)
	assert.NotNil(t, state.StoppedAt)

	statuses := env.recorder.OfType(domain.EventStatus, id)
	require.NotEmpty(t, statuses)
	assert.Equal(t, domain.BotStatusStopped, statuses[len(statuses)-1].(domain.StatusEvent).Status)

	again, err := env.engine.Stop(ctx, id)
	require.NoError(t, err)
	assert.False(t, again)

	_, ok := env.engine.tick(id)
	assert.False(t, ok)
	assert.Empty(t, env.engine.Bots())

	history, err := env.engine.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestBotEngine_StopAll(t *testing.T) {
	env := newTestEnv(t, newMockGateway(risingSeries(20, 10), 21))
	ctx := context.Background()

	var ids []string
	for _, symbol := range []string{"BNBUSDT", "BTCUSDT", "BNBUSDT"} {
		cfg := bnbConfig()
		cfg.Symbol = symbol
		id, err := env.engine.Start(ctx, cfg)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Len(t, env.engine.Bots(), 3)
	assert.NotEqual(t, ids[0], ids[2])

	assert.Equal(t, 3, env.engine.StopAll(ctx))
	before := len(env.recorder.Events())

	for _, id := range ids {
		_, ok := env.engine.tick(id)
		assert.False(t, ok)
	}
	assert.Len(t, env.recorder.Events(), before)
	assert.Equal(t, 0, env.scheduler.count())
	assert.Equal(t, 0, env.engine.StopAll(ctx))
}

func TestBotEngine_NoDoubleTick(t *testing.T) {
	gw := newMockGateway(risingSeries(20, 5), 21)
	gw.orderEntered = make(chan struct{}, 2)
	gw.orderRelease = make(chan struct{})
	env := newTestEnv(t, gw)

	id, err := env.engine.Start(context.Background(), bnbConfig())
	require.NoError(t, err)

	done, ok := env.engine.tick(id)
	require.True(t, ok)
	<-gw.orderEntered

	_, second := env.engine.tick(id)
	assert.False(t, second, "overlapping tick must be skipped")

	close(gw.orderRelease)
	<-done

	assert.Len(t, env.recorder.OfType(domain.EventTradeExecuted, id), 1)
	assert.Equal(t, 1, gw.orderCount())
}

func TestBotEngine_StartValidation(t *testing.T) {
	env := newTestEnv(t, newMockGateway(nil, 0))
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*domain.BotConfig)
	}{
		{"empty symbol", func(c *domain.BotConfig) { c.Symbol = "" }},
		{"zero amount", func(c *domain.BotConfig) { c.Amount = decimal.Zero }},
		{"negative stop loss", func(c *domain.BotConfig) { c.StopLossPct = decimal.NewFromInt(-1) }},
		{"unknown strategy", func(c *domain.BotConfig) { c.StrategyID = "martingale" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := bnbConfig()
			tt.mutate(&cfg)
			_, err := env.engine.Start(ctx, cfg)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	errs := env.recorder.OfType(domain.EventError, "")
	require.Len(t, errs, len(tests))
	for _, ev := range errs {
		assert.Empty(t, ev.Bot())
	}
	history, err := env.engine.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Equal(t, 0, env.scheduler.count())
}

func TestBotEngine_StartConnectivityFailure(t *testing.T) {
	gw := newMockGateway(nil, 0)
	gw.accountErr = errors.New("invalid api key")
	env := newTestEnv(t, gw)

	_, err := env.engine.Start(context.Background(), bnbConfig())
	require.ErrorIs(t, err, domain.ErrConnectivity)
	assert.Empty(t, env.engine.Bots())
	assert.Equal(t, 0, env.scheduler.count())
	assert.Len(t, env.recorder.OfType(domain.EventError, ""), 1)
}

func TestBotEngine_TickFailureKeepsSchedule(t *testing.T) {
	gw := newMockGateway(risingSeries(30, 0), 21)
	env := newTestEnv(t, gw)
	ctx := context.Background()

	id, err := env.engine.Start(ctx, bnbConfig())
	require.NoError(t, err)

	gw.mu.Lock()
	gw.priceErr = errors.New("timeout")
	gw.mu.Unlock()
	env.runTick(t, id)

	require.Len(t, env.recorder.OfType(domain.EventError, id), 1)
	records, err := env.engine.Errors(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, stagePrice, records[0].Stage)

	gw.mu.Lock()
	gw.priceErr = nil
	gw.mu.Unlock()
	env.runTick(t, id)

	bot, ok := env.engine.Bot(id)
	require.True(t, ok)
	assert.Equal(t, domain.BotStatusActive, bot.State.Status)
	assert.Empty(t, bot.State.LastError)
	assert.Equal(t, 1, env.scheduler.count())
}

func TestBotEngine_TakeProfitForcesSell(t *testing.T) {
	gw := newMockGateway(risingSeries(30, 0), 21)
	env := newTestEnv(t, gw)
	ctx := context.Background()

	id, err := env.engine.Start(ctx, bnbConfig())
	require.NoError(t, err)

	trade, err := env.engine.ManualTrade(ctx, ManualTradeRequest{BotID: id, Side: "buy"})
	require.NoError(t, err)
	assert.Equal(t, domain.TradeSourceManual, trade.Source)
	assert.True(t, trade.Quantity.Equal(decimal.RequireFromString("0.1")))
	assert.True(t, trade.Price.Equal(decimal.NewFromInt(100)))

	gw.setPrice(104)
	env.runTick(t, id)

	trades, err := env.engine.Trades(ctx, id)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	sell := trades[1]
	assert.Equal(t, domain.ActionSell, sell.Side)
	assert.Contains(t, sell.Reason, "take profit")
	assert.True(t, sell.Profit.Equal(decimal.RequireFromString("0.4")), "profit %s", sell.Profit)

	bot, _ := env.engine.Bot(id)
	assert.Equal(t, int64(2), bot.State.TradesExecuted)
	assert.True(t, bot.State.TotalProfit.Equal(decimal.RequireFromString("0.4")))
	assert.Empty(t, bot.State.OpenPositions)
}

func TestBotEngine_ManualTradeErrors(t *testing.T) {
	env := newTestEnv(t, newMockGateway(risingSeries(30, 0), 21))
	ctx := context.Background()

	_, err := env.engine.ManualTrade(ctx, ManualTradeRequest{BotID: "missing", Side: domain.ActionBuy})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	id, err := env.engine.Start(ctx, bnbConfig())
	require.NoError(t, err)

	_, err = env.engine.ManualTrade(ctx, ManualTradeRequest{BotID: id, Side: domain.ActionHold})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.engine.ManualTrade(ctx, ManualTradeRequest{BotID: id, Side: domain.ActionSell, Quantity: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBotEngine_StopDropsQueuedTick(t *testing.T) {
	for i := 0; i < 20; i++ {
		// the next tick would BUY on the crossing
		gw := newMockGateway(risingSeries(20, 1), 21)
		gw.orderEntered = make(chan struct{}, 2)
		gw.orderRelease = make(chan struct{})
		env := newTestEnv(t, gw)
		ctx := context.Background()

		id, err := env.engine.Start(ctx, bnbConfig())
		require.NoError(t, err)
		env.engine.mu.Lock()
		r := env.engine.runners[id]
		env.engine.mu.Unlock()

		manual := make(chan error, 1)
		go func() {
			_, err := env.engine.ManualTrade(ctx, ManualTradeRequest{BotID: id, Side: domain.ActionBuy})
			manual <- err
		}()
		<-gw.orderEntered

		tickDone, ok := env.engine.tick(id)
		require.True(t, ok)

		stopped := make(chan error, 1)
		go func() {
			_, err := env.engine.Stop(ctx, id)
			stopped <- err
		}()
		select {
		case <-r.quit:
		case <-time.After(2 * time.Second):
			t.Fatal("stop was not requested")
		}

		close(gw.orderRelease)
		require.NoError(t, <-manual)
		require.NoError(t, <-stopped)

		select {
		case <-tickDone:
		case <-time.After(2 * time.Second):
			t.Fatal("queued tick was not released")
		}

		assert.Equal(t, 1, gw.orderCount(), "run %d: queued tick placed an order after stop", i)
		state, err := env.repo.GetState(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.BotStatusStopped, state.Status)
		assert.Equal(t, int64(1), state.TradesExecuted)
	}
}

func TestBotEngine_ScheduleFailureIsNotResumed(t *testing.T) {
	repo := storage.NewRepository(storage.NewMemoryStore())
	ctx := context.Background()

	first := newTestEnvWithRepo(t, newMockGateway(risingSeries(30, 0), 21), repo)
	first.scheduler.err = errors.New("scheduler stopped")

	_, err := first.engine.Start(ctx, bnbConfig())
	require.ErrorContains(t, err, "scheduler stopped")
	assert.Empty(t, first.engine.Bots())

	states, err := repo.ListStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, domain.BotStatusError, states[0].Status)
	assert.Contains(t, states[0].LastError, "scheduler stopped")
	require.Len(t, first.recorder.OfType(domain.EventError, states[0].BotID), 1)

	second := newTestEnvWithRepo(t, newMockGateway(risingSeries(30, 0), 21), repo)
	n, err := second.engine.Resume(ctx, true)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, second.engine.Bots())
}

func TestBotEngine_ResumeAfterRestart(t *testing.T) {
	repo := storage.NewRepository(storage.NewMemoryStore())
	ctx := context.Background()

	first := newTestEnvWithRepo(t, newMockGateway(risingSeries(30, 0), 21), repo)
	id, err := first.engine.Start(ctx, bnbConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, first.engine.Suspend(ctx))

	state, err := repo.GetState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.BotStatusActive, state.Status)

	second := newTestEnvWithRepo(t, newMockGateway(risingSeries(30, 0), 21), repo)
	n, err := second.engine.Resume(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	bot, ok := second.engine.Bot(id)
	require.True(t, ok)
	assert.Equal(t, "BNBUSDT", bot.Config.Symbol)
	second.runTick(t, id)

	// a fresh start never reuses a resumed id
	newID, err := second.engine.Start(ctx, bnbConfig())
	require.NoError(t, err)
	assert.NotEqual(t, id, newID)
}

func TestBotEngine_ResumeDisabledMarksStopped(t *testing.T) {
	repo := storage.NewRepository(storage.NewMemoryStore())
	ctx := context.Background()

	first := newTestEnvWithRepo(t, newMockGateway(nil, 0), repo)
	id, err := first.engine.Start(ctx, bnbConfig())
	require.NoError(t, err)
	first.engine.Suspend(ctx)

	second := newTestEnvWithRepo(t, newMockGateway(nil, 0), repo)
	n, err := second.engine.Resume(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, second.engine.Bots())

	state, err := repo.GetState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.BotStatusStopped, state.Status)
}

func TestBotEngine_ResumeProbeFailure(t *testing.T) {
	repo := storage.NewRepository(storage.NewMemoryStore())
	ctx := context.Background()

	first := newTestEnvWithRepo(t, newMockGateway(nil, 0), repo)
	id, err := first.engine.Start(ctx, bnbConfig())
	require.NoError(t, err)
	first.engine.Suspend(ctx)

	gw := newMockGateway(nil, 0)
	gw.accountErr = errors.New("network unreachable")
	second := newTestEnvWithRepo(t, gw, repo)
	n, err := second.engine.Resume(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, second.recorder.OfType(domain.EventError, id), 1)

	state, err := repo.GetState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.BotStatusError, state.Status)
}

func TestBotEngine_UnknownStrategyAtTickHolds(t *testing.T) {
	env := newTestEnv(t, newMockGateway(risingSeries(30, 0), 21))
	ctx := context.Background()

	id, err := env.engine.Start(ctx, bnbConfig())
	require.NoError(t, err)

	// simulate a strategy removed from the registry after the bot started
	env.engine.strategies = strategy.NewRegistry()
	env.runTick(t, id)

	bot, _ := env.engine.Bot(id)
	require.NotNil(t, bot.State.LastSignal)
	assert.Equal(t, domain.ActionHold, bot.State.LastSignal.Action)
	assert.Contains(t, bot.State.LastSignal.Reason, strategy.ReasonUnknownStrategy)
	assert.Empty(t, env.recorder.OfType(domain.EventError, id))
}
