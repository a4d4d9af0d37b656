package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_bot_engine/internal/domain"
)

type tickRequest struct {
	done chan struct{}
}

type manualRequest struct {
	ctx   context.Context
	side  domain.Action
	qty   decimal.Decimal
	reply chan manualResult
}

type manualResult struct {
	trade *domain.TradeRecord
	err   error
}

// botRunner owns one bot's state. Every mutation happens on its goroutine;
// the engine talks to it through channels only.
type botRunner struct {
	id             string
	cfg            domain.BotConfig
	candleInterval string
	trigger        TriggerID // guarded by BotEngine.mu

	state    *domain.BotState // owned by run
	snapshot atomic.Pointer[domain.BotState]

	ticks    chan tickRequest
	manual   chan manualRequest
	inflight atomic.Bool

	mu       sync.Mutex
	closed   bool
	quit     chan struct{}
	quitOnce sync.Once
	finalize bool // apply the stop transition on quit
	done     chan struct{}
}

func newBotRunner(id string, cfg domain.BotConfig, state *domain.BotState) *botRunner {
	r := &botRunner{
		id:             id,
		cfg:            cfg,
		candleInterval: EffectiveInterval(cfg.Interval),
		state:          state,
		ticks:          make(chan tickRequest, 1),
		manual:         make(chan manualRequest),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	r.snapshot.Store(state.Clone())
	return r
}

// requestTick queues a tick unless one is already queued or running.
func (r *botRunner) requestTick() (<-chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false
	}
	if !r.inflight.CompareAndSwap(false, true) {
		return nil, false
	}
	req := tickRequest{done: make(chan struct{})}
	r.ticks <- req // never blocks: inflight admits one request into a buffer of one
	return req.done, true
}

// requestStop asks the run loop to exit after the current tick.
func (r *botRunner) requestStop(finalize bool) {
	r.quitOnce.Do(func() {
		r.mu.Lock()
		r.finalize = finalize
		r.mu.Unlock()
		close(r.quit)
	})
}

func (r *botRunner) run(e *BotEngine) {
	defer close(r.done)
	for {
		select {
		case req := <-r.ticks:
			if r.stopping() {
				r.inflight.Store(false)
				close(req.done)
				r.shutdown(e)
				return
			}
			e.runTick(r)
			r.inflight.Store(false)
			close(req.done)
		case req := <-r.manual:
			if r.stopping() {
				req.reply <- manualResult{err: fmt.Errorf("bot %s: %w", r.id, domain.ErrNotFound)}
				r.shutdown(e)
				return
			}
			trade, err := e.runManual(req.ctx, r, req.side, req.qty)
			req.reply <- manualResult{trade: trade, err: err}
		case <-r.quit:
			r.shutdown(e)
			return
		}
	}
}

// stopping reports whether a stop was requested. Work that was queued but
// not started by then is dropped.
func (r *botRunner) stopping() bool {
	select {
	case <-r.quit:
		return true
	default:
		return false
	}
}

func (r *botRunner) shutdown(e *BotEngine) {
	r.mu.Lock()
	r.closed = true
	finalize := r.finalize
	r.mu.Unlock()
	r.drain()
	if finalize {
		e.finalizeStop(r)
	}
}

// drain releases a tick that was queued but will never run.
func (r *botRunner) drain() {
	select {
	case req := <-r.ticks:
		r.inflight.Store(false)
		close(req.done)
	default:
	}
}

func (r *botRunner) publishSnapshot() {
	r.snapshot.Store(r.state.Clone())
}

func (r *botRunner) Snapshot() *domain.BotState {
	return r.snapshot.Load().Clone()
}
