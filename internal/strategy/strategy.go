// Package strategy holds the pure signal evaluators a bot can run.
package strategy

import (
	"fmt"
	"sort"

	"github.com/vitos/crypto_bot_engine/internal/domain"
)

const (
	ReasonInsufficientData = "insufficient data"
	ReasonUnknownStrategy  = "unknown strategy"
)

// Evaluator maps a candle window (oldest first) and the current price to a signal.
// Implementations must be deterministic and must not perform I/O.
type Evaluator interface {
	ID() string
	Evaluate(candles []domain.Candle, price float64) domain.Signal
}

type Registry struct {
	evaluators map[string]Evaluator
}

func NewRegistry(evaluators ...Evaluator) *Registry {
	r := &Registry{evaluators: make(map[string]Evaluator, len(evaluators))}
	for _, e := range evaluators {
		r.evaluators[e.ID()] = e
	}
	return r
}

// DefaultRegistry registers the built-in strategies with default parameters.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewCrossover(DefaultShortWindow, DefaultLongWindow),
		NewRSI(DefaultRSIPeriod, DefaultOversold, DefaultOverbought),
		NewBollinger(DefaultBandWindow, DefaultBandK),
	)
}

func (r *Registry) Get(id string) (Evaluator, bool) {
	e, ok := r.evaluators[id]
	return e, ok
}

func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.evaluators))
	for id := range r.evaluators {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Evaluate runs the strategy registered under id. Unknown ids and evaluator
// panics come back as HOLD with the reason filled in.
func (r *Registry) Evaluate(id string, candles []domain.Candle, price float64) (sig domain.Signal) {
	e, ok := r.evaluators[id]
	if !ok {
		return domain.Hold(fmt.Sprintf("%s: %s", ReasonUnknownStrategy, id), price)
	}

	defer func() {
		if rec := recover(); rec != nil {
			sig = domain.Hold(fmt.Sprintf("strategy error: %v", rec), price)
		}
	}()
	return e.Evaluate(candles, price)
}

// resolvePrice falls back to the last close when no live price is supplied.
func resolvePrice(closes []float64, price float64) float64 {
	if price > 0 || len(closes) == 0 {
		return price
	}
	return closes[len(closes)-1]
}
