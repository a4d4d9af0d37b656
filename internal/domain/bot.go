package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type BotStatus string

const (
	BotStatusStarting BotStatus = "starting"
	BotStatusActive   BotStatus = "active"
	BotStatusStopped  BotStatus = "stopped"
	BotStatusError    BotStatus = "error"
)

// Credentials is an opaque handle passed through to the gateway.
// It is never serialized and prints redacted.
type Credentials struct {
	APIKey    string
	APISecret string
}

func (c Credentials) String() string {
	if c.APIKey == "" {
		return "<none>"
	}
	return "<redacted>"
}

func (c Credentials) GoString() string { return c.String() }

func (c Credentials) IsZero() bool { return c.APIKey == "" && c.APISecret == "" }

// BotConfig is immutable once the bot starts.
type BotConfig struct {
	Symbol        string          `json:"symbol"`
	StrategyID    string          `json:"strategy_id"`
	Amount        decimal.Decimal `json:"amount"`
	Interval      string          `json:"interval"`
	TakeProfitPct decimal.Decimal `json:"take_profit_pct"`
	StopLossPct   decimal.Decimal `json:"stop_loss_pct"`
	Credentials   Credentials     `json:"-"`
}

// Validate reports the first malformed field wrapped in ErrValidation.
func (c BotConfig) Validate() error {
	if strings.TrimSpace(c.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	if strings.TrimSpace(c.StrategyID) == "" {
		return fmt.Errorf("%w: strategy_id is required", ErrValidation)
	}
	if !c.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than 0", ErrValidation)
	}
	if strings.TrimSpace(c.Interval) == "" {
		return fmt.Errorf("%w: interval is required", ErrValidation)
	}
	if !c.TakeProfitPct.IsPositive() {
		return fmt.Errorf("%w: take_profit_pct must be greater than 0", ErrValidation)
	}
	if !c.StopLossPct.IsPositive() {
		return fmt.Errorf("%w: stop_loss_pct must be greater than 0", ErrValidation)
	}
	return nil
}

// NewBotID derives an id from the symbol and creation time.
func NewBotID(symbol string, createdAt time.Time) string {
	return fmt.Sprintf("%s_%d", strings.ToUpper(strings.TrimSpace(symbol)), createdAt.UnixMilli())
}

// BotState is owned by the bot's runner while it is scheduled.
type BotState struct {
	BotID          string                     `json:"bot_id"`
	Status         BotStatus                  `json:"status"`
	LastCheckAt    *time.Time                 `json:"last_check_at"`
	LastSignal     *Signal                    `json:"last_signal"`
	TradesExecuted int64                      `json:"trades_executed"`
	TotalProfit    decimal.Decimal            `json:"total_profit"`
	OpenPositions  map[string]decimal.Decimal `json:"open_positions"`
	CostBasis      map[string]decimal.Decimal `json:"cost_basis"`
	LastError      string                     `json:"last_error,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
	StoppedAt      *time.Time                 `json:"stopped_at"`
}

func NewBotState(id string, createdAt time.Time) *BotState {
	return &BotState{
		BotID:         id,
		Status:        BotStatusStarting,
		TotalProfit:   decimal.Zero,
		OpenPositions: make(map[string]decimal.Decimal),
		CostBasis:     make(map[string]decimal.Decimal),
		CreatedAt:     createdAt,
	}
}

// Clone returns a deep copy safe to hand out of the runner.
func (s *BotState) Clone() *BotState {
	if s == nil {
		return nil
	}
	c := *s
	if s.LastCheckAt != nil {
		t := *s.LastCheckAt
		c.LastCheckAt = &t
	}
	if s.StoppedAt != nil {
		t := *s.StoppedAt
		c.StoppedAt = &t
	}
	if s.LastSignal != nil {
		sig := *s.LastSignal
		c.LastSignal = &sig
	}
	c.OpenPositions = make(map[string]decimal.Decimal, len(s.OpenPositions))
	for k, v := range s.OpenPositions {
		c.OpenPositions[k] = v
	}
	c.CostBasis = make(map[string]decimal.Decimal, len(s.CostBasis))
	for k, v := range s.CostBasis {
		c.CostBasis[k] = v
	}
	return &c
}

// Position returns the held quantity and its average cost.
func (s *BotState) Position(symbol string) (qty, avgCost decimal.Decimal) {
	qty = s.OpenPositions[symbol]
	if !qty.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	return qty, s.CostBasis[symbol].Div(qty)
}

// Bot is a read-only view combining config and state.
type Bot struct {
	ID     string    `json:"id"`
	Config BotConfig `json:"config"`
	State  *BotState `json:"state"`
}
