package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vitos/crypto_bot_engine/internal/domain"
)

const (
	configPrefix = "bot_config_"
	statePrefix  = "bot_state_"
	errorPrefix  = "bot_error_"
	tradePrefix  = "trade_"
)

func ConfigKey(id string) string { return configPrefix + id }
func StateKey(id string) string { return statePrefix + id }
func TradeKey(id string) string { return tradePrefix + id }

func ErrorKey(rec domain.ErrorRecord) string {
	return fmt.Sprintf("%s%s_%d", errorPrefix, rec.BotID, rec.Timestamp.UnixNano())
}

// Repository implements the bot and trade repositories on top of a KV store.
type Repository struct {
	kv KV
}

func NewRepository(kv KV) *Repository {
	return &Repository{kv: kv}
}

// BotRepository Implementation

func (r *Repository) SaveConfig(ctx context.Context, id string, cfg domain.BotConfig) error {
	return setJSON(ctx, r.kv, ConfigKey(id), cfg)
}

func (r *Repository) GetConfig(ctx context.Context, id string) (*domain.BotConfig, error) {
	var cfg domain.BotConfig
	found, err := getJSON(ctx, r.kv, ConfigKey(id), &cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("config %s: %w", id, domain.ErrNotFound)
	}
	return &cfg, nil
}

func (r *Repository) SaveState(ctx context.Context, state *domain.BotState) error {
	return setJSON(ctx, r.kv, StateKey(state.BotID), state)
}

func (r *Repository) GetState(ctx context.Context, id string) (*domain.BotState, error) {
	var st domain.BotState
	found, err := getJSON(ctx, r.kv, StateKey(id), &st)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("state %s: %w", id, domain.ErrNotFound)
	}
	return &st, nil
}

func (r *Repository) ListStates(ctx context.Context) ([]*domain.BotState, error) {
	keys, err := r.kv.List(ctx, statePrefix)
	if err != nil {
		return nil, err
	}

	states := make([]*domain.BotState, 0, len(keys))
	for _, k := range keys {
		st, err := r.GetState(ctx, strings.TrimPrefix(k, statePrefix))
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].CreatedAt.Before(states[j].CreatedAt)
	})
	return states, nil
}

func (r *Repository) SaveError(ctx context.Context, rec domain.ErrorRecord) error {
	return setJSON(ctx, r.kv, ErrorKey(rec), rec)
}

func (r *Repository) ListErrors(ctx context.Context, botID string) ([]domain.ErrorRecord, error) {
	keys, err := r.kv.List(ctx, errorPrefix+botID+"_")
	if err != nil {
		return nil, err
	}

	records := make([]domain.ErrorRecord, 0, len(keys))
	for _, k := range keys {
		var rec domain.ErrorRecord
		if _, err := getJSON(ctx, r.kv, k, &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records, nil
}

// PurgeBot deletes everything stored for a bot that is no longer active:
// config, state, error records and trades. It returns the number of keys removed.
func (r *Repository) PurgeBot(ctx context.Context, id string) (int, error) {
	st, err := r.GetState(ctx, id)
	if err != nil {
		return 0, err
	}
	if st.Status == domain.BotStatusActive || st.Status == domain.BotStatusStarting {
		return 0, fmt.Errorf("%w: bot %s is %s, stop it first", domain.ErrValidation, id, st.Status)
	}

	keys, err := r.kv.List(ctx, errorPrefix+id+"_")
	if err != nil {
		return 0, err
	}
	trades, err := r.ListTrades(ctx, id)
	if err != nil {
		return 0, err
	}
	for _, t := range trades {
		keys = append(keys, TradeKey(t.ID))
	}
	keys = append(keys, ConfigKey(id), StateKey(id))

	removed := 0
	for _, k := range keys {
		if err := r.kv.Delete(ctx, k); err != nil {
			return removed, fmt.Errorf("delete %s: %w", k, err)
		}
		removed++
	}
	return removed, nil
}

// TradeRepository Implementation

func (r *Repository) AppendTrade(ctx context.Context, trade *domain.TradeRecord) error {
	key := TradeKey(trade.ID)
	if _, found, err := r.kv.Get(ctx, key); err != nil {
		return err
	} else if found {
		return fmt.Errorf("trade %s already recorded", trade.ID)
	}
	return setJSON(ctx, r.kv, key, trade)
}

// ListTrades returns trades for botID oldest first; an empty botID lists all trades.
func (r *Repository) ListTrades(ctx context.Context, botID string) ([]*domain.TradeRecord, error) {
	keys, err := r.kv.List(ctx, tradePrefix)
	if err != nil {
		return nil, err
	}

	var trades []*domain.TradeRecord
	for _, k := range keys {
		var t domain.TradeRecord
		if _, err := getJSON(ctx, r.kv, k, &t); err != nil {
			return nil, err
		}
		if botID != "" && t.BotID != botID {
			continue
		}
		trades = append(trades, &t)
	}
	sort.Slice(trades, func(i, j int) bool {
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})
	return trades, nil
}
