package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrConnectivity = errors.New("connectivity error")
	ErrNotFound     = errors.New("not found")
)

// TickError wraps a failure inside one scheduled tick.
type TickError struct {
	BotID string
	Stage string
	Err   error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("bot %s tick failed at %s: %v", e.BotID, e.Stage, e.Err)
}

func (e *TickError) Unwrap() error { return e.Err }
