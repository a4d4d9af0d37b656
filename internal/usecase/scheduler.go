package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/vitos/crypto_bot_engine/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// FallbackInterval is used for interval strings outside the supported set.
const FallbackInterval = "15m"

type TriggerID int

// Scheduler registers recurring jobs for bot intervals.
type Scheduler interface {
	Schedule(interval string, job func()) (TriggerID, error)
	Cancel(id TriggerID)
}

// CronSpec maps a bot interval to a 5-field cron expression aligned to
// clock boundaries. ok is false when the interval fell back to 15m.
func CronSpec(interval string, dailyHour int) (spec, effective string, ok bool) {
	switch interval {
	case "1m":
		return "* * * * *", interval, true
	case "5m":
		return "*/5 * * * *", interval, true
	case "15m":
		return "*/15 * * * *", interval, true
	case "1h":
		return "0 * * * *", interval, true
	case "4h":
		return "0 */4 * * *", interval, true
	case "1d":
		if dailyHour < 0 || dailyHour > 23 {
			dailyHour = 0
		}
		return fmt.Sprintf("0 %d * * *", dailyHour), interval, true
	}
	return "*/15 * * * *", FallbackInterval, false
}

// EffectiveInterval returns the candle granularity a bot actually runs at.
func EffectiveInterval(interval string) string {
	_, effective, _ := CronSpec(interval, 0)
	return effective
}

type CronScheduler struct {
	cron      *cron.Cron
	dailyHour int
	logger    *zap.Logger
}

func NewCronScheduler(loc *time.Location, dailyHour int, log *zap.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	cl := logger.NewCronLogger(log)
	return &CronScheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		dailyHour: dailyHour,
		logger:    log,
	}
}

func (s *CronScheduler) Start() { s.cron.Start() }

// Stop halts triggering; the returned context is done once running jobs return.
func (s *CronScheduler) Stop() context.Context { return s.cron.Stop() }

func (s *CronScheduler) Schedule(interval string, job func()) (TriggerID, error) {
	spec, effective, ok := CronSpec(interval, s.dailyHour)
	if !ok {
		s.logger.Warn("Unsupported interval, falling back",
			zap.String("interval", interval), zap.String("fallback", effective))
	}
	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return 0, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return TriggerID(id), nil
}

func (s *CronScheduler) Cancel(id TriggerID) {
	s.cron.Remove(cron.EntryID(id))
}

// Next reports when the trigger fires next; zero if it is not scheduled.
func (s *CronScheduler) Next(id TriggerID) time.Time {
	return s.cron.Entry(cron.EntryID(id)).Next
}
