// Package notify forwards engine events to external channels.
package notify

import (
	"context"
	"time"

	"github.com/vitos/crypto_bot_engine/internal/domain"
	"github.com/vitos/crypto_bot_engine/internal/events"
	"go.uber.org/zap"
)

const sendTimeout = 10 * time.Second

// Sink delivers a single event. Send may block on network I/O.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev domain.Event) error
	Close() error
}

// Forward drains sub into sink until ctx is done or the subscription closes.
// Delivery failures are logged and the event is dropped.
func Forward(ctx context.Context, sub *events.Subscription, sink Sink, logger *zap.Logger) {
	log := logger.With(zap.String("sink", sink.Name()))
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			if err := sink.Send(sendCtx, ev); err != nil {
				log.Warn("Failed to deliver event",
					zap.String("type", string(ev.Type())),
					zap.String("bot_id", ev.Bot()),
					zap.Error(err))
			}
			cancel()
		}
	}
}
