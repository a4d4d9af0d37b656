package events

import (
	"encoding/json"

	"github.com/vitos/crypto_bot_engine/internal/domain"
)

// Envelope is the wire form of an event on the websocket and in Kafka.
type Envelope struct {
	Type domain.EventType `json:"type"`
	Data domain.Event     `json:"data"`
}

func Encode(ev domain.Event) ([]byte, error) {
	return json.Marshal(Envelope{Type: ev.Type(), Data: ev})
}
