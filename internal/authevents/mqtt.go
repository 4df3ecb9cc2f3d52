package authevents

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rxportal/rxcore/internal/auth"
	"github.com/rxportal/rxcore/internal/infrastructure/mqtt"
)

// Publisher is the part of *mqtt.Client the sink uses.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTSink publishes each event as JSON on {prefix}/events/auth/{type}.
// Messages are not retained.
type MQTTSink struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
	logger *slog.Logger
}

// NewMQTTSink creates an MQTTSink.
func NewMQTTSink(pub Publisher, topics mqtt.Topics, qos byte, logger *slog.Logger) *MQTTSink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MQTTSink{pub: pub, topics: topics, qos: qos, logger: logger}
}

// Emit implements auth.EventSink.
func (s *MQTTSink) Emit(_ context.Context, e auth.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		s.logger.Error("encoding auth event", "event", e.Type, "error", err)
		return
	}
	topic := s.topics.AuthEvent(string(e.Type))
	if err := s.pub.Publish(topic, payload, s.qos, false); err != nil {
		s.logger.Warn("publishing auth event", "topic", topic, "error", err)
	}
}
