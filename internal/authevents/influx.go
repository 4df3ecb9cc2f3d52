package authevents

import (
	"context"
	"time"

	"github.com/rxportal/rxcore/internal/auth"
)

// PointWriter is the part of *influxdb.Client the sink uses.
type PointWriter interface {
	WriteAuthEvent(event, outcome, role string, at time.Time)
}

// InfluxSink writes an auth_events point per event.
type InfluxSink struct {
	w PointWriter
}

// NewInfluxSink creates an InfluxSink.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Emit implements auth.EventSink.
func (s *InfluxSink) Emit(_ context.Context, e auth.Event) {
	s.w.WriteAuthEvent(string(e.Type), e.Outcome, string(e.Role), e.At)
}
