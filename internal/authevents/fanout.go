package authevents

import (
	"context"
	"log/slog"

	"github.com/rxportal/rxcore/internal/auth"
)

// Fanout delivers each event to every sink in order.
type Fanout struct {
	sinks  []auth.EventSink
	logger *slog.Logger
}

// NewFanout builds a Fanout over the non-nil sinks.
func NewFanout(logger *slog.Logger, sinks ...auth.EventSink) *Fanout {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	f := &Fanout{logger: logger}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Emit implements auth.EventSink. A panicking sink is logged and skipped.
func (f *Fanout) Emit(ctx context.Context, e auth.Event) {
	for _, s := range f.sinks {
		f.emitOne(ctx, s, e)
	}
}

func (f *Fanout) emitOne(ctx context.Context, s auth.EventSink, e auth.Event) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("auth event sink panicked", "event", e.Type, "panic", r)
		}
	}()
	s.Emit(ctx, e)
}
