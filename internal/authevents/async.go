package authevents

import (
	"context"
	"log/slog"

	"github.com/rxportal/rxcore/internal/auth"
)

const defaultQueueSize = 256

// Async decouples a slow sink from the request path. Events are queued and
// delivered by Run; a full queue drops the event with a warning.
type Async struct {
	name   string
	next   auth.EventSink
	queue  chan auth.Event
	logger *slog.Logger
}

// NewAsync wraps next. size <= 0 uses the default queue length.
func NewAsync(name string, next auth.EventSink, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = defaultQueueSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Async{name: name, next: next, queue: make(chan auth.Event, size), logger: logger}
}

// Emit implements auth.EventSink without blocking.
func (a *Async) Emit(_ context.Context, e auth.Event) {
	select {
	case a.queue <- e:
	default:
		a.logger.Warn("auth event queue full, dropping event", "sink", a.name, "event", e.Type)
	}
}

// Run delivers queued events until ctx is cancelled, then drains the queue.
func (a *Async) Run(ctx context.Context) {
	deliverCtx := context.WithoutCancel(ctx)
	for {
		select {
		case e := <-a.queue:
			a.next.Emit(deliverCtx, e)
		case <-ctx.Done():
			for {
				select {
				case e := <-a.queue:
					a.next.Emit(deliverCtx, e)
				default:
					return
				}
			}
		}
	}
}
