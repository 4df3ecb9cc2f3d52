package audit

import (
	"context"
	"log/slog"
	"sync"
)

// writerBuffer is the queue length of a Writer. Entries beyond it are dropped.
const writerBuffer = 256

// Writer queues entries and writes them one at a time on a background
// goroutine, so request handlers never wait on the audit table.
type Writer struct {
	repo   Repository
	logger *slog.Logger
	ch     chan *Entry
	done   chan struct{}
	once   sync.Once
}

// NewWriter creates a Writer over repo. Call Run to start draining.
func NewWriter(repo Repository, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{
		repo:   repo,
		logger: logger,
		ch:     make(chan *Entry, writerBuffer),
		done:   make(chan struct{}),
	}
}

// Record enqueues entry. It never blocks; a full queue drops the entry.
func (w *Writer) Record(entry *Entry) {
	select {
	case w.ch <- entry:
	default:
		w.logger.Warn("audit queue full, dropping entry",
			"action", entry.Action,
			"entity_type", entry.EntityType,
		)
	}
}

// Run drains the queue until ctx is cancelled, then writes what is left.
func (w *Writer) Run(ctx context.Context) {
	defer w.once.Do(func() { close(w.done) })
	for {
		select {
		case entry := <-w.ch:
			w.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-w.ch:
					w.write(entry)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

func (w *Writer) write(entry *Entry) {
	if err := w.repo.Create(context.Background(), entry); err != nil {
		w.logger.Error("audit write failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"error", err,
		)
	}
}
