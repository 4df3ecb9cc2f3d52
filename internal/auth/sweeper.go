package auth

import (
	"context"
	"log/slog"
	"time"
)

// expiredDeleter is the part of TokenRepository the sweeper needs.
type expiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically deletes expired refresh tokens. Expiry is always
// enforced at presentation time; the sweep only reclaims storage.
type Sweeper struct {
	tokens   expiredDeleter
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper. An interval of zero or less disables it.
func NewSweeper(tokens expiredDeleter, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sweeper{tokens: tokens, interval: interval, logger: logger}
}

// Run sweeps once per interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes expired tokens and returns how many were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	n, err := s.tokens.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error("sweeping expired refresh tokens", "error", err)
		return 0
	}
	if n > 0 {
		s.logger.Debug("expired refresh tokens swept", "count", n)
	}
	return n
}
