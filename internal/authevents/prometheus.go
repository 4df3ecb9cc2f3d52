package authevents

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rxportal/rxcore/internal/auth"
)

// PrometheusSink counts events by type and outcome.
type PrometheusSink struct {
	total *prometheus.CounterVec
}

// NewPrometheusSink registers rxcore_auth_events_total on reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rxcore",
		Name:      "auth_events_total",
		Help:      "Authentication events by type and outcome.",
	}, []string{"event", "outcome"})

	if err := reg.Register(total); err != nil {
		return nil, fmt.Errorf("registering auth event counter: %w", err)
	}
	return &PrometheusSink{total: total}, nil
}

// Emit implements auth.EventSink.
func (s *PrometheusSink) Emit(_ context.Context, e auth.Event) {
	s.total.WithLabelValues(string(e.Type), e.Outcome).Inc()
}
