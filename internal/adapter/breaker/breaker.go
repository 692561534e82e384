// Package breaker guards outbound alert publishers with a circuit breaker so
// a dead broker fails fast instead of stalling every dispatch.
package breaker

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
	"github.com/couchcryptid/gas-leak-monitor/internal/notify"
)

// Settings tunes when the breaker opens and how long it stays open.
type Settings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Subscriber runs an inner subscriber through a circuit breaker.
type Subscriber struct {
	inner notify.Subscriber
	cb    *gobreaker.CircuitBreaker
}

// Wrap returns a Subscriber that trips after s.MaxFailures consecutive
// failures of inner and rejects events until s.OpenTimeout has passed.
func Wrap(name string, inner notify.Subscriber, s Settings, logger *slog.Logger) *Subscriber {
	maxFailures := s.MaxFailures
	if maxFailures == 0 {
		maxFailures = 1
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Subscriber{inner: inner, cb: cb}
}

// Notify delivers the event unless the breaker is open, in which case it
// returns gobreaker.ErrOpenState.
func (s *Subscriber) Notify(ctx context.Context, event domain.AlertEvent) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.inner.Notify(ctx, event)
	})
	return err
}

// State reports the current breaker state.
func (s *Subscriber) State() gobreaker.State {
	return s.cb.State()
}
