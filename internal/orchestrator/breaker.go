package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"fxhistorian/internal/fetch"
	"fxhistorian/internal/metrics"
)

// ErrCircuitOpen is returned by Breaker.Guard while the breaker is open.
var ErrCircuitOpen = errors.New("orchestrator: circuit breaker open")

// Breaker wraps sony/gobreaker to implement the specification's
// persistent-throttling circuit: the first ErrPersistentThrottling from
// the Fetcher trips it immediately, new work fails fast for the reset
// window, and the next work item after that window tentatively closes it
// again.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
	m  *metrics.Metrics
}

// NewBreaker builds a Breaker with the given reset timeout.
func NewBreaker(resetTimeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Breaker {
	settings := gobreaker.Settings{
		Name:        "fetch-origin",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, fetch.ErrPersistentThrottling)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
			if m != nil {
				m.BreakerStateChange.WithLabelValues(from.String(), to.String()).Inc()
			}
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings), m: m}
}

// Guard runs fn through the breaker. If the breaker is open it returns
// ErrCircuitOpen without calling fn. Any ErrPersistentThrottling returned
// by fn trips the breaker for subsequent calls.
func (b *Breaker) Guard(ctx context.Context, fn func(ctx context.Context) (fetch.Outcome, error)) (fetch.Outcome, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fetch.Outcome{}, ErrCircuitOpen
		}
		return fetch.Outcome{}, err
	}
	return result.(fetch.Outcome), nil
}
