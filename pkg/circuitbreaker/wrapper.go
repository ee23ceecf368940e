// Package circuitbreaker adapts sony/gobreaker for the relay's store
// access paths and publishes breaker state and traffic to Prometheus.
package circuitbreaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"tgrelay/pkg/metrics"
)

// Config tunes a Breaker. Zero values fall back to defaults suited to a
// store touched a few times per second.
type Config struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	ReadyToTrip func(counts gobreaker.Counts) bool
}

// Breaker guards calls to a flaky dependency.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

func New(cfg Config) *Breaker {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 3
	}
	if cfg.Interval == 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.ReadyToTrip == nil {
		cfg.ReadyToTrip = func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && ratio >= 0.5
		}
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
		OnStateChange: func(name string, _, to gobreaker.State) {
			publishState(name, to)
		},
	})
	publishState(cfg.Name, cb.State())

	return &Breaker{cb: cb}
}

// Do runs fn under the breaker. A context already done short-circuits
// without charging the breaker a request.
func (b *Breaker) Do(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return b.cb.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn()
	})
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// Observe counts one request outcome in the breaker's metric families.
func (b *Breaker) Observe(success bool) {
	metrics.CircuitBreakerRequests.WithLabelValues(b.cb.Name(), b.cb.State().String()).Inc()
	if !success {
		metrics.CircuitBreakerFailures.WithLabelValues(b.cb.Name()).Inc()
	}
}

func publishState(name string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(v)
}
