package docsink

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"tgrelay/internal/config"
	"tgrelay/internal/relay"
	"tgrelay/pkg/circuitbreaker"
)

// CircuitBreakerRepository shields the pipeline from a flapping document
// store: an open breaker reads as a transient store error, the pipeline
// keeps relaying without persistence.
type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Breaker
}

func NewCircuitBreakerRepository(repo Repository, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	if !cfg.Enabled {
		return &CircuitBreakerRepository{
			repo: repo,
			cb:   nil,
		}
	}

	cbConfig := circuitbreaker.Config{
		Name:        "mongo-docsink",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		}
	}

	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.New(cbConfig),
	}
}

func (r *CircuitBreakerRepository) Exists(ctx context.Context, chatID, messageID int64) (bool, error) {
	if r.cb == nil {
		return r.repo.Exists(ctx, chatID, messageID)
	}

	result, err := r.cb.Do(ctx, func() (interface{}, error) {
		return r.repo.Exists(ctx, chatID, messageID)
	})

	r.cb.Observe(err == nil)

	if err != nil {
		if r.cb.Open() {
			return false, fmt.Errorf("circuit breaker is open for mongo-docsink: %w", err)
		}
		return false, err
	}

	exists, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("repository returned invalid result type")
	}

	return exists, nil
}

func (r *CircuitBreakerRepository) Insert(ctx context.Context, rec *relay.LogRecord) (string, error) {
	if r.cb == nil {
		return r.repo.Insert(ctx, rec)
	}

	result, err := r.cb.Do(ctx, func() (interface{}, error) {
		id, err := r.repo.Insert(ctx, rec)
		if err != nil && errors.Is(err, relay.ErrDuplicateRecord) {
			// a lost insert race is a healthy store response, not a failure
			return duplicateInsert{err: err}, nil
		}
		return id, err
	})

	r.cb.Observe(err == nil)

	if err != nil {
		if r.cb.Open() {
			return "", fmt.Errorf("circuit breaker is open for mongo-docsink: %w", err)
		}
		return "", err
	}

	if dup, ok := result.(duplicateInsert); ok {
		return "", dup.err
	}

	id, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("repository returned invalid result type")
	}

	return id, nil
}

type duplicateInsert struct {
	err error
}

func (r *CircuitBreakerRepository) State() string {
	if r.cb == nil {
		return "disabled"
	}
	return r.cb.State().String()
}
