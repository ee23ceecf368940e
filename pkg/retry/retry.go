// Package retry wraps cenkalti/backoff with the small set of policies the
// relay needs: bounded startup connection attempts and short republish
// loops for the stream mirror.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "tgrelay/pkg/errors"
)

// Policy bounds a retry loop. MaxAttempts counts the first try; zero
// values fall back to the defaults of DefaultPolicy.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		MaxElapsedTime:  5 * time.Minute,
	}
}

// ConnectPolicy suits one-shot startup connections: a few quick attempts,
// then give up and let the caller degrade the feature.
func ConnectPolicy() Policy {
	return Policy{
		MaxAttempts:     4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		MaxElapsedTime:  30 * time.Second,
	}
}

func (p Policy) backoff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		exp.Multiplier = p.Multiplier
	}
	exp.MaxElapsedTime = p.MaxElapsedTime

	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultPolicy().MaxAttempts
	}

	return backoff.WithMaxRetries(backoff.WithContext(exp, ctx), uint64(attempts-1))
}

// Retry runs fn under the policy until it succeeds, the attempts are
// exhausted, or the context ends. Errors classified fatal stop the loop
// immediately; everything else is treated as transient.
func Retry(ctx context.Context, policy Policy, fn func() error) error {
	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}

		var fatal apperrors.FatalError
		if errors.As(err, &fatal) && fatal.IsFatal() {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(operation, policy.backoff(ctx))
}
