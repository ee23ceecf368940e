// Package bootstrap holds the pieces every relay process start shares:
// the config plus logger pair and the backing store connectors.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"tgrelay/internal/config"
	"tgrelay/internal/logger"
)

type Base struct {
	Config *config.Config
	Logger logger.Logger
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{Config: cfg, Logger: log}
}

// Shutdown runs teardown and joins whatever errors it produced. teardown
// receives the shutdown deadline context and returns one error per
// component that failed to stop cleanly.
func (b *Base) Shutdown(ctx context.Context, teardown func(ctx context.Context) []error) error {
	b.Logger.Infow("Shutting down")

	var errs []error
	if teardown != nil {
		errs = teardown(ctx)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %w", errors.Join(errs...))
	}

	b.Logger.Infow("Shutdown complete")
	return nil
}
