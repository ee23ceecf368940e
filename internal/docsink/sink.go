package docsink

import (
	"context"

	"tgrelay/internal/logger"
	"tgrelay/internal/relay"
	"tgrelay/pkg/metrics"
)

// Sink is the document sink handed to the pipeline. A Sink built without a
// reachable store is permanently disabled: every call is a no-op, reported
// once at startup.
type Sink struct {
	repo    Repository
	cache   *DedupCache
	logger  logger.Logger
	enabled bool
}

func New(repo Repository, cache *DedupCache, log logger.Logger) *Sink {
	return &Sink{
		repo:    repo,
		cache:   cache,
		logger:  log,
		enabled: true,
	}
}

func NewDisabled(log logger.Logger) *Sink {
	log.Infow("Document sink disabled, messages will not be persisted")
	return &Sink{logger: log}
}

func (s *Sink) Enabled() bool {
	return s.enabled
}

// Exists reports whether the (chat, message) pair was already logged.
// The cache answers duplicates without a store round trip; cache errors
// fall through to the store.
func (s *Sink) Exists(ctx context.Context, chatID, messageID int64) (bool, error) {
	if !s.enabled {
		return false, nil
	}

	if s.cache != nil {
		seen, err := s.cache.Seen(ctx, chatID, messageID)
		if err != nil {
			s.logger.DebugwCtx(ctx, "Dedup cache unavailable, falling back to store",
				"error", err,
			)
		} else if seen {
			metrics.DedupChecksTotal.WithLabelValues("hit_cache").Inc()
			return true, nil
		}
	}

	exists, err := s.repo.Exists(ctx, chatID, messageID)
	if err != nil {
		metrics.DedupChecksTotal.WithLabelValues("error").Inc()
		return false, err
	}

	if exists {
		metrics.DedupChecksTotal.WithLabelValues("hit_store").Inc()
	} else {
		metrics.DedupChecksTotal.WithLabelValues("miss").Inc()
	}
	return exists, nil
}

func (s *Sink) Insert(ctx context.Context, rec *relay.LogRecord) (string, error) {
	if !s.enabled {
		return "", nil
	}

	id, err := s.repo.Insert(ctx, rec)
	if err != nil {
		metrics.DocumentInsertsTotal.WithLabelValues("error").Inc()
		return "", err
	}

	metrics.DocumentInsertsTotal.WithLabelValues("inserted").Inc()
	return id, nil
}
