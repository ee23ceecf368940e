package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"tgrelay/internal/config"
	"tgrelay/internal/constants"
	"tgrelay/internal/logger"
	"tgrelay/internal/media"
	pkgerrors "tgrelay/pkg/errors"
	"tgrelay/pkg/logging"
	"tgrelay/pkg/metrics"
	"tgrelay/pkg/retry"
)

// ErrDuplicateRecord marks an insert that lost the check-then-insert race;
// the record was already persisted by an earlier relay.
var ErrDuplicateRecord = errors.New("log record already persisted")

// DocumentSink persists LogRecords and answers dedup lookups.
type DocumentSink interface {
	Enabled() bool
	Exists(ctx context.Context, chatID, messageID int64) (bool, error)
	Insert(ctx context.Context, rec *LogRecord) (string, error)
}

// WebhookSink forwards LogRecords downstream. It owns deletion of any
// staged media handed to Deliver.
type WebhookSink interface {
	Enabled() bool
	Deliver(ctx context.Context, rec *LogRecord, staged *media.Staged) error
}

// MediaStager downloads an event's media to local temporary storage.
type MediaStager interface {
	Stage(ctx context.Context, chatID, messageID int64, fileID string, declaredSize int64, hintMIME string) (*media.Staged, error)
}

// Mirror publishes persisted records to a stream for downstream consumers.
type Mirror interface {
	Enabled() bool
	Publish(ctx context.Context, rec *LogRecord) error
}

// Stats is a snapshot of pipeline counters for the ops API.
type Stats struct {
	Relayed    uint64 `json:"relayed"`
	Skipped    uint64 `json:"skipped"`
	Duplicates uint64 `json:"duplicates"`
	Errors     uint64 `json:"errors"`
}

// Pipeline receives inbound events one at a time, normalizes them, persists
// through the document sink and fans out to the webhook sink in the
// background. One malformed event never affects the next: every failure is
// caught at the top of Relay.
type Pipeline struct {
	cfg    config.RelayConfig
	selfID int64
	docs   DocumentSink
	hook   WebhookSink
	stager MediaStager
	mirror Mirror
	filter *MessageFilter
	logger logger.Logger

	wg     sync.WaitGroup
	closed atomic.Bool

	relayed    atomic.Uint64
	skipped    atomic.Uint64
	duplicates atomic.Uint64
	errors     atomic.Uint64
}

func NewPipeline(cfg config.RelayConfig, selfID int64, docs DocumentSink, hook WebhookSink, stager MediaStager, mirror Mirror, log logger.Logger) (*Pipeline, error) {
	var filter *MessageFilter
	if cfg.FilterExpression != "" {
		f, err := NewMessageFilter(cfg.FilterExpression)
		if err != nil {
			return nil, err
		}
		filter = f
	}

	return &Pipeline{
		cfg:    cfg,
		selfID: selfID,
		docs:   docs,
		hook:   hook,
		stager: stager,
		mirror: mirror,
		filter: filter,
		logger: log,
	}, nil
}

// Relay handles one inbound event. It blocks for the dedup check, the
// insert and media staging, then returns; webhook delivery continues in
// the background. Never panics and never returns an error to the caller.
func (p *Pipeline) Relay(ctx context.Context, ev *InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			err := pkgerrors.RecoverPanic(r)
			p.errors.Add(1)
			metrics.RelayEventsTotal.WithLabelValues("panic").Inc()
			p.logger.ErrorwCtx(ctx, "Relay panicked", "error", err)
		}
	}()

	if p.closed.Load() {
		return
	}

	ctx = logging.WithEvent(ctx, ev.Chat.ID, ev.MessageID)
	start := time.Now()

	status := p.relay(ctx, ev)

	metrics.RelayEventsTotal.WithLabelValues(status).Inc()
	metrics.ObserveRelayDuration(time.Since(start), status)
}

func (p *Pipeline) relay(ctx context.Context, ev *InboundEvent) string {
	if p.isSelf(ev) {
		p.skipped.Add(1)
		return "skipped_self"
	}

	if p.isDenylisted(ev) {
		p.skipped.Add(1)
		p.logger.DebugwCtx(ctx, "Sender denylisted, event dropped")
		return "skipped_denylist"
	}

	rec := NewLogRecord(ev)

	if !p.allow(ctx, rec) {
		p.skipped.Add(1)
		return "skipped_filter"
	}

	duplicate := p.persist(ctx, rec)
	if duplicate {
		p.duplicates.Add(1)
		if !p.cfg.ForwardDuplicates {
			p.logger.DebugwCtx(ctx, "Duplicate event, forwarding suppressed")
			return "duplicate"
		}
	}

	staged := p.stage(ctx, ev)

	p.dispatch(ctx, rec, staged)

	p.relayed.Add(1)
	if duplicate {
		return "duplicate"
	}
	return "relayed"
}

func (p *Pipeline) isSelf(ev *InboundEvent) bool {
	if p.cfg.IncludeOutgoing {
		return false
	}
	return ev.Outgoing || (ev.From != nil && ev.From.ID == p.selfID)
}

func (p *Pipeline) isDenylisted(ev *InboundEvent) bool {
	if ev.From == nil {
		return false
	}
	for _, id := range p.cfg.DenylistedSenderIDs {
		if ev.From.ID == id {
			return true
		}
	}
	return false
}

func (p *Pipeline) allow(ctx context.Context, rec *LogRecord) bool {
	if p.filter == nil {
		return true
	}

	allowed, err := p.filter.Allow(ctx, rec)
	if err != nil {
		if p.cfg.FilterFallback == constants.FallbackDeny {
			metrics.FallbackUsageTotal.WithLabelValues("relay", "deny_on_error", "filter_error").Inc()
			p.logger.WarnwCtx(ctx, "Filter evaluation failed, event dropped (fallback: deny)",
				"error", err,
			)
			return false
		}
		metrics.FallbackUsageTotal.WithLabelValues("relay", "allow_on_error", "filter_error").Inc()
		p.logger.WarnwCtx(ctx, "Filter evaluation failed, event allowed (fallback: allow)",
			"error", err,
		)
		return true
	}
	return allowed
}

// persist runs the dedup check and, on a miss, the insert. Store errors
// never stop the relay: persistence is abandoned for this event and the
// webhook leg proceeds.
func (p *Pipeline) persist(ctx context.Context, rec *LogRecord) bool {
	if !p.docs.Enabled() {
		return false
	}

	exists, err := p.docs.Exists(ctx, rec.ChatID, rec.MessageID)
	if err != nil {
		p.logger.WarnwCtx(ctx, "Dedup check failed, attempting insert anyway",
			"error", err,
		)
	}
	if exists {
		p.logger.DebugwCtx(ctx, "Duplicate event, insert skipped")
		return true
	}

	if _, err := p.docs.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateRecord) {
			return true
		}
		p.errors.Add(1)
		p.logger.WarnwCtx(ctx, "Failed to persist log record", "error", err)
		return false
	}

	p.publishMirror(rec)
	return false
}

func (p *Pipeline) publishMirror(rec *LogRecord) {
	if p.mirror == nil || !p.mirror.Enabled() {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		ctx = logging.WithEvent(ctx, rec.ChatID, rec.MessageID)

		policy := retry.Policy{
			MaxAttempts:     2,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     time.Second,
			Multiplier:      2.0,
		}
		err := retry.Retry(ctx, policy, func() error {
			return p.mirror.Publish(ctx, rec)
		})
		if err != nil {
			metrics.MirrorPublishTotal.WithLabelValues("error").Inc()
			p.logger.WarnwCtx(ctx, "Mirror publish failed", "error", err)
			return
		}
		metrics.MirrorPublishTotal.WithLabelValues("success").Inc()
	}()
}

// stage downloads media when the event carries any and the webhook sink
// will consume it. Staging failure is non-fatal: the event is forwarded
// without a file part.
func (p *Pipeline) stage(ctx context.Context, ev *InboundEvent) *media.Staged {
	if ev.Media == nil || p.stager == nil || !p.hook.Enabled() {
		return nil
	}

	staged, err := p.stager.Stage(ctx, ev.Chat.ID, ev.MessageID, ev.Media.FileID, ev.Media.Size, ev.Media.MIME)
	if err != nil {
		p.logger.WarnwCtx(ctx, "Media staging failed, forwarding without media",
			"media_kind", ev.Media.Kind,
			"error", err,
		)
		return nil
	}
	return staged
}

// dispatch hands the record to the webhook sink in the background. The
// sink owns the staged file from here on; Relay returns without waiting
// for the delivery.
func (p *Pipeline) dispatch(ctx context.Context, rec *LogRecord, staged *media.Staged) {
	if !p.hook.Enabled() {
		if staged != nil {
			staged.Remove()
		}
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		dctx := logging.WithEvent(context.Background(), rec.ChatID, rec.MessageID)
		if err := p.hook.Deliver(dctx, rec, staged); err != nil {
			p.errors.Add(1)
		}
	}()
}

// Close stops accepting new events and waits for in-flight background
// deliveries, bounded by ctx.
func (p *Pipeline) Close(ctx context.Context) error {
	p.closed.Store(true)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Relayed:    p.relayed.Load(),
		Skipped:    p.skipped.Load(),
		Duplicates: p.duplicates.Load(),
		Errors:     p.errors.Load(),
	}
}
