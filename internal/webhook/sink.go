package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"

	"tgrelay/internal/config"
	"tgrelay/internal/logger"
	"tgrelay/internal/media"
	"tgrelay/internal/relay"
	"tgrelay/pkg/metrics"
)

const (
	jsonFieldName = "json_data"
	fileFieldName = "file"
)

// Sink posts LogRecords to the configured webhook endpoint as
// multipart/form-data. At most maxConcurrent deliveries are in flight at
// once; callers past the cap block on the semaphore. Delivery is
// at-most-once: a failed POST is logged and discarded.
type Sink struct {
	url     string
	client  *http.Client
	sem     *semaphore.Weighted
	logger  logger.Logger
	enabled bool
}

func New(cfg config.WebhookConfig, log logger.Logger) *Sink {
	if cfg.URL == "" {
		log.Infow("Webhook sink disabled, messages will not be forwarded")
		return &Sink{logger: log}
	}

	return &Sink{
		url: cfg.URL,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:  log,
		enabled: true,
	}
}

func (s *Sink) Enabled() bool {
	return s.enabled
}

// Deliver posts the record, with the staged file as a binary part when one
// is supplied. The sink owns the staged file from this point: it is removed
// on every exit path, exactly here and nowhere else.
func (s *Sink) Deliver(ctx context.Context, rec *relay.LogRecord, staged *media.Staged) error {
	defer s.removeStaged(ctx, staged)

	if !s.enabled {
		return nil
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("canceled").Inc()
		return fmt.Errorf("failed to acquire delivery slot: %w", err)
	}
	defer s.sem.Release(1)

	metrics.WebhookInFlight.Inc()
	defer metrics.WebhookInFlight.Dec()

	start := time.Now()
	err := s.post(ctx, rec, staged)
	duration := time.Since(start)

	if err != nil {
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			status = "timeout"
		}
		metrics.WebhookDeliveriesTotal.WithLabelValues(status).Inc()
		metrics.ObserveWebhookDuration(duration, status)
		s.logger.WarnwCtx(ctx, "Webhook delivery failed",
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		return err
	}

	metrics.WebhookDeliveriesTotal.WithLabelValues("success").Inc()
	metrics.ObserveWebhookDuration(duration, "success")
	s.logger.DebugwCtx(ctx, "Webhook delivered",
		"duration_ms", duration.Milliseconds(),
		"has_file", staged != nil,
	)
	return nil
}

func (s *Sink) post(ctx context.Context, rec *relay.LogRecord, staged *media.Staged) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writeJSONPart(writer, rec); err != nil {
		return err
	}

	if staged != nil {
		if err := writeFilePart(writer, staged); err != nil {
			return err
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, &body)
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

func writeJSONPart(writer *multipart.Writer, rec *relay.LogRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal log record: %w", err)
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, jsonFieldName))
	header.Set("Content-Type", "application/json")

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create json part: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return fmt.Errorf("failed to write json part: %w", err)
	}
	return nil
}

func writeFilePart(writer *multipart.Writer, staged *media.Staged) error {
	f, err := os.Open(staged.Path)
	if err != nil {
		return fmt.Errorf("failed to open staged media: %w", err)
	}
	defer f.Close()

	contentType := staged.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, fileFieldName, filepath.Base(staged.Path)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to write file part: %w", err)
	}
	return nil
}

func (s *Sink) removeStaged(ctx context.Context, staged *media.Staged) {
	if staged == nil {
		return
	}
	if err := staged.Remove(); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to remove staged media", "error", err)
	}
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
