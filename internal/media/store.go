package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"tgrelay/internal/logger"
	"tgrelay/pkg/metrics"
)

// ErrTooLarge is returned when the declared media size exceeds the
// configured cap; the event is relayed without media.
var ErrTooLarge = errors.New("media exceeds configured size limit")

const octetStream = "application/octet-stream"

// Downloader materializes a remote file reference into dst.
type Downloader interface {
	Download(ctx context.Context, fileID string, dst io.Writer) (int64, error)
}

// Staged is a locally materialized copy of remote media, held for the
// duration of one webhook delivery attempt. Exactly one owner calls Remove.
type Staged struct {
	Path        string
	Size        int64
	ContentType string
}

// Remove deletes the staged file. Safe to call more than once.
func (s *Staged) Remove() error {
	if s == nil || s.Path == "" {
		return nil
	}
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove staged media %s: %w", s.Path, err)
	}
	return nil
}

// Store stages media into a local directory, one file per relay operation,
// named by the (chat, message) pair so concurrent relays never collide.
type Store struct {
	dir        string
	maxBytes   int64
	downloader Downloader
	logger     logger.Logger
}

func NewStore(dir string, maxBytes int64, downloader Downloader, log logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media staging dir %s: %w", dir, err)
	}
	return &Store{
		dir:        dir,
		maxBytes:   maxBytes,
		downloader: downloader,
		logger:     log,
	}, nil
}

// Stage downloads the referenced media to a temporary file. On any failure
// no file is left behind.
func (s *Store) Stage(ctx context.Context, chatID, messageID int64, fileID string, declaredSize int64, hintMIME string) (*Staged, error) {
	if s.maxBytes > 0 && declaredSize > s.maxBytes {
		metrics.MediaStagingTotal.WithLabelValues("too_large").Inc()
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, declaredSize)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%d_%d", chatID, messageID))

	f, err := os.Create(path)
	if err != nil {
		metrics.MediaStagingTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}

	n, err := s.downloader.Download(ctx, fileID, s.limitWriter(f))
	closeErr := f.Close()

	if err == nil {
		err = closeErr
	}
	if err == nil && s.maxBytes > 0 && n > s.maxBytes {
		err = fmt.Errorf("%w: %d bytes", ErrTooLarge, n)
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.WarnwCtx(ctx, "Failed to clean up partial staging file",
				"path", path,
				"error", rmErr,
			)
		}
		metrics.MediaStagingTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to stage media: %w", err)
	}

	metrics.MediaStagingTotal.WithLabelValues("staged").Inc()
	metrics.ObserveMediaStagedBytes(n)

	return &Staged{
		Path:        path,
		Size:        n,
		ContentType: s.detectContentType(path, hintMIME),
	}, nil
}

func (s *Store) limitWriter(w io.Writer) io.Writer {
	if s.maxBytes <= 0 {
		return w
	}
	return &cappedWriter{w: w, remaining: s.maxBytes}
}

func (s *Store) detectContentType(path, hint string) string {
	mtype, err := mimetype.DetectFile(path)
	if err == nil && mtype.String() != octetStream {
		return mtype.String()
	}
	if hint != "" {
		return hint
	}
	return octetStream
}

type cappedWriter struct {
	w         io.Writer
	remaining int64
}

func (c *cappedWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > c.remaining {
		return 0, ErrTooLarge
	}
	n, err := c.w.Write(p)
	c.remaining -= int64(n)
	return n, err
}
