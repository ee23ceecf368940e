package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Download resolves fileID through the Bot API and streams the file body
// into dst. Implements the staging store's Downloader contract.
func (s *Source) Download(ctx context.Context, fileID string, dst io.Writer) (int64, error) {
	url, err := s.bot.GetFileDirectURL(fileID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve file %s: %w", fileID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := s.bot.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("file download returned status %d", resp.StatusCode)
	}

	return io.Copy(dst, resp.Body)
}
