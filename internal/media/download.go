// Package media implements the collaborators around a finished job: pulling
// the provider's video down to local storage and extracting the continuation
// frame the next clip chains from.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DownloadError carries the HTTP status when the video URL could not be
// materialized. The orchestrator treats it as attempt failure and never
// retries it automatically.
type DownloadError struct {
	StatusCode int
	URL        string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("video download failed: HTTP %d: %s", e.StatusCode, e.URL)
}

// Downloader materializes a resolved video URL into a local file.
type Downloader interface {
	Download(ctx context.Context, videoURL, destPath string) error
}

// HTTPDownloader fetches videos over plain HTTP.
type HTTPDownloader struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPDownloader(logger *slog.Logger) *HTTPDownloader {
	return &HTTPDownloader{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
	}
}

func (d *HTTPDownloader) Download(ctx context.Context, videoURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return fmt.Errorf("create download request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &DownloadError{StatusCode: resp.StatusCode, URL: videoURL}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create clips directory: %w", err)
	}

	tmp := destPath + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}

	written, err := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write download: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("close download file: %w", closeErr)
	}

	if err := os.Rename(tmp, destPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize download: %w", err)
	}

	d.logger.Info("clip downloaded", "url", videoURL, "path", destPath, "bytes", written)
	return nil
}

// StubDownloader records the URL into an empty file without any network
// traffic. Used when the agent runs without real media handling.
type StubDownloader struct {
	logger *slog.Logger
}

func NewStubDownloader(logger *slog.Logger) *StubDownloader {
	return &StubDownloader{logger: logger}
}

func (d *StubDownloader) Download(ctx context.Context, videoURL, destPath string) error {
	d.logger.Info("download stub: materialization requested", "url", videoURL, "path", destPath)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte(videoURL), 0644)
}
