package media

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHTTPDownloader_WritesFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("video-bytes"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "clips", "clip-1.mp4")
	d := NewHTTPDownloader(testLogger())

	if err := d.Download(context.Background(), server.URL, dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "video-bytes" {
		t.Errorf("file contents = %q", data)
	}

	if _, err := os.Stat(dest + ".partial"); !os.IsNotExist(err) {
		t.Error("partial file left behind after successful download")
	}
}

func TestHTTPDownloader_NonOKStatusReturnsDownloadError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	d := NewHTTPDownloader(testLogger())

	err := d.Download(context.Background(), server.URL, dest)
	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
	if dlErr.StatusCode != http.StatusForbidden {
		t.Errorf("status_code = %d, want 403", dlErr.StatusCode)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("no file should be written on failed download")
	}
}

func TestHTTPDownloader_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("video"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewHTTPDownloader(testLogger())
	if err := d.Download(ctx, server.URL, filepath.Join(t.TempDir(), "c.mp4")); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestStubExtractor_ProducesFrameFile(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	frame := filepath.Join(dir, "frame.jpg")
	if err := os.WriteFile(video, []byte("tailbytes"), 0644); err != nil {
		t.Fatal(err)
	}

	e := NewStubExtractor(testLogger())
	if err := e.ExtractFinalFrame(context.Background(), video, frame, 0.1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(frame); err != nil {
		t.Fatalf("frame not written: %v", err)
	}
}

func TestStubExtractor_MissingVideo(t *testing.T) {
	e := NewStubExtractor(testLogger())
	err := e.ExtractFinalFrame(context.Background(), "/nonexistent/clip.mp4", "/tmp/frame.jpg", 0.1)
	if err == nil {
		t.Fatal("expected error for missing video")
	}
}

func TestDownloaderInterfaces(t *testing.T) {
	var _ Downloader = (*HTTPDownloader)(nil)
	var _ Downloader = (*StubDownloader)(nil)
	var _ FrameExtractor = (*FFmpegExtractor)(nil)
	var _ FrameExtractor = (*StubExtractor)(nil)
}
