package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
)

// FrameExtractor pulls a single still frame from near the end of a local
// video, used as the visual seed for the next clip in the chain.
type FrameExtractor interface {
	ExtractFinalFrame(ctx context.Context, videoPath, outputPath string, offsetFromEnd float64) error
}

// FFmpegExtractor shells out to ffmpeg on PATH.
type FFmpegExtractor struct {
	binary string
	logger *slog.Logger
}

func NewFFmpegExtractor(logger *slog.Logger) *FFmpegExtractor {
	return &FFmpegExtractor{binary: "ffmpeg", logger: logger}
}

// Available reports whether the ffmpeg binary can be found.
func (e *FFmpegExtractor) Available() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

func (e *FFmpegExtractor) ExtractFinalFrame(ctx context.Context, videoPath, outputPath string, offsetFromEnd float64) error {
	if offsetFromEnd <= 0 {
		offsetFromEnd = 0.1
	}

	// -sseof seeks relative to end of file; one frame out, overwrite allowed.
	cmd := exec.CommandContext(ctx, e.binary,
		"-sseof", "-"+strconv.FormatFloat(offsetFromEnd, 'f', -1, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		"-y",
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg frame extraction failed: %w: %s", err, tail(string(output), 512))
	}

	e.logger.Info("continuation frame extracted", "video", videoPath, "frame", outputPath)
	return nil
}

// StubExtractor copies the tail bytes of the video into the frame path so
// chaining works end to end without ffmpeg installed.
type StubExtractor struct {
	logger *slog.Logger
}

func NewStubExtractor(logger *slog.Logger) *StubExtractor {
	return &StubExtractor{logger: logger}
}

func (e *StubExtractor) ExtractFinalFrame(ctx context.Context, videoPath, outputPath string, offsetFromEnd float64) error {
	e.logger.Info("frame extraction stub: requested", "video", videoPath, "frame", outputPath)
	data, err := os.ReadFile(videoPath)
	if err != nil {
		return fmt.Errorf("read video for stub frame: %w", err)
	}
	return os.WriteFile(outputPath, data, 0644)
}

func tail(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[len(s)-maxLen:]
}
