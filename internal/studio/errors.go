package studio

import (
	"errors"
	"fmt"

	"github.com/reelchain/reelchain-agent/internal/poller"
	"github.com/reelchain/reelchain-agent/internal/provider"
)

// Terminal outcome taxonomy for a generation attempt. Nothing here is
// retried automatically; a retry is always a fresh user-triggered attempt
// that appends a new clip record.
var (
	// ErrSubmissionRejected: the provider declined the job before it ran.
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrProtocol: the provider responded outside the expected wire shape.
	ErrProtocol = errors.New("provider protocol error")
	// ErrProviderReportedFailure: the job ran and the provider marked it failed.
	ErrProviderReportedFailure = errors.New("generation failed at provider")
	// ErrTimeout: the job stayed in processing past the wall-clock budget.
	ErrTimeout = errors.New("generation timed out")
	// ErrCancelled: the user asked for it; suppressed from error display.
	ErrCancelled = errors.New("generation cancelled")
	// ErrDownloadFailed: the job succeeded but the video could not be
	// materialized locally.
	ErrDownloadFailed = errors.New("video download failed")

	// ErrGenerationBusy: one active generation attempt at a time.
	ErrGenerationBusy = errors.New("a generation attempt is already in flight")
	// ErrNoInputImage: no selected image and no prior continuation frame.
	ErrNoInputImage = errors.New("no input image available")
)

// classify folds a poller result into the outcome taxonomy, preserving the
// underlying cause in the message.
func classify(res poller.Result) error {
	switch res.State {
	case poller.StateTimedOut:
		return ErrTimeout
	case poller.StateCancelled:
		return ErrCancelled
	case poller.StateFailed:
		var protoErr *provider.ProtocolError
		if errors.As(res.Err, &protoErr) {
			return fmt.Errorf("%w: %v", ErrProtocol, res.Err)
		}
		if errors.Is(res.Err, poller.ErrJobFailed) {
			return ErrProviderReportedFailure
		}
		// A provider rejection before a job id exists is a submission
		// failure; anything after that is the provider failing the job.
		if res.JobID == "" {
			return fmt.Errorf("%w: %v", ErrSubmissionRejected, res.Err)
		}
		return fmt.Errorf("%w: %v", ErrProviderReportedFailure, res.Err)
	default:
		return fmt.Errorf("unexpected terminal state %q: %v", res.State, res.Err)
	}
}
