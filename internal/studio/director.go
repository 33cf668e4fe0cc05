// Package studio orchestrates generation attempts: it threads the chain
// store, the polling controller, and the media collaborators together so
// each new clip continues from the last successful one.
package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/reelchain/reelchain-agent/internal/chain"
	"github.com/reelchain/reelchain-agent/internal/media"
	"github.com/reelchain/reelchain-agent/internal/poller"
	"github.com/reelchain/reelchain-agent/internal/provider"
)

// frameOffsetFromEnd is how far before the clip's end the continuation
// frame is grabbed, in seconds.
const frameOffsetFromEnd = 0.25

// Status is a snapshot of the director for callers that reflect progress.
type Status struct {
	Generating   bool         `json:"generating"`
	State        poller.State `json:"state"`
	Label        string       `json:"label,omitempty"`
	ActiveClipID string       `json:"active_clip_id,omitempty"`
	LastError    string       `json:"last_error,omitempty"`
	FrameWarning string       `json:"frame_warning,omitempty"`
}

// Config wires a Director.
type Config struct {
	Store      *chain.Store
	Client     provider.Client
	Downloader media.Downloader
	Extractor  media.FrameExtractor
	ClipsDir   string
	Poll       poller.Config
	Logger     *slog.Logger
}

// Director runs at most one generation attempt at a time against the chain.
type Director struct {
	store      *chain.Store
	client     provider.Client
	downloader media.Downloader
	extractor  media.FrameExtractor
	clipsDir   string
	pollCfg    poller.Config
	logger     *slog.Logger

	mu           sync.Mutex
	active       bool
	cancelActive context.CancelFunc
	activeClipID string
	state        poller.State
	label        string
	lastError    string
	frameWarning string
	observer     poller.Observer
}

func New(cfg Config) *Director {
	return &Director{
		store:      cfg.Store,
		client:     cfg.Client,
		downloader: cfg.Downloader,
		extractor:  cfg.Extractor,
		clipsDir:   cfg.ClipsDir,
		pollCfg:    cfg.Poll,
		logger:     cfg.Logger,
		state:      poller.StateIdle,
	}
}

// SetObserver registers a callback for poller state transitions, forwarded
// with the same human-readable labels.
func (d *Director) SetObserver(obs poller.Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observer = obs
}

// SetInputImage selects the image the next attempt starts from.
func (d *Director) SetInputImage(ref string) {
	d.store.SetInputImage(ref)
}

// InputImage returns the currently selected input image, if any.
func (d *Director) InputImage() string {
	return d.store.InputImage()
}

// Chain returns a copy of the current clip records.
func (d *Director) Chain() []chain.ClipRecord {
	return d.store.Records()
}

// Clip returns a copy of the named record, or nil.
func (d *Director) Clip(id string) *chain.ClipRecord {
	return d.store.Get(id)
}

// Status returns a snapshot of the current attempt, if any.
func (d *Director) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Generating:   d.active,
		State:        d.state,
		Label:        d.label,
		ActiveClipID: d.activeClipID,
		LastError:    d.lastError,
		FrameWarning: d.frameWarning,
	}
}

// GenerateClip starts one generation attempt and returns the id of the
// appended clip record. The attempt itself runs in the background; progress
// is visible through Status and the observer. The narrative context is
// computed exactly once, here, before the record is appended.
func (d *Director) GenerateClip(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", errors.New("prompt is required")
	}

	imageRef := d.resolveInputImage()
	if imageRef == "" {
		return "", ErrNoInputImage
	}

	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return "", ErrGenerationBusy
	}
	d.active = true
	d.lastError = ""
	d.frameWarning = ""
	attemptCtx, cancel := context.WithCancel(context.Background())
	d.cancelActive = cancel
	d.mu.Unlock()

	enriched := d.store.NarrativeContext(prompt)

	clipID, err := d.store.Append(ctx, imageRef, prompt)
	if err != nil {
		d.finish()
		return "", fmt.Errorf("append clip record: %w", err)
	}

	d.mu.Lock()
	d.activeClipID = clipID
	d.mu.Unlock()

	log := d.logger.With("clip_id", clipID)
	log.Info("generation attempt started", "input_image", imageRef)

	go d.runAttempt(attemptCtx, clipID, imageRef, enriched, log)

	return clipID, nil
}

// Cancel requests cooperative cancellation of the active attempt. It returns
// immediately; the attempt ends in a cancelled state shortly after.
func (d *Director) Cancel() {
	d.mu.Lock()
	cancel := d.cancelActive
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset cancels any active attempt and clears the whole chain, releasing
// downloaded files.
func (d *Director) Reset(ctx context.Context) error {
	d.Cancel()
	d.mu.Lock()
	d.lastError = ""
	d.frameWarning = ""
	d.state = poller.StateIdle
	d.label = ""
	d.mu.Unlock()
	return d.store.Reset(ctx)
}

// resolveInputImage prefers the explicit selection, then the last successful
// clip's continuation frame.
func (d *Director) resolveInputImage() string {
	if ref := d.store.InputImage(); ref != "" {
		return ref
	}
	if last := d.store.LastGoodClip(); last != nil && last.ContinuationFrameRef != "" {
		return last.ContinuationFrameRef
	}
	return ""
}

func (d *Director) runAttempt(ctx context.Context, clipID, imageRef, enrichedPrompt string, log *slog.Logger) {
	defer d.finish()

	ctrl := poller.New(d.client, poller.Config{
		InitialDelay: d.pollCfg.InitialDelay,
		MaxDelay:     d.pollCfg.MaxDelay,
		Deadline:     d.pollCfg.Deadline,
		Multiplier:   d.pollCfg.Multiplier,
		Logger:       log,
		Observer:     d.onTransition,
	})

	result := ctrl.Run(ctx, imageRef, enrichedPrompt, func(jobID string) {
		d.patch(clipID, chain.PatchFields{JobID: &jobID}, log)
	})

	if result.State != poller.StateSucceeded {
		d.fail(clipID, classify(result), log)
		return
	}

	videoPath := filepath.Join(d.clipsDir, clipID+".mp4")
	if err := d.downloader.Download(ctx, result.VideoURL, videoPath); err != nil {
		if ctx.Err() != nil {
			d.fail(clipID, ErrCancelled, log)
			return
		}
		d.fail(clipID, fmt.Errorf("%w: %v", ErrDownloadFailed, err), log)
		return
	}

	done := chain.StatusDone
	fields := chain.PatchFields{Status: &done, OutputVideoRef: &videoPath}

	// Frame extraction failure is not job failure: the clip is done either
	// way, the chain just cannot advance its visual seed from it.
	framePath := filepath.Join(d.clipsDir, clipID+"-frame.jpg")
	if err := d.extractor.ExtractFinalFrame(ctx, videoPath, framePath, frameOffsetFromEnd); err != nil {
		log.Warn("continuation frame extraction failed", "error", err)
		d.mu.Lock()
		d.frameWarning = err.Error()
		d.mu.Unlock()
		d.patch(clipID, fields, log)
		log.Info("generation attempt succeeded without continuation frame")
		return
	}

	fields.ContinuationFrameRef = &framePath
	d.patch(clipID, fields, log)
	d.store.SetInputImage(framePath)
	log.Info("generation attempt succeeded", "video", videoPath, "frame", framePath)
}

// fail patches the owning record to failed and records the user-facing
// cause. Cancellation is suppressed from the error surface: the user asked
// for it, so it is not displayed as a failure.
func (d *Director) fail(clipID string, cause error, log *slog.Logger) {
	failed := chain.StatusFailed
	msg := cause.Error()
	d.patch(clipID, chain.PatchFields{Status: &failed, Error: &msg}, log)

	if errors.Is(cause, ErrCancelled) {
		log.Info("generation attempt cancelled")
		return
	}

	d.mu.Lock()
	d.lastError = msg
	d.mu.Unlock()
	log.Warn("generation attempt failed", "cause", msg)
}

func (d *Director) patch(clipID string, fields chain.PatchFields, log *slog.Logger) {
	if err := d.store.Patch(context.Background(), clipID, fields); err != nil {
		// The chain may have been reset underneath a finishing attempt; the
		// record is gone and the patch is dropped.
		log.Warn("clip patch dropped", "error", err)
	}
}

func (d *Director) onTransition(state poller.State, label string) {
	d.mu.Lock()
	d.state = state
	d.label = label
	obs := d.observer
	d.mu.Unlock()
	if obs != nil {
		obs(state, label)
	}
}

func (d *Director) finish() {
	d.mu.Lock()
	d.active = false
	d.activeClipID = ""
	if d.cancelActive != nil {
		d.cancelActive()
		d.cancelActive = nil
	}
	d.mu.Unlock()
}

// ReleaseClipFiles returns the store release hook that removes a record's
// downloaded video and extracted frame from disk.
func ReleaseClipFiles(logger *slog.Logger) func(chain.ClipRecord) {
	return func(rec chain.ClipRecord) {
		for _, path := range []string{rec.OutputVideoRef, rec.ContinuationFrameRef} {
			if path == "" {
				continue
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				logger.Warn("failed to release clip file", "path", path, "error", err)
			}
		}
	}
}
