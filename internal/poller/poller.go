// Package poller owns the submit -> poll -> resolve loop for one generation
// attempt: backoff between status checks, a wall-clock deadline, and
// cooperative cancellation at every suspension point.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/reelchain/reelchain-agent/internal/provider"
)

// State is the controller's position in the attempt lifecycle. Idle is the
// only re-entrant state; each attempt traverses the others at most once.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
	StateTimedOut   State = "timed_out"
)

// Terminal returns true for states that end an attempt.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled, StateTimedOut:
		return true
	default:
		return false
	}
}

// ErrJobFailed is the cause when the provider ran the job and marked it
// failed.
var ErrJobFailed = errors.New("provider reported job failure")

// ErrDeadlineExceeded is the cause when the job stayed in processing past
// the wall-clock budget.
var ErrDeadlineExceeded = errors.New("polling deadline exceeded")

// Observer is notified on every state transition with a human-readable
// label, so callers can reflect progress without inspecting the controller.
type Observer func(state State, label string)

// Config tunes one controller. Zero values fall back to the defaults that
// match the provider's typical completion profile: frequent early checks,
// capped cadence later, bounded overall wait.
type Config struct {
	InitialDelay time.Duration // default 3s
	MaxDelay     time.Duration // default 10s
	Deadline     time.Duration // default 5m
	Multiplier   float64       // default 1.3
	Observer     Observer
	Logger       *slog.Logger
}

// Result is the terminal outcome of one attempt.
type Result struct {
	State    State
	JobID    string
	VideoURL string
	Err      error
}

// Controller drives one generation attempt at a time against a transport.
type Controller struct {
	client       provider.Client
	initialDelay time.Duration
	maxDelay     time.Duration
	deadline     time.Duration
	multiplier   float64
	observer     Observer
	logger       *slog.Logger

	// Injected for deterministic tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(client provider.Client, cfg Config) *Controller {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 3 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 5 * time.Minute
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 1.3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		client:       client,
		initialDelay: cfg.InitialDelay,
		maxDelay:     cfg.MaxDelay,
		deadline:     cfg.Deadline,
		multiplier:   cfg.Multiplier,
		observer:     cfg.Observer,
		logger:       cfg.Logger,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// Run executes one attempt to completion. onJobID, if non-nil, is called as
// soon as submission yields a job id so the caller can attach it to the
// owning clip record. Run never retries; every terminal outcome is final
// for this attempt.
func (c *Controller) Run(ctx context.Context, imageRef, prompt string, onJobID func(string)) Result {
	if ctx.Err() != nil {
		c.transition(StateCancelled, "generation cancelled")
		return Result{State: StateCancelled, Err: ctx.Err()}
	}

	c.transition(StateSubmitting, "submitting generation job")

	jobID, err := c.client.Submit(ctx, imageRef, prompt)
	if err != nil {
		if ctx.Err() != nil {
			c.transition(StateCancelled, "generation cancelled")
			return Result{State: StateCancelled, Err: ctx.Err()}
		}
		c.transition(StateFailed, "submission rejected")
		return Result{State: StateFailed, Err: err}
	}

	if onJobID != nil {
		onJobID(jobID)
	}

	c.transition(StatePolling, "waiting for provider")

	delay := c.initialDelay
	deadline := c.now().Add(c.deadline)

	for {
		// Cancellation wins over everything, including a further status check.
		if ctx.Err() != nil {
			c.transition(StateCancelled, "generation cancelled")
			return Result{State: StateCancelled, JobID: jobID, Err: ctx.Err()}
		}

		if c.now().After(deadline) {
			c.transition(StateTimedOut, "generation timed out")
			return Result{State: StateTimedOut, JobID: jobID, Err: ErrDeadlineExceeded}
		}

		if err := c.sleep(ctx, delay); err != nil {
			c.transition(StateCancelled, "generation cancelled")
			return Result{State: StateCancelled, JobID: jobID, Err: err}
		}

		// The sleep may have ended by timer while cancellation raced in;
		// re-check before spending a network call.
		if ctx.Err() != nil {
			c.transition(StateCancelled, "generation cancelled")
			return Result{State: StateCancelled, JobID: jobID, Err: ctx.Err()}
		}

		status, err := c.client.CheckStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				c.transition(StateCancelled, "generation cancelled")
				return Result{State: StateCancelled, JobID: jobID, Err: ctx.Err()}
			}
			c.transition(StateFailed, "status check failed")
			return Result{State: StateFailed, JobID: jobID, Err: err}
		}

		switch status.Phase {
		case provider.PhaseCompleted:
			if status.VideoURL == "" {
				c.transition(StateFailed, "generation failed")
				return Result{State: StateFailed, JobID: jobID,
					Err: &provider.ProtocolError{Reason: "completed status missing videoUrl"}}
			}
			c.transition(StateSucceeded, "clip ready")
			return Result{State: StateSucceeded, JobID: jobID, VideoURL: status.VideoURL}

		case provider.PhaseFailed:
			c.transition(StateFailed, "generation failed")
			return Result{State: StateFailed, JobID: jobID, Err: ErrJobFailed}

		default:
			delay = time.Duration(float64(delay) * c.multiplier)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}
	}
}

func (c *Controller) transition(state State, label string) {
	c.logger.Debug("poller transition", "state", string(state), "label", label)
	if c.observer != nil {
		c.observer(state, label)
	}
}

// sleepContext waits for d or until the context is cancelled, whichever
// comes first, so cancellation latency is bounded by signal delivery rather
// than the backoff delay.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
