// Package provider is the transport to the external video-generation
// provider: one submission call and one status check, no state between calls.
package provider

import (
	"context"
	"fmt"
)

// Phase is the three-valued job phase the rest of the agent consumes,
// regardless of the provider's own status vocabulary.
type Phase string

const (
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// StatusResult is the outcome of a single status check.
type StatusResult struct {
	Phase    Phase
	VideoURL string
}

// Client submits generation jobs and checks their status.
type Client interface {
	// Submit sends an image+prompt generation request and returns a job id.
	Submit(ctx context.Context, imageRef, prompt string) (string, error)

	// CheckStatus maps the provider's status for the job onto a Phase.
	CheckStatus(ctx context.Context, jobID string) (StatusResult, error)
}

// ProviderError carries the provider's HTTP status and body when a request
// is rejected.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider rejected request: HTTP %d: %s", e.StatusCode, e.Body)
}

// ProtocolError marks a provider response that did not match the expected
// wire shape, such as a submission response missing the job id.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "provider protocol error: " + e.Reason
}

// mapPhase folds the provider's status string onto the three-valued Phase.
// Anything not recognized as terminal is still running; failing open toward
// processing beats misreporting a live job as dead.
func mapPhase(status string) Phase {
	switch status {
	case "completed", "succeeded", "done":
		return PhaseCompleted
	case "failed", "error", "cancelled":
		return PhaseFailed
	default:
		return PhaseProcessing
	}
}
