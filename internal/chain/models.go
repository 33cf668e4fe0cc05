package chain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a clip record. Transitions only move
// forward: pending -> in_flight -> done or failed.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInFlight Status = "in_flight"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
)

// Terminal returns true if the status represents a final state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// canAdvance reports whether a record may move from one status to another.
// Every status may restate itself; terminal states never advance.
func canAdvance(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusInFlight || to == StatusDone || to == StatusFailed
	case StatusInFlight:
		return to == StatusDone || to == StatusFailed
	default:
		return false
	}
}

// ClipRecord is one attempted or completed generation unit in the chain.
type ClipRecord struct {
	ID                   string    `json:"id"`
	InputImageRef        string    `json:"input_image_ref"`
	PromptText           string    `json:"prompt_text"`
	OutputVideoRef       string    `json:"output_video_ref,omitempty"`
	ContinuationFrameRef string    `json:"continuation_frame_ref,omitempty"`
	JobID                string    `json:"job_id,omitempty"`
	Status               Status    `json:"status"`
	Error                string    `json:"error,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// PatchFields carries a partial update for a clip record. Nil fields are
// left untouched.
type PatchFields struct {
	JobID                *string
	Status               *Status
	OutputVideoRef       *string
	ContinuationFrameRef *string
	Error                *string
}

func NewID() string {
	return uuid.NewString()
}
