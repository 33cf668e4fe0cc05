package api

import (
	"time"

	"github.com/reelchain/reelchain-agent/internal/chain"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State        string `json:"state"`
	PollerState  string `json:"poller_state"`
	Label        string `json:"label,omitempty"`
	ActiveClipID string `json:"active_clip_id,omitempty"`
	LastError    string `json:"last_error,omitempty"`
	FrameWarning string `json:"frame_warning,omitempty"`
	ChainLength  int    `json:"chain_length"`
	InputImage   string `json:"input_image,omitempty"`
}

type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

type GenerateResponse struct {
	ClipID string `json:"clip_id"`
}

type SetInputImageRequest struct {
	ImageRef string `json:"image_ref"`
}

type ClipResponse struct {
	ID                   string `json:"id"`
	InputImageRef        string `json:"input_image_ref"`
	PromptText           string `json:"prompt_text"`
	OutputVideoRef       string `json:"output_video_ref,omitempty"`
	ContinuationFrameRef string `json:"continuation_frame_ref,omitempty"`
	JobID                string `json:"job_id,omitempty"`
	Status               string `json:"status"`
	Error                string `json:"error,omitempty"`
	CreatedAt            string `json:"created_at"`
}

type ChainResponse struct {
	Clips []ClipResponse `json:"clips"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func ClipToResponse(rec chain.ClipRecord) ClipResponse {
	return ClipResponse{
		ID:                   rec.ID,
		InputImageRef:        rec.InputImageRef,
		PromptText:           rec.PromptText,
		OutputVideoRef:       rec.OutputVideoRef,
		ContinuationFrameRef: rec.ContinuationFrameRef,
		JobID:                rec.JobID,
		Status:               string(rec.Status),
		Error:                rec.Error,
		CreatedAt:            rec.CreatedAt.Format(time.RFC3339),
	}
}
