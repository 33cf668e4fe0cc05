package simulation

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// SampleVideoPath is the fixed sample every simulated job resolves to.
const SampleVideoPath = "/v1/sample.mp4"

// sampleVideo is a stand-in payload; the simulation only needs something
// downloadable at a stable URL.
var sampleVideo = []byte("REELCHAIN-SAMPLE-VIDEO")

type submitRequest struct {
	Image  string `json:"image"`
	Prompt string `json:"prompt"`
}

type submitResponse struct {
	JobID string `json:"jobId"`
}

type statusResponse struct {
	Phase    string `json:"phase"`
	VideoURL string `json:"videoUrl,omitempty"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Backend serves the provider wire protocol with no server-side job state.
type Backend struct {
	delay   time.Duration
	baseURL string
	now     func() time.Time
	logger  *slog.Logger
}

// NewBackend creates a Backend that completes every job delay after
// submission. baseURL is prepended to the sample video path in status
// responses so clients can download it.
func NewBackend(delay time.Duration, baseURL string, logger *slog.Logger) *Backend {
	return &Backend{
		delay:   delay,
		baseURL: baseURL,
		now:     time.Now,
		logger:  logger,
	}
}

// Routes returns the provider-shaped routes: POST /v1/jobs,
// GET /v1/jobs/{id}, GET /v1/sample.mp4.
func (b *Backend) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/v1/jobs", b.handleSubmit)
	r.Get("/v1/jobs/{id}", b.handleStatus)
	r.Get(SampleVideoPath, b.handleSample)
	return r
}

func (b *Backend) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid request body"})
		return
	}
	if req.Prompt == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "prompt is required"})
		return
	}

	readyAt := b.now().Add(b.delay)
	jobID := EncodeJobID(readyAt)

	b.logger.Info("simulated job accepted", "job_id", jobID, "ready_at", readyAt.Format(time.RFC3339))
	writeJSON(w, http.StatusAccepted, submitResponse{JobID: jobID})
}

func (b *Backend) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	readyAt, err := DecodeJobID(jobID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: "job not found"})
		return
	}

	if b.now().Before(readyAt) {
		writeJSON(w, http.StatusOK, statusResponse{Phase: "processing"})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Phase:    "completed",
		VideoURL: b.baseURL + SampleVideoPath,
	})
}

func (b *Backend) handleSample(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "video/mp4")
	w.WriteHeader(http.StatusOK)
	w.Write(sampleVideo)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
