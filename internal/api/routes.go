package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reelchain/reelchain-agent/internal/studio"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	// The simulated provider lives outside the agent auth group: it stands
	// in for an external service with its own (absent) credentials.
	if cfg.Simulation != nil {
		r.Mount("/sim", cfg.Simulation.Routes())
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Archive, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/generate", generateHandler(cfg))
		r.Post("/cancel", cancelHandler(cfg))
		r.Get("/chain", chainHandler(cfg))
		r.Get("/chain/history", historyHandler(cfg))
		r.Post("/chain/input-image", inputImageHandler(cfg))
		r.Post("/reset", resetHandler(cfg))
		r.Get("/clips/{id}/video", clipVideoHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  cfg.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := cfg.Director.Status()

		state := "idle"
		if st.Generating {
			state = "generating"
		} else if st.LastError != "" {
			state = "error"
		}

		WriteJSON(w, http.StatusOK, StatusResponse{
			State:        state,
			PollerState:  string(st.State),
			Label:        st.Label,
			ActiveClipID: st.ActiveClipID,
			LastError:    st.LastError,
			FrameWarning: st.FrameWarning,
			ChainLength:  len(cfg.Director.Chain()),
			InputImage:   cfg.Director.InputImage(),
		})
	}
}

func generateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Prompt == "" {
			WriteError(w, http.StatusBadRequest, "prompt is required", "BAD_REQUEST")
			return
		}

		clipID, err := cfg.Director.GenerateClip(r.Context(), req.Prompt)
		if err != nil {
			switch {
			case errors.Is(err, studio.ErrGenerationBusy):
				WriteError(w, http.StatusConflict, err.Error(), "BUSY")
			case errors.Is(err, studio.ErrNoInputImage):
				WriteError(w, http.StatusBadRequest, err.Error(), "NO_INPUT_IMAGE")
			default:
				WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			}
			return
		}

		WriteJSON(w, http.StatusAccepted, GenerateResponse{ClipID: clipID})
	}
}

func cancelHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Director.Cancel()
		w.WriteHeader(http.StatusAccepted)
	}
}

func chainHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records := cfg.Director.Chain()
		resp := ChainResponse{Clips: make([]ClipResponse, len(records))}
		for i, rec := range records {
			resp.Clips[i] = ClipToResponse(rec)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// historyHandler reads from the journal rather than the live chain, so the
// audit trail of attempts, failed ones included, survives restarts.
func historyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := cfg.Archive.ListClips(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list clip history", "INTERNAL_ERROR")
			return
		}

		resp := ChainResponse{Clips: make([]ClipResponse, len(records))}
		for i, rec := range records {
			resp.Clips[i] = ClipToResponse(rec)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func inputImageHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SetInputImageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.ImageRef == "" {
			WriteError(w, http.StatusBadRequest, "image_ref is required", "BAD_REQUEST")
			return
		}

		cfg.Director.SetInputImage(req.ImageRef)
		w.WriteHeader(http.StatusNoContent)
	}
}

func resetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Director.Reset(r.Context()); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func clipVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "clip id required", "BAD_REQUEST")
			return
		}

		rec := cfg.Director.Clip(id)
		if rec == nil {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}
		if rec.OutputVideoRef == "" {
			WriteError(w, http.StatusNotFound, "clip has no video yet", "NOT_FOUND")
			return
		}

		// ServeFile handles Range requests, so scrubbing works in players.
		http.ServeFile(w, r, rec.OutputVideoRef)
	}
}
