package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reelchain/reelchain-agent/internal/chain"
	"github.com/reelchain/reelchain-agent/internal/db"
	"github.com/reelchain/reelchain-agent/internal/media"
	"github.com/reelchain/reelchain-agent/internal/poller"
	"github.com/reelchain/reelchain-agent/internal/provider"
	"github.com/reelchain/reelchain-agent/internal/simulation"
	"github.com/reelchain/reelchain-agent/internal/studio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memArchive satisfies chain.Archive with an in-memory auth token.
type memArchive struct {
	chain.NoopArchive
	token string
}

func (m *memArchive) GetConfig(ctx context.Context, key string) (string, error) {
	if key == "auth_token" {
		return m.token, nil
	}
	return "", nil
}

type completingClient struct{}

func (completingClient) Submit(ctx context.Context, imageRef, prompt string) (string, error) {
	return "job-1", nil
}

func (completingClient) CheckStatus(ctx context.Context, jobID string) (provider.StatusResult, error) {
	return provider.StatusResult{Phase: provider.PhaseCompleted, VideoURL: "https://cdn/v.mp4"}, nil
}

func newTestRouter(t *testing.T) (*chi.Mux, *studio.Director) {
	t.Helper()
	logger := testLogger()
	director := studio.New(studio.Config{
		Store:      chain.NewStore(nil, nil, logger),
		Client:     completingClient{},
		Downloader: media.NewStubDownloader(logger),
		Extractor:  media.NewStubExtractor(logger),
		ClipsDir:   t.TempDir(),
		Poll: poller.Config{
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Deadline:     2 * time.Second,
			Multiplier:   1.3,
		},
		Logger: logger,
	})

	router := NewRouter(ServerConfig{
		Port:      0,
		Director:  director,
		Archive:   &memArchive{token: "secret-token"},
		Logger:    logger,
		StartTime: time.Now(),
		DeviceID:  "device-test",
		Version:   "0.1.0",
	})
	return router, director
}

func authedRequest(method, path string, body []byte) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret-token")
	return req
}

func waitDone(t *testing.T, d *studio.Director) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !d.Status().Generating {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("generation did not finish")
}

func TestHealth_NoAuthRequired(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Status != "ok" || resp.DeviceID != "device-test" {
		t.Errorf("health = %+v", resp)
	}
}

func TestGenerate_RequiresPrompt(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/generate", []byte(`{}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGenerate_NoInputImage(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/generate", []byte(`{"prompt":"a fox"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without an input image", rec.Code)
	}

	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != "NO_INPUT_IMAGE" {
		t.Errorf("code = %q, want NO_INPUT_IMAGE", resp.Code)
	}
}

func TestGenerate_AcceptedAndVisibleInChain(t *testing.T) {
	router, director := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/chain/input-image", []byte(`{"image_ref":"seed.jpg"}`)))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("input-image status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/generate", []byte(`{"prompt":"a fox"}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("generate status = %d, want 202", rec.Code)
	}

	var genResp GenerateResponse
	json.Unmarshal(rec.Body.Bytes(), &genResp)
	if genResp.ClipID == "" {
		t.Fatal("missing clip_id in generate response")
	}

	waitDone(t, director)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/chain", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("chain status = %d, want 200", rec.Code)
	}

	var chainResp ChainResponse
	json.Unmarshal(rec.Body.Bytes(), &chainResp)
	if len(chainResp.Clips) != 1 {
		t.Fatalf("chain length = %d, want 1", len(chainResp.Clips))
	}
	if chainResp.Clips[0].Status != "done" {
		t.Errorf("clip status = %q, want done (error: %s)", chainResp.Clips[0].Status, chainResp.Clips[0].Error)
	}
}

func TestClipVideo_ServesDownloadedFile(t *testing.T) {
	router, director := newTestRouter(t)
	director.SetInputImage("seed.jpg")

	clipID, err := director.GenerateClip(context.Background(), "a fox")
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, director)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/clips/"+clipID+"/video", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("video body is empty")
	}
}

func TestClipVideo_UnknownClip(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/clips/nope/video", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestReset_ClearsChain(t *testing.T) {
	router, director := newTestRouter(t)
	director.SetInputImage("seed.jpg")

	if _, err := director.GenerateClip(context.Background(), "a fox"); err != nil {
		t.Fatal(err)
	}
	waitDone(t, director)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/reset", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("reset status = %d, want 204", rec.Code)
	}

	if len(director.Chain()) != 0 {
		t.Error("chain not cleared after reset")
	}
}

func TestChainHistory_ReadsJournalAcrossRestart(t *testing.T) {
	logger := testLogger()
	ctx := context.Background()

	database, err := db.New(filepath.Join(t.TempDir(), "agent.db"), nil)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	// Journal a failed attempt before the router exists, as a prior run
	// of the agent would have.
	archive := chain.NewSQLiteArchive(database.Conn())
	if err := archive.SetConfig(ctx, "auth_token", "secret-token"); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	if err := archive.RecordAppended(ctx, chain.ClipRecord{
		ID:            "clip-old",
		InputImageRef: "seed.jpg",
		PromptText:    "a fox",
		Status:        chain.StatusFailed,
		Error:         "generation timed out",
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		t.Fatal(err)
	}

	router := NewRouter(ServerConfig{
		Director:  studioForSim(t, logger),
		Archive:   archive,
		Logger:    logger,
		StartTime: time.Now(),
		Version:   "0.1.0",
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/chain", nil))
	var live ChainResponse
	json.Unmarshal(rec.Body.Bytes(), &live)
	if len(live.Clips) != 0 {
		t.Fatalf("live chain has %d clips, want 0", len(live.Clips))
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/chain/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d, want 200", rec.Code)
	}

	var history ChainResponse
	json.Unmarshal(rec.Body.Bytes(), &history)
	if len(history.Clips) != 1 {
		t.Fatalf("history has %d clips, want 1", len(history.Clips))
	}
	got := history.Clips[0]
	if got.ID != "clip-old" || got.Status != "failed" || got.Error != "generation timed out" {
		t.Errorf("unexpected history record: %+v", got)
	}
}

func TestStatus_ReflectsIdleState(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp StatusResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.State != "idle" {
		t.Errorf("state = %q, want idle", resp.State)
	}
}

func TestSimulationRoutes_MountedWithoutAuth(t *testing.T) {
	logger := testLogger()
	sim := simulation.NewBackend(time.Second, "http://127.0.0.1:0/sim", logger)

	router := NewRouter(ServerConfig{
		Director:   studioForSim(t, logger),
		Archive:    &memArchive{token: "secret-token"},
		Simulation: sim,
		Logger:     logger,
		StartTime:  time.Now(),
		Version:    "0.1.0",
	})

	body := bytes.NewReader([]byte(`{"image":"aW1n","prompt":"a fox"}`))
	req := httptest.NewRequest(http.MethodPost, "/sim/v1/jobs", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("sim submit status = %d, want 202 without agent auth", rec.Code)
	}
}

func studioForSim(t *testing.T, logger *slog.Logger) *studio.Director {
	t.Helper()
	return studio.New(studio.Config{
		Store:      chain.NewStore(nil, nil, logger),
		Client:     completingClient{},
		Downloader: media.NewStubDownloader(logger),
		Extractor:  media.NewStubExtractor(logger),
		ClipsDir:   t.TempDir(),
		Logger:     logger,
	})
}
