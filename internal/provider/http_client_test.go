package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(baseURL string) *HTTPClient {
	return NewHTTPClient(baseURL, NewStaticTokenSource("test-token"), testLogger())
}

func TestSubmit_Success(t *testing.T) {
	var receivedAuth string
	var receivedReq submitRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/jobs" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		receivedAuth = r.Header.Get("Authorization")

		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &receivedReq)

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(submitResponse{JobID: "job-123"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	jobID, err := client.Submit(context.Background(), "opaque-image-ref", "a dog on a beach")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if jobID != "job-123" {
		t.Errorf("job_id = %q, want job-123", jobID)
	}
	if receivedAuth != "Bearer test-token" {
		t.Errorf("auth = %q, want %q", receivedAuth, "Bearer test-token")
	}
	if receivedReq.Image != "opaque-image-ref" {
		t.Errorf("image = %q, want opaque ref passed through", receivedReq.Image)
	}
	if receivedReq.Prompt != "a dog on a beach" {
		t.Errorf("prompt = %q, want submitted prompt", receivedReq.Prompt)
	}
}

func TestSubmit_Rejected_ReturnsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"prompt violates content policy"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Submit(context.Background(), "img", "bad prompt")
	if err == nil {
		t.Fatal("expected error for 422 response")
	}

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if provErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status_code = %d, want 422", provErr.StatusCode)
	}
	if !strings.Contains(provErr.Body, "content policy") {
		t.Errorf("body = %q, want provider detail preserved", provErr.Body)
	}
}

func TestSubmit_MissingJobID_ReturnsProtocolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"accepted"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Submit(context.Background(), "img", "prompt")
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestCheckStatus_PhaseMapping(t *testing.T) {
	cases := []struct {
		providerPhase string
		want          Phase
	}{
		{"completed", PhaseCompleted},
		{"succeeded", PhaseCompleted},
		{"failed", PhaseFailed},
		{"error", PhaseFailed},
		{"processing", PhaseProcessing},
		{"queued", PhaseProcessing},
		{"warming_up", PhaseProcessing}, // unknown status fails open to processing
		{"", PhaseProcessing},
	}

	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(statusResponse{Phase: tc.providerPhase})
		}))

		client := newTestClient(server.URL)
		result, err := client.CheckStatus(context.Background(), "job-1")
		server.Close()

		if err != nil {
			t.Fatalf("phase %q: unexpected error: %v", tc.providerPhase, err)
		}
		if result.Phase != tc.want {
			t.Errorf("phase %q mapped to %q, want %q", tc.providerPhase, result.Phase, tc.want)
		}
	}
}

func TestCheckStatus_CompletedCarriesVideoURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/jobs/job-9" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(statusResponse{Phase: "completed", VideoURL: "https://cdn.example.com/v.mp4"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.CheckStatus(context.Background(), "job-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.VideoURL != "https://cdn.example.com/v.mp4" {
		t.Errorf("video_url = %q", result.VideoURL)
	}
}

func TestCheckStatus_NotFound_ReturnsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"job not found"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.CheckStatus(context.Background(), "garbage")

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.StatusCode != http.StatusNotFound {
		t.Errorf("status_code = %d, want 404", provErr.StatusCode)
	}
}

func TestSubmit_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(submitResponse{JobID: "job-1"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Submit(ctx, "img", "prompt"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestEncodeImage_LocalFileBecomesBase64(t *testing.T) {
	path := t.TempDir() + "/frame.jpg"
	if err := os.WriteFile(path, []byte("jpegbytes"), 0644); err != nil {
		t.Fatal(err)
	}

	encoded := encodeImage(path)
	if encoded == path {
		t.Fatal("local file should be encoded, not passed through")
	}
	if encoded != "anBlZ2J5dGVz" {
		t.Errorf("encoded = %q, want base64 of file contents", encoded)
	}
}

func TestHTTPClient_ImplementsClientInterface(t *testing.T) {
	var _ Client = (*HTTPClient)(nil)
}
