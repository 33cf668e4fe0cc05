package provider

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

// submitRequest is the wire shape of a generation submission, stable
// regardless of provider.
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

// HTTPClient talks to a video-generation provider over HTTP. It keeps no
// state between calls; every request mints a fresh bearer credential from
// the injected TokenSource.
type HTTPClient struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL string, tokens TokenSource, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

func (c *HTTPClient) Submit(ctx context.Context, imageRef, prompt string) (string, error) {
	body, err := json.Marshal(submitRequest{
		Image:  encodeImage(imageRef),
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/jobs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	var result submitResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &ProtocolError{Reason: fmt.Sprintf("undecodable submit response: %v", err)}
	}
	if result.JobID == "" {
		return "", &ProtocolError{Reason: "submit response missing jobId"}
	}

	c.logger.Info("generation job submitted", "job_id", result.JobID)
	return result.JobID, nil
}

func (c *HTTPClient) CheckStatus(ctx context.Context, jobID string) (StatusResult, error) {
	u := c.baseURL + "/v1/jobs/" + url.PathEscape(jobID)
	respBody, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return StatusResult{}, err
	}

	var result statusResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return StatusResult{}, &ProtocolError{Reason: fmt.Sprintf("undecodable status response: %v", err)}
	}

	return StatusResult{
		Phase:    mapPhase(result.Phase),
		VideoURL: result.VideoURL,
	}, nil
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("mint provider credential: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Reelchain-Request-Id", generateRequestID())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	return nil, &ProviderError{StatusCode: resp.StatusCode, Body: string(respBody)}
}

// encodeImage turns an image reference into the wire encoding. A readable
// local file is sent as base64 bytes; anything else (a URL, an opaque id
// from the capture layer) passes through untouched.
func encodeImage(imageRef string) string {
	data, err := os.ReadFile(imageRef)
	if err != nil {
		return imageRef
	}
	return base64.StdEncoding.EncodeToString(data)
}

func generateRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
