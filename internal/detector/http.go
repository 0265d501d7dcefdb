package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient is an HTTP client for the face inference sidecar (an InsightFace
// service exposing POST /v1/detect and GET /health).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// HTTPClientOption configures the HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithTimeout sets the per-request timeout (default 30s; detection on CPU can
// take hundreds of milliseconds per face).
func WithTimeout(d time.Duration) HTTPClientOption {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = d
	}
}

// NewHTTPClient creates a client for the inference service at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPClientOption) *HTTPClient {
	client := &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// detectResponse is the inference service's response body.
type detectResponse struct {
	Faces []Detection `json:"faces"`
}

// errorResponse is the inference service's error body.
type errorResponse struct {
	Detail string `json:"detail"`
}

// Detect posts the image to the inference service and returns all detections.
// A 400 from the service maps to ErrUnreadableImage; 5xx and transport
// failures map to ErrUnavailable.
func (c *HTTPClient) Detect(ctx context.Context, image []byte) ([]Detection, error) {
	url := fmt.Sprintf("%s/v1/detect", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusBadRequest:
		var errBody errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil && errBody.Detail != "" {
			return nil, fmt.Errorf("%w: %s", ErrUnreadableImage, errBody.Detail)
		}

		return nil, ErrUnreadableImage
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return nil, fmt.Errorf("detector: unexpected status %d: %s", resp.StatusCode, body)
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode detect response: %w", err)
	}

	return out.Faces, nil
}

// Health checks the inference service's health endpoint.
func (c *HTTPClient) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrUnavailable, resp.StatusCode)
	}

	return nil
}
