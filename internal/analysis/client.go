// Package analysis provides the HTTP client for the external swing-analysis
// service. The service owns all pose-estimation and scoring; this client only
// moves video payloads out and analysis envelopes back.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/swingai/backend/internal/models"
)

// DefaultTimeout bounds every analysis call.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is returned when an analysis call exceeds its deadline. It is
// distinct from transport failures so callers can surface it separately.
var ErrTimeout = errors.New("analysis request timed out")

// StatusError is returned when the service responds with a non-success
// HTTP status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis service returned %s", e.Status)
}

// ServiceError is returned when the transport succeeded but the response
// envelope declared failure. The message is the envelope's error string.
type ServiceError struct {
	Message   string
	RequestID string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Client calls the swing-analysis service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for the analysis service at baseURL. A zero
// timeout uses DefaultTimeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// AnalyzeVideo uploads a stored video as multipart form data to the
// analyze-swing endpoint and returns the decoded result. Exactly one request
// is issued; retries are the caller's responsibility.
func (c *Client) AnalyzeVideo(ctx context.Context, filePath, fileName string) (*models.AnalysisResult, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening video: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("video", fileName)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("reading video: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze-swing", &body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

// AnalyzeURL asks the service to fetch and analyze a remote video itself.
func (c *Client) AnalyzeURL(ctx context.Context, videoURL string) (*models.AnalysisResult, error) {
	payload, err := json.Marshal(map[string]string{"video_url": videoURL})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze-swing-url", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// do issues the request and decodes the analysis envelope.
func (c *Client) do(req *http.Request) (*models.AnalysisResult, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var envelope models.AnalysisEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding analysis response: %w", err)
	}

	if !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = "analysis service reported failure"
		}
		return nil, &ServiceError{Message: msg, RequestID: envelope.RequestID}
	}

	if envelope.Data == nil {
		return nil, fmt.Errorf("analysis response missing data payload")
	}

	return envelope.Data, nil
}

// Health probes the service's health endpoint.
func (c *Client) Health(ctx context.Context) (*models.ServiceHealth, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var health models.ServiceHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decoding health response: %w", err)
	}

	return &health, nil
}

// ModelStatus fetches the service's model capability flags.
func (c *Client) ModelStatus(ctx context.Context) (*models.ModelStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("model status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var status models.ModelStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decoding model status: %w", err)
	}

	return &status, nil
}

// isTimeout distinguishes deadline expiry from other transport failures.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return false
}
