// Package orchestratorclient is a strictly synchronous HTTP client for the
// four calls a worker makes to its orchestrator: register, fetch job
// details, report status, and heartbeat. None of these calls retry — a
// failure is either fatal (register) or logged and swallowed (everything
// else), per spec; retrying here would mask the orchestrator's authority
// over worker state.
package orchestratorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/benchworker/agent/internal/model"
)

const (
	shortTimeout = 5 * time.Second  // status, heartbeat
	longTimeout  = 10 * time.Second // register, job details
)

// Client talks to one orchestrator base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Client bound to baseURL (no trailing slash expected).
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, httpClient: &http.Client{}}
}

// RegisterRequest is the body POSTed to /api/register.
type RegisterRequest struct {
	DeviceName   string           `json:"device_name"`
	IPAddress    string           `json:"ip_address"`
	Capabilities []string         `json:"capabilities"`
	DeviceInfo   model.Descriptor `json:"device_info"`
}

type registerResponse struct {
	WorkerID string `json:"worker_id"`
}

// Register posts the worker's identity and capabilities and returns the
// orchestrator-assigned worker id. A non-200 response is fatal — the
// caller is expected to exit non-zero, per spec.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, longTimeout)
	defer cancel()

	var resp registerResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/register", req, &resp); err != nil {
		return "", fmt.Errorf("orchestratorclient: register: %w", err)
	}
	return resp.WorkerID, nil
}

type jobDetailsResponse struct {
	Job *model.JobDescriptor `json:"job"`
}

// JobDetails fetches a job's full descriptor by id. Any failure — non-200
// status or timeout — is treated as "unknown job"; the caller drops the
// id and moves on, since the orchestrator is the source of truth.
func (c *Client) JobDetails(ctx context.Context, jobID string) (*model.JobDescriptor, bool) {
	ctx, cancel := context.WithTimeout(ctx, longTimeout)
	defer cancel()

	var resp jobDetailsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/jobs/"+jobID, nil, &resp); err != nil {
		return nil, false
	}
	if resp.Job == nil {
		return nil, false
	}
	return resp.Job, true
}

type statusRequest struct {
	Status string `json:"status"`
}

// SetStatus reports the worker's current status. Best-effort: failures
// are the caller's to log, never fatal.
func (c *Client) SetStatus(ctx context.Context, workerID, status string) error {
	ctx, cancel := context.WithTimeout(ctx, shortTimeout)
	defer cancel()

	path := fmt.Sprintf("/api/workers/%s/status", workerID)
	if err := c.doJSON(ctx, http.MethodPut, path, statusRequest{Status: status}, nil); err != nil {
		return fmt.Errorf("orchestratorclient: set status: %w", err)
	}
	return nil
}

type heartbeatRequest struct {
	Timestamp int64 `json:"timestamp"`
}

// Heartbeat tells the orchestrator this worker is alive. Best-effort:
// missed heartbeats are tolerated by the orchestrator and must never
// abort the caller's ticker.
func (c *Client) Heartbeat(ctx context.Context, workerID string) error {
	ctx, cancel := context.WithTimeout(ctx, shortTimeout)
	defer cancel()

	path := fmt.Sprintf("/api/workers/%s/heartbeat", workerID)
	req := heartbeatRequest{Timestamp: time.Now().Unix()}
	if err := c.doJSON(ctx, http.MethodPost, path, req, nil); err != nil {
		return fmt.Errorf("orchestratorclient: heartbeat: %w", err)
	}
	return nil
}

// doJSON issues one HTTP call with a JSON body (if body is non-nil) and
// decodes a JSON response into out (if out is non-nil). A non-2xx status
// is always an error; there is no retry at this layer.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
