package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SubmitRequest is what the engine hands the execution connector
type SubmitRequest struct {
	IncidentID   uint     `json:"incident_id"`
	IncidentUUID string   `json:"incident_uuid"`
	RunbookID    uint     `json:"runbook_id"`
	TargetIDs    []string `json:"target_ids"`
}

// Runner submits a runbook for remote execution and returns an opaque
// command handle. Completion arrives later through the callback endpoint;
// the engine never blocks on the remote run.
type Runner interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
}

// HTTPRunner submits runbook executions to a remote connector endpoint
type HTTPRunner struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRunner creates a runner posting to the given connector URL
func NewHTTPRunner(endpoint string) *HTTPRunner {
	return &HTTPRunner{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Submit posts the request to the connector. The connector may return its
// own command handle; if it does not, a locally generated one is used and
// the connector is expected to echo it on the callback.
func (r *HTTPRunner) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	handle := uuid.New().String()

	payload := struct {
		SubmitRequest
		CommandHandle string `json:"command_handle"`
	}{SubmitRequest: req, CommandHandle: handle}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("connector submit failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("connector returned status %d", resp.StatusCode)
	}

	var ack struct {
		CommandHandle string `json:"command_handle"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err == nil && ack.CommandHandle != "" {
		handle = ack.CommandHandle
	}
	return handle, nil
}

// StubRunner records submissions without calling anything remote.
// Backs tests and local development.
type StubRunner struct {
	Submitted []SubmitRequest
	Err       error
}

// NewStubRunner creates an in-memory runner
func NewStubRunner() *StubRunner {
	return &StubRunner{}
}

// Submit records the request and returns a generated handle
func (r *StubRunner) Submit(_ context.Context, req SubmitRequest) (string, error) {
	if r.Err != nil {
		return "", r.Err
	}
	r.Submitted = append(r.Submitted, req)
	return uuid.New().String(), nil
}
