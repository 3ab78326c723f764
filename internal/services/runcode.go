package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RunCodeClient submits code to a remote run-code endpoint. It never fails: transport errors,
// timeouts and unexpected responses are all folded into an "Error: " prefixed output.
type RunCodeClient struct {
	endpoint string

	client *http.Client

	logger *slog.Logger
}

// RunCodeRequest is the body accepted by the run-code endpoint.
type RunCodeRequest struct {
	Code string `json:"code"`
}

// RunCodeResponse is the body returned by the run-code endpoint.
type RunCodeResponse struct {
	Output string `json:"output"`
}

// DefaultRunCodeTimeout bounds a single remote execution when no timeout is configured.
const DefaultRunCodeTimeout = 30 * time.Second

// NewRunCodeClient creates a client for the run-code endpoint served under baseURL. A non-positive
// timeout means DefaultRunCodeTimeout.
func NewRunCodeClient(baseURL string, timeout time.Duration, logger *slog.Logger) RunCodeClient {
	if timeout <= 0 {
		timeout = DefaultRunCodeTimeout
	}
	return RunCodeClient{
		endpoint: strings.TrimSuffix(baseURL, "/") + "/api/run-code",
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With(slog.String("module", "runcode")),
	}
}

// Execute submits code and returns the captured output.
func (c RunCodeClient) Execute(ctx context.Context, code string) string {
	out, err := c.execute(ctx, code)
	if err != nil {
		c.logger.Error("Failed to run code",
			slog.String("endpoint", c.endpoint),
			slog.String(errLoggerKey, err.Error()))
		return "Error: " + err.Error()
	}
	return out
}

func (c RunCodeClient) execute(ctx context.Context, code string) (string, error) {
	body, err := json.Marshal(RunCodeRequest{Code: code})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var res RunCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return res.Output, nil
}
