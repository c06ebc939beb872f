package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reusedev/gen-hub/config"
	"github.com/reusedev/gen-hub/internal/modules/http_client"
	"github.com/reusedev/gen-hub/internal/modules/logs"
	"github.com/reusedev/gen-hub/tools"
)

// Client calls the generation provider over request/response semantics.
// Transient failures (timeout, 429, 5xx) are retried with exponential
// backoff up to MaxRetries; terminal refusals surface as RejectedError.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
}

func NewClient(cfg config.Provider) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		timeout:    cfg.TimeoutDuration(),
		maxRetries: cfg.MaxRetries,
		backoff:    500 * time.Millisecond,
	}
}

type generateResponse struct {
	Status       string   `json:"status"`
	Outputs      []string `json:"outputs"`
	Cost         float64  `json:"cost"`
	ProcessingMs int64    `json:"processing_ms"`
	Error        string   `json:"error"`
}

func (c *Client) Generate(ctx context.Context, job Job) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff << (attempt - 1)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		result, retryable, err := c.generateOnce(ctx, job, attempt)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, &TimeoutError{Attempts: c.maxRetries + 1, Last: lastErr}
}

func (c *Client) generateOnce(ctx context.Context, job Job, attempt int) (*Result, bool, error) {
	client := http_client.NewWithTimeout(c.timeout)
	req, err := client.NewRequest(
		http.MethodPost,
		tools.FullURL(c.baseURL, "/v1/generations"),
		http_client.WithHeader("Authorization", "Bearer "+c.token),
		http_client.WithHeader("Content-Type", "application/json"),
		http_client.WithBody(job),
		http_client.WithContext(ctx),
	)
	if err != nil {
		return nil, false, err
	}
	reqAt := time.Now()
	resp, err := client.Do(req)
	respAt := time.Now()
	if err != nil {
		// network error or client timeout, transient
		return nil, true, err
	}
	defer resp.Body.Close()
	logs.Logger.Info().
		Str("generation_id", job.GenerationId).
		Str("model", job.Model).
		Int("attempt", attempt).
		Int("status_code", resp.StatusCode).
		Dur("req_consume_ms", respAt.Sub(reqAt)).
		Msg("provider request")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return nil, true, fmt.Errorf("provider status %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, &RejectedError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, false, err
	}
	if parsed.Status != "succeeded" {
		return nil, false, &RejectedError{StatusCode: resp.StatusCode, Body: parsed.Error}
	}
	if len(parsed.Outputs) == 0 {
		return nil, false, &RejectedError{StatusCode: resp.StatusCode, Body: "no outputs in provider response"}
	}
	return &Result{
		Outputs:      parsed.Outputs,
		Cost:         parsed.Cost,
		ProcessingMs: parsed.ProcessingMs,
	}, false, nil
}
