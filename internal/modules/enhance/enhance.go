package enhance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/reusedev/gen-hub/config"
	"github.com/reusedev/gen-hub/internal/modules/http_client"
	"github.com/reusedev/gen-hub/internal/modules/logs"
	"github.com/reusedev/gen-hub/tools"
)

// Client calls the prompt-enhancement capability. Advisory only: callers
// fall back to the original prompt on any error.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
}

func NewClient(cfg config.Enhance) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		timeout: cfg.TimeoutDuration(),
	}
}

type enhanceRequest struct {
	Prompt string `json:"prompt"`
}

type enhanceResponse struct {
	Prompt string `json:"prompt"`
}

func (c *Client) Enhance(ctx context.Context, prompt string) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("enhancement capability not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client := http_client.New()
	req, err := client.NewRequest(
		http.MethodPost,
		tools.FullURL(c.baseURL, "/v1/enhance"),
		http_client.WithHeader("Authorization", "Bearer "+c.token),
		http_client.WithHeader("Content-Type", "application/json"),
		http_client.WithBody(enhanceRequest{Prompt: prompt}),
		http_client.WithContext(ctx),
	)
	if err != nil {
		return "", err
	}
	reqAt := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	logs.Logger.Debug().
		Int("status_code", resp.StatusCode).
		Dur("req_consume_ms", time.Since(reqAt)).
		Msg("enhance request")
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("enhance status %d", resp.StatusCode)
	}
	var parsed enhanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if parsed.Prompt == "" {
		return "", fmt.Errorf("empty enhanced prompt")
	}
	return parsed.Prompt, nil
}
