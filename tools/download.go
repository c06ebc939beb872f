package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// FetchURL downloads the content behind a provider output reference.
func FetchURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download artifact, status code: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
