package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reusedev/gen-hub/config"
	"github.com/reusedev/gen-hub/internal/consts"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string, maxRetries int) *Client {
	c := NewClient(config.Provider{
		BaseURL:    baseURL,
		Token:      "test-token",
		Timeout:    "2s",
		MaxRetries: maxRetries,
	})
	c.backoff = time.Millisecond
	return c
}

func testJob() Job {
	return Job{
		GenerationId: "gen-1",
		Mode:         consts.ModeImages,
		Model:        "sd-turbo-v2",
		Prompt:       "a lighthouse at dawn",
		Params:       map[string]any{"size": "512x512"},
	}
}

func TestGenerateSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/generations", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"status":"succeeded","outputs":["https://cdn/img-1.png"],"cost":0.04,"processing_ms":900}`))
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL, 0).Generate(context.Background(), testJob())
	require.NoError(t, err)
	require.Equal(t, []string{"https://cdn/img-1.png"}, result.Outputs)
	require.InDelta(t, 0.04, result.Cost, 1e-9)
	require.EqualValues(t, 900, result.ProcessingMs)
}

func TestGenerateRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"succeeded","outputs":["https://cdn/img-1.png"],"cost":0.04}`))
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL, 2).Generate(context.Background(), testJob())
	require.NoError(t, err)
	require.NotNil(t, result)
	require.EqualValues(t, 2, calls.Load())
}

func TestGenerateExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 2).Generate(context.Background(), testJob())
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	require.Equal(t, 3, te.Attempts)
	require.EqualValues(t, 3, calls.Load())
}

func TestGenerateRejectedNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("unsafe prompt"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).Generate(context.Background(), testJob())
	var re *RejectedError
	require.ErrorAs(t, err, &re)
	require.Equal(t, http.StatusBadRequest, re.StatusCode)
	require.Contains(t, re.Body, "unsafe prompt")
	require.EqualValues(t, 1, calls.Load())
}

func TestGenerateFailedStatusRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"failed","error":"content policy violation"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 0).Generate(context.Background(), testJob())
	var re *RejectedError
	require.ErrorAs(t, err, &re)
	require.Contains(t, re.Body, "content policy violation")
}

func TestGenerateHonorsContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestClient(srv.URL, 5).Generate(ctx, testJob())
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
