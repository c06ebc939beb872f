package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/reusedev/gen-hub/config"
	"github.com/reusedev/gen-hub/internal/consts"
	"github.com/reusedev/gen-hub/internal/modules/auth"
	"github.com/reusedev/gen-hub/internal/modules/bus"
	"github.com/reusedev/gen-hub/internal/modules/harness"
	"github.com/reusedev/gen-hub/internal/modules/ledger"
	"github.com/reusedev/gen-hub/internal/modules/pipeline"
	"github.com/reusedev/gen-hub/internal/modules/queue"
	"github.com/reusedev/gen-hub/internal/modules/registry"
	"github.com/reusedev/gen-hub/internal/service/http/middleware"
	"github.com/stretchr/testify/require"
)

type nopNotifier struct{}

func (nopNotifier) Publish(event bus.Event) {}

func newTestRouter(t *testing.T) (*gin.Engine, *harness.MemoryCostStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	costs := harness.NewMemoryCostStore()
	runner := queue.NewRunner(8)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	wg := &sync.WaitGroup{}
	runner.Start(ctx, wg)

	l := ledger.New(costs)
	orch := pipeline.NewOrchestrator(pipeline.Options{
		Ledger:     l,
		Registry:   registry.New(),
		Provider:   &harness.FakeProvider{Cost: 0.03},
		Enhancer:   &harness.FakeEnhancer{},
		Artifacts:  harness.NewFakeArtifacts(),
		Metadata:   harness.NewFakeMetadata(),
		Notifier:   nopNotifier{},
		Runner:     runner,
		URLExpires: time.Hour,
	})
	Init(Deps{Orchestrator: orch, Ledger: l})

	validator := auth.NewStaticValidator(config.Auth{Tokens: map[string]string{"tok-alice": "alice"}})
	e := gin.New()
	authed := e.Group("/v1", middleware.BearerAuth(validator))
	authed.POST("/generations", Submit)
	authed.GET("/generations/:run_id", QueryRun)
	authed.POST("/generations/:run_id/cancel", CancelRun)
	authed.GET("/limits", QueryLimits)
	authed.PUT("/limits", SaveLimits)
	return e, costs
}

func doJSON(e *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func submitBody() map[string]any {
	return map[string]any{
		"mode":   "images",
		"model":  "sd-turbo-v2",
		"prompt": "a lighthouse at dawn",
		"params": map[string]any{"guidance_scale": 7.5, "size": "512x512", "n": 1},
	}
}

func TestSubmitRequiresAuth(t *testing.T) {
	e, _ := newTestRouter(t)
	w := doJSON(e, http.MethodPost, "/v1/generations", submitBody(), "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(e, http.MethodPost, "/v1/generations", submitBody(), "bogus")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitAndQueryRun(t *testing.T) {
	e, _ := newTestRouter(t)
	w := doJSON(e, http.MethodPost, "/v1/generations", submitBody(), "tok-alice")
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Code int `json:"code"`
		Data struct {
			RunId        string `json:"run_id"`
			GenerationId string `json:"generation_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Zero(t, envelope.Code)
	require.NotEmpty(t, envelope.Data.RunId)
	require.NotEmpty(t, envelope.Data.GenerationId)

	require.Eventually(t, func() bool {
		w := doJSON(e, http.MethodGet, "/v1/generations/"+envelope.Data.RunId, nil, "tok-alice")
		if w.Code != http.StatusOK {
			return false
		}
		var query struct {
			Data struct {
				Status consts.RunStatus `json:"status"`
			} `json:"data"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &query); err != nil {
			return false
		}
		return query.Data.Status == consts.RunStatusSucceeded
	}, 10*time.Second, 50*time.Millisecond)
}

func TestQueryRunUnknownId(t *testing.T) {
	e, _ := newTestRouter(t)
	w := doJSON(e, http.MethodGet, "/v1/generations/no-such-run", nil, "tok-alice")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitMissingModel(t *testing.T) {
	e, _ := newTestRouter(t)
	body := submitBody()
	delete(body, "model")
	w := doJSON(e, http.MethodPost, "/v1/generations", body, "tok-alice")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitLimitExceeded(t *testing.T) {
	e, _ := newTestRouter(t)
	w := doJSON(e, http.MethodPut, "/v1/limits", map[string]any{"daily_limit": 0.01}, "tok-alice")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(e, http.MethodPost, "/v1/generations", submitBody(), "tok-alice")
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	require.Contains(t, w.Body.String(), "daily")
}

func TestLimitsRoundTrip(t *testing.T) {
	e, _ := newTestRouter(t)
	w := doJSON(e, http.MethodGet, "/v1/limits", nil, "tok-alice")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"daily_limit":0`)

	w = doJSON(e, http.MethodPut, "/v1/limits", map[string]any{
		"daily_limit":   5,
		"weekly_limit":  20,
		"monthly_limit": 50,
	}, "tok-alice")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(e, http.MethodGet, "/v1/limits", nil, "tok-alice")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"daily_limit":5`)
	require.Contains(t, w.Body.String(), `"monthly_limit":50`)

	w = doJSON(e, http.MethodPut, "/v1/limits", map[string]any{"daily_limit": -1}, "tok-alice")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitDuplicateIdempotencyKey(t *testing.T) {
	e, _ := newTestRouter(t)
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(submitBody())
	first := httptest.NewRequest(http.MethodPost, "/v1/generations", &buf)
	first.Header.Set("Authorization", "Bearer tok-alice")
	first.Header.Set("Idempotency-Key", fmt.Sprintf("gen-%d", time.Now().UnixNano()))
	w := httptest.NewRecorder()
	e.ServeHTTP(w, first)
	require.Equal(t, http.StatusOK, w.Code)

	json.NewEncoder(&buf).Encode(submitBody())
	second := httptest.NewRequest(http.MethodPost, "/v1/generations", &buf)
	second.Header.Set("Authorization", "Bearer tok-alice")
	second.Header.Set("Idempotency-Key", first.Header.Get("Idempotency-Key"))
	w = httptest.NewRecorder()
	e.ServeHTTP(w, second)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
