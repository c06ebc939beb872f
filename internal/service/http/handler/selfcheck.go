package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/reusedev/gen-hub/internal/modules/harness"
	"github.com/reusedev/gen-hub/internal/service/http/handler/response"
)

// SelfCheck runs the synthetic workflow suite against the live progress
// bus. Provider, storage and the relational store are faked; the
// orchestrator and ledger are the real thing.
func SelfCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Minute)
	defer cancel()
	report := harness.New(hub).Run(ctx)
	c.JSON(http.StatusOK, response.SuccessWithData(report))
}
