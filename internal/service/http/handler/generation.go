package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/reusedev/gen-hub/config"
	"github.com/reusedev/gen-hub/internal/consts"
	"github.com/reusedev/gen-hub/internal/modules/logs"
	"github.com/reusedev/gen-hub/internal/modules/pipeline"
	"github.com/reusedev/gen-hub/internal/service/http/handler/request"
	"github.com/reusedev/gen-hub/internal/service/http/handler/response"
)

func Submit(c *gin.Context) {
	form := request.Generation{}
	err := c.ShouldBindJSON(&form)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ParamError)
		return
	}
	req := pipeline.Request{
		GenerationId: c.GetHeader("Idempotency-Key"),
		UserId:       c.GetString("user_id"),
		Mode:         consts.Mode(form.Mode),
		Model:        form.Model,
		Prompt:       form.Prompt,
		Params:       form.Params,
		SourceImages: form.SourceImages,
	}
	ticket, err := orch.Dispatch(req)
	if err != nil {
		var ke *pipeline.KindError
		if errors.As(err, &ke) {
			switch ke.Kind {
			case pipeline.KindLimitExceeded:
				c.JSON(http.StatusPaymentRequired, response.LimitExceeded(ke.Message))
				return
			case pipeline.KindInvalidParameters, pipeline.KindDuplicateRecord:
				c.JSON(http.StatusBadRequest, response.ParamErrorWithMessage(ke.Message))
				return
			}
		}
		logs.Logger.Err(err)
		c.JSON(http.StatusInternalServerError, response.InternalError)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithData(ticket))
}

func QueryRun(c *gin.Context) {
	run, ok := orch.Snapshot(c.Param("run_id"))
	if !ok || run.Request.UserId != c.GetString("user_id") {
		c.JSON(http.StatusNotFound, response.NotFound)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithData(run))
}

func CancelRun(c *gin.Context) {
	err := orch.Cancel(c.Param("run_id"), c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ParamErrorWithMessage(err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithData(nil))
}

func Gallery(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		c.JSON(http.StatusBadRequest, response.ParamError)
		return
	}
	items, err := generations.GalleryByUser(c.GetString("user_id"), limit)
	if err != nil {
		logs.Logger.Err(err)
		c.JSON(http.StatusInternalServerError, response.InternalError)
		return
	}
	duration, _ := time.ParseDuration(config.GConfig.URLExpires)
	list := make([]gin.H, 0, len(items))
	for _, item := range items {
		entry := gin.H{
			"generation_id": item.GenerationId,
			"indexed_at":    item.IndexedAt,
		}
		if url, err := artifacts.URL(item.ArtifactKey, duration); err == nil {
			entry["artifact_url"] = url
		}
		if item.ThumbnailKey != "" {
			if url, err := artifacts.URL(item.ThumbnailKey, duration); err == nil {
				entry["thumbnail_url"] = url
			}
		}
		list = append(list, entry)
	}
	c.JSON(http.StatusOK, response.SuccessWithData(list))
}
