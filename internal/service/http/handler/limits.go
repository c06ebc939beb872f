package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/reusedev/gen-hub/internal/modules/logs"
	"github.com/reusedev/gen-hub/internal/modules/model"
	"github.com/reusedev/gen-hub/internal/service/http/handler/request"
	"github.com/reusedev/gen-hub/internal/service/http/handler/response"
)

func QueryLimits(c *gin.Context) {
	limits, err := spendLedger.Limits(c.GetString("user_id"))
	if err != nil {
		logs.Logger.Err(err)
		c.JSON(http.StatusInternalServerError, response.InternalError)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithData(limits))
}

func SaveLimits(c *gin.Context) {
	form := request.Limits{}
	err := c.ShouldBindJSON(&form)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ParamError)
		return
	}
	if form.DailyLimit < 0 || form.WeeklyLimit < 0 || form.MonthlyLimit < 0 {
		c.JSON(http.StatusBadRequest, response.ParamErrorWithMessage("limits must be >= 0"))
		return
	}
	limits := &model.SpendingLimits{
		UserId:       c.GetString("user_id"),
		DailyLimit:   form.DailyLimit,
		WeeklyLimit:  form.WeeklyLimit,
		MonthlyLimit: form.MonthlyLimit,
	}
	if err := spendLedger.SaveLimits(limits); err != nil {
		logs.Logger.Err(err)
		c.JSON(http.StatusInternalServerError, response.InternalError)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithData(limits))
}
