package http

import (
	"github.com/gin-gonic/gin"
	"github.com/reusedev/gen-hub/internal/modules/auth"
	"github.com/reusedev/gen-hub/internal/service/http/handler"
	"github.com/reusedev/gen-hub/internal/service/http/middleware"
)

func Serve(port string, validator auth.Validator) {
	e := gin.New()
	initRouter(e, validator)
	if err := e.Run(port); err != nil {
		panic(err)
	}
}

func initRouter(e *gin.Engine, validator auth.Validator) {
	e.Use(gin.Recovery())
	e.Use(middleware.RequestLogger())
	v1 := e.Group("/v1")
	// the socket authenticates its own token inside the hub
	v1.GET("/ws", handler.Attach)

	authed := v1.Group("", middleware.BearerAuth(validator))
	generation := authed.Group("/generations")
	{
		generation.POST("", handler.Submit)
		generation.GET("/:run_id", handler.QueryRun)
		generation.POST("/:run_id/cancel", handler.CancelRun)
	}
	limits := authed.Group("/limits")
	{
		limits.GET("", handler.QueryLimits)
		limits.PUT("", handler.SaveLimits)
	}
	authed.GET("/gallery", handler.Gallery)
	authed.POST("/selfcheck", handler.SelfCheck)
}
