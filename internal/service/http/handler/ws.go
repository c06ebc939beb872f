package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/reusedev/gen-hub/internal/modules/logs"
)

// Attach upgrades the request to a websocket connection. The token rides
// the query string because browsers cannot set headers on the upgrade.
func Attach(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer"))
	}
	_, err := hub.Connect(c.Writer, c.Request, token)
	if err != nil {
		logs.Logger.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("websocket attach refused")
		return
	}
}
