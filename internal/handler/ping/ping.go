package ping

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startedAt = time.Now()

// Ping 存活检查，启动时 server 轮询它确认服务在线
func Ping() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "\r\nSuccess, uptime %s", time.Since(startedAt).Truncate(time.Second))
	}
}
