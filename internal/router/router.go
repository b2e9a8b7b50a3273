package router

import (
	"time"

	"bracketflow/internal/handler/execution"
	"bracketflow/internal/handler/ping"
	"bracketflow/internal/handler/webhook"
	"bracketflow/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ApiRouter struct {
	webhookHandler   *webhook.Handler
	executionHandler *execution.Handler
}

func NewApiRouter(wh *webhook.Handler, eh *execution.Handler) *ApiRouter {
	return &ApiRouter{webhookHandler: wh, executionHandler: eh}
}

func (api *ApiRouter) Load(g *gin.Engine) {
	g.GET("/ping", ping.Ping())
	g.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 信号写入，HMAC 验签
	wh := g.Group("/webhook", middleware.ReplayGuard(1024, 10*time.Minute))
	{
		wh.POST("/signal", api.webhookHandler.HandlerSignal())
		wh.POST("/message", api.webhookHandler.HandlerMessage())
	}

	base := g.Group("/api/v1")
	{
		base.GET("/status", api.executionHandler.StatusGet())
		base.GET("/signals", api.executionHandler.SignalsGetList())
		base.GET("/executions", api.executionHandler.ExecutionsGetList())
		// 通过websocket连接获取执行报告
		base.GET("/executions/ws", api.executionHandler.ServeWS)
	}
}
