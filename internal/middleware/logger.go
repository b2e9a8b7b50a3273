package middleware

import (
	"bytes"
	"io"
	"time"

	"bracketflow/internal/consts"
	"bracketflow/pkg/logger"

	"github.com/gin-gonic/gin"
)

// 日志里最多记录的请求体长度
const maxLoggedBody = 2048

func Logger(c *gin.Context) {
	// 请求前
	t := time.Now()
	reqPath := c.Request.URL.Path
	reqId := c.GetString(consts.RequestId)
	method := c.Request.Method
	ip := c.ClientIP()

	var requestBody []byte
	if c.Request.Body != nil {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			body = []byte{}
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
		requestBody = body
	}
	if len(requestBody) > maxLoggedBody {
		requestBody = requestBody[:maxLoggedBody]
	}

	logger.Info("[Request Start]",
		logger.Pair(consts.RequestId, reqId),
		logger.Pair("host", ip),
		logger.Pair("path", reqPath),
		logger.Pair("method", method),
		logger.Pair("body", string(requestBody)))

	c.Next()
	// 请求后
	latency := time.Since(t)
	logger.Info("[Request End]",
		logger.Pair(consts.RequestId, reqId),
		logger.Pair("host", ip),
		logger.Pair("path", reqPath),
		logger.Pair("status", c.Writer.Status()),
		logger.Pair("cost", latency))
}
