package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"bracketflow/internal/consts"
	"bracketflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

// NoCache 控制客户端不要使用缓存
func NoCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, max-age=0, must-revalidate")
		c.Header("Expires", "Thu, 01 Jan 1970 00:00:00 GMT")
		c.Header("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		c.Next()
	}
}

// Options
func Options() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.ToUpper(c.Request.Method) != http.MethodOptions {
			c.Next()
			return
		}
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "origin, content-type, accept, "+strings.ToLower(consts.SignatureHeader))
		c.Header("Allow", "HEAD,GET,POST,OPTIONS")
		c.AbortWithStatus(http.StatusOK)
	}
}

// Secure 添加安全控制和资源访问
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-XSS-Protection", "1; mode=block")
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000")
		}
		c.Next()
	}
}

// RequestId 用来设置和透传requestId
func RequestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestId := c.GetHeader("X-Request-Id")
		if requestId == "" {
			requestId = strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
		}
		c.Header("X-Request-Id", requestId)

		// 设置requestId到context中，便于后面调用链的透传
		c.Set(consts.RequestId, requestId)
		c.Next()
	}
}

// delivery 签名的处理状态，pending 表示同签名请求正在处理中
type delivery struct {
	at      time.Time
	pending bool
}

// ReplayGuard 同一个签名在 window 内只接受一次，防止 webhook 重放产生重复信号。
// 只有 2xx 的请求才记为已接受，失败的投递允许发送方用同一签名重试。
// 用 lru 限制缓存大小，并发安全。
func ReplayGuard(size int, window time.Duration) gin.HandlerFunc {
	seen, _ := lru.New(size)
	var mu sync.Mutex
	return func(c *gin.Context) {
		signature := c.GetHeader(consts.SignatureHeader)
		if signature == "" {
			c.Next()
			return
		}
		mu.Lock()
		if v, ok := seen.Get(signature); ok {
			d := v.(delivery)
			if d.pending || time.Since(d.at) < window {
				mu.Unlock()
				response.Conflict(c, "duplicate delivery")
				return
			}
		}
		seen.Add(signature, delivery{at: time.Now(), pending: true})
		mu.Unlock()

		accepted := false
		defer func() {
			mu.Lock()
			defer mu.Unlock()
			if accepted {
				seen.Add(signature, delivery{at: time.Now()})
				return
			}
			seen.Remove(signature)
		}()
		c.Next()
		status := c.Writer.Status()
		accepted = status >= http.StatusOK && status < http.StatusMultipleChoices
	}
}
