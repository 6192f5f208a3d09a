package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/timeout"
	"github.com/gin-gonic/gin"
	"github.com/richxcame/dispatch-core/pkg/config"
	"github.com/richxcame/dispatch-core/pkg/logger"
	"go.uber.org/zap"
)

// RequestTimeout bounds each request's handler by the configured
// duration (per-route overrides win over the default) and answers 504
// with an X-Timeout marker header when the deadline passes.
func RequestTimeout(cfg *config.TimeoutConfig) gin.HandlerFunc {
	var mu sync.Mutex
	handlers := make(map[time.Duration]gin.HandlerFunc)

	handlerFor := func(d time.Duration) gin.HandlerFunc {
		mu.Lock()
		defer mu.Unlock()
		if h, ok := handlers[d]; ok {
			return h
		}
		h := timeout.New(
			timeout.WithTimeout(d),
			timeout.WithResponse(func(c *gin.Context) {
				c.Header("X-Timeout", "true")
				c.JSON(http.StatusGatewayTimeout, gin.H{
					"error":   "Request timeout",
					"message": "The request took too long to process",
				})
				logger.WithContext(c.Request.Context()).Warn("Request timeout",
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
					zap.Duration("timeout", d),
				)
			}),
		)
		handlers[d] = h
		return h
	}

	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithContext(c.Request.Context()).Error("panic in request handler",
					zap.Any("panic", r), zap.String("path", c.Request.URL.Path))
				if !c.Writer.Written() {
					c.AbortWithStatus(http.StatusInternalServerError)
				}
			}
		}()

		d := cfg.TimeoutForRoute(c.Request.Method, c.FullPath())
		handlerFor(d)(c)
	}
}
