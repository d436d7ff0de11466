package middleware

import (
	"time"

	"github.com/TIANLI0/MatteKit/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger Zap日志中间件，skipPaths 中的路径不记录
func Logger(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if _, ok := skip[path]; ok {
			return
		}

		fields := []zap.Field{
			zap.String("request_id", c.GetString(RequestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("cost", time.Since(start)),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if c.Writer.Status() >= 500 {
			utils.Logger.Error("request", fields...)
			return
		}
		utils.Logger.Info("request", fields...)
	}
}
