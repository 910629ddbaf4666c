package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/uma-arai/sbcntr-restaurant/internal/monitoring"
	"go.uber.org/zap"
)

// RequestIDHeader はリクエストIDを受け渡すヘッダー名です
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RequestID はリクエストIDを払い出し、レスポンスヘッダーに設定します
// クライアントがIDを送ってきた場合はそれを引き継ぎます
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID はコンテキストに設定されたリクエストIDを返します
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Logger はアクセスログを出力します
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request completed", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request completed", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	}
}

// Recovery はハンドラ内のpanicを500レスポンスに変換します
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("unhandled panic",
					zap.String("request_id", GetRequestID(c)),
					zap.String("path", c.Request.URL.Path),
					zap.Any("error", r),
					zap.Stack("stack"),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   "internal_error",
					"message": "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// Metrics はルートごとのリクエスト数とレイテンシを記録します
// ルーティングされなかったリクエストは "unmatched" として集計します
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		monitoring.TrackHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
