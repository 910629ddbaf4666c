package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/config"
	"github.com/uma-arai/sbcntr-restaurant/internal/handler"
	"github.com/uma-arai/sbcntr-restaurant/internal/service/ledger"
	"go.uber.org/zap"
)

func newTestRouter(rateLimit int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := ledger.NewService(ledger.NewMemStore(), nil, config.BookingConfig{
		MinDuration:  time.Hour,
		MaxDuration:  24 * time.Hour,
		MaxPartySize: 6,
		OpeningHour:  10,
		ClosingHour:  23,
	}, zap.NewNop())
	h := handler.NewHandler(svc, nil, map[string]handler.HealthCheck{
		"database": func(context.Context) error { return nil },
	}, time.UTC, zap.NewNop())
	return New(h, Options{RateLimitPerMin: rateLimit, Logger: zap.NewNop()})
}

func TestRoutes(t *testing.T) {
	r := newTestRouter(0)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"ヘルスチェック", http.MethodGet, "/health", http.StatusOK},
		{"メトリクス", http.MethodGet, "/metrics", http.StatusOK},
		{"テーブル一覧", http.MethodGet, "/tables", http.StatusOK},
		{"予約一覧", http.MethodGet, "/reservations", http.StatusOK},
		{"完了済み予約一覧", http.MethodGet, "/reservations/completed", http.StatusOK},
		{"存在しない予約", http.MethodGet, "/reservations/1", http.StatusNotFound},
		{"存在しないテーブルの削除", http.MethodDelete, "/tables/3", http.StatusNotFound},
		{"未定義のルート", http.MethodGet, "/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestRequestIDAndCORSHeaders(t *testing.T) {
	r := newTestRouter(0)

	req := httptest.NewRequest(http.MethodGet, "/tables", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(w.Header().Get("Access-Control-Expose-Headers"), "X-Request-Id") ||
		strings.Contains(w.Header().Get("Access-Control-Expose-Headers"), "X-Request-ID"))
}

func TestRateLimitExcludesHealth(t *testing.T) {
	r := newTestRouter(1)

	codes := make([]int, 0, 2)
	for range 2 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tables", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)

	for range 3 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
