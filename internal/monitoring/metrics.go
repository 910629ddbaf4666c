package monitoring

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	ledgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total reservation ledger operations",
		},
		[]string{"operation", "result"},
	)

	availabilityCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "availability_cache_requests_total",
			Help: "Availability cache lookups",
		},
		[]string{"result"},
	)

	batchReservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_reservations_processed_total",
			Help: "Reservations processed by the completion batch",
		},
		[]string{"action", "result"},
	)
)

// Cache lookup results
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Handler は /metrics 用のハンドラを返します
func Handler() http.Handler {
	return promhttp.Handler()
}

// TrackHTTPRequest はHTTPリクエストの件数とレイテンシを記録します
func TrackHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackLedgerOperation は台帳操作の結果を記録します
func TrackLedgerOperation(operation string, err error) {
	ledgerOperations.WithLabelValues(operation, Result(err)).Inc()
}

// TrackCacheLookup は空き状況キャッシュの参照結果を記録します
func TrackCacheLookup(result string) {
	availabilityCache.WithLabelValues(result).Inc()
}

// TrackBatchReservation は完了バッチで処理した予約を記録します
func TrackBatchReservation(action string, err error) {
	batchReservations.WithLabelValues(action, Result(err)).Inc()
}

// Result はエラーをメトリクスのラベル値に変換します
func Result(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, model.ErrOverlap):
		return "overlap"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "error"
	}
}
