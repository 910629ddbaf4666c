package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
	"github.com/uma-arai/sbcntr-restaurant/internal/service/ledger"
	"go.uber.org/zap"
)

// ReservationService は予約台帳の操作です
type ReservationService interface {
	Book(ctx context.Context, req ledger.BookRequest) (*model.Reservation, error)
	Confirm(ctx context.Context, id int64) (*model.Reservation, error)
	Cancel(ctx context.Context, id int64) (*model.Reservation, error)
	Complete(ctx context.Context, id int64) (*model.Reservation, error)
	Get(ctx context.Context, id int64) (*model.Reservation, error)
	List(ctx context.Context, page model.Page) ([]model.Reservation, error)
	ListCompleted(ctx context.Context, page model.Page) ([]model.CompletedReservation, error)
	Availability(ctx context.Context, tableID int64, date time.Time) ([]model.Interval, error)

	CreateTable(ctx context.Context, in model.TableInput) (*model.Table, error)
	GetTable(ctx context.Context, id int64) (*model.Table, error)
	ListTables(ctx context.Context) ([]model.Table, error)
	DeleteTable(ctx context.Context, number int) ([]model.Reservation, error)
}

// AccountService はユーザーと割引コードの操作です
type AccountService interface {
	CreateUser(ctx context.Context, in model.UserInput, promocode string) (*model.User, error)
	GetUser(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context, page model.Page) ([]model.User, error)
	UpdateUser(ctx context.Context, email string, in model.UserInput) (*model.User, error)
	DeleteUser(ctx context.Context, email string) error
	TopUp(ctx context.Context, email string, amount decimal.Decimal) (*model.User, error)
	Notifications(ctx context.Context, email string) ([]model.NotificationRecord, error)
	MarkNotificationRead(ctx context.Context, id int64) error

	CreatePromocode(ctx context.Context, in model.PromocodeInput) (*model.Promocode, error)
	GetPromocode(ctx context.Context, code string) (*model.Promocode, error)
	ListPromocodes(ctx context.Context, page model.Page) ([]model.Promocode, error)
	UpdatePromocode(ctx context.Context, code string, in model.PromocodeInput) (*model.Promocode, error)
	DeletePromocode(ctx context.Context, code string) error
	ApplyPromocode(ctx context.Context, email, code string) (*model.User, error)
}

// HealthCheck は依存先の疎通を確認します
type HealthCheck func(ctx context.Context) error

// Handler はHTTPハンドラをまとめたものです
type Handler struct {
	reservations ReservationService
	accounts     AccountService
	checks       map[string]HealthCheck
	location     *time.Location
	logger       *zap.Logger
}

// NewHandler は新しいHandlerを作成します
// location は空き状況の日付を解釈するタイムゾーンです
func NewHandler(reservations ReservationService, accounts AccountService, checks map[string]HealthCheck, location *time.Location, logger *zap.Logger) *Handler {
	if location == nil {
		location = time.UTC
	}
	return &Handler{
		reservations: reservations,
		accounts:     accounts,
		checks:       checks,
		location:     location,
		logger:       logger,
	}
}

// ErrorResponse はエラー時のレスポンスです
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errorMappings = []struct {
	err    error
	status int
	code   string
}{
	{model.ErrNotFound, http.StatusNotFound, "not_found"},
	{model.ErrOverlap, http.StatusConflict, "overlap"},
	{model.ErrDuplicate, http.StatusConflict, "duplicate"},
	{model.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{model.ErrCapacityExceeded, http.StatusUnprocessableEntity, "capacity_exceeded"},
	{model.ErrInsufficientFunds, http.StatusUnprocessableEntity, "insufficient_funds"},
	{model.ErrInvalidInterval, http.StatusBadRequest, "invalid_interval"},
	{model.ErrTooShort, http.StatusBadRequest, "too_short"},
	{model.ErrTooLong, http.StatusBadRequest, "too_long"},
	{model.ErrInPast, http.StatusBadRequest, "in_past"},
	{model.ErrInvalidPartySize, http.StatusBadRequest, "invalid_party_size"},
	{model.ErrPromocodeExpired, http.StatusBadRequest, "promocode_expired"},
	{model.ErrValidation, http.StatusBadRequest, "validation_error"},
}

// respondError はドメインエラーをHTTPステータスに変換して返します
func (h *Handler) respondError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			c.AbortWithStatusJSON(m.status, ErrorResponse{Error: m.code, Message: err.Error()})
			return
		}
	}

	h.logger.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal server error"})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: msg})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// pageQuery は limit と skip のクエリパラメータを読み取ります
func pageQuery(c *gin.Context) (model.Page, bool) {
	page := model.DefaultPage()
	for _, q := range []struct {
		name string
		dst  *int
	}{{"limit", &page.Limit}, {"skip", &page.Skip}} {
		raw, ok := c.GetQuery(q.name)
		if !ok {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, q.name+" must be an integer")
			return page, false
		}
		*q.dst = v
	}
	return page, true
}

// Health は依存先の疎通を確認します
func (h *Handler) Health(c *gin.Context) {
	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "unavailable"
	}
	c.JSON(status, gin.H{"status": overall, "checks": results})
}
