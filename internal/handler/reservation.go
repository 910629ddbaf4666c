package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
	"github.com/uma-arai/sbcntr-restaurant/internal/service/ledger"
)

// maxDurationMinutes は受け付ける予約時間の上限(1週間)です
// 実際の上限は MAX_RESERVATION で台帳が判定します
const maxDurationMinutes = 7 * 24 * 60

type bookRequest struct {
	TableID         int64     `json:"table_id" binding:"required"`
	UserID          int64     `json:"user_id" binding:"required"`
	StartTime       time.Time `json:"start_time" binding:"required"`
	DurationMinutes int       `json:"duration_minutes"`
	PartySize       int       `json:"party_size"`
}

// CreateReservation はテーブルを予約します
func (h *Handler) CreateReservation(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.DurationMinutes > maxDurationMinutes {
		badRequest(c, "duration_minutes is too large")
		return
	}

	r, err := h.reservations.Book(c.Request.Context(), ledger.BookRequest{
		TableID:   req.TableID,
		UserID:    req.UserID,
		Start:     req.StartTime,
		Duration:  time.Duration(req.DurationMinutes) * time.Minute,
		PartySize: req.PartySize,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetReservation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.reservations.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) ListReservations(c *gin.Context) {
	page, ok := pageQuery(c)
	if !ok {
		return
	}
	reservations, err := h.reservations.List(c.Request.Context(), page)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservations)
}

func (h *Handler) ListCompletedReservations(c *gin.Context) {
	page, ok := pageQuery(c)
	if !ok {
		return
	}
	completed, err := h.reservations.ListCompleted(c.Request.Context(), page)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, completed)
}

// ConfirmReservation, CancelReservation, CompleteReservation は予約のステータスを遷移させます
func (h *Handler) ConfirmReservation(c *gin.Context) {
	h.transition(c, h.reservations.Confirm)
}

func (h *Handler) CancelReservation(c *gin.Context) {
	h.transition(c, h.reservations.Cancel)
}

func (h *Handler) CompleteReservation(c *gin.Context) {
	h.transition(c, h.reservations.Complete)
}

func (h *Handler) transition(c *gin.Context, fn func(ctx context.Context, id int64) (*model.Reservation, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := fn(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
