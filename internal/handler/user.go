package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
)

type createUserRequest struct {
	model.UserInput
	Promocode string `json:"promocode"`
}

type topUpRequest struct {
	Email  string          `json:"email" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, err := h.accounts.CreateUser(c.Request.Context(), req.UserInput, req.Promocode)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.accounts.GetUser(c.Request.Context(), c.Param("email"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUsers(c *gin.Context) {
	page, ok := pageQuery(c)
	if !ok {
		return
	}
	users, err := h.accounts.ListUsers(c.Request.Context(), page)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	var in model.UserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, err := h.accounts.UpdateUser(c.Request.Context(), c.Param("email"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.accounts.DeleteUser(c.Request.Context(), c.Param("email")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TopUp はユーザーの残高にチャージします
func (h *Handler) TopUp(c *gin.Context) {
	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, err := h.accounts.TopUp(c.Request.Context(), req.Email, req.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) ListNotifications(c *gin.Context) {
	records, err := h.accounts.Notifications(c.Request.Context(), c.Param("email"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.accounts.MarkNotificationRead(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
