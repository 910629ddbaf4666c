package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
)

type applyPromocodeRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

func (h *Handler) CreatePromocode(c *gin.Context) {
	var in model.PromocodeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.accounts.CreatePromocode(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPromocode(c *gin.Context) {
	p, err := h.accounts.GetPromocode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPromocodes(c *gin.Context) {
	page, ok := pageQuery(c)
	if !ok {
		return
	}
	promocodes, err := h.accounts.ListPromocodes(c.Request.Context(), page)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, promocodes)
}

func (h *Handler) UpdatePromocode(c *gin.Context) {
	var in model.PromocodeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.accounts.UpdatePromocode(c.Request.Context(), c.Param("code"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePromocode(c *gin.Context) {
	if err := h.accounts.DeletePromocode(c.Request.Context(), c.Param("code")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ApplyPromocode はユーザーに割引コードを適用します
func (h *Handler) ApplyPromocode(c *gin.Context) {
	var req applyPromocodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, err := h.accounts.ApplyPromocode(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
