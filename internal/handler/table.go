package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
	"github.com/uma-arai/sbcntr-restaurant/internal/service/ledger"
)

func (h *Handler) CreateTable(c *gin.Context) {
	var in model.TableInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	table, err := h.reservations.CreateTable(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, table)
}

func (h *Handler) GetTable(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	table, err := h.reservations.GetTable(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

func (h *Handler) ListTables(c *gin.Context) {
	tables, err := h.reservations.ListTables(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tables)
}

// DeleteTable はテーブル番号でテーブルを削除します
func (h *Handler) DeleteTable(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		badRequest(c, "number must be a positive integer")
		return
	}
	cancelled, err := h.reservations.DeleteTable(c.Request.Context(), number)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"table_number": number, "cancelled_reservations": len(cancelled)})
}

// Availability は指定日(date=YYYY-MM-DD、省略時は当日)の空き区間を返します
func (h *Handler) Availability(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	date := time.Now().In(h.location)
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation(ledger.DateLayout, raw, h.location)
		if err != nil {
			badRequest(c, "date must be formatted as YYYY-MM-DD")
			return
		}
		date = parsed
	}

	free, err := h.reservations.Availability(c.Request.Context(), id, date)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"table_id": id,
		"date":     date.Format(ledger.DateLayout),
		"free":     free,
	})
}
