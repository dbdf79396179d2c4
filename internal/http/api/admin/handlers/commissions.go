package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/franquia-labs/cardsettle/internal/commission"
	"github.com/franquia-labs/cardsettle/internal/models"
)

// CommissionHandler exposes commission listing and payout recording.
type CommissionHandler struct {
	db   *gorm.DB
	calc *commission.Calculator
}

// NewCommissionHandler constructs a CommissionHandler.
func NewCommissionHandler(db *gorm.DB, calc *commission.Calculator) *CommissionHandler {
	return &CommissionHandler{db: db, calc: calc}
}

// List returns commissions filtered by query parameters, newest first.
func (h *CommissionHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.Commission{})
	if partnerQ := strings.TrimSpace(c.Query("partner_id")); partnerQ != "" {
		q = q.Where("partner_id = ?", partnerQ)
	}
	if statusQ := strings.TrimSpace(c.Query("status")); statusQ != "" {
		status := models.CommissionStatus(strings.ToUpper(statusQ))
		switch status {
		case models.CommissionStatusPending, models.CommissionStatusSettled, models.CommissionStatusVoided:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		q = q.Where("status = ?", status)
	}
	since, okSince := parseTimeQuery(c, "since")
	if !okSince {
		return
	}
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	until, okUntil := parseTimeQuery(c, "until")
	if !okUntil {
		return
	}
	if until != nil {
		q = q.Where("created_at < ?", *until)
	}

	page, pageSize := parsePageQuery(c)
	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count commissions failed"})
		return
	}
	var rows []models.Commission
	if errFind := q.Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list commissions failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatCommission(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"commissions": out, "total": total, "page": page, "page_size": pageSize})
}

// Settle records that a pending commission has been paid out.
func (h *CommissionHandler) Settle(c *gin.Context) {
	h.finalize(c, h.calc.MarkSettled)
}

// Void cancels a pending commission.
func (h *CommissionHandler) Void(c *gin.Context) {
	h.finalize(c, h.calc.MarkVoided)
}

// finalize applies a terminal status and maps the calculator's errors.
func (h *CommissionHandler) finalize(c *gin.Context, fn func(context.Context, uint64) (*models.Commission, error)) {
	id, okID := parseIDParam(c)
	if !okID {
		return
	}
	row, errFinal := fn(c.Request.Context(), id)
	if errFinal != nil {
		switch {
		case errors.Is(errFinal, commission.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(errFinal, commission.ErrAlreadyFinal):
			c.JSON(http.StatusConflict, gin.H{"error": "commission is no longer pending"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		}
		return
	}
	c.JSON(http.StatusOK, formatCommission(row))
}
