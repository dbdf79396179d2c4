package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/franquia-labs/cardsettle/internal/models"
)

// TransactionHandler exposes read access to the transaction ledger.
type TransactionHandler struct {
	db *gorm.DB
}

// NewTransactionHandler constructs a TransactionHandler.
func NewTransactionHandler(db *gorm.DB) *TransactionHandler {
	return &TransactionHandler{db: db}
}

// List returns ledger entries filtered by query parameters, newest first.
func (h *TransactionHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.CardTransaction{})
	if cardQ := strings.TrimSpace(c.Query("card_id")); cardQ != "" {
		q = q.Where("card_id = ?", cardQ)
	}
	if merchantQ := strings.TrimSpace(c.Query("merchant_id")); merchantQ != "" {
		q = q.Where("merchant_id = ?", merchantQ)
	}
	if kindQ := strings.TrimSpace(c.Query("kind")); kindQ != "" {
		kind := models.TransactionKind(strings.ToUpper(kindQ))
		if kind != models.TransactionKindRecharge && kind != models.TransactionKindConsumption {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kind"})
			return
		}
		q = q.Where("kind = ?", kind)
	}
	if statusQ := strings.TrimSpace(c.Query("status")); statusQ != "" {
		status := models.TransactionStatus(strings.ToUpper(statusQ))
		switch status {
		case models.TransactionStatusPending, models.TransactionStatusCompleted, models.TransactionStatusRejected:
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
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count transactions failed"})
		return
	}
	var rows []models.CardTransaction
	if errFind := q.Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list transactions failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatTransaction(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out, "total": total, "page": page, "page_size": pageSize})
}
