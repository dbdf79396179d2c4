package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/franquia-labs/cardsettle/internal/models"
	"github.com/franquia-labs/cardsettle/internal/settlement"
	"github.com/franquia-labs/cardsettle/internal/util"
)

// parseIDParam parses the :id path parameter.
func parseIDParam(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// respondSettlementError maps a settlement error onto an HTTP response.
// Business rejections and infrastructure failures carry distinct statuses
// so clients can tell "insufficient balance" from "try again later".
func respondSettlementError(c *gin.Context, err error) {
	code := settlement.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case settlement.CodeValidation:
		status = http.StatusBadRequest
	case settlement.CodeNotFound:
		status = http.StatusNotFound
	case settlement.CodeInvalidState, settlement.CodeInvalidTransition,
		settlement.CodeInsufficientBalance, settlement.CodeMerchantMismatch:
		status = http.StatusUnprocessableEntity
	case settlement.CodeNotAuthorized:
		status = http.StatusForbidden
	case settlement.CodeDuplicateCode, settlement.CodeDuplicateCommission:
		status = http.StatusConflict
	case settlement.CodeTimeout:
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": errorMessage(err), "code": code})
}

// errorMessage extracts the settlement message without internal detail.
func errorMessage(err error) string {
	var se *settlement.Error
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return "operation failed"
}

// parseAmount parses a positive decimal amount from its JSON string form.
func parseAmount(raw string) (decimal.Decimal, bool) {
	value, errParse := decimal.NewFromString(strings.TrimSpace(raw))
	if errParse != nil {
		return decimal.Zero, false
	}
	return value, true
}

// formatCard maps a card model into a response payload.
func formatCard(card *models.Card) gin.H {
	return gin.H{
		"id":               card.ID,
		"code":             card.Code,
		"token":            util.MaskSecret(card.Token),
		"status":           card.Status,
		"balance":          card.Balance,
		"partner_id":       card.PartnerID,
		"merchant_id":      card.MerchantID,
		"activated_at":     card.ActivatedAt,
		"last_consumed_at": card.LastConsumedAt,
		"expires_at":       card.ExpiresAt,
		"created_at":       card.CreatedAt,
	}
}

// formatTransaction maps a ledger entry into a response payload.
func formatTransaction(entry *models.CardTransaction) gin.H {
	return gin.H{
		"id":            entry.ID,
		"card_id":       entry.CardID,
		"merchant_id":   entry.MerchantID,
		"kind":          entry.Kind,
		"amount":        entry.Amount,
		"status":        entry.Status,
		"reject_reason": entry.RejectReason,
		"client_ref":    entry.ClientRef,
		"completed_at":  entry.CompletedAt,
		"created_at":    entry.CreatedAt,
	}
}

// formatCommission maps a commission into a response payload.
func formatCommission(row *models.Commission) gin.H {
	return gin.H{
		"id":             row.ID,
		"transaction_id": row.TransactionID,
		"partner_id":     row.PartnerID,
		"amount":         row.Amount,
		"rate":           row.Rate,
		"status":         row.Status,
		"settled_at":     row.SettledAt,
		"created_at":     row.CreatedAt,
	}
}

// parseTimeQuery parses an optional RFC3339 query parameter.
func parseTimeQuery(c *gin.Context, key string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, true
	}
	parsed, errParse := time.Parse(time.RFC3339, raw)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return nil, false
	}
	return &parsed, true
}
