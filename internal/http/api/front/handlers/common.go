package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/franquia-labs/cardsettle/internal/models"
	"github.com/franquia-labs/cardsettle/internal/settlement"
)

// MerchantContextKey is the gin context key holding the authenticated merchant.
const MerchantContextKey = "merchant"

// merchantFromContext extracts the merchant placed by the auth middleware.
func merchantFromContext(c *gin.Context) (*models.Merchant, bool) {
	value, exists := c.Get(MerchantContextKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "merchant not found"})
		return nil, false
	}
	merchant, okMerchant := value.(*models.Merchant)
	if !okMerchant {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "merchant not found"})
		return nil, false
	}
	return merchant, true
}

// respondSettlementError maps a settlement error onto an HTTP response.
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

// formatCard maps a card into the merchant-facing payload. The token is
// omitted, the merchant already holds the physical card.
func formatCard(card *models.Card) gin.H {
	return gin.H{
		"code":             card.Code,
		"status":           card.Status,
		"balance":          card.Balance,
		"activated_at":     card.ActivatedAt,
		"last_consumed_at": card.LastConsumedAt,
		"expires_at":       card.ExpiresAt,
	}
}

// formatTransaction maps a ledger entry into the merchant-facing payload.
func formatTransaction(entry *models.CardTransaction) gin.H {
	return gin.H{
		"id":            entry.ID,
		"kind":          entry.Kind,
		"amount":        entry.Amount,
		"status":        entry.Status,
		"reject_reason": entry.RejectReason,
		"client_ref":    entry.ClientRef,
		"completed_at":  entry.CompletedAt,
		"created_at":    entry.CreatedAt,
	}
}
