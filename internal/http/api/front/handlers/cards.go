package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/franquia-labs/cardsettle/internal/models"
	"github.com/franquia-labs/cardsettle/internal/registry"
	"github.com/franquia-labs/cardsettle/internal/settlement"
)

// CardFrontHandler exposes card operations to authenticated merchants.
type CardFrontHandler struct {
	coordinator *settlement.Coordinator
}

// NewCardFrontHandler constructs a CardFrontHandler.
func NewCardFrontHandler(coordinator *settlement.Coordinator) *CardFrontHandler {
	return &CardFrontHandler{coordinator: coordinator}
}

// Get returns the state of a card identified by its printed code.
func (h *CardFrontHandler) Get(c *gin.Context) {
	card, okCard := h.resolveCard(c)
	if !okCard {
		return
	}
	c.JSON(http.StatusOK, formatCard(card))
}

// resolveRequest captures a physical card token scan.
type resolveRequest struct {
	Token string `json:"token"` // Scanned card token.
}

// Resolve maps a scanned card token to the card's printed code and state.
func (h *CardFrontHandler) Resolve(c *gin.Context) {
	var body resolveRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	token := strings.TrimSpace(body.Token)
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	card, errFind := h.coordinator.Registry().GetByToken(c.Request.Context(), token)
	if errFind != nil {
		if errors.Is(errFind, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, formatCard(card))
}

// amountRequest captures a recharge or consumption request.
type amountRequest struct {
	Amount    string `json:"amount"`     // Positive decimal string.
	ClientRef string `json:"client_ref"` // Optional idempotency key.
}

// Recharge credits the card at the merchant counter.
func (h *CardFrontHandler) Recharge(c *gin.Context) {
	code, amount, clientRef, okInput := h.bindAmount(c)
	if !okInput {
		return
	}
	result, errRecharge := h.coordinator.Recharge(c.Request.Context(), code, amount, clientRef)
	if errRecharge != nil {
		respondSettlementError(c, errRecharge)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"card":        formatCard(result.Card),
		"transaction": formatTransaction(result.Transaction),
	})
}

// Consume debits the card for a purchase at the calling merchant.
func (h *CardFrontHandler) Consume(c *gin.Context) {
	merchant, okMerchant := merchantFromContext(c)
	if !okMerchant {
		return
	}
	code, amount, clientRef, okInput := h.bindAmount(c)
	if !okInput {
		return
	}
	result, errConsume := h.coordinator.Consume(c.Request.Context(), code, merchant.ID, amount, clientRef)
	if errConsume != nil {
		respondSettlementError(c, errConsume)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"card":        formatCard(result.Card),
		"transaction": formatTransaction(result.Transaction),
	})
}

// History returns the card's transactions, newest first.
func (h *CardFrontHandler) History(c *gin.Context) {
	card, okCard := h.resolveCard(c)
	if !okCard {
		return
	}
	rows, errHistory := h.coordinator.History(c.Request.Context(), card.ID)
	if errHistory != nil {
		respondSettlementError(c, errHistory)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatTransaction(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

// resolveCard loads the card named by the :code path parameter.
func (h *CardFrontHandler) resolveCard(c *gin.Context) (*models.Card, bool) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing card code"})
		return nil, false
	}
	card, errFind := h.coordinator.Registry().GetByCode(c.Request.Context(), code)
	if errFind != nil {
		if errors.Is(errFind, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return nil, false
	}
	return card, true
}

// bindAmount validates the shared recharge/consume payload.
func (h *CardFrontHandler) bindAmount(c *gin.Context) (string, decimal.Decimal, string, bool) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing card code"})
		return "", decimal.Zero, "", false
	}
	var body amountRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return "", decimal.Zero, "", false
	}
	amount, errParse := decimal.NewFromString(strings.TrimSpace(body.Amount))
	if errParse != nil || !amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a positive decimal"})
		return "", decimal.Zero, "", false
	}
	return code, amount, strings.TrimSpace(body.ClientRef), true
}
