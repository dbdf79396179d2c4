package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbutil "github.com/franquia-labs/cardsettle/internal/db"
	"github.com/franquia-labs/cardsettle/internal/models"
	"github.com/franquia-labs/cardsettle/internal/registry"
	"github.com/franquia-labs/cardsettle/internal/settlement"
	"github.com/franquia-labs/cardsettle/internal/util"
)

// cardCodeLength is the length of generated card codes.
const cardCodeLength = 12

// maxBatchSize caps a single batch issuance request.
const maxBatchSize = 1000

// CardHandler handles admin card lifecycle operations.
type CardHandler struct {
	db          *gorm.DB
	coordinator *settlement.Coordinator
}

// NewCardHandler constructs a CardHandler.
func NewCardHandler(db *gorm.DB, coordinator *settlement.Coordinator) *CardHandler {
	return &CardHandler{db: db, coordinator: coordinator}
}

// createCardRequest captures the payload for issuing cards.
type createCardRequest struct {
	PartnerID      uint64  `json:"partner_id"`      // Owning franchise partner.
	MerchantID     *uint64 `json:"merchant_id"`     // Optional merchant binding.
	InitialBalance string  `json:"initial_balance"` // Optional preloaded balance.
	ExpiresAt      *string `json:"expires_at"`      // Optional RFC3339 expiry.
	Count          int     `json:"count"`           // Batch size, defaults to 1.
}

// Create issues one or more cards. A batch is issued inside a single
// transaction so a duplicate code fails the whole request.
func (h *CardHandler) Create(c *gin.Context) {
	var body createCardRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.PartnerID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing partner_id"})
		return
	}
	count := body.Count
	if count == 0 {
		count = 1
	}
	if count < 1 || count > maxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be between 1 and 1000"})
		return
	}

	balance := decimal.Zero
	if strings.TrimSpace(body.InitialBalance) != "" {
		var okAmount bool
		balance, okAmount = parseAmount(body.InitialBalance)
		if !okAmount || balance.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid initial_balance"})
			return
		}
	}
	var expiresAt *time.Time
	if body.ExpiresAt != nil && strings.TrimSpace(*body.ExpiresAt) != "" {
		parsed, errParse := time.Parse(time.RFC3339, *body.ExpiresAt)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expires_at must be RFC3339"})
			return
		}
		expiresAt = &parsed
	}

	var partner models.FranchisePartner
	if errFind := h.db.WithContext(c.Request.Context()).First(&partner, body.PartnerID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "partner not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if body.MerchantID != nil {
		var merchant models.Merchant
		if errFind := h.db.WithContext(c.Request.Context()).First(&merchant, *body.MerchantID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "merchant not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		if merchant.PartnerID != partner.ID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "merchant does not belong to partner"})
			return
		}
	}

	reg := h.coordinator.Registry()
	cards := make([]*models.Card, 0, count)
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		for i := 0; i < count; i++ {
			code, errCode := util.GenerateCode(cardCodeLength)
			if errCode != nil {
				return errCode
			}
			card, errCreate := reg.Create(c.Request.Context(), tx, registry.CreateParams{
				Code:           code,
				Token:          util.GenerateToken(),
				PartnerID:      partner.ID,
				MerchantID:     body.MerchantID,
				InitialBalance: balance,
				ExpiresAt:      expiresAt,
			})
			if errCreate != nil {
				return errCreate
			}
			cards = append(cards, card)
		}
		return nil
	})
	if errTx != nil {
		if errors.Is(errTx, registry.ErrDuplicateCode) {
			c.JSON(http.StatusConflict, gin.H{"error": "generated code collided, retry the request"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create cards failed"})
		return
	}

	out := make([]gin.H, 0, len(cards))
	for _, card := range cards {
		payload := formatCard(card)
		// The token is returned in full once, at issuance time only.
		payload["token"] = card.Token
		out = append(out, payload)
	}
	if count == 1 {
		c.JSON(http.StatusCreated, out[0])
		return
	}
	c.JSON(http.StatusCreated, gin.H{"cards": out})
}

// List returns cards filtered by query parameters, newest first.
func (h *CardHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.Card{})
	if codeQ := strings.TrimSpace(c.Query("code")); codeQ != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+codeQ+"%")
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "code"), pattern)
	}
	if statusQ := strings.TrimSpace(c.Query("status")); statusQ != "" {
		status := models.CardStatus(strings.ToUpper(statusQ))
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		q = q.Where("status = ?", status)
	}
	if partnerQ := strings.TrimSpace(c.Query("partner_id")); partnerQ != "" {
		q = q.Where("partner_id = ?", partnerQ)
	}
	if merchantQ := strings.TrimSpace(c.Query("merchant_id")); merchantQ != "" {
		q = q.Where("merchant_id = ?", merchantQ)
	}

	page, pageSize := parsePageQuery(c)
	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count cards failed"})
		return
	}
	var rows []models.Card
	if errFind := q.Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list cards failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatCard(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"cards": out, "total": total, "page": page, "page_size": pageSize})
}

// Get fetches a single card by ID.
func (h *CardHandler) Get(c *gin.Context) {
	id, okID := parseIDParam(c)
	if !okID {
		return
	}
	card, errGet := h.coordinator.Get(c.Request.Context(), id)
	if errGet != nil {
		respondSettlementError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, formatCard(card))
}

// Block suspends an active card.
func (h *CardHandler) Block(c *gin.Context) {
	h.mutateByID(c, func(card *models.Card) (*models.Card, error) {
		return h.coordinator.Block(c.Request.Context(), card.Code)
	})
}

// Activate reinstates a blocked card.
func (h *CardHandler) Activate(c *gin.Context) {
	h.mutateByID(c, func(card *models.Card) (*models.Card, error) {
		return h.coordinator.Activate(c.Request.Context(), card.Code)
	})
}

// Expire forces a card into the expired state ahead of the poller.
func (h *CardHandler) Expire(c *gin.Context) {
	h.mutateByID(c, func(card *models.Card) (*models.Card, error) {
		return h.coordinator.Expire(c.Request.Context(), card.ID)
	})
}

// History returns a card's transactions, newest first.
func (h *CardHandler) History(c *gin.Context) {
	id, okID := parseIDParam(c)
	if !okID {
		return
	}
	rows, errHistory := h.coordinator.History(c.Request.Context(), id)
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

// Reconcile recomputes a card's balance from its ledger and reports drift.
func (h *CardHandler) Reconcile(c *gin.Context) {
	id, okID := parseIDParam(c)
	if !okID {
		return
	}
	report, errRec := h.coordinator.Reconcile(c.Request.Context(), id)
	if errRec != nil {
		respondSettlementError(c, errRec)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"card_id":    report.CardID,
		"balance":    report.Balance,
		"ledger_sum": report.LedgerSum,
		"consistent": report.Consistent,
	})
}

// Delete removes a card that has never transacted.
func (h *CardHandler) Delete(c *gin.Context) {
	id, okID := parseIDParam(c)
	if !okID {
		return
	}
	errDelete := h.coordinator.Registry().Delete(c.Request.Context(), id)
	if errDelete != nil {
		switch {
		case errors.Is(errDelete, registry.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(errDelete, registry.ErrHasHistory):
			c.JSON(http.StatusConflict, gin.H{"error": "card has transaction history"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// mutateByID resolves the card from the path ID and applies a lifecycle change.
func (h *CardHandler) mutateByID(c *gin.Context, fn func(*models.Card) (*models.Card, error)) {
	id, okID := parseIDParam(c)
	if !okID {
		return
	}
	card, errGet := h.coordinator.Get(c.Request.Context(), id)
	if errGet != nil {
		respondSettlementError(c, errGet)
		return
	}
	updated, errMutate := fn(card)
	if errMutate != nil {
		respondSettlementError(c, errMutate)
		return
	}
	c.JSON(http.StatusOK, formatCard(updated))
}

// parsePageQuery reads page/page_size query parameters with sane bounds.
func parsePageQuery(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}
	return page, pageSize
}
