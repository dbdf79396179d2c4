package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	dbutil "github.com/franquia-labs/cardsettle/internal/db"
	"github.com/franquia-labs/cardsettle/internal/models"
	"github.com/franquia-labs/cardsettle/internal/util"
)

// MerchantHandler handles admin operations for affiliated merchants.
type MerchantHandler struct {
	db *gorm.DB
}

// NewMerchantHandler constructs a MerchantHandler.
func NewMerchantHandler(db *gorm.DB) *MerchantHandler {
	return &MerchantHandler{db: db}
}

// createMerchantRequest captures the payload for creating a merchant.
type createMerchantRequest struct {
	Name      string `json:"name"`       // Display name.
	PartnerID uint64 `json:"partner_id"` // Owning franchise partner.
	IsActive  *bool  `json:"is_active"`  // Optional active flag.
	BillingOK *bool  `json:"billing_ok"` // Optional billing standing flag.
}

// Create validates input, verifies the partner exists and persists a new
// merchant with a generated API key.
func (h *MerchantHandler) Create(c *gin.Context) {
	var body createMerchantRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}
	if body.PartnerID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing partner_id"})
		return
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

	merchant := models.Merchant{
		Name:      name,
		PartnerID: partner.ID,
		APIKey:    util.GenerateToken(),
		IsActive:  true,
		BillingOK: true,
	}
	if body.IsActive != nil {
		merchant.IsActive = *body.IsActive
	}
	if body.BillingOK != nil {
		merchant.BillingOK = *body.BillingOK
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&merchant).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create merchant failed"})
		return
	}
	// API key is returned in full once, at creation time only.
	out := formatMerchant(&merchant)
	out["api_key"] = merchant.APIKey
	c.JSON(http.StatusCreated, out)
}

// List returns merchants filtered by query parameters.
func (h *MerchantHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.Merchant{})
	if nameQ := strings.TrimSpace(c.Query("name")); nameQ != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+nameQ+"%")
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "name"), pattern)
	}
	if partnerQ := strings.TrimSpace(c.Query("partner_id")); partnerQ != "" {
		q = q.Where("partner_id = ?", partnerQ)
	}

	var rows []models.Merchant
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list merchants failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatMerchant(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"merchants": out})
}

// Get fetches a single merchant by ID.
func (h *MerchantHandler) Get(c *gin.Context) {
	id, okID := parseIDParam(c)
	if !okID {
		return
	}
	var merchant models.Merchant
	if errFind := h.db.WithContext(c.Request.Context()).First(&merchant, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatMerchant(&merchant))
}

// updateMerchantRequest captures optional fields for merchant updates.
type updateMerchantRequest struct {
	Name      *string `json:"name"`       // Optional updated name.
	IsActive  *bool   `json:"is_active"`  // Optional active flag.
	BillingOK *bool   `json:"billing_ok"` // Optional billing standing flag.
}

// Update applies validated field changes to a merchant.
func (h *MerchantHandler) Update(c *gin.Context) {
	id, okID := parseIDParam(c)
	if !okID {
		return
	}
	var body updateMerchantRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
			return
		}
		updates["name"] = name
	}
	if body.IsActive != nil {
		updates["is_active"] = *body.IsActive
	}
	if body.BillingOK != nil {
		updates["billing_ok"] = *body.BillingOK
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).Model(&models.Merchant{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RotateKey replaces the merchant API key and returns the new value.
func (h *MerchantHandler) RotateKey(c *gin.Context) {
	id, okID := parseIDParam(c)
	if !okID {
		return
	}
	newKey := util.GenerateToken()
	res := h.db.WithContext(c.Request.Context()).Model(&models.Merchant{}).Where("id = ?", id).Update("api_key", newKey)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rotate key failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"api_key": newKey})
}

// formatMerchant maps a merchant model into a response payload. The API key
// is masked; RotateKey and Create return the full value.
func formatMerchant(merchant *models.Merchant) gin.H {
	return gin.H{
		"id":         merchant.ID,
		"name":       merchant.Name,
		"partner_id": merchant.PartnerID,
		"api_key":    util.MaskSecret(merchant.APIKey),
		"is_active":  merchant.IsActive,
		"billing_ok": merchant.BillingOK,
		"created_at": merchant.CreatedAt,
		"updated_at": merchant.UpdatedAt,
	}
}
