package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbutil "github.com/franquia-labs/cardsettle/internal/db"
	"github.com/franquia-labs/cardsettle/internal/models"
)

// PartnerHandler handles admin operations for franchise partners.
type PartnerHandler struct {
	db *gorm.DB
}

// NewPartnerHandler constructs a PartnerHandler.
func NewPartnerHandler(db *gorm.DB) *PartnerHandler {
	return &PartnerHandler{db: db}
}

// createPartnerRequest captures the payload for creating a partner.
type createPartnerRequest struct {
	Name           string `json:"name"`            // Display name.
	CommissionRate string `json:"commission_rate"` // Percentage 0-100, decimal string.
	IsActive       *bool  `json:"is_active"`       // Optional active flag.
}

// Create validates input and persists a new franchise partner.
func (h *PartnerHandler) Create(c *gin.Context) {
	var body createPartnerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}
	rate, okRate := parseRate(body.CommissionRate)
	if !okRate {
		c.JSON(http.StatusBadRequest, gin.H{"error": "commission_rate must be between 0 and 100"})
		return
	}
	isActive := true
	if body.IsActive != nil {
		isActive = *body.IsActive
	}

	partner := models.FranchisePartner{
		Name:           name,
		CommissionRate: rate,
		IsActive:       isActive,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&partner).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create partner failed"})
		return
	}
	c.JSON(http.StatusCreated, formatPartner(&partner))
}

// List returns partners filtered by query parameters.
func (h *PartnerHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.FranchisePartner{})
	if nameQ := strings.TrimSpace(c.Query("name")); nameQ != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+nameQ+"%")
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "name"), pattern)
	}
	if activeQ := strings.TrimSpace(c.Query("active")); activeQ == "true" || activeQ == "1" {
		q = q.Where("is_active = ?", true)
	} else if activeQ == "false" || activeQ == "0" {
		q = q.Where("is_active = ?", false)
	}

	var rows []models.FranchisePartner
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list partners failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatPartner(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"partners": out})
}

// Get fetches a single partner by ID.
func (h *PartnerHandler) Get(c *gin.Context) {
	id, okID := parseIDParam(c)
	if !okID {
		return
	}
	var partner models.FranchisePartner
	if errFind := h.db.WithContext(c.Request.Context()).First(&partner, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatPartner(&partner))
}

// updatePartnerRequest captures optional fields for partner updates.
type updatePartnerRequest struct {
	Name           *string `json:"name"`            // Optional updated name.
	CommissionRate *string `json:"commission_rate"` // Optional updated rate.
	IsActive       *bool   `json:"is_active"`       // Optional active flag.
}

// Update applies validated field changes to a partner. Rate changes only
// affect commissions computed after the update.
func (h *PartnerHandler) Update(c *gin.Context) {
	id, okID := parseIDParam(c)
	if !okID {
		return
	}
	var body updatePartnerRequest
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
	if body.CommissionRate != nil {
		rate, okRate := parseRate(*body.CommissionRate)
		if !okRate {
			c.JSON(http.StatusBadRequest, gin.H{"error": "commission_rate must be between 0 and 100"})
			return
		}
		updates["commission_rate"] = rate
	}
	if body.IsActive != nil {
		updates["is_active"] = *body.IsActive
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).Model(&models.FranchisePartner{}).Where("id = ?", id).Updates(updates)
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

// parseRate parses a commission percentage in [0,100].
func parseRate(raw string) (decimal.Decimal, bool) {
	rate, errParse := decimal.NewFromString(strings.TrimSpace(raw))
	if errParse != nil {
		return decimal.Zero, false
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, false
	}
	return rate, true
}

// formatPartner maps a partner model into a response payload.
func formatPartner(partner *models.FranchisePartner) gin.H {
	return gin.H{
		"id":              partner.ID,
		"name":            partner.Name,
		"commission_rate": partner.CommissionRate,
		"is_active":       partner.IsActive,
		"created_at":      partner.CreatedAt,
		"updated_at":      partner.UpdatedAt,
	}
}
