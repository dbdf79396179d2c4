package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/franquia-labs/cardsettle/internal/models"
	"github.com/franquia-labs/cardsettle/internal/settings"
)

// knownSettingKeys are the keys the runtime actually reads. Writes are
// restricted to this set so typos do not create dead rows.
var knownSettingKeys = map[string]bool{
	settings.DefaultValidityDaysKey:       true,
	settings.SettlementTimeoutSecondsKey:  true,
	settings.ExpiryPollIntervalSecondsKey: true,
	settings.ExpiryPollBatchSizeKey:       true,
}

// SettingHandler exposes the runtime configuration stored in the database.
type SettingHandler struct {
	db *gorm.DB
}

// NewSettingHandler constructs a SettingHandler.
func NewSettingHandler(db *gorm.DB) *SettingHandler {
	return &SettingHandler{db: db}
}

// List returns all stored settings.
func (h *SettingHandler) List(c *gin.Context) {
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list settings failed"})
		return
	}
	out := gin.H{}
	for i := range rows {
		out[rows[i].Key] = rows[i].Value
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

// updateSettingRequest captures a single setting write.
type updateSettingRequest struct {
	Value json.RawMessage `json:"value"` // New value, stored verbatim.
}

// Update stores a setting value and refreshes the in-memory snapshot so the
// change takes effect without a restart.
func (h *SettingHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if !knownSettingKeys[key] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown setting key"})
		return
	}
	var body updateSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || len(body.Value) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errUpsert := settings.UpsertSetting(c.Request.Context(), h.db, key, body.Value); errUpsert != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store setting failed"})
		return
	}
	if errRefresh := settings.RefreshDBConfigSnapshot(c.Request.Context(), h.db); errRefresh != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh settings failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
