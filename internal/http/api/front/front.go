package front

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/franquia-labs/cardsettle/internal/http/api/front/handlers"
	"github.com/franquia-labs/cardsettle/internal/models"
	"github.com/franquia-labs/cardsettle/internal/settlement"
)

// RegisterFrontRoutes registers the merchant-facing API under /v0/front.
// Every route requires a valid merchant API key.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, coordinator *settlement.Coordinator) {
	if r == nil || db == nil {
		return
	}

	front := r.Group("/v0/front")
	front.Use(merchantAuthMiddleware(db))

	cardHandler := handlers.NewCardFrontHandler(coordinator)
	front.POST("/cards/resolve", cardHandler.Resolve)
	front.GET("/cards/:code", cardHandler.Get)
	front.GET("/cards/:code/transactions", cardHandler.History)
	front.POST("/cards/:code/recharge", cardHandler.Recharge)
	front.POST("/cards/:code/consume", cardHandler.Consume)
}

// merchantAuthMiddleware resolves the calling merchant from its API key and
// loads it into the request context. Billing standing is enforced by the
// settlement coordinator, not here, so a delinquent merchant can still read
// card state.
func merchantAuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			return
		}

		var merchant models.Merchant
		if errFind := db.WithContext(c.Request.Context()).
			Where("api_key = ?", apiKey).First(&merchant).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		if !merchant.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "merchant disabled"})
			return
		}

		c.Set(handlers.MerchantContextKey, &merchant)
		c.Next()
	}
}
