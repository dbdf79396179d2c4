package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/franquia-labs/cardsettle/internal/commission"
	"github.com/franquia-labs/cardsettle/internal/config"
	"github.com/franquia-labs/cardsettle/internal/http/api/admin/handlers"
	"github.com/franquia-labs/cardsettle/internal/models"
	"github.com/franquia-labs/cardsettle/internal/security"
	"github.com/franquia-labs/cardsettle/internal/settlement"
)

// RegisterAdminRoutes registers the management API under /v0/admin.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, coordinator *settlement.Coordinator) {
	if r == nil || db == nil {
		return
	}

	adminGroup := r.Group("/v0/admin")

	healthHandler := handlers.NewHealthHandler(db)
	adminGroup.GET("/healthz", healthHandler.Healthz)

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	adminGroup.POST("/login", authHandler.Login)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(db, jwtCfg))

	adminAccountHandler := handlers.NewAdminHandler(db)
	authed.POST("/admins", adminAccountHandler.Create)
	authed.GET("/admins", adminAccountHandler.List)
	authed.PUT("/admins/:id", adminAccountHandler.Update)
	authed.DELETE("/admins/:id", adminAccountHandler.Delete)

	partnerHandler := handlers.NewPartnerHandler(db)
	authed.POST("/partners", partnerHandler.Create)
	authed.GET("/partners", partnerHandler.List)
	authed.GET("/partners/:id", partnerHandler.Get)
	authed.PUT("/partners/:id", partnerHandler.Update)

	merchantHandler := handlers.NewMerchantHandler(db)
	authed.POST("/merchants", merchantHandler.Create)
	authed.GET("/merchants", merchantHandler.List)
	authed.GET("/merchants/:id", merchantHandler.Get)
	authed.PUT("/merchants/:id", merchantHandler.Update)
	authed.POST("/merchants/:id/rotate-key", merchantHandler.RotateKey)

	cardHandler := handlers.NewCardHandler(db, coordinator)
	authed.POST("/cards", cardHandler.Create)
	authed.GET("/cards", cardHandler.List)
	authed.GET("/cards/:id", cardHandler.Get)
	authed.DELETE("/cards/:id", cardHandler.Delete)
	authed.POST("/cards/:id/block", cardHandler.Block)
	authed.POST("/cards/:id/activate", cardHandler.Activate)
	authed.POST("/cards/:id/expire", cardHandler.Expire)
	authed.GET("/cards/:id/transactions", cardHandler.History)
	authed.GET("/cards/:id/reconciliation", cardHandler.Reconcile)

	transactionHandler := handlers.NewTransactionHandler(db)
	authed.GET("/transactions", transactionHandler.List)

	commissionHandler := handlers.NewCommissionHandler(db, commission.New(db))
	authed.GET("/commissions", commissionHandler.List)
	authed.POST("/commissions/:id/settle", commissionHandler.Settle)
	authed.POST("/commissions/:id/void", commissionHandler.Void)

	settingHandler := handlers.NewSettingHandler(db)
	authed.GET("/settings", settingHandler.List)
	authed.PUT("/settings/:key", settingHandler.Update)
}

// adminAuthMiddleware validates admin JWTs and loads the admin into context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Next()
	}
}
