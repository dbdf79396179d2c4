package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/franquia-labs/cardsettle/internal/config"
	"github.com/franquia-labs/cardsettle/internal/db"
	"github.com/franquia-labs/cardsettle/internal/expiry"
	adminapi "github.com/franquia-labs/cardsettle/internal/http/api/admin"
	"github.com/franquia-labs/cardsettle/internal/http/api/front"
	"github.com/franquia-labs/cardsettle/internal/models"
	"github.com/franquia-labs/cardsettle/internal/security"
	"github.com/franquia-labs/cardsettle/internal/settings"
	"github.com/franquia-labs/cardsettle/internal/settlement"
	"github.com/franquia-labs/cardsettle/internal/util"
)

// shutdownGrace bounds how long in-flight requests may run after a stop signal.
const shutdownGrace = 15 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the settlement API server with database-backed components.
func RunServer(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errRefresh := settings.RefreshDBConfigSnapshot(ctx, conn); errRefresh != nil {
		return errRefresh
	}
	if errSeed := ensureDefaultAdmin(ctx, conn); errSeed != nil {
		return errSeed
	}

	coordinator := settlement.New(conn, settlement.Options{
		OpTimeout:           settings.SettlementTimeout(),
		DefaultValidityDays: settings.CardValidityDays,
	})

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	adminapi.RegisterAdminRoutes(engine, conn, cfg.JWT, coordinator)
	front.RegisterFrontRoutes(engine, conn, coordinator)

	expiry.NewPoller(conn, coordinator).Start(ctx)

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Listen)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// ensureDefaultAdmin seeds the first operator account so a fresh deployment
// can be logged into. The generated password is printed once.
func ensureDefaultAdmin(ctx context.Context, conn *gorm.DB) error {
	var total int64
	if errCount := conn.WithContext(ctx).Model(&models.Admin{}).Count(&total).Error; errCount != nil {
		return errCount
	}
	if total > 0 {
		return nil
	}

	password := util.GenerateToken()
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return errHash
	}
	admin := models.Admin{
		Username: "admin",
		Password: hash,
		Active:   true,
	}
	if errCreate := conn.WithContext(ctx).Create(&admin).Error; errCreate != nil {
		return errCreate
	}
	log.Warnf("created default admin account %q with password %s, change it after first login", admin.Username, password)
	return nil
}
