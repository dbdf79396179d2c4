package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/franquia-labs/cardsettle/internal/models"
)

// Migrate creates and updates the schema for all persisted models.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.FranchisePartner{},
		&models.Merchant{},
		&models.Card{},
		&models.CardTransaction{},
		&models.Commission{},
		&models.Admin{},
		&models.Setting{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}
