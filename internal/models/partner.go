package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FranchisePartner is the regional entity owning cards and merchants.
type FranchisePartner struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name string `gorm:"type:text;not null"` // Display name.

	// CommissionRate is the percentage (0-100) applied to consumptions at
	// the partner's merchants. Changing it never touches commissions that
	// were already computed.
	CommissionRate decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`

	IsActive bool `gorm:"not null;default:true"` // Inactive partners cannot transact.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
