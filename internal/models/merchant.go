package models

import "time"

// Merchant is a point of sale affiliated with a franchise partner.
type Merchant struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name string `gorm:"type:text;not null"` // Display name.

	PartnerID uint64            `gorm:"not null;index"`       // Owning franchise partner.
	Partner   *FranchisePartner `gorm:"foreignKey:PartnerID"` // Partner record.

	APIKey string `gorm:"type:text;not null;uniqueIndex"` // Credential for the merchant API.

	// BillingOK mirrors the external billing subsystem's decision on whether
	// the merchant may transact. It is maintained from outside the core.
	BillingOK bool `gorm:"not null;default:false"`

	IsActive bool `gorm:"not null;default:true"` // Operator-controlled active flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// AllowedToTransact reports whether consumptions at this merchant may proceed.
func (m *Merchant) AllowedToTransact() bool {
	return m != nil && m.IsActive && m.BillingOK
}
