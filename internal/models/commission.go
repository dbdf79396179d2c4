package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionStatus enumerates the payout states of a commission entry.
type CommissionStatus string

// Commission payout states.
const (
	// CommissionStatusPending marks a commission awaiting settlement.
	CommissionStatusPending CommissionStatus = "PENDING"
	// CommissionStatusSettled marks a commission paid out to the partner.
	CommissionStatusSettled CommissionStatus = "SETTLED"
	// CommissionStatusVoided marks a commission cancelled before payout.
	CommissionStatusVoided CommissionStatus = "VOIDED"
)

// Valid reports whether the status is a known commission status.
func (s CommissionStatus) Valid() bool {
	switch s {
	case CommissionStatusPending, CommissionStatusSettled, CommissionStatusVoided:
		return true
	}
	return false
}

// Commission is the partner payable derived from one completed consumption.
// The rate is snapshotted at computation time and never recomputed, so later
// partner rate changes cannot alter historical amounts.
type Commission struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TransactionID uint64           `gorm:"not null;uniqueIndex"`       // Originating consumption, one commission each.
	Transaction   *CardTransaction `gorm:"foreignKey:TransactionID"`   // Transaction record.

	PartnerID uint64            `gorm:"not null;index"`       // Partner owed the commission.
	Partner   *FranchisePartner `gorm:"foreignKey:PartnerID"` // Partner record.

	Amount decimal.Decimal `gorm:"type:decimal(20,2);not null"` // Computed payable amount.
	Rate   decimal.Decimal `gorm:"type:decimal(5,2);not null"`  // Percentage rate applied at computation time.

	Status CommissionStatus `gorm:"type:varchar(16);not null;default:'PENDING';index"` // Payout state.

	SettledAt *time.Time // Set when the payout process settles or voids the entry.
	CreatedAt time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
