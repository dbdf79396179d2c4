package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CardStatus enumerates the lifecycle states of a prepaid card.
type CardStatus string

// Card lifecycle states.
const (
	// CardStatusAvailable marks a card that has been issued but never recharged.
	CardStatusAvailable CardStatus = "AVAILABLE"
	// CardStatusActive marks a card that holds balance and can transact.
	CardStatusActive CardStatus = "ACTIVE"
	// CardStatusBlocked marks a card manually suspended by an operator.
	CardStatusBlocked CardStatus = "BLOCKED"
	// CardStatusUsed marks a card fully consumed down to zero balance. Terminal.
	CardStatusUsed CardStatus = "USED"
	// CardStatusExpired marks a card past its validity window. Terminal.
	CardStatusExpired CardStatus = "EXPIRED"
)

// Valid reports whether the status is a known card status.
func (s CardStatus) Valid() bool {
	switch s {
	case CardStatusAvailable, CardStatusActive, CardStatusBlocked, CardStatusUsed, CardStatusExpired:
		return true
	}
	return false
}

// Terminal reports whether the status permits no further transactions.
func (s CardStatus) Terminal() bool {
	return s == CardStatusUsed || s == CardStatusExpired
}

// Card represents a prepaid value voucher issued under a franchise partner.
type Card struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Code  string `gorm:"type:text;not null;uniqueIndex"` // Human-entered card code.
	Token string `gorm:"type:text;not null;uniqueIndex"` // Opaque QR token.

	Status  CardStatus      `gorm:"type:varchar(16);not null;default:'AVAILABLE';index"` // Lifecycle state.
	Balance decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"`               // Remaining balance, never negative.

	PartnerID uint64            `gorm:"not null;index"`          // Owning franchise partner.
	Partner   *FranchisePartner `gorm:"foreignKey:PartnerID"`    // Partner record.
	MerchantID *uint64          `gorm:"index"`                   // Bound merchant, nil for general-purpose cards.
	Merchant   *Merchant        `gorm:"foreignKey:MerchantID"`   // Bound merchant record.

	ActivatedAt    *time.Time `gorm:"index"` // First recharge time, if any.
	LastConsumedAt *time.Time // Most recent consumption time.
	ExpiresAt      *time.Time `gorm:"index"` // Validity deadline, nil means no expiry.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
