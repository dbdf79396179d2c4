package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TransactionKind distinguishes balance-increasing from balance-decreasing entries.
type TransactionKind string

// Transaction kinds.
const (
	// TransactionKindRecharge increases a card's balance.
	TransactionKindRecharge TransactionKind = "RECHARGE"
	// TransactionKindConsumption decreases a card's balance at a merchant.
	TransactionKindConsumption TransactionKind = "CONSUMPTION"
)

// Valid reports whether the kind is a known transaction kind.
func (k TransactionKind) Valid() bool {
	return k == TransactionKindRecharge || k == TransactionKindConsumption
}

// TransactionStatus enumerates the outcome states of a ledger entry.
type TransactionStatus string

// Transaction outcome states.
const (
	// TransactionStatusPending marks an entry whose outcome is not yet set.
	TransactionStatusPending TransactionStatus = "PENDING"
	// TransactionStatusCompleted marks an entry whose balance effect was applied.
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	// TransactionStatusRejected marks an entry refused without balance effect.
	TransactionStatusRejected TransactionStatus = "REJECTED"
)

// CardTransaction is an immutable ledger entry for a recharge or consumption attempt.
// Once the status leaves PENDING the row is never edited again; corrections are
// recorded as separate compensating entries.
type CardTransaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CardID uint64 `gorm:"not null;index"`     // Card the entry belongs to.
	Card   *Card  `gorm:"foreignKey:CardID"`  // Card record.

	MerchantID *uint64   `gorm:"index"`                 // Merchant where it occurred; required for consumption.
	Merchant   *Merchant `gorm:"foreignKey:MerchantID"` // Merchant record.

	Kind   TransactionKind   `gorm:"type:varchar(16);not null;index"`                    // RECHARGE or CONSUMPTION.
	Amount decimal.Decimal   `gorm:"type:decimal(20,2);not null"`                        // Requested amount, always positive.
	Status TransactionStatus `gorm:"type:varchar(16);not null;default:'PENDING';index"` // Outcome state.

	RejectReason string         `gorm:"type:text"`  // Reason recorded on rejection.
	RejectDetail datatypes.JSON `gorm:"type:jsonb"` // Structured rejection context.

	ClientRef *string `gorm:"type:text;uniqueIndex"` // Caller-supplied idempotency key.

	CompletedAt *time.Time `gorm:"index"`                   // Set when the outcome becomes COMPLETED.
	CreatedAt   time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
