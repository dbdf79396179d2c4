package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/franquia-labs/cardsettle/internal/models"
)

// Calculator errors surfaced to the settlement layer.
var (
	// ErrNotApplicable indicates the transaction cannot yield a commission.
	ErrNotApplicable = errors.New("commission: transaction not applicable")
	// ErrInvalidRate indicates a rate outside the 0-100 percent range.
	ErrInvalidRate = errors.New("commission: rate out of range")
	// ErrDuplicate indicates a commission already exists for the transaction.
	ErrDuplicate = errors.New("commission: duplicate for transaction")
	// ErrNotFound indicates the commission does not exist.
	ErrNotFound = errors.New("commission: not found")
	// ErrAlreadyFinal indicates the commission is already settled or voided.
	ErrAlreadyFinal = errors.New("commission: already finalized")
)

var hundred = decimal.NewFromInt(100)

// Calculator derives partner payables from completed consumptions.
type Calculator struct {
	db *gorm.DB
}

// New constructs a Calculator backed by GORM.
func New(db *gorm.DB) *Calculator { return &Calculator{db: db} }

// Amount computes the commission payable for a consumption amount at the
// given percentage rate, rounded half-up to the currency's minor unit.
func Amount(txAmount, rate decimal.Decimal) decimal.Decimal {
	return txAmount.Mul(rate).Div(hundred).Round(2)
}

// Compute creates and persists the commission for a completed consumption,
// snapshotting the partner's rate at this moment. At most one commission
// may exist per transaction; a second call fails with ErrDuplicate.
func (c *Calculator) Compute(ctx context.Context, tx *gorm.DB, entry *models.CardTransaction, partnerID uint64, rate decimal.Decimal) (*models.Commission, error) {
	if tx == nil {
		tx = c.db
	}
	if entry == nil {
		return nil, fmt.Errorf("commission: nil transaction")
	}
	if entry.Kind != models.TransactionKindConsumption || entry.Status != models.TransactionStatusCompleted {
		return nil, ErrNotApplicable
	}
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return nil, ErrInvalidRate
	}

	var count int64
	if errCount := tx.WithContext(ctx).
		Model(&models.Commission{}).
		Where("transaction_id = ?", entry.ID).
		Count(&count).Error; errCount != nil {
		return nil, fmt.Errorf("commission: check duplicate: %w", errCount)
	}
	if count > 0 {
		return nil, ErrDuplicate
	}

	row := models.Commission{
		TransactionID: entry.ID,
		PartnerID:     partnerID,
		Amount:        Amount(entry.Amount, rate),
		Rate:          rate,
		Status:        models.CommissionStatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if errCreate := tx.WithContext(ctx).Create(&row).Error; errCreate != nil {
		// The unique index on transaction_id backs the at-most-once
		// guarantee under concurrent callers.
		if errors.Is(errCreate, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("commission: create: %w", errCreate)
	}
	return &row, nil
}

// MarkSettled records the external payout decision for a pending commission.
func (c *Calculator) MarkSettled(ctx context.Context, id uint64) (*models.Commission, error) {
	return c.finalize(ctx, id, models.CommissionStatusSettled)
}

// MarkVoided records the external void decision for a pending commission.
func (c *Calculator) MarkVoided(ctx context.Context, id uint64) (*models.Commission, error) {
	return c.finalize(ctx, id, models.CommissionStatusVoided)
}

// finalize moves a PENDING commission into a terminal payout state.
func (c *Calculator) finalize(ctx context.Context, id uint64, to models.CommissionStatus) (*models.Commission, error) {
	var row models.Commission
	errTx := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.First(&row, id).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("commission: query: %w", errFind)
		}
		if row.Status != models.CommissionStatusPending {
			return ErrAlreadyFinal
		}
		now := time.Now().UTC()
		res := tx.Model(&models.Commission{}).
			Where("id = ? AND status = ?", id, models.CommissionStatusPending).
			Updates(map[string]any{
				"status":     to,
				"settled_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("commission: finalize: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyFinal
		}
		row.Status = to
		row.SettledAt = &now
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &row, nil
}

// ForTransaction returns the commission recorded for a transaction, if any.
func (c *Calculator) ForTransaction(ctx context.Context, transactionID uint64) (*models.Commission, error) {
	var row models.Commission
	if errFind := c.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("commission: query by transaction: %w", errFind)
	}
	return &row, nil
}
