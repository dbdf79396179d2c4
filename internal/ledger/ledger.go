package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/franquia-labs/cardsettle/internal/models"
)

// Ledger errors surfaced to the settlement layer.
var (
	// ErrInvalidAmount indicates a non-positive transaction amount.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrNotFound indicates the transaction does not exist.
	ErrNotFound = errors.New("ledger: transaction not found")
	// ErrAlreadyFinal indicates the entry's outcome is already set.
	ErrAlreadyFinal = errors.New("ledger: transaction already finalized")
	// ErrDuplicateRef indicates the client reference is already recorded.
	ErrDuplicateRef = errors.New("ledger: duplicate client reference")
)

// Ledger records every recharge and consumption attempt as an immutable
// entry. Entries are appended PENDING and finalized exactly once.
type Ledger struct {
	db *gorm.DB
}

// New constructs a Ledger backed by GORM.
func New(db *gorm.DB) *Ledger { return &Ledger{db: db} }

// OpenParams holds inputs for opening a ledger entry.
type OpenParams struct {
	CardID     uint64
	MerchantID *uint64
	Kind       models.TransactionKind
	Amount     decimal.Decimal
	ClientRef  *string
}

// Open appends a PENDING entry for a transaction request.
func (l *Ledger) Open(ctx context.Context, tx *gorm.DB, params OpenParams) (*models.CardTransaction, error) {
	if tx == nil {
		tx = l.db
	}
	if !params.Kind.Valid() {
		return nil, fmt.Errorf("ledger: unknown kind %q", params.Kind)
	}
	if !params.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	entry := models.CardTransaction{
		CardID:     params.CardID,
		MerchantID: params.MerchantID,
		Kind:       params.Kind,
		Amount:     params.Amount,
		Status:     models.TransactionStatusPending,
		ClientRef:  params.ClientRef,
		CreatedAt:  time.Now().UTC(),
	}
	if errCreate := tx.WithContext(ctx).Create(&entry).Error; errCreate != nil {
		if params.ClientRef != nil && errors.Is(errCreate, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateRef
		}
		return nil, fmt.Errorf("ledger: open entry: %w", errCreate)
	}
	return &entry, nil
}

// Complete finalizes an entry as COMPLETED. Completing an already completed
// entry returns the stored row unchanged.
func (l *Ledger) Complete(ctx context.Context, tx *gorm.DB, id uint64) (*models.CardTransaction, error) {
	if tx == nil {
		tx = l.db
	}
	entry, errFetch := l.fetch(ctx, tx, id)
	if errFetch != nil {
		return nil, errFetch
	}
	if entry.Status == models.TransactionStatusCompleted {
		return entry, nil
	}
	if entry.Status == models.TransactionStatusRejected {
		return nil, ErrAlreadyFinal
	}

	now := time.Now().UTC()
	res := tx.WithContext(ctx).
		Model(&models.CardTransaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(map[string]any{
			"status":       models.TransactionStatusCompleted,
			"completed_at": now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("ledger: complete entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyFinal
	}
	entry.Status = models.TransactionStatusCompleted
	entry.CompletedAt = &now
	return entry, nil
}

// Reject finalizes an entry as REJECTED with the recorded reason. Terminal.
func (l *Ledger) Reject(ctx context.Context, tx *gorm.DB, id uint64, reason string, detail any) (*models.CardTransaction, error) {
	if tx == nil {
		tx = l.db
	}
	entry, errFetch := l.fetch(ctx, tx, id)
	if errFetch != nil {
		return nil, errFetch
	}
	if entry.Status != models.TransactionStatusPending {
		return nil, ErrAlreadyFinal
	}

	updates := map[string]any{
		"status":        models.TransactionStatusRejected,
		"reject_reason": reason,
	}
	if detail != nil {
		if payload, errMarshal := json.Marshal(detail); errMarshal == nil {
			updates["reject_detail"] = datatypes.JSON(payload)
			entry.RejectDetail = datatypes.JSON(payload)
		}
	}
	res := tx.WithContext(ctx).
		Model(&models.CardTransaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("ledger: reject entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyFinal
	}
	entry.Status = models.TransactionStatusRejected
	entry.RejectReason = reason
	return entry, nil
}

// History returns a card's entries, newest first.
func (l *Ledger) History(ctx context.Context, cardID uint64) ([]models.CardTransaction, error) {
	var rows []models.CardTransaction
	if errFind := l.db.WithContext(ctx).
		Where("card_id = ?", cardID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("ledger: load history: %w", errFind)
	}
	return rows, nil
}

// FindByClientRef returns the entry recorded under a caller idempotency key.
func (l *Ledger) FindByClientRef(ctx context.Context, clientRef string) (*models.CardTransaction, error) {
	var entry models.CardTransaction
	if errFind := l.db.WithContext(ctx).
		Where("client_ref = ?", clientRef).
		First(&entry).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ledger: query by client ref: %w", errFind)
	}
	return &entry, nil
}

// SumCompleted reconstructs a card's balance from completed entries:
// completed recharges minus completed consumptions. Summation happens in Go
// because SQLite gives the decimal column NUMERIC affinity and runs SQL SUM
// in floating point, which corrupts fractional amounts.
func (l *Ledger) SumCompleted(ctx context.Context, cardID uint64) (decimal.Decimal, error) {
	var rows []models.CardTransaction
	if errFind := l.db.WithContext(ctx).
		Select("kind", "amount").
		Where("card_id = ? AND status = ?", cardID, models.TransactionStatusCompleted).
		Find(&rows).Error; errFind != nil {
		return decimal.Zero, fmt.Errorf("ledger: sum completed: %w", errFind)
	}

	total := decimal.Zero
	for i := range rows {
		switch rows[i].Kind {
		case models.TransactionKindRecharge:
			total = total.Add(rows[i].Amount)
		case models.TransactionKindConsumption:
			total = total.Sub(rows[i].Amount)
		}
	}
	return total, nil
}

// fetch loads an entry by ID on the given handle.
func (l *Ledger) fetch(ctx context.Context, tx *gorm.DB, id uint64) (*models.CardTransaction, error) {
	var entry models.CardTransaction
	if errFind := tx.WithContext(ctx).First(&entry, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ledger: query entry: %w", errFind)
	}
	return &entry, nil
}
