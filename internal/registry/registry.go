package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/franquia-labs/cardsettle/internal/models"
)

// Registry errors surfaced to the settlement layer.
var (
	// ErrNotFound indicates the card does not exist.
	ErrNotFound = errors.New("registry: card not found")
	// ErrDuplicateCode indicates the code or token is already taken.
	ErrDuplicateCode = errors.New("registry: duplicate code or token")
	// ErrInvalidState indicates the card's status does not permit the operation.
	ErrInvalidState = errors.New("registry: invalid card state")
	// ErrInvalidTransition indicates an illegal lifecycle transition.
	ErrInvalidTransition = errors.New("registry: invalid status transition")
	// ErrInsufficientBalance indicates a delta would drive the balance negative.
	ErrInsufficientBalance = errors.New("registry: insufficient balance")
	// ErrHasHistory indicates a card with ledger entries cannot be deleted.
	ErrHasHistory = errors.New("registry: card has transaction history")
)

// legalTransitions is the card lifecycle table. USED and EXPIRED are terminal.
var legalTransitions = map[models.CardStatus][]models.CardStatus{
	models.CardStatusAvailable: {models.CardStatusActive, models.CardStatusExpired},
	models.CardStatusActive:    {models.CardStatusUsed, models.CardStatusBlocked, models.CardStatusExpired},
	models.CardStatusBlocked:   {models.CardStatusActive},
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to models.CardStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Registry owns card rows. It is the only component that writes a card's
// balance and status fields, and it always operates on the transaction
// handle handed to it by the settlement coordinator.
type Registry struct {
	db *gorm.DB
}

// New constructs a Registry backed by GORM.
func New(db *gorm.DB) *Registry { return &Registry{db: db} }

// CreateParams holds inputs for card creation.
type CreateParams struct {
	Code           string
	Token          string
	PartnerID      uint64
	MerchantID     *uint64
	InitialBalance decimal.Decimal
	ExpiresAt      *time.Time
}

// Create persists a new card in AVAILABLE state with the given balance.
func (r *Registry) Create(ctx context.Context, tx *gorm.DB, params CreateParams) (*models.Card, error) {
	if tx == nil {
		tx = r.db
	}
	code := strings.TrimSpace(params.Code)
	token := strings.TrimSpace(params.Token)
	if code == "" || token == "" {
		return nil, fmt.Errorf("registry: empty code or token")
	}
	if params.InitialBalance.IsNegative() {
		return nil, fmt.Errorf("registry: negative initial balance")
	}

	var count int64
	if errCount := tx.WithContext(ctx).
		Model(&models.Card{}).
		Where("code = ? OR token = ?", code, token).
		Count(&count).Error; errCount != nil {
		return nil, fmt.Errorf("registry: check duplicates: %w", errCount)
	}
	if count > 0 {
		return nil, ErrDuplicateCode
	}

	card := models.Card{
		Code:       code,
		Token:      token,
		Status:     models.CardStatusAvailable,
		Balance:    params.InitialBalance,
		PartnerID:  params.PartnerID,
		MerchantID: params.MerchantID,
		ExpiresAt:  params.ExpiresAt,
		CreatedAt:  time.Now().UTC(),
	}
	if errCreate := tx.WithContext(ctx).Create(&card).Error; errCreate != nil {
		return nil, fmt.Errorf("registry: create card: %w", errCreate)
	}
	return &card, nil
}

// ApplyDelta atomically checks the card's status against expectedStatuses
// and applies a signed balance change. Negative deltas that would go below
// zero fail with ErrInsufficientBalance. The caller must already hold the
// card's row lock through tx.
func (r *Registry) ApplyDelta(ctx context.Context, tx *gorm.DB, card *models.Card, delta decimal.Decimal, expected ...models.CardStatus) (*models.Card, error) {
	if tx == nil || card == nil {
		return nil, fmt.Errorf("registry: nil tx or card")
	}
	if !statusIn(card.Status, expected) {
		return nil, ErrInvalidState
	}

	next := card.Balance.Add(delta)
	if next.IsNegative() {
		return nil, ErrInsufficientBalance
	}

	updates := map[string]any{
		"balance":    next,
		"updated_at": time.Now().UTC(),
	}
	res := tx.WithContext(ctx).
		Model(&models.Card{}).
		Where("id = ?", card.ID).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("registry: apply delta: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	card.Balance = next
	return card, nil
}

// TransitionStatus moves a card between lifecycle states. The current status
// must be one of the from set and the move must be legal per the lifecycle
// table, otherwise ErrInvalidTransition is returned.
func (r *Registry) TransitionStatus(ctx context.Context, tx *gorm.DB, card *models.Card, to models.CardStatus, from ...models.CardStatus) (*models.Card, error) {
	if tx == nil || card == nil {
		return nil, fmt.Errorf("registry: nil tx or card")
	}
	if !to.Valid() {
		return nil, fmt.Errorf("registry: unknown status %q", to)
	}
	if len(from) > 0 && !statusIn(card.Status, from) {
		return nil, ErrInvalidTransition
	}
	if !CanTransition(card.Status, to) {
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"status":     to,
		"updated_at": now,
	}
	if card.Status == models.CardStatusAvailable && to == models.CardStatusActive {
		updates["activated_at"] = now
		card.ActivatedAt = &now
	}
	res := tx.WithContext(ctx).
		Model(&models.Card{}).
		Where("id = ? AND status = ?", card.ID, card.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("registry: transition status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidTransition
	}
	card.Status = to
	return card, nil
}

// TouchConsumed stamps the card's last consumption time.
func (r *Registry) TouchConsumed(ctx context.Context, tx *gorm.DB, card *models.Card, at time.Time) error {
	if tx == nil || card == nil {
		return fmt.Errorf("registry: nil tx or card")
	}
	if errUpdate := tx.WithContext(ctx).
		Model(&models.Card{}).
		Where("id = ?", card.ID).
		Update("last_consumed_at", at).Error; errUpdate != nil {
		return fmt.Errorf("registry: touch consumed: %w", errUpdate)
	}
	card.LastConsumedAt = &at
	return nil
}

// SetExpiry stamps the card's validity deadline.
func (r *Registry) SetExpiry(ctx context.Context, tx *gorm.DB, card *models.Card, at time.Time) error {
	if tx == nil || card == nil {
		return fmt.Errorf("registry: nil tx or card")
	}
	if errUpdate := tx.WithContext(ctx).
		Model(&models.Card{}).
		Where("id = ?", card.ID).
		Update("expires_at", at).Error; errUpdate != nil {
		return fmt.Errorf("registry: set expiry: %w", errUpdate)
	}
	card.ExpiresAt = &at
	return nil
}

// Get fetches a card by ID.
func (r *Registry) Get(ctx context.Context, id uint64) (*models.Card, error) {
	return r.fetch(ctx, r.db, "id = ?", id)
}

// GetByCode fetches a card by its human-entered code.
func (r *Registry) GetByCode(ctx context.Context, code string) (*models.Card, error) {
	return r.fetch(ctx, r.db, "code = ?", strings.TrimSpace(code))
}

// GetByToken fetches a card by its QR token.
func (r *Registry) GetByToken(ctx context.Context, token string) (*models.Card, error) {
	return r.fetch(ctx, r.db, "token = ?", strings.TrimSpace(token))
}

// Delete removes a card that has no transaction history. Cards that have
// ever transacted are retained forever.
func (r *Registry) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if errCount := tx.Model(&models.CardTransaction{}).
			Where("card_id = ?", id).
			Count(&count).Error; errCount != nil {
			return fmt.Errorf("registry: count history: %w", errCount)
		}
		if count > 0 {
			return ErrHasHistory
		}
		res := tx.Delete(&models.Card{}, id)
		if res.Error != nil {
			return fmt.Errorf("registry: delete card: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// fetch loads a single card with the given condition.
func (r *Registry) fetch(ctx context.Context, tx *gorm.DB, query string, arg any) (*models.Card, error) {
	var card models.Card
	if errFind := tx.WithContext(ctx).Where(query, arg).First(&card).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("registry: query card: %w", errFind)
	}
	return &card, nil
}

// statusIn reports whether status is contained in the set.
func statusIn(status models.CardStatus, set []models.CardStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}
