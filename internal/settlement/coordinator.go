package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/franquia-labs/cardsettle/internal/commission"
	dbutil "github.com/franquia-labs/cardsettle/internal/db"
	"github.com/franquia-labs/cardsettle/internal/ledger"
	"github.com/franquia-labs/cardsettle/internal/models"
	"github.com/franquia-labs/cardsettle/internal/registry"
)

// defaultOpTimeout bounds a single settlement unit of work.
const defaultOpTimeout = 10 * time.Second

// Options configures a Coordinator. Zero values fall back to the
// database-backed gates and the default timeout.
type Options struct {
	MerchantGate MerchantGate
	Partners     PartnerDirectory
	OpTimeout    time.Duration

	// DefaultValidityDays supplies the validity window stamped on a card
	// at first activation when the card carries no explicit expiry. A nil
	// func or zero return means no deadline is stamped.
	DefaultValidityDays func() int
}

// Coordinator is the single entry point for card-affecting operations. It
// owns the per-card exclusivity guarantee and the atomic unit spanning
// ledger entry, card mutation, and commission creation.
type Coordinator struct {
	db        *gorm.DB
	registry  *registry.Registry
	ledger    *ledger.Ledger
	calc      *commission.Calculator
	merchants MerchantGate
	partners  PartnerDirectory
	locks     *cardLocks
	opTimeout time.Duration

	validityDays func() int
}

// New constructs a Coordinator over the shared database handle.
func New(db *gorm.DB, opts Options) *Coordinator {
	merchants := opts.MerchantGate
	if merchants == nil {
		merchants = NewDBMerchantGate(db)
	}
	partners := opts.Partners
	if partners == nil {
		partners = NewDBPartnerDirectory(db)
	}
	timeout := opts.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &Coordinator{
		db:           db,
		registry:     registry.New(db),
		ledger:       ledger.New(db),
		calc:         commission.New(db),
		merchants:    merchants,
		partners:     partners,
		locks:        newCardLocks(),
		opTimeout:    timeout,
		validityDays: opts.DefaultValidityDays,
	}
}

// Registry exposes the card registry for administrative reads and creation.
func (c *Coordinator) Registry() *registry.Registry { return c.registry }

// Ledger exposes the transaction ledger for reads.
func (c *Coordinator) Ledger() *ledger.Ledger { return c.ledger }

// Commissions exposes the commission calculator for payout recording.
func (c *Coordinator) Commissions() *commission.Calculator { return c.calc }

// CreateCardParams holds inputs for issuing a card.
type CreateCardParams struct {
	Code           string
	Token          string
	PartnerID      uint64
	MerchantID     *uint64
	InitialBalance decimal.Decimal
	ExpiresAt      *time.Time
}

// CreateCard issues a new card in AVAILABLE state.
func (c *Coordinator) CreateCard(ctx context.Context, params CreateCardParams) (*models.Card, error) {
	card, errCreate := c.registry.Create(ctx, c.db, registry.CreateParams{
		Code:           params.Code,
		Token:          params.Token,
		PartnerID:      params.PartnerID,
		MerchantID:     params.MerchantID,
		InitialBalance: params.InitialBalance,
		ExpiresAt:      params.ExpiresAt,
	})
	if errCreate != nil {
		return nil, classify(errCreate, "create card")
	}
	return card, nil
}

// RechargeResult is the outcome of a completed recharge.
type RechargeResult struct {
	Card        *models.Card
	Transaction *models.CardTransaction
}

// Recharge credits a card. Permitted from AVAILABLE and ACTIVE; the first
// recharge activates the card. The ledger entry, balance change, and status
// change commit together or not at all.
func (c *Coordinator) Recharge(ctx context.Context, cardCode string, amount decimal.Decimal, clientRef string) (*RechargeResult, error) {
	if !amount.IsPositive() {
		return nil, newError(CodeValidation, "recharge amount must be positive", ledger.ErrInvalidAmount)
	}
	if replayed, errReplay, ok := c.replayRecharge(ctx, clientRef); ok {
		return replayed, errReplay
	}

	card, errCard := c.registry.GetByCode(ctx, cardCode)
	if errCard != nil {
		return nil, classify(errCard, "recharge: resolve card")
	}

	c.locks.acquire(card.ID)
	defer c.locks.release(card.ID)

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	var result RechargeResult
	errTx := c.db.WithContext(opCtx).Transaction(func(tx *gorm.DB) error {
		locked, errLock := c.lockCard(opCtx, tx, card.ID)
		if errLock != nil {
			return errLock
		}

		entry, errOpen := c.ledger.Open(opCtx, tx, ledger.OpenParams{
			CardID:    locked.ID,
			Kind:      models.TransactionKindRecharge,
			Amount:    amount,
			ClientRef: refPtr(clientRef),
		})
		if errOpen != nil {
			return errOpen
		}

		updated, errDelta := c.registry.ApplyDelta(opCtx, tx, locked, amount,
			models.CardStatusAvailable, models.CardStatusActive)
		if errDelta != nil {
			return errDelta
		}

		if updated.Status == models.CardStatusAvailable {
			if _, errActivate := c.registry.TransitionStatus(opCtx, tx, updated, models.CardStatusActive); errActivate != nil {
				return errActivate
			}
			if updated.ExpiresAt == nil {
				if days := c.resolveValidityDays(); days > 0 {
					deadline := time.Now().UTC().AddDate(0, 0, days)
					if errExpiry := c.registry.SetExpiry(opCtx, tx, updated, deadline); errExpiry != nil {
						return errExpiry
					}
				}
			}
		}

		completed, errComplete := c.ledger.Complete(opCtx, tx, entry.ID)
		if errComplete != nil {
			return errComplete
		}

		result = RechargeResult{Card: updated, Transaction: completed}
		return nil
	})
	if errTx != nil {
		if errors.Is(errTx, ledger.ErrDuplicateRef) {
			// A concurrent request holding the same reference committed
			// first; hand back its recorded outcome.
			if replayed, errReplay, ok := c.replayRecharge(ctx, clientRef); ok {
				return replayed, errReplay
			}
		}
		se := classify(errTx, "recharge")
		if IsBusinessRejection(se) {
			c.recordRejection(ctx, card, nil, models.TransactionKindRecharge, amount, clientRef, se)
		}
		return nil, se
	}
	return &result, nil
}

// ConsumeResult is the outcome of a completed consumption.
type ConsumeResult struct {
	Card        *models.Card
	Transaction *models.CardTransaction
	Commission  *models.Commission
}

// Consume debits a card at a merchant. Permitted only from ACTIVE; a card
// that reaches zero moves to USED. The commission for the owning partner is
// computed from the partner's current rate inside the same atomic unit.
func (c *Coordinator) Consume(ctx context.Context, cardCode string, merchantID uint64, amount decimal.Decimal, clientRef string) (*ConsumeResult, error) {
	if !amount.IsPositive() {
		return nil, newError(CodeValidation, "consumption amount must be positive", ledger.ErrInvalidAmount)
	}
	if replayed, errReplay, ok := c.replayConsume(ctx, clientRef); ok {
		return replayed, errReplay
	}

	card, errCard := c.registry.GetByCode(ctx, cardCode)
	if errCard != nil {
		return nil, classify(errCard, "consume: resolve card")
	}

	if card.MerchantID != nil && *card.MerchantID != merchantID {
		se := newError(CodeMerchantMismatch, "card is bound to another merchant", ErrMerchantMismatch)
		c.recordRejection(ctx, card, &merchantID, models.TransactionKindConsumption, amount, clientRef, se)
		return nil, se
	}

	authorized, errGate := c.merchants.IsAuthorized(ctx, merchantID)
	if errGate != nil {
		return nil, classify(errGate, "consume: merchant gate")
	}
	partner, errPartner := c.partners.GetActive(ctx, card.PartnerID)
	if errPartner != nil {
		return nil, classify(errPartner, "consume: partner lookup")
	}
	if !authorized || !partner.Active {
		se := newError(CodeNotAuthorized, "merchant or partner is not allowed to transact", ErrNotAuthorized)
		c.recordRejection(ctx, card, &merchantID, models.TransactionKindConsumption, amount, clientRef, se)
		return nil, se
	}

	c.locks.acquire(card.ID)
	defer c.locks.release(card.ID)

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	var result ConsumeResult
	errTx := c.db.WithContext(opCtx).Transaction(func(tx *gorm.DB) error {
		locked, errLock := c.lockCard(opCtx, tx, card.ID)
		if errLock != nil {
			return errLock
		}

		entry, errOpen := c.ledger.Open(opCtx, tx, ledger.OpenParams{
			CardID:     locked.ID,
			MerchantID: &merchantID,
			Kind:       models.TransactionKindConsumption,
			Amount:     amount,
			ClientRef:  refPtr(clientRef),
		})
		if errOpen != nil {
			return errOpen
		}

		updated, errDelta := c.registry.ApplyDelta(opCtx, tx, locked, amount.Neg(), models.CardStatusActive)
		if errDelta != nil {
			return errDelta
		}
		now := time.Now().UTC()
		if errTouch := c.registry.TouchConsumed(opCtx, tx, updated, now); errTouch != nil {
			return errTouch
		}

		if updated.Balance.IsZero() {
			if _, errUsed := c.registry.TransitionStatus(opCtx, tx, updated, models.CardStatusUsed); errUsed != nil {
				return errUsed
			}
		}

		completed, errComplete := c.ledger.Complete(opCtx, tx, entry.ID)
		if errComplete != nil {
			return errComplete
		}

		payable, errCommission := c.calc.Compute(opCtx, tx, completed, card.PartnerID, partner.CommissionRate)
		if errCommission != nil {
			return errCommission
		}

		result = ConsumeResult{Card: updated, Transaction: completed, Commission: payable}
		return nil
	})
	if errTx != nil {
		if errors.Is(errTx, ledger.ErrDuplicateRef) {
			if replayed, errReplay, ok := c.replayConsume(ctx, clientRef); ok {
				return replayed, errReplay
			}
		}
		se := classify(errTx, "consume")
		if IsBusinessRejection(se) {
			c.recordRejection(ctx, card, &merchantID, models.TransactionKindConsumption, amount, clientRef, se)
		}
		return nil, se
	}
	return &result, nil
}

// Block suspends an ACTIVE card. No ledger or commission side effects.
func (c *Coordinator) Block(ctx context.Context, cardCode string) (*models.Card, error) {
	return c.transition(ctx, cardCode, models.CardStatusBlocked, models.CardStatusActive)
}

// Activate reinstates a BLOCKED card. No ledger or commission side effects.
func (c *Coordinator) Activate(ctx context.Context, cardCode string) (*models.Card, error) {
	return c.transition(ctx, cardCode, models.CardStatusActive, models.CardStatusBlocked)
}

// Expire moves an AVAILABLE or ACTIVE card to EXPIRED. The expiry policy
// decision belongs to the caller; only the transition's legality is
// enforced here.
func (c *Coordinator) Expire(ctx context.Context, cardID uint64) (*models.Card, error) {
	card, errCard := c.registry.Get(ctx, cardID)
	if errCard != nil {
		return nil, classify(errCard, "expire: resolve card")
	}
	return c.transitionCard(ctx, card, models.CardStatusExpired,
		models.CardStatusAvailable, models.CardStatusActive)
}

// Get returns a card by ID.
func (c *Coordinator) Get(ctx context.Context, cardID uint64) (*models.Card, error) {
	card, errCard := c.registry.Get(ctx, cardID)
	if errCard != nil {
		return nil, classify(errCard, "get card")
	}
	return card, nil
}

// History returns a card's ledger entries, newest first.
func (c *Coordinator) History(ctx context.Context, cardID uint64) ([]models.CardTransaction, error) {
	if _, errCard := c.registry.Get(ctx, cardID); errCard != nil {
		return nil, classify(errCard, "history: resolve card")
	}
	rows, errHistory := c.ledger.History(ctx, cardID)
	if errHistory != nil {
		return nil, classify(errHistory, "history")
	}
	return rows, nil
}

// Reconciliation compares a card's stored balance against the ledger.
type Reconciliation struct {
	CardID     uint64
	Balance    decimal.Decimal
	LedgerSum  decimal.Decimal
	Consistent bool
}

// Reconcile recomputes a card's balance from completed ledger entries and
// reports whether it matches the stored balance.
func (c *Coordinator) Reconcile(ctx context.Context, cardID uint64) (*Reconciliation, error) {
	card, errCard := c.registry.Get(ctx, cardID)
	if errCard != nil {
		return nil, classify(errCard, "reconcile: resolve card")
	}
	sum, errSum := c.ledger.SumCompleted(ctx, cardID)
	if errSum != nil {
		return nil, classify(errSum, "reconcile: ledger sum")
	}
	return &Reconciliation{
		CardID:     card.ID,
		Balance:    card.Balance,
		LedgerSum:  sum,
		Consistent: card.Balance.Equal(sum),
	}, nil
}

// transition resolves a card by code and applies a manual status change.
func (c *Coordinator) transition(ctx context.Context, cardCode string, to models.CardStatus, from ...models.CardStatus) (*models.Card, error) {
	card, errCard := c.registry.GetByCode(ctx, cardCode)
	if errCard != nil {
		return nil, classify(errCard, "transition: resolve card")
	}
	return c.transitionCard(ctx, card, to, from...)
}

// transitionCard applies a status change under the card's lock.
func (c *Coordinator) transitionCard(ctx context.Context, card *models.Card, to models.CardStatus, from ...models.CardStatus) (*models.Card, error) {
	c.locks.acquire(card.ID)
	defer c.locks.release(card.ID)

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	var result *models.Card
	errTx := c.db.WithContext(opCtx).Transaction(func(tx *gorm.DB) error {
		locked, errLock := c.lockCard(opCtx, tx, card.ID)
		if errLock != nil {
			return errLock
		}
		updated, errTransition := c.registry.TransitionStatus(opCtx, tx, locked, to, from...)
		if errTransition != nil {
			return errTransition
		}
		result = updated
		return nil
	})
	if errTx != nil {
		return nil, classify(errTx, fmt.Sprintf("transition to %s", to))
	}
	return result, nil
}

// lockCard reloads a card under the row lock of the current transaction.
func (c *Coordinator) lockCard(ctx context.Context, tx *gorm.DB, cardID uint64) (*models.Card, error) {
	var card models.Card
	if errFind := dbutil.WithRowLock(tx.WithContext(ctx)).
		First(&card, cardID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, registry.ErrNotFound
		}
		return nil, fmt.Errorf("settlement: lock card: %w", errFind)
	}
	return &card, nil
}

// recordRejection writes the REJECTED audit entry after the settlement
// transaction has been rolled back. The entry must survive that rollback,
// so it runs in its own short transaction.
func (c *Coordinator) recordRejection(ctx context.Context, card *models.Card, merchantID *uint64, kind models.TransactionKind, amount decimal.Decimal, clientRef string, cause *Error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	errTx := c.db.WithContext(rctx).Transaction(func(tx *gorm.DB) error {
		entry, errOpen := c.ledger.Open(rctx, tx, ledger.OpenParams{
			CardID:     card.ID,
			MerchantID: merchantID,
			Kind:       kind,
			Amount:     amount,
			ClientRef:  refPtr(clientRef),
		})
		if errOpen != nil {
			return errOpen
		}
		_, errReject := c.ledger.Reject(rctx, tx, entry.ID, string(cause.Code), map[string]any{
			"message": cause.Message,
		})
		return errReject
	})
	if errTx != nil {
		log.WithError(errTx).WithField("card_id", card.ID).Warn("settlement: failed to record rejected transaction")
	}
}

// replayRecharge returns the stored outcome for a reused recharge idempotency key.
func (c *Coordinator) replayRecharge(ctx context.Context, clientRef string) (*RechargeResult, error, bool) {
	entry, se, ok := c.replayEntry(ctx, clientRef, models.TransactionKindRecharge)
	if !ok {
		return nil, nil, false
	}
	if se != nil {
		return nil, se, true
	}
	card, errCard := c.registry.Get(ctx, entry.CardID)
	if errCard != nil {
		return nil, classify(errCard, "recharge replay: resolve card"), true
	}
	return &RechargeResult{Card: card, Transaction: entry}, nil, true
}

// replayConsume returns the stored outcome for a reused consumption idempotency key.
func (c *Coordinator) replayConsume(ctx context.Context, clientRef string) (*ConsumeResult, error, bool) {
	entry, se, ok := c.replayEntry(ctx, clientRef, models.TransactionKindConsumption)
	if !ok {
		return nil, nil, false
	}
	if se != nil {
		return nil, se, true
	}
	card, errCard := c.registry.Get(ctx, entry.CardID)
	if errCard != nil {
		return nil, classify(errCard, "consume replay: resolve card"), true
	}
	payable, errCommission := c.calc.ForTransaction(ctx, entry.ID)
	if errCommission != nil && !errors.Is(errCommission, commission.ErrNotFound) {
		return nil, classify(errCommission, "consume replay: commission"), true
	}
	return &ConsumeResult{Card: card, Transaction: entry, Commission: payable}, nil, true
}

// replayEntry resolves a caller idempotency key to its recorded outcome.
// The third return reports whether a replay applies at all.
func (c *Coordinator) replayEntry(ctx context.Context, clientRef string, kind models.TransactionKind) (*models.CardTransaction, *Error, bool) {
	if clientRef == "" {
		return nil, nil, false
	}
	entry, errFind := c.ledger.FindByClientRef(ctx, clientRef)
	if errFind != nil {
		if errors.Is(errFind, ledger.ErrNotFound) {
			return nil, nil, false
		}
		return nil, classify(errFind, "idempotency lookup"), true
	}
	if entry.Kind != kind {
		return nil, newError(CodeValidation, "client reference was used by a different operation", nil), true
	}
	switch entry.Status {
	case models.TransactionStatusCompleted:
		return entry, nil, true
	case models.TransactionStatusRejected:
		code := Code(entry.RejectReason)
		if code == "" {
			code = CodeInvalidState
		}
		return nil, newError(code, "request was previously rejected", nil), true
	default:
		return nil, newError(CodeInternal, "previous attempt has no recorded outcome", nil), true
	}
}

// resolveValidityDays reads the configured default validity window.
func (c *Coordinator) resolveValidityDays() int {
	if c.validityDays == nil {
		return 0
	}
	return c.validityDays()
}

// refPtr converts an optional client reference into storage form.
func refPtr(clientRef string) *string {
	if clientRef == "" {
		return nil
	}
	return &clientRef
}
