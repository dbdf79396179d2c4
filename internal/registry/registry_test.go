package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/franquia-labs/cardsettle/internal/models"
)

func setupRegistryDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:registry_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Card{}, &models.CardTransaction{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func mustCreateCard(t *testing.T, r *Registry, code string, balance decimal.Decimal) *models.Card {
	t.Helper()
	card, errCreate := r.Create(context.Background(), nil, CreateParams{
		Code:           code,
		Token:          "token-" + code,
		PartnerID:      1,
		InitialBalance: balance,
	})
	if errCreate != nil {
		t.Fatalf("create card: %v", errCreate)
	}
	return card
}

func TestCreateCardStartsAvailable(t *testing.T) {
	r := New(setupRegistryDB(t))

	card := mustCreateCard(t, r, "CARD001", decimal.Zero)
	if card.Status != models.CardStatusAvailable {
		t.Fatalf("expected AVAILABLE, got %s", card.Status)
	}
	if !card.Balance.IsZero() {
		t.Fatalf("expected zero balance, got %s", card.Balance)
	}
	if card.ActivatedAt != nil {
		t.Fatalf("expected no activation timestamp")
	}
}

func TestCreateCardRejectsDuplicateCode(t *testing.T) {
	r := New(setupRegistryDB(t))
	mustCreateCard(t, r, "CARD001", decimal.Zero)

	_, errCreate := r.Create(context.Background(), nil, CreateParams{
		Code:      "CARD001",
		Token:     "other-token",
		PartnerID: 1,
	})
	if !errors.Is(errCreate, ErrDuplicateCode) {
		t.Fatalf("expected ErrDuplicateCode, got %v", errCreate)
	}
}

func TestCreateCardRejectsNegativeBalance(t *testing.T) {
	r := New(setupRegistryDB(t))
	_, errCreate := r.Create(context.Background(), nil, CreateParams{
		Code:           "CARD001",
		Token:          "token",
		PartnerID:      1,
		InitialBalance: decimal.NewFromInt(-1),
	})
	if errCreate == nil {
		t.Fatalf("expected error for negative initial balance")
	}
}

func TestApplyDeltaChecksStatusSet(t *testing.T) {
	conn := setupRegistryDB(t)
	r := New(conn)
	card := mustCreateCard(t, r, "CARD001", decimal.Zero)

	_, errDelta := r.ApplyDelta(context.Background(), conn, card, decimal.NewFromInt(10), models.CardStatusActive)
	if !errors.Is(errDelta, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", errDelta)
	}

	updated, errCredit := r.ApplyDelta(context.Background(), conn, card, decimal.NewFromInt(10),
		models.CardStatusAvailable, models.CardStatusActive)
	if errCredit != nil {
		t.Fatalf("credit: %v", errCredit)
	}
	if !updated.Balance.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected balance 10, got %s", updated.Balance)
	}
}

func TestApplyDeltaRefusesNegativeBalance(t *testing.T) {
	conn := setupRegistryDB(t)
	r := New(conn)
	card := mustCreateCard(t, r, "CARD001", decimal.NewFromInt(5))

	_, errDelta := r.ApplyDelta(context.Background(), conn, card, decimal.NewFromInt(-6), models.CardStatusAvailable)
	if !errors.Is(errDelta, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", errDelta)
	}

	reloaded, errGet := r.Get(context.Background(), card.ID)
	if errGet != nil {
		t.Fatalf("reload card: %v", errGet)
	}
	if !reloaded.Balance.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("balance changed after refused delta: %s", reloaded.Balance)
	}
}

func TestTransitionStatusStampsActivation(t *testing.T) {
	conn := setupRegistryDB(t)
	r := New(conn)
	card := mustCreateCard(t, r, "CARD001", decimal.Zero)

	updated, errTransition := r.TransitionStatus(context.Background(), conn, card, models.CardStatusActive)
	if errTransition != nil {
		t.Fatalf("activate: %v", errTransition)
	}
	if updated.Status != models.CardStatusActive {
		t.Fatalf("expected ACTIVE, got %s", updated.Status)
	}
	if updated.ActivatedAt == nil {
		t.Fatalf("expected activation timestamp")
	}
}

func TestTransitionStatusRejectsIllegalMoves(t *testing.T) {
	conn := setupRegistryDB(t)
	r := New(conn)

	cases := []struct {
		name string
		from models.CardStatus
		to   models.CardStatus
	}{
		{"available to used", models.CardStatusAvailable, models.CardStatusUsed},
		{"available to blocked", models.CardStatusAvailable, models.CardStatusBlocked},
		{"blocked to used", models.CardStatusBlocked, models.CardStatusUsed},
		{"blocked to expired", models.CardStatusBlocked, models.CardStatusExpired},
		{"used to active", models.CardStatusUsed, models.CardStatusActive},
		{"expired to active", models.CardStatusExpired, models.CardStatusActive},
	}
	for i, tc := range cases {
		card := mustCreateCard(t, r, fmt.Sprintf("CARD%03d", i), decimal.Zero)
		if errSet := conn.Model(&models.Card{}).Where("id = ?", card.ID).Update("status", tc.from).Error; errSet != nil {
			t.Fatalf("%s: seed status: %v", tc.name, errSet)
		}
		card.Status = tc.from
		if _, errTransition := r.TransitionStatus(context.Background(), conn, card, tc.to); !errors.Is(errTransition, ErrInvalidTransition) {
			t.Fatalf("%s: expected ErrInvalidTransition, got %v", tc.name, errTransition)
		}
	}
}

func TestTransitionStatusGuardsStaleReads(t *testing.T) {
	conn := setupRegistryDB(t)
	r := New(conn)
	card := mustCreateCard(t, r, "CARD001", decimal.Zero)

	// Another writer expires the card after our read.
	if errSet := conn.Model(&models.Card{}).Where("id = ?", card.ID).Update("status", models.CardStatusExpired).Error; errSet != nil {
		t.Fatalf("seed status: %v", errSet)
	}

	if _, errTransition := r.TransitionStatus(context.Background(), conn, card, models.CardStatusActive); !errors.Is(errTransition, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on stale status, got %v", errTransition)
	}
}

func TestCanTransitionTable(t *testing.T) {
	if !CanTransition(models.CardStatusActive, models.CardStatusBlocked) {
		t.Fatalf("ACTIVE to BLOCKED should be legal")
	}
	if !CanTransition(models.CardStatusBlocked, models.CardStatusActive) {
		t.Fatalf("BLOCKED to ACTIVE should be legal")
	}
	if CanTransition(models.CardStatusUsed, models.CardStatusActive) {
		t.Fatalf("USED is terminal")
	}
	if CanTransition(models.CardStatusExpired, models.CardStatusAvailable) {
		t.Fatalf("EXPIRED is terminal")
	}
}

func TestDeleteRefusesCardsWithHistory(t *testing.T) {
	conn := setupRegistryDB(t)
	r := New(conn)
	card := mustCreateCard(t, r, "CARD001", decimal.Zero)

	entry := models.CardTransaction{
		CardID: card.ID,
		Kind:   models.TransactionKindRecharge,
		Amount: decimal.NewFromInt(10),
		Status: models.TransactionStatusCompleted,
	}
	if errCreate := conn.Create(&entry).Error; errCreate != nil {
		t.Fatalf("create transaction: %v", errCreate)
	}

	if errDelete := r.Delete(context.Background(), card.ID); !errors.Is(errDelete, ErrHasHistory) {
		t.Fatalf("expected ErrHasHistory, got %v", errDelete)
	}

	fresh := mustCreateCard(t, r, "CARD002", decimal.Zero)
	if errDelete := r.Delete(context.Background(), fresh.ID); errDelete != nil {
		t.Fatalf("delete fresh card: %v", errDelete)
	}
	if _, errGet := r.Get(context.Background(), fresh.ID); !errors.Is(errGet, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", errGet)
	}
}

func TestGetByCodeAndToken(t *testing.T) {
	r := New(setupRegistryDB(t))
	card := mustCreateCard(t, r, "CARD001", decimal.Zero)

	byCode, errCode := r.GetByCode(context.Background(), " CARD001 ")
	if errCode != nil {
		t.Fatalf("get by code: %v", errCode)
	}
	if byCode.ID != card.ID {
		t.Fatalf("wrong card by code")
	}

	byToken, errToken := r.GetByToken(context.Background(), card.Token)
	if errToken != nil {
		t.Fatalf("get by token: %v", errToken)
	}
	if byToken.ID != card.ID {
		t.Fatalf("wrong card by token")
	}

	if _, errMissing := r.GetByCode(context.Background(), "NOPE"); !errors.Is(errMissing, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errMissing)
	}
}
