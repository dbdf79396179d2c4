package ledger

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

func setupLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.CardTransaction{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func TestOpenAppendsPendingEntry(t *testing.T) {
	l := New(setupLedgerDB(t))

	entry, errOpen := l.Open(context.Background(), nil, OpenParams{
		CardID: 1,
		Kind:   models.TransactionKindRecharge,
		Amount: decimal.NewFromInt(50),
	})
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}
	if entry.Status != models.TransactionStatusPending {
		t.Fatalf("expected PENDING, got %s", entry.Status)
	}
	if entry.CompletedAt != nil {
		t.Fatalf("expected no completion timestamp")
	}
}

func TestOpenRejectsNonPositiveAmount(t *testing.T) {
	l := New(setupLedgerDB(t))

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		_, errOpen := l.Open(context.Background(), nil, OpenParams{
			CardID: 1,
			Kind:   models.TransactionKindConsumption,
			Amount: amount,
		})
		if !errors.Is(errOpen, ErrInvalidAmount) {
			t.Fatalf("amount %s: expected ErrInvalidAmount, got %v", amount, errOpen)
		}
	}
}

func TestOpenTranslatesDuplicateClientRef(t *testing.T) {
	l := New(setupLedgerDB(t))
	ref := "order-42"

	if _, errOpen := l.Open(context.Background(), nil, OpenParams{
		CardID:    1,
		Kind:      models.TransactionKindRecharge,
		Amount:    decimal.NewFromInt(10),
		ClientRef: &ref,
	}); errOpen != nil {
		t.Fatalf("first open: %v", errOpen)
	}

	_, errDup := l.Open(context.Background(), nil, OpenParams{
		CardID:    1,
		Kind:      models.TransactionKindRecharge,
		Amount:    decimal.NewFromInt(10),
		ClientRef: &ref,
	})
	if !errors.Is(errDup, ErrDuplicateRef) {
		t.Fatalf("expected ErrDuplicateRef, got %v", errDup)
	}
}

func TestCompleteIsIdempotentAndTerminal(t *testing.T) {
	l := New(setupLedgerDB(t))

	entry, errOpen := l.Open(context.Background(), nil, OpenParams{
		CardID: 1,
		Kind:   models.TransactionKindRecharge,
		Amount: decimal.NewFromInt(25),
	})
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}

	completed, errComplete := l.Complete(context.Background(), nil, entry.ID)
	if errComplete != nil {
		t.Fatalf("complete: %v", errComplete)
	}
	if completed.Status != models.TransactionStatusCompleted || completed.CompletedAt == nil {
		t.Fatalf("entry not completed: %+v", completed)
	}

	again, errAgain := l.Complete(context.Background(), nil, entry.ID)
	if errAgain != nil {
		t.Fatalf("second complete: %v", errAgain)
	}
	if again.Status != models.TransactionStatusCompleted {
		t.Fatalf("second complete changed status: %s", again.Status)
	}

	if _, errReject := l.Reject(context.Background(), nil, entry.ID, "LATE", nil); !errors.Is(errReject, ErrAlreadyFinal) {
		t.Fatalf("expected ErrAlreadyFinal rejecting completed entry, got %v", errReject)
	}
}

func TestRejectRecordsReasonAndDetail(t *testing.T) {
	conn := setupLedgerDB(t)
	l := New(conn)

	entry, errOpen := l.Open(context.Background(), nil, OpenParams{
		CardID: 1,
		Kind:   models.TransactionKindConsumption,
		Amount: decimal.NewFromInt(100),
	})
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}

	rejected, errReject := l.Reject(context.Background(), nil, entry.ID, "INSUFFICIENT_BALANCE", map[string]any{"message": "balance too low"})
	if errReject != nil {
		t.Fatalf("reject: %v", errReject)
	}
	if rejected.Status != models.TransactionStatusRejected {
		t.Fatalf("expected REJECTED, got %s", rejected.Status)
	}
	if rejected.RejectReason != "INSUFFICIENT_BALANCE" {
		t.Fatalf("unexpected reason %q", rejected.RejectReason)
	}

	var stored models.CardTransaction
	if errFind := conn.First(&stored, entry.ID).Error; errFind != nil {
		t.Fatalf("reload entry: %v", errFind)
	}
	if len(stored.RejectDetail) == 0 {
		t.Fatalf("expected stored reject detail")
	}

	if _, errComplete := l.Complete(context.Background(), nil, entry.ID); !errors.Is(errComplete, ErrAlreadyFinal) {
		t.Fatalf("expected ErrAlreadyFinal completing rejected entry, got %v", errComplete)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	l := New(setupLedgerDB(t))

	for i := 1; i <= 3; i++ {
		if _, errOpen := l.Open(context.Background(), nil, OpenParams{
			CardID: 7,
			Kind:   models.TransactionKindRecharge,
			Amount: decimal.NewFromInt(int64(i)),
		}); errOpen != nil {
			t.Fatalf("open %d: %v", i, errOpen)
		}
	}

	rows, errHistory := l.History(context.Background(), 7)
	if errHistory != nil {
		t.Fatalf("history: %v", errHistory)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(rows))
	}
	if !rows[0].Amount.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected newest entry first, got amount %s", rows[0].Amount)
	}
}

func TestSumCompletedIgnoresPendingAndRejected(t *testing.T) {
	l := New(setupLedgerDB(t))
	ctx := context.Background()

	recharge, _ := l.Open(ctx, nil, OpenParams{CardID: 9, Kind: models.TransactionKindRecharge, Amount: decimal.NewFromInt(100)})
	if _, errComplete := l.Complete(ctx, nil, recharge.ID); errComplete != nil {
		t.Fatalf("complete recharge: %v", errComplete)
	}

	consume, _ := l.Open(ctx, nil, OpenParams{CardID: 9, Kind: models.TransactionKindConsumption, Amount: decimal.NewFromInt(30)})
	if _, errComplete := l.Complete(ctx, nil, consume.ID); errComplete != nil {
		t.Fatalf("complete consumption: %v", errComplete)
	}

	// A pending recharge and a rejected consumption must not count.
	if _, errOpen := l.Open(ctx, nil, OpenParams{CardID: 9, Kind: models.TransactionKindRecharge, Amount: decimal.NewFromInt(500)}); errOpen != nil {
		t.Fatalf("open pending: %v", errOpen)
	}
	rejected, _ := l.Open(ctx, nil, OpenParams{CardID: 9, Kind: models.TransactionKindConsumption, Amount: decimal.NewFromInt(70)})
	if _, errReject := l.Reject(ctx, nil, rejected.ID, "INVALID_STATE", nil); errReject != nil {
		t.Fatalf("reject: %v", errReject)
	}

	sum, errSum := l.SumCompleted(ctx, 9)
	if errSum != nil {
		t.Fatalf("sum: %v", errSum)
	}
	if !sum.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("expected sum 70, got %s", sum)
	}
}

func TestSumCompletedIsExactForFractionalAmounts(t *testing.T) {
	l := New(setupLedgerDB(t))
	ctx := context.Background()
	dime := decimal.RequireFromString("0.10")

	// 3 x 0.10 recharged, 0.10 consumed. A floating-point sum would yield
	// 0.20000000000000004 here; the ledger must report exactly 0.20.
	for i := 0; i < 3; i++ {
		recharge, errOpen := l.Open(ctx, nil, OpenParams{CardID: 4, Kind: models.TransactionKindRecharge, Amount: dime})
		if errOpen != nil {
			t.Fatalf("open recharge %d: %v", i, errOpen)
		}
		if _, errComplete := l.Complete(ctx, nil, recharge.ID); errComplete != nil {
			t.Fatalf("complete recharge %d: %v", i, errComplete)
		}
	}
	consume, errOpen := l.Open(ctx, nil, OpenParams{CardID: 4, Kind: models.TransactionKindConsumption, Amount: dime})
	if errOpen != nil {
		t.Fatalf("open consumption: %v", errOpen)
	}
	if _, errComplete := l.Complete(ctx, nil, consume.ID); errComplete != nil {
		t.Fatalf("complete consumption: %v", errComplete)
	}

	sum, errSum := l.SumCompleted(ctx, 4)
	if errSum != nil {
		t.Fatalf("sum: %v", errSum)
	}
	if want := decimal.RequireFromString("0.20"); !sum.Equal(want) {
		t.Fatalf("expected sum %s, got %s", want, sum)
	}
}

func TestFindByClientRef(t *testing.T) {
	l := New(setupLedgerDB(t))
	ref := "pos-receipt-9"

	opened, errOpen := l.Open(context.Background(), nil, OpenParams{
		CardID:    2,
		Kind:      models.TransactionKindConsumption,
		Amount:    decimal.NewFromInt(15),
		ClientRef: &ref,
	})
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}

	found, errFind := l.FindByClientRef(context.Background(), ref)
	if errFind != nil {
		t.Fatalf("find: %v", errFind)
	}
	if found.ID != opened.ID {
		t.Fatalf("wrong entry found")
	}

	if _, errMissing := l.FindByClientRef(context.Background(), "missing"); !errors.Is(errMissing, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errMissing)
	}
}
