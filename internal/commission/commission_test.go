package commission

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

func setupCommissionDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:commission_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.CardTransaction{}, &models.Commission{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func completedConsumption(t *testing.T, conn *gorm.DB, amount string) *models.CardTransaction {
	t.Helper()
	now := time.Now().UTC()
	entry := models.CardTransaction{
		CardID:      1,
		Kind:        models.TransactionKindConsumption,
		Amount:      decimal.RequireFromString(amount),
		Status:      models.TransactionStatusCompleted,
		CompletedAt: &now,
	}
	if errCreate := conn.Create(&entry).Error; errCreate != nil {
		t.Fatalf("create transaction: %v", errCreate)
	}
	return &entry
}

func TestAmountRoundsHalfUpToMinorUnit(t *testing.T) {
	cases := []struct {
		amount string
		rate   string
		want   string
	}{
		{"100", "10", "10"},
		{"50", "7.5", "3.75"},
		{"33.33", "10", "3.33"},   // 3.333 rounds down
		{"33.35", "10", "3.34"},   // 3.335 rounds half-up
		{"0.01", "1", "0"},        // 0.0001 rounds to zero
		{"19.99", "12.5", "2.5"},  // 2.49875 rounds up
		{"100", "0", "0"},
		{"100", "100", "100"},
	}
	for _, tc := range cases {
		got := Amount(decimal.RequireFromString(tc.amount), decimal.RequireFromString(tc.rate))
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("Amount(%s, %s) = %s, want %s", tc.amount, tc.rate, got, tc.want)
		}
	}
}

func TestAmountIsDeterministic(t *testing.T) {
	amount := decimal.RequireFromString("123.45")
	rate := decimal.RequireFromString("7.25")
	first := Amount(amount, rate)
	for i := 0; i < 100; i++ {
		if !Amount(amount, rate).Equal(first) {
			t.Fatalf("commission amount varied across runs")
		}
	}
}

func TestComputeSnapshotsRate(t *testing.T) {
	conn := setupCommissionDB(t)
	calc := New(conn)
	entry := completedConsumption(t, conn, "200")

	row, errCompute := calc.Compute(context.Background(), nil, entry, 3, decimal.RequireFromString("12.5"))
	if errCompute != nil {
		t.Fatalf("compute: %v", errCompute)
	}
	if row.Status != models.CommissionStatusPending {
		t.Fatalf("expected PENDING, got %s", row.Status)
	}
	if !row.Amount.Equal(decimal.RequireFromString("25")) {
		t.Fatalf("expected amount 25, got %s", row.Amount)
	}
	if !row.Rate.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("expected stored rate 12.5, got %s", row.Rate)
	}
	if row.PartnerID != 3 {
		t.Fatalf("expected partner 3, got %d", row.PartnerID)
	}
}

func TestComputeAtMostOncePerTransaction(t *testing.T) {
	conn := setupCommissionDB(t)
	calc := New(conn)
	entry := completedConsumption(t, conn, "100")

	if _, errFirst := calc.Compute(context.Background(), nil, entry, 1, decimal.NewFromInt(10)); errFirst != nil {
		t.Fatalf("first compute: %v", errFirst)
	}
	if _, errSecond := calc.Compute(context.Background(), nil, entry, 1, decimal.NewFromInt(10)); !errors.Is(errSecond, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", errSecond)
	}

	var count int64
	if errCount := conn.Model(&models.Commission{}).Where("transaction_id = ?", entry.ID).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 commission, got %d", count)
	}
}

func TestComputeRejectsInapplicableTransactions(t *testing.T) {
	conn := setupCommissionDB(t)
	calc := New(conn)

	recharge := models.CardTransaction{
		CardID: 1,
		Kind:   models.TransactionKindRecharge,
		Amount: decimal.NewFromInt(100),
		Status: models.TransactionStatusCompleted,
	}
	if errCreate := conn.Create(&recharge).Error; errCreate != nil {
		t.Fatalf("create recharge: %v", errCreate)
	}
	if _, errCompute := calc.Compute(context.Background(), nil, &recharge, 1, decimal.NewFromInt(10)); !errors.Is(errCompute, ErrNotApplicable) {
		t.Fatalf("expected ErrNotApplicable for recharge, got %v", errCompute)
	}

	pending := models.CardTransaction{
		CardID: 1,
		Kind:   models.TransactionKindConsumption,
		Amount: decimal.NewFromInt(100),
		Status: models.TransactionStatusPending,
	}
	if errCreate := conn.Create(&pending).Error; errCreate != nil {
		t.Fatalf("create pending: %v", errCreate)
	}
	if _, errCompute := calc.Compute(context.Background(), nil, &pending, 1, decimal.NewFromInt(10)); !errors.Is(errCompute, ErrNotApplicable) {
		t.Fatalf("expected ErrNotApplicable for pending, got %v", errCompute)
	}
}

func TestComputeRejectsOutOfRangeRate(t *testing.T) {
	conn := setupCommissionDB(t)
	calc := New(conn)
	entry := completedConsumption(t, conn, "100")

	for _, rate := range []string{"-1", "100.01"} {
		if _, errCompute := calc.Compute(context.Background(), nil, entry, 1, decimal.RequireFromString(rate)); !errors.Is(errCompute, ErrInvalidRate) {
			t.Fatalf("rate %s: expected ErrInvalidRate, got %v", rate, errCompute)
		}
	}
}

func TestFinalizeLifecycle(t *testing.T) {
	conn := setupCommissionDB(t)
	calc := New(conn)
	entry := completedConsumption(t, conn, "100")

	row, errCompute := calc.Compute(context.Background(), nil, entry, 1, decimal.NewFromInt(10))
	if errCompute != nil {
		t.Fatalf("compute: %v", errCompute)
	}

	settled, errSettle := calc.MarkSettled(context.Background(), row.ID)
	if errSettle != nil {
		t.Fatalf("settle: %v", errSettle)
	}
	if settled.Status != models.CommissionStatusSettled || settled.SettledAt == nil {
		t.Fatalf("commission not settled: %+v", settled)
	}

	if _, errVoid := calc.MarkVoided(context.Background(), row.ID); !errors.Is(errVoid, ErrAlreadyFinal) {
		t.Fatalf("expected ErrAlreadyFinal voiding settled commission, got %v", errVoid)
	}
	if _, errMissing := calc.MarkSettled(context.Background(), 9999); !errors.Is(errMissing, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errMissing)
	}
}

func TestForTransaction(t *testing.T) {
	conn := setupCommissionDB(t)
	calc := New(conn)
	entry := completedConsumption(t, conn, "40")

	created, errCompute := calc.Compute(context.Background(), nil, entry, 2, decimal.NewFromInt(5))
	if errCompute != nil {
		t.Fatalf("compute: %v", errCompute)
	}

	found, errFind := calc.ForTransaction(context.Background(), entry.ID)
	if errFind != nil {
		t.Fatalf("find: %v", errFind)
	}
	if found.ID != created.ID {
		t.Fatalf("wrong commission found")
	}

	if _, errMissing := calc.ForTransaction(context.Background(), 9999); !errors.Is(errMissing, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errMissing)
	}
}
