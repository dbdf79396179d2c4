package front

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/franquia-labs/cardsettle/internal/db"
	"github.com/franquia-labs/cardsettle/internal/models"
	"github.com/franquia-labs/cardsettle/internal/settlement"
)

type frontFixture struct {
	conn        *gorm.DB
	coordinator *settlement.Coordinator
	router      *gin.Engine
	merchant    models.Merchant
	partner     models.FranchisePartner
}

func setupFront(t *testing.T) *frontFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:front_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := dbpkg.Open(dsn)
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := dbpkg.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}

	partner := models.FranchisePartner{Name: "Rede", CommissionRate: decimal.NewFromInt(10), IsActive: true}
	if errCreate := conn.Create(&partner).Error; errCreate != nil {
		t.Fatalf("create partner: %v", errCreate)
	}
	merchant := models.Merchant{Name: "Loja", PartnerID: partner.ID, APIKey: "front-key", IsActive: true, BillingOK: true}
	if errCreate := conn.Create(&merchant).Error; errCreate != nil {
		t.Fatalf("create merchant: %v", errCreate)
	}

	coordinator := settlement.New(conn, settlement.Options{})
	router := gin.New()
	RegisterFrontRoutes(router, conn, coordinator)

	return &frontFixture{conn: conn, coordinator: coordinator, router: router, merchant: merchant, partner: partner}
}

func (f *frontFixture) newActiveCard(t *testing.T, balance int64) *models.Card {
	t.Helper()
	card, errCreate := f.coordinator.CreateCard(context.Background(), settlement.CreateCardParams{
		Code:      fmt.Sprintf("FCARD%d", time.Now().UnixNano()),
		Token:     fmt.Sprintf("ftoken-%d", time.Now().UnixNano()),
		PartnerID: f.partner.ID,
	})
	if errCreate != nil {
		t.Fatalf("create card: %v", errCreate)
	}
	if balance > 0 {
		if _, errRecharge := f.coordinator.Recharge(context.Background(), card.Code, decimal.NewFromInt(balance), ""); errRecharge != nil {
			t.Fatalf("recharge: %v", errRecharge)
		}
	}
	return card
}

func (f *frontFixture) do(t *testing.T, method, path, apiKey string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if payload != nil {
		body, errMarshal := json.Marshal(payload)
		if errMarshal != nil {
			t.Fatalf("marshal payload: %v", errMarshal)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestFrontRequiresAPIKey(t *testing.T) {
	f := setupFront(t)
	card := f.newActiveCard(t, 0)

	if w := f.do(t, http.MethodGet, "/v0/front/cards/"+card.Code, "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: expected 401, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/v0/front/cards/"+card.Code, "wrong-key", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: expected 401, got %d", w.Code)
	}

	if errSet := f.conn.Model(&models.Merchant{}).Where("id = ?", f.merchant.ID).Update("is_active", false).Error; errSet != nil {
		t.Fatalf("disable merchant: %v", errSet)
	}
	if w := f.do(t, http.MethodGet, "/v0/front/cards/"+card.Code, "front-key", nil); w.Code != http.StatusForbidden {
		t.Fatalf("disabled merchant: expected 403, got %d", w.Code)
	}
}

func TestFrontConsumeFlow(t *testing.T) {
	f := setupFront(t)
	card := f.newActiveCard(t, 100)

	w := f.do(t, http.MethodPost, "/v0/front/cards/"+card.Code+"/consume", "front-key", gin.H{
		"amount":     "40",
		"client_ref": "pos-1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Card struct {
			Status  string `json:"status"`
			Balance string `json:"balance"`
		} `json:"card"`
		Transaction struct {
			Status string `json:"status"`
		} `json:"transaction"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if resp.Card.Status != string(models.CardStatusActive) {
		t.Fatalf("expected ACTIVE, got %s", resp.Card.Status)
	}
	if resp.Transaction.Status != string(models.TransactionStatusCompleted) {
		t.Fatalf("expected COMPLETED, got %s", resp.Transaction.Status)
	}

	// The merchant payload must not leak the card token.
	if bytes.Contains(w.Body.Bytes(), []byte(card.Token)) {
		t.Fatalf("response leaked card token")
	}
}

func TestFrontConsumeInsufficientBalance(t *testing.T) {
	f := setupFront(t)
	card := f.newActiveCard(t, 10)

	w := f.do(t, http.MethodPost, "/v0/front/cards/"+card.Code+"/consume", "front-key", gin.H{"amount": "50"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Code string `json:"code"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if resp.Code != string(settlement.CodeInsufficientBalance) {
		t.Fatalf("expected INSUFFICIENT_BALANCE, got %s", resp.Code)
	}
}

func TestFrontRechargeActivates(t *testing.T) {
	f := setupFront(t)
	card := f.newActiveCard(t, 0)

	w := f.do(t, http.MethodPost, "/v0/front/cards/"+card.Code+"/recharge", "front-key", gin.H{"amount": "25"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Card struct {
			Status string `json:"status"`
		} `json:"card"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if resp.Card.Status != string(models.CardStatusActive) {
		t.Fatalf("expected ACTIVE after first recharge, got %s", resp.Card.Status)
	}

	if w := f.do(t, http.MethodPost, "/v0/front/cards/"+card.Code+"/recharge", "front-key", gin.H{"amount": "0"}); w.Code != http.StatusBadRequest {
		t.Fatalf("zero amount: expected 400, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/v0/front/cards/NOPE/recharge", "front-key", gin.H{"amount": "10"}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown card: expected 404, got %d", w.Code)
	}
}

func TestFrontResolveToken(t *testing.T) {
	f := setupFront(t)
	card := f.newActiveCard(t, 0)

	w := f.do(t, http.MethodPost, "/v0/front/cards/resolve", "front-key", gin.H{"token": card.Token})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Code string `json:"code"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if resp.Code != card.Code {
		t.Fatalf("expected code %s, got %s", card.Code, resp.Code)
	}

	if w := f.do(t, http.MethodPost, "/v0/front/cards/resolve", "front-key", gin.H{"token": "missing"}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown token: expected 404, got %d", w.Code)
	}
}

func TestFrontHistory(t *testing.T) {
	f := setupFront(t)
	card := f.newActiveCard(t, 50)

	if w := f.do(t, http.MethodPost, "/v0/front/cards/"+card.Code+"/consume", "front-key", gin.H{"amount": "20"}); w.Code != http.StatusOK {
		t.Fatalf("consume: %d", w.Code)
	}

	w := f.do(t, http.MethodGet, "/v0/front/cards/"+card.Code+"/transactions", "front-key", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Transactions []struct {
			Kind string `json:"kind"`
		} `json:"transactions"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if len(resp.Transactions) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resp.Transactions))
	}
	if resp.Transactions[0].Kind != string(models.TransactionKindConsumption) {
		t.Fatalf("expected newest entry first, got %s", resp.Transactions[0].Kind)
	}
}
