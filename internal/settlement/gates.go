package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/franquia-labs/cardsettle/internal/models"
)

// MerchantGate answers whether a merchant is currently allowed to transact.
// The decision is owned by the billing subsystem; the core only consumes it.
type MerchantGate interface {
	IsAuthorized(ctx context.Context, merchantID uint64) (bool, error)
}

// PartnerInfo is the partner state snapshot used during settlement.
type PartnerInfo struct {
	Active         bool
	CommissionRate decimal.Decimal
}

// PartnerDirectory resolves a partner's active flag and current commission
// rate. The rate is read at settlement time and snapshotted onto the
// commission, never cached inside the core.
type PartnerDirectory interface {
	GetActive(ctx context.Context, partnerID uint64) (PartnerInfo, error)
}

// ErrGateNotFound indicates the merchant or partner reference is unknown.
var ErrGateNotFound = errors.New("settlement: gate reference not found")

// DBMerchantGate reads the merchant billing flag from the merchants table.
type DBMerchantGate struct {
	db *gorm.DB
}

// NewDBMerchantGate constructs the database-backed merchant gate.
func NewDBMerchantGate(db *gorm.DB) *DBMerchantGate { return &DBMerchantGate{db: db} }

// IsAuthorized reports whether the merchant may transact.
func (g *DBMerchantGate) IsAuthorized(ctx context.Context, merchantID uint64) (bool, error) {
	var merchant models.Merchant
	if errFind := g.db.WithContext(ctx).First(&merchant, merchantID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return false, ErrGateNotFound
		}
		return false, fmt.Errorf("settlement: query merchant: %w", errFind)
	}
	return merchant.AllowedToTransact(), nil
}

// DBPartnerDirectory reads partner state from the franchise_partners table.
type DBPartnerDirectory struct {
	db *gorm.DB
}

// NewDBPartnerDirectory constructs the database-backed partner directory.
func NewDBPartnerDirectory(db *gorm.DB) *DBPartnerDirectory { return &DBPartnerDirectory{db: db} }

// GetActive returns the partner's active flag and current commission rate.
func (d *DBPartnerDirectory) GetActive(ctx context.Context, partnerID uint64) (PartnerInfo, error) {
	var partner models.FranchisePartner
	if errFind := d.db.WithContext(ctx).First(&partner, partnerID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return PartnerInfo{}, ErrGateNotFound
		}
		return PartnerInfo{}, fmt.Errorf("settlement: query partner: %w", errFind)
	}
	return PartnerInfo{
		Active:         partner.IsActive,
		CommissionRate: partner.CommissionRate,
	}, nil
}
