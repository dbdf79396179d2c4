package expiry

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/franquia-labs/cardsettle/internal/models"
	"github.com/franquia-labs/cardsettle/internal/settings"
	"github.com/franquia-labs/cardsettle/internal/settlement"
)

// Poller periodically expires cards whose validity deadline has passed.
// The expiry decision is the deadline comparison here; the coordinator only
// enforces that the transition itself is legal.
type Poller struct {
	db          *gorm.DB
	coordinator *settlement.Coordinator
}

// NewPoller constructs an expiry poller.
func NewPoller(db *gorm.DB, coordinator *settlement.Coordinator) *Poller {
	if db == nil || coordinator == nil {
		return nil
	}
	return &Poller{db: db, coordinator: coordinator}
}

// Start launches the polling loop in a background goroutine.
func (p *Poller) Start(ctx context.Context) {
	if p == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go p.run(ctx)
	log.Infof("expiry poller started (interval=%s)", settings.ExpiryPollInterval())
}

func (p *Poller) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.Sweep(ctx)
		if ctx.Err() != nil {
			return
		}
		timer := time.NewTimer(settings.ExpiryPollInterval())
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// Sweep expires one batch of overdue cards and returns how many changed.
func (p *Poller) Sweep(ctx context.Context) int {
	now := time.Now().UTC()
	var dueIDs []uint64
	if errFind := p.db.WithContext(ctx).
		Model(&models.Card{}).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Where("status IN ?", []models.CardStatus{models.CardStatusAvailable, models.CardStatusActive}).
		Order("expires_at ASC, id ASC").
		Limit(settings.ExpiryPollBatchSize()).
		Pluck("id", &dueIDs).Error; errFind != nil {
		log.WithError(errFind).Warn("expiry poller: scan failed")
		return 0
	}

	expired := 0
	for _, id := range dueIDs {
		if ctx.Err() != nil {
			return expired
		}
		if _, errExpire := p.coordinator.Expire(ctx, id); errExpire != nil {
			// A settlement may have raced the scan and moved the card to
			// USED; that card is no longer expirable and is skipped.
			if settlement.CodeOf(errExpire) == settlement.CodeInvalidTransition {
				continue
			}
			log.WithError(errExpire).WithField("card_id", id).Warn("expiry poller: expire failed")
			continue
		}
		expired++
	}
	if expired > 0 {
		log.Infof("expiry poller: expired %d cards", expired)
	}
	return expired
}
