//go:build devtools

package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/entitlement"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/fingerprint"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DebugActivationDays = 30

// DebugActivate forces a 30-day activation directly on the ledger, creating
// the record if needed. Only compiled with the devtools build tag.
func (s *LedgerService) DebugActivate(ctx context.Context, fp string) (*models.Device, error) {
	if err := fingerprint.Validate(fp); err != nil {
		return nil, ErrMalformedFingerprint
	}

	now := s.Now()
	until := now.Add(DebugActivationDays * entitlement.Day)
	var device models.Device

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh := models.NewDevice(fp, now)
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fingerprint"}},
			DoNothing: true,
		}).Create(&fresh).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Device{}).
			Where("fingerprint = ?", fp).
			Updates(map[string]interface{}{
				"is_activated": true,
				"active_until": until,
			}).Error; err != nil {
			return err
		}
		return tx.Where("fingerprint = ?", fp).First(&device).Error
	})
	if err != nil {
		return nil, err
	}

	slog.Warn("debug activation applied", "fingerprint", fp, "active_until", until.Format(time.RFC3339))
	return &device, nil
}
