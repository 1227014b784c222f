package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/entitlement"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/fingerprint"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MaxListPageSize = 500
	MaxExtendDays   = 3650
)

var (
	ErrMalformedFingerprint = errors.New("invalid device hash")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrInvalidDays          = errors.New("days must be between 1 and 3650")
)

type LedgerService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{db: db, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

// Now is the ledger's notion of current time, in UTC.
func (s *LedgerService) Now() time.Time {
	return s.now().UTC()
}

// Resolve fetches or creates the record for fp, touches last_seen_at and
// computes the authoritative verdict. The fingerprint is validated before
// any database access.
func (s *LedgerService) Resolve(ctx context.Context, fp string) (*models.Device, entitlement.Verdict, error) {
	if err := fingerprint.Validate(fp); err != nil {
		return nil, entitlement.Verdict{}, ErrMalformedFingerprint
	}

	now := s.Now()
	var device models.Device
	created := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh := models.NewDevice(fp, now)
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fingerprint"}},
			DoNothing: true,
		}).Create(&fresh)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected == 1

		if !created {
			if err := tx.Model(&models.Device{}).
				Where("fingerprint = ?", fp).
				Update("last_seen_at", now).Error; err != nil {
				return err
			}
		}

		return tx.Where("fingerprint = ?", fp).First(&device).Error
	})
	if err != nil {
		return nil, entitlement.Verdict{}, fmt.Errorf("resolve device: %w", err)
	}

	if created {
		slog.Info("device first seen", "fingerprint", fp, "trial_end_at", device.TrialEndAt)
	}

	verdict := entitlement.Evaluate(device.Window(), now)
	metrics.Verdicts.WithLabelValues(verdict.Reason.Code()).Inc()
	return &device, verdict, nil
}

// Extend grants days of paid entitlement. Extensions stack: the new expiry
// is max(now, active_until) + days.
func (s *LedgerService) Extend(ctx context.Context, fp string, days int) (*models.Device, error) {
	if err := fingerprint.Validate(fp); err != nil {
		return nil, ErrMalformedFingerprint
	}
	if days < 1 || days > MaxExtendDays {
		return nil, ErrInvalidDays
	}

	now := s.Now()
	var device models.Device

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockDevice(tx, fp, &device); err != nil {
			return err
		}

		base := now
		if device.ActiveUntil != nil && device.ActiveUntil.After(now) {
			base = *device.ActiveUntil
		}
		until := base.Add(time.Duration(days) * entitlement.Day)

		if err := tx.Model(&device).Updates(map[string]interface{}{
			"is_activated": true,
			"active_until": until,
		}).Error; err != nil {
			return err
		}
		device.IsActivated = true
		device.ActiveUntil = &until
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Extensions.Inc()
	slog.Info("device entitlement extended", "fingerprint", fp, "days", days, "active_until", device.ActiveUntil)
	return &device, nil
}

// SetBlocked flips the administrative kill-switch.
func (s *LedgerService) SetBlocked(ctx context.Context, fp string, blocked bool) (*models.Device, error) {
	if err := fingerprint.Validate(fp); err != nil {
		return nil, ErrMalformedFingerprint
	}

	var device models.Device
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockDevice(tx, fp, &device); err != nil {
			return err
		}
		if err := tx.Model(&device).Update("blocked", blocked).Error; err != nil {
			return err
		}
		device.Blocked = blocked
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("device block state changed", "fingerprint", fp, "blocked", blocked)
	return &device, nil
}

// List returns ledger records, most recently seen first.
func (s *LedgerService) List(ctx context.Context, limit int) ([]models.Device, error) {
	if limit <= 0 || limit > MaxListPageSize {
		limit = MaxListPageSize
	}

	var devices []models.Device
	if err := s.db.WithContext(ctx).
		Order("last_seen_at DESC").
		Limit(limit).
		Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

func lockDevice(tx *gorm.DB, fp string, device *models.Device) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("fingerprint = ?", fp).
		First(device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrDeviceNotFound
	}
	return err
}
