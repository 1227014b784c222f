package models

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/entitlement"
	"github.com/google/uuid"
)

// Device is the ledger record for one fingerprint.
// TrialEndAt is written once at creation and never updated.
type Device struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Fingerprint string     `gorm:"size:16;not null;uniqueIndex" json:"device_hash"`
	FirstSeenAt time.Time  `gorm:"not null" json:"first_seen_at"`
	LastSeenAt  time.Time  `gorm:"not null;index" json:"last_seen_at"`
	TrialEndAt  time.Time  `gorm:"not null" json:"trial_end_at"`
	IsActivated bool       `gorm:"not null;default:false" json:"is_active"`
	ActiveUntil *time.Time `json:"active_until"`
	Blocked     bool       `gorm:"not null;default:false" json:"blocked"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewDevice returns the record created on first contact.
func NewDevice(fp string, now time.Time) Device {
	return Device{
		ID:          uuid.New(),
		Fingerprint: fp,
		FirstSeenAt: now,
		LastSeenAt:  now,
		TrialEndAt:  now.Add(entitlement.TrialPeriod),
	}
}

func (d *Device) Window() entitlement.Window {
	return entitlement.Window{
		TrialEndAt:  d.TrialEndAt,
		IsActivated: d.IsActivated,
		ActiveUntil: d.ActiveUntil,
		Blocked:     d.Blocked,
	}
}
