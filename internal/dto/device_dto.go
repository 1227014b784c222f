package dto

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/entitlement"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/models"
)

type DeviceStatusRequest struct {
	DeviceHash string `json:"device_hash"`
}

// DeviceStatusResponse is the status protocol reply. ServerTime lets the
// client compute trial days without trusting its own clock.
type DeviceStatusResponse struct {
	ServerTime  time.Time  `json:"server_time"`
	DeviceHash  string     `json:"device_hash"`
	TrialEndAt  time.Time  `json:"trial_end_at"`
	IsActive    bool       `json:"is_active"`
	ActiveUntil *time.Time `json:"active_until"`
	Allowed     bool       `json:"allowed"`
	Reason      string     `json:"reason"`
}

func NewDeviceStatusResponse(now time.Time, d *models.Device, v entitlement.Verdict) DeviceStatusResponse {
	resp := DeviceStatusResponse{
		ServerTime: now.UTC(),
		DeviceHash: d.Fingerprint,
		TrialEndAt: d.TrialEndAt.UTC(),
		IsActive:   d.IsActivated,
		Allowed:    v.Allowed,
		Reason:     v.Reason.Code(),
	}
	if d.ActiveUntil != nil {
		until := d.ActiveUntil.UTC()
		resp.ActiveUntil = &until
	}
	return resp
}

type ExtendRequest struct {
	DeviceHash string `json:"device_hash" validate:"required"`
	Days       int    `json:"days" validate:"required,min=1,max=3650"`
}

type BlockRequest struct {
	DeviceHash string `json:"device_hash" validate:"required"`
	Blocked    *bool  `json:"blocked" validate:"required"`
}

type DeviceListResponse struct {
	Devices []models.Device `json:"devices"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
}
