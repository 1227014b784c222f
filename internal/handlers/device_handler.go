package handlers

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/dto"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/fingerprint"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/services"
	"github.com/gofiber/fiber/v2"
)

type DeviceHandler struct {
	ledger *services.LedgerService
}

func NewDeviceHandler(ledger *services.LedgerService) *DeviceHandler {
	return &DeviceHandler{ledger: ledger}
}

// Status implements the status protocol exchange.
func (h *DeviceHandler) Status(c *fiber.Ctx) error {
	var req dto.DeviceStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidHash(c)
	}

	fp := fingerprint.Normalize(req.DeviceHash)
	if err := fingerprint.Validate(fp); err != nil {
		return invalidHash(c)
	}

	device, verdict, err := h.ledger.Resolve(c.UserContext(), fp)
	if err != nil {
		if errors.Is(err, services.ErrMalformedFingerprint) {
			return invalidHash(c)
		}
		slog.Error("device status failed", "fingerprint", fp, "request_id", requestID(c), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: "Internal Server Error",
		})
	}

	// server_time must be the instant the verdict was computed against.
	return c.JSON(dto.NewDeviceStatusResponse(verdict.EvaluatedAt, device, verdict))
}

func invalidHash(c *fiber.Ctx) error {
	metrics.RejectedHashes.Inc()
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error: "Invalid device hash",
	})
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}
