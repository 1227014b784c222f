package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/dto"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/fingerprint"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type AdminHandler struct {
	ledger   *services.LedgerService
	validate *validator.Validate
}

func NewAdminHandler(ledger *services.LedgerService) *AdminHandler {
	return &AdminHandler{
		ledger:   ledger,
		validate: validator.New(),
	}
}

// Activate extends the paid entitlement window of a known device.
func (h *AdminHandler) Activate(c *fiber.Ctx) error {
	var req dto.ExtendRequest
	if err := c.BodyParser(&req); err != nil || h.validate.Struct(&req) != nil {
		return badInput(c)
	}

	device, err := h.ledger.Extend(c.UserContext(), fingerprint.Normalize(req.DeviceHash), req.Days)
	if err != nil {
		return h.ledgerError(c, "activate", req.DeviceHash, err)
	}
	return c.JSON(device)
}

// Block sets or clears the administrative kill-switch.
func (h *AdminHandler) Block(c *fiber.Ctx) error {
	var req dto.BlockRequest
	if err := c.BodyParser(&req); err != nil || h.validate.Struct(&req) != nil {
		return badInput(c)
	}

	device, err := h.ledger.SetBlocked(c.UserContext(), fingerprint.Normalize(req.DeviceHash), *req.Blocked)
	if err != nil {
		return h.ledgerError(c, "block", req.DeviceHash, err)
	}
	return c.JSON(device)
}

// Devices dumps ledger records, most recently seen first.
func (h *AdminHandler) Devices(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", strconv.Itoa(services.MaxListPageSize)))

	devices, err := h.ledger.List(c.UserContext(), limit)
	if err != nil {
		slog.Error("list devices failed", "request_id", requestID(c), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: "Internal Server Error",
		})
	}
	return c.JSON(dto.DeviceListResponse{Devices: devices})
}

func (h *AdminHandler) ledgerError(c *fiber.Ctx, action, fp string, err error) error {
	switch {
	case errors.Is(err, services.ErrDeviceNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "Device not found"})
	case errors.Is(err, services.ErrMalformedFingerprint), errors.Is(err, services.ErrInvalidDays):
		return badInput(c)
	}
	slog.Error("admin ledger operation failed", "action", action, "fingerprint", fp, "request_id", requestID(c), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "Internal Server Error"})
}

func badInput(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "Invalid input"})
}
