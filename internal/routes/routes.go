package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/config"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	limiterStorage fiber.Storage,
	deviceHandler *handlers.DeviceHandler,
	adminHandler *handlers.AdminHandler,
	healthHandler *handlers.HealthHandler,
) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	api.Get("/health", healthHandler.Check)

	// Status protocol, rate limited per IP. limiterStorage may be nil (in-memory).
	device := api.Group("/device")
	device.Use(limiter.New(limiter.Config{
		Max:               cfg.StatusRateLimit,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
		Storage:           limiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many requests"})
		},
	}))
	device.Post("/status", deviceHandler.Status)

	admin := api.Group("/admin", middleware.AdminRequired(cfg))
	admin.Post("/activate", adminHandler.Activate)
	admin.Post("/block", adminHandler.Block)
	admin.Get("/devices", adminHandler.Devices)
}
