// Command admintoken mints a short-lived admin JWT signed with JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/config"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/logging"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/services"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel)

	subject := flag.String("subject", "operator", "token subject")
	ttl := flag.Duration("ttl", cfg.JWTAdminExpiry, "token lifetime")
	flag.Parse()

	token, err := services.IssueAdminToken(cfg.JWTSecret, *subject, *ttl)
	if err != nil {
		slog.Error("failed to issue admin token", "error", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
