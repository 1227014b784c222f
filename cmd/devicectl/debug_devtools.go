//go:build devtools

package main

import (
	"context"
	"flag"
	"time"

	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/config"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/database"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/fingerprint"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/services"
)

func init() {
	commands["debug-activate"] = runDebugActivate
}

// runDebugActivate writes a 30-day activation straight into the ledger.
// It talks to the database, not the server, and needs the server's DB_* env.
func runDebugActivate(_ *config.ClientConfig, args []string) error {
	fs := flag.NewFlagSet("debug-activate", flag.ExitOnError)
	fp := fs.String("device-hash", "", "fingerprint to activate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := database.Connect(config.Load()); err != nil {
		return err
	}
	defer database.Close(database.DB)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	device, err := services.NewLedgerService(database.DB).DebugActivate(ctx, fingerprint.Normalize(*fp))
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"device_hash":  device.Fingerprint,
		"active_until": device.ActiveUntil.Format(time.RFC3339),
	})
}
