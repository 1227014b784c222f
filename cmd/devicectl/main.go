// Command devicectl runs the device side of the entitlement protocol: it
// derives the installation fingerprint, asks the server for a verdict and
// prints it together with the activation link.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/config"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/entitlement"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/fingerprint"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/logging"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/resolver"
)

type command func(cfg *config.ClientConfig, args []string) error

var commands = map[string]command{
	"status":      runStatus,
	"fingerprint": runFingerprint,
}

func main() {
	cfg := config.LoadClient()
	logging.Setup(os.Getenv("LOG_LEVEL"))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(2)
	}
	if err := run(cfg, os.Args[2:]); err != nil {
		slog.Error("devicectl failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(os.Stderr, "usage: devicectl <command> [flags]\ncommands: %v\n", names)
}

type statusOutput struct {
	Fingerprint   string              `json:"device_hash"`
	ActivationURL string              `json:"activation_url"`
	Verdict       entitlement.Verdict `json:"verdict"`
}

func runStatus(cfg *config.ClientConfig, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	installID := fs.String("install-id", os.Getenv("DEVICE_INSTALL_ID"), "stable installation identifier")
	backend := fs.String("backend", cfg.BackendURL, "entitlement server base URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.RequireTrialSalt(); err != nil {
		return err
	}

	if cfg.CacheSecret == "" {
		slog.Warn("VERDICT_CACHE_SECRET is empty, offline cache is unsigned in practice")
	}
	store := resolver.NewFileStore(cfg.StatePath, cfg.CacheSecret)

	ctx := context.Background()
	fp, err := deviceFingerprint(ctx, store, *installID, cfg.TrialSalt)
	if err != nil {
		return err
	}

	r := resolver.New(
		resolver.NewHTTPTransport(*backend, cfg.Timeout),
		store,
		resolver.WithTimeout(cfg.Timeout),
		resolver.WithOfflineGrace(cfg.OfflineGrace),
	)

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout+cfg.Timeout/2)
	defer cancel()
	verdict := r.GetVerdict(ctx, fp)

	return printJSON(statusOutput{
		Fingerprint:   fp,
		ActivationURL: fingerprint.ActivationURL(*backend, fp),
		Verdict:       verdict,
	})
}

func runFingerprint(cfg *config.ClientConfig, args []string) error {
	fs := flag.NewFlagSet("fingerprint", flag.ExitOnError)
	installID := fs.String("install-id", os.Getenv("DEVICE_INSTALL_ID"), "stable installation identifier")
	full := fs.Bool("full", false, "print the full 64-character digest as well")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.RequireTrialSalt(); err != nil {
		return err
	}

	fp, err := fingerprint.ForInstall(*installID, cfg.TrialSalt)
	if err != nil {
		return err
	}
	out := map[string]string{
		"device_hash":    fp,
		"activation_url": fingerprint.ActivationURL(cfg.BackendURL, fp),
	}
	if *full {
		out["digest"] = fingerprint.DeriveFull(*installID, cfg.TrialSalt)
	}
	return printJSON(out)
}

// deviceFingerprint returns the persisted fingerprint, deriving and storing
// it on first run.
func deviceFingerprint(ctx context.Context, store resolver.Store, installID, salt string) (string, error) {
	fp, err := store.LoadFingerprint(ctx)
	if err != nil {
		return "", err
	}
	if fingerprint.Validate(fp) == nil {
		return fp, nil
	}

	fp, err = fingerprint.ForInstall(installID, salt)
	if errors.Is(err, fingerprint.ErrUnknownDevice) {
		return "", fmt.Errorf("%w: pass -install-id or set DEVICE_INSTALL_ID", err)
	}
	if err != nil {
		return "", err
	}
	if err := store.SaveFingerprint(ctx, fp); err != nil {
		slog.Warn("failed to persist fingerprint", "error", err)
	}
	return fp, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
