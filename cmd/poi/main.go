// Command poi issues and verifies Proof-of-Intent receipts.
//
// Subcommands:
//
//	generate  build and sign a receipt from declared intent
//	validate  judge a receipt: signature, certificate, expiry, lineage
//	export    wrap a signed receipt in a bearer JWT
//	archive   look up receipts in the SQLite archive
//
// Exit codes follow the receipt-validation convention: 0 success,
// 1 typed validation failure, 2 malformed input or runtime error.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/giovannypietro/poi/pkg/config"
	"github.com/giovannypietro/poi/pkg/observability"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// env carries the configuration and telemetry shared by subcommands.
type env struct {
	cfg *config.Config
	obs *observability.Provider
}

// Run dispatches subcommands. Split from main for tests.
func Run(args []string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	initLogger(stderr, cfg.LogLevel)

	ctx := context.Background()
	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "poi",
		ServiceVersion: "1.0.0",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TelemetryEnabled,
		Insecure:       true,
		BatchTimeout:   5 * time.Second,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: telemetry init: %v\n", err)
		return 2
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	e := &env{cfg: cfg, obs: obs}

	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "generate":
		return runGenerateCmd(e, args[2:], stdout, stderr)
	case "validate":
		return runValidateCmd(e, args[2:], stdout, stderr)
	case "export":
		return runExportCmd(args[2:], stdout, stderr)
	case "archive":
		return runArchiveCmd(args[2:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", args[1])
		usage(stderr)
		return 2
	}
}

// loadConfig reads environment configuration, overlaid by the YAML file
// named in POI_CONFIG when set.
func loadConfig() (*config.Config, error) {
	if path := os.Getenv("POI_CONFIG"); path != "" {
		return config.LoadFile(path)
	}
	return config.Load(), nil
}

func initLogger(stderr io.Writer, logLevel string) {
	level := slog.LevelInfo
	switch logLevel {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))
}

func usage(w io.Writer) {
	_, _ = fmt.Fprint(w, `poi — Proof-of-Intent receipts

Usage:
  poi generate -agent-id ID -action ACTION -resource RESOURCE -objective TEXT [flags]
  poi validate -receipt FILE [flags]
  poi export   -receipt FILE -private-key FILE
  poi archive  -store FILE (-get ID | -agent ID)

Run a subcommand with -h for its flags.
`)
}
