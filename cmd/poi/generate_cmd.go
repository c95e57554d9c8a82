package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/giovannypietro/poi/pkg/generator"
	"github.com/giovannypietro/poi/pkg/keymaterial"
	"github.com/giovannypietro/poi/pkg/receipt"
	"github.com/giovannypietro/poi/pkg/store"
)

// contextFlags collects repeated -context key=value flags. Values are
// typed by shape: booleans and numbers are recognized, everything else
// is a string.
type contextFlags struct {
	ctx receipt.Context
}

func (f *contextFlags) String() string { return fmt.Sprintf("%d entries", len(f.ctx)) }

func (f *contextFlags) Set(kv string) error {
	key, raw, found := strings.Cut(kv, "=")
	if !found || key == "" {
		return fmt.Errorf("context entry must be key=value, got %q", kv)
	}
	switch {
	case raw == "true" || raw == "false":
		f.ctx = f.ctx.Set(key, receipt.Bool(raw == "true"))
	default:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			f.ctx = f.ctx.Set(key, receipt.Number(n))
		} else {
			f.ctx = f.ctx.Set(key, receipt.String(raw))
		}
	}
	return nil
}

func runGenerateCmd(e *env, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("generate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		agentID    string
		action     string
		resource   string
		objective  string
		risk       string
		expiresIn  time.Duration
		privateKey string
		certFile   string
		parentSig  string
		algorithm  string
		output     string
		storePath  string
		ctxFlags   contextFlags
	)

	cmd.StringVar(&agentID, "agent-id", "", "Acting agent identifier (REQUIRED)")
	cmd.StringVar(&action, "action", "", "Intended action (REQUIRED)")
	cmd.StringVar(&resource, "resource", "", "Target resource (REQUIRED)")
	cmd.StringVar(&objective, "objective", "", "Declared objective (REQUIRED)")
	cmd.StringVar(&risk, "risk", "low", "Risk context: low, medium, high")
	cmd.DurationVar(&expiresIn, "expires-in", e.cfg.DefaultExpiration, "Expiration horizon")
	cmd.StringVar(&privateKey, "private-key", "", "PEM private key file; omit to use an ephemeral key")
	cmd.StringVar(&certFile, "certificate", "", "PEM certificate file to attach")
	cmd.StringVar(&parentSig, "parent-signature", "", "Base64 signature of the parent receipt")
	cmd.StringVar(&algorithm, "algorithm", "ecdsa", "Ephemeral key algorithm: rsa or ecdsa")
	cmd.StringVar(&output, "output", "-", "Output file, or - for stdout")
	cmd.StringVar(&storePath, "store", e.cfg.StorePath, "SQLite archive to record the receipt in")
	cmd.Var(&ctxFlags, "context", "Additional context entry key=value (repeatable)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if agentID == "" || action == "" || resource == "" || objective == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -agent-id, -action, -resource, and -objective are required")
		return 2
	}

	logger := slog.Default().With("component", "generate")

	genOpts := []generator.Option{generator.WithDefaultExpiration(expiresIn)}
	if privateKey != "" {
		genOpts = append(genOpts, generator.WithKeyMaterial(&keymaterial.FileProvider{
			PrivateKeyPath:  privateKey,
			CertificatePath: certFile,
		}))
	} else {
		logger.Warn("no private key supplied, using an ephemeral key; receipts will not verify outside this process")
		genOpts = append(genOpts, generator.WithGeneratedKey(receipt.Algorithm(algorithm)))
		if certFile != "" {
			pemData, err := os.ReadFile(certFile)
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "Error: read certificate: %v\n", err)
				return 2
			}
			genOpts = append(genOpts, generator.WithCertificate(pemData))
		}
	}

	gen, err := generator.New(genOpts...)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	recOpts := []receipt.Option{receipt.WithRiskContext(receipt.RiskContext(risk))}
	if len(ctxFlags.ctx) > 0 {
		recOpts = append(recOpts, receipt.WithContext(ctxFlags.ctx))
	}
	if parentSig != "" {
		recOpts = append(recOpts, receipt.WithParentSignature(parentSig))
	}

	r, err := gen.Generate(agentID, action, resource, objective, recOpts...)
	if err != nil {
		var invalid *receipt.InvalidFieldError
		if errors.As(err, &invalid) {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if storePath != "" {
		archive, err := store.Open(storePath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		defer func() { _ = archive.Close() }()
		if err := archive.Put(context.Background(), r); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}

	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	body = append(body, '\n')

	if output == "-" || output == "" {
		_, _ = stdout.Write(body)
	} else if err := os.WriteFile(output, body, 0600); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: write receipt: %v\n", err)
		return 2
	}

	e.obs.RecordGenerated(context.Background(), string(r.SignatureAlgorithm))
	logger.Info("receipt generated", "receipt_id", r.ReceiptID, "agent_id", agentID, "algorithm", string(r.SignatureAlgorithm))
	return 0
}
