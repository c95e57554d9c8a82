package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giovannypietro/poi/pkg/keymaterial"
	"github.com/giovannypietro/poi/pkg/lineage"
	"github.com/giovannypietro/poi/pkg/receipt"
	"github.com/giovannypietro/poi/pkg/sign"
	"github.com/giovannypietro/poi/pkg/store"
	"github.com/giovannypietro/poi/pkg/temporal"
	"github.com/giovannypietro/poi/pkg/trust"
	"github.com/giovannypietro/poi/pkg/validator"
)

func runValidateCmd(e *env, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		receiptFile string
		publicKey   string
		certFile    string
		requireCert bool
		skew        time.Duration
		maxDepth    int
		storePath   string
	)

	cmd.StringVar(&receiptFile, "receipt", "", "Receipt JSON file (REQUIRED)")
	cmd.StringVar(&publicKey, "public-key", "", "PEM public key file")
	cmd.StringVar(&certFile, "certificate", "", "PEM certificate file")
	cmd.BoolVar(&requireCert, "require-cert", e.cfg.RequireCertificateValidation, "Require certificate validation")
	cmd.DurationVar(&skew, "skew", e.cfg.ClockSkewTolerance, "Clock skew tolerance")
	cmd.IntVar(&maxDepth, "max-depth", e.cfg.MaxLineageDepth, "Maximum lineage depth")
	cmd.StringVar(&storePath, "store", e.cfg.StorePath, "SQLite archive used to resolve lineage")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if receiptFile == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -receipt is required")
		return 2
	}

	data, err := os.ReadFile(receiptFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read receipt: %v\n", err)
		return 2
	}

	r, err := receipt.ParseWire(data)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	opts := []validator.Option{
		validator.WithClockSkew(skew),
		validator.WithMaxLineageDepth(maxDepth),
	}

	if publicKey != "" || certFile != "" {
		opts = append(opts, validator.WithKeyMaterial(&keymaterial.FileProvider{
			PublicKeyPath:   publicKey,
			CertificatePath: certFile,
		}))
	}
	if requireCert {
		opts = append(opts, validator.RequireCertificateValidation())
	}
	if storePath != "" {
		archive, err := store.Open(storePath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		defer func() { _ = archive.Close() }()
		opts = append(opts, validator.WithLineageResolver(archive))
	}

	v, err := validator.New(opts...)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx, span := e.obs.StartSpan(context.Background(), "poi.validate",
		attribute.String("receipt_id", r.ReceiptID),
		attribute.String("agent_id", r.AgentID),
	)
	defer span.End()

	started := time.Now()
	verdict := v.Validate(r)
	e.obs.RecordValidation(ctx, time.Since(started), failureKind(verdict))

	if verdict != nil {
		slog.Default().With("component", "validate").Warn("receipt rejected",
			"receipt_id", r.ReceiptID, "reason", verdict.Error())
		_, _ = fmt.Fprintf(stdout, "INVALID: %v\n", verdict)
		return 1
	}

	_, _ = fmt.Fprintf(stdout, "VALID: receipt %s (agent %s, action %s)\n", r.ReceiptID, r.AgentID, r.Action)
	return 0
}

// failureKind maps a validation error to a low-cardinality metric
// label.
func failureKind(err error) string {
	if err == nil {
		return ""
	}

	var (
		invalid     *receipt.InvalidFieldError
		sigErr      *sign.VerificationError
		algMismatch *sign.AlgorithmMismatchError
		certParse   *trust.CertificateParseError
		certExpired *trust.CertificateExpiredError
		certWrong   *trust.CertificateMismatchError
		expired     *temporal.ExpiredReceiptError
		future      *temporal.FutureTimestampError
		broken      *lineage.BrokenError
		tooDeep     *lineage.TooDeepError
	)
	switch {
	case errors.As(err, &invalid):
		return "invalid_field"
	case errors.As(err, &algMismatch):
		return "algorithm_mismatch"
	case errors.As(err, &sigErr):
		return "signature"
	case errors.As(err, &certParse):
		return "certificate_parse"
	case errors.As(err, &certExpired):
		return "certificate_expired"
	case errors.As(err, &certWrong):
		return "certificate_mismatch"
	case errors.As(err, &expired):
		return "expired"
	case errors.As(err, &future):
		return "future_timestamp"
	case errors.As(err, &broken):
		return "lineage_broken"
	case errors.As(err, &tooDeep):
		return "lineage_too_deep"
	default:
		return "other"
	}
}
