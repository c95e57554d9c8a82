// Package generator orchestrates receipt construction, canonical
// encoding, and signing into one operation: declare intent, get back a
// signed receipt. It has no side effects beyond producing the value.
package generator

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/giovannypietro/poi/pkg/canonical"
	"github.com/giovannypietro/poi/pkg/keymaterial"
	"github.com/giovannypietro/poi/pkg/receipt"
	"github.com/giovannypietro/poi/pkg/sign"
)

// Generator produces signed receipts with a fixed signer. Safe for
// concurrent use: the signer's key is read-only for the generator's
// lifetime.
type Generator struct {
	signer         sign.Signer
	certificatePEM []byte
	horizon        time.Duration
	now            func() time.Time
}

// Option configures a Generator.
type Option func(*Generator) error

// WithSigner uses an already-constructed signer.
func WithSigner(s sign.Signer) Option {
	return func(g *Generator) error {
		g.signer = s
		return nil
	}
}

// WithKeyMaterial builds the signer from a key material provider. The
// provider's certificate, if any, is attached to generated receipts.
func WithKeyMaterial(p keymaterial.Provider) Option {
	return func(g *Generator) error {
		m, err := p.Load()
		if err != nil {
			return fmt.Errorf("load key material: %w", err)
		}
		if m.Private == nil {
			return fmt.Errorf("key material carries no private key")
		}
		s, err := sign.NewSigner(m.Private)
		if err != nil {
			return err
		}
		g.signer = s
		if len(m.CertificatePEM) > 0 {
			g.certificatePEM = m.CertificatePEM
		}
		return nil
	}
}

// WithGeneratedKey creates an ephemeral process-lifetime key pair for
// the given algorithm. Receipts signed this way are only verifiable
// within the same process; an explicit opt-in keeps that trade-off
// visible instead of an implicit fallback.
func WithGeneratedKey(alg receipt.Algorithm) Option {
	return func(g *Generator) error {
		s, err := sign.Generate(alg)
		if err != nil {
			return err
		}
		g.signer = s
		return nil
	}
}

// WithCertificate attaches a PEM certificate to every generated
// receipt.
func WithCertificate(pemData []byte) Option {
	return func(g *Generator) error {
		g.certificatePEM = pemData
		return nil
	}
}

// WithDefaultExpiration sets the horizon applied when a receipt is
// generated without an explicit expiration.
func WithDefaultExpiration(d time.Duration) Option {
	return func(g *Generator) error {
		if d <= 0 {
			return fmt.Errorf("default expiration must be positive, got %s", d)
		}
		g.horizon = d
		return nil
	}
}

// WithClock overrides the creation clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) error {
		g.now = now
		return nil
	}
}

// New constructs a Generator. Exactly one key source must be chosen:
// WithSigner, WithKeyMaterial, or WithGeneratedKey.
func New(opts ...Option) (*Generator, error) {
	g := &Generator{
		horizon: receipt.DefaultExpirationHorizon,
		now:     time.Now,
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	if g.signer == nil {
		return nil, fmt.Errorf("generator requires key material: use WithSigner, WithKeyMaterial, or WithGeneratedKey")
	}
	return g, nil
}

// Signer exposes the generator's signer, e.g. for token export or for
// verifying this generator's own receipts.
func (g *Generator) Signer() sign.Signer { return g.signer }

// Generate builds, canonically encodes, and signs a receipt in one
// step. Receipt options (risk context, expiration, additional context,
// parent signature) pass through to receipt construction.
func (g *Generator) Generate(agentID, action, targetResource, declaredObjective string, opts ...receipt.Option) (*receipt.Receipt, error) {
	opts = append([]receipt.Option{
		receipt.WithClock(g.now),
		receipt.WithExpirationIn(g.horizon),
	}, opts...)

	r, err := receipt.New(agentID, action, targetResource, declaredObjective, opts...)
	if err != nil {
		return nil, err
	}

	data, err := canonical.Encode(r)
	if err != nil {
		return nil, err
	}

	sig, err := g.signer.Sign(data)
	if err != nil {
		return nil, err
	}

	r.Signature = base64.StdEncoding.EncodeToString(sig)
	r.SignatureAlgorithm = g.signer.Algorithm()
	if len(g.certificatePEM) > 0 {
		r.CertificateChain = string(g.certificatePEM)
	}
	return r, nil
}
