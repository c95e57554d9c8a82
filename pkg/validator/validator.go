// Package validator orchestrates receipt acceptance: structural
// invariants, signature verification, optional certificate binding,
// temporal validity, and lineage chain verification, in that order.
// The first failure short-circuits and is returned as the typed error
// from the component that produced it — never a bare boolean.
package validator

import (
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/giovannypietro/poi/pkg/canonical"
	"github.com/giovannypietro/poi/pkg/keymaterial"
	"github.com/giovannypietro/poi/pkg/lineage"
	"github.com/giovannypietro/poi/pkg/receipt"
	"github.com/giovannypietro/poi/pkg/sign"
	"github.com/giovannypietro/poi/pkg/temporal"
	"github.com/giovannypietro/poi/pkg/trust"
)

// Validator judges receipts. It never mutates them. Safe for
// concurrent use: configuration and key material are read-only for the
// validator's lifetime.
type Validator struct {
	public      crypto.PublicKey
	certificate *x509.Certificate
	requireCert bool
	skew        time.Duration
	maxDepth    int
	resolver    lineage.Resolver
	clock       temporal.Clock
}

// Option configures a Validator.
type Option func(*Validator) error

// WithPublicKey sets the verification key.
func WithPublicKey(pub crypto.PublicKey) Option {
	return func(v *Validator) error {
		v.public = pub
		return nil
	}
}

// WithKeyMaterial takes the verification key (and certificate, if
// present) from a key material provider.
func WithKeyMaterial(p keymaterial.Provider) Option {
	return func(v *Validator) error {
		m, err := p.Load()
		if err != nil {
			return fmt.Errorf("load key material: %w", err)
		}
		if m.Public != nil {
			v.public = m.Public
		}
		if m.Certificate != nil {
			v.certificate = m.Certificate
		}
		return nil
	}
}

// WithCertificatePEM parses and pins the signer certificate used for
// certificate validation.
func WithCertificatePEM(pemData []byte) Option {
	return func(v *Validator) error {
		cert, err := trust.Parse(pemData)
		if err != nil {
			return err
		}
		v.certificate = cert
		return nil
	}
}

// RequireCertificateValidation turns on the certificate check. When
// off, only raw key-based signature verification occurs.
func RequireCertificateValidation() Option {
	return func(v *Validator) error {
		v.requireCert = true
		return nil
	}
}

// WithClockSkew sets the clock-skew tolerance for temporal checks.
// Zero is strict; negative values are rejected.
func WithClockSkew(d time.Duration) Option {
	return func(v *Validator) error {
		if d < 0 {
			return fmt.Errorf("clock skew tolerance must not be negative, got %s", d)
		}
		v.skew = d
		return nil
	}
}

// WithLineageResolver supplies the capability that maps parent
// signatures back to receipts.
func WithLineageResolver(r lineage.Resolver) Option {
	return func(v *Validator) error {
		v.resolver = r
		return nil
	}
}

// WithMaxLineageDepth bounds chain verification depth.
func WithMaxLineageDepth(n int) Option {
	return func(v *Validator) error {
		if n <= 0 {
			return fmt.Errorf("max lineage depth must be positive, got %d", n)
		}
		v.maxDepth = n
		return nil
	}
}

// WithClock overrides the verification clock. Intended for tests.
func WithClock(c temporal.Clock) Option {
	return func(v *Validator) error {
		v.clock = c
		return nil
	}
}

// New constructs a Validator with the default skew tolerance and
// lineage depth.
func New(opts ...Option) (*Validator, error) {
	v := &Validator{
		skew:     temporal.DefaultClockSkewTolerance,
		maxDepth: lineage.DefaultMaxDepth,
		clock:    temporal.SystemClock{},
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Validate judges the receipt at the validator's clock.
func (v *Validator) Validate(r *receipt.Receipt) error {
	return v.ValidateAt(r, v.clock.Now())
}

// ValidateAt judges the receipt at an explicit instant. Checks run in
// order: structure, signature, certificate (if required), temporal,
// lineage (if a parent reference is present).
func (v *Validator) ValidateAt(r *receipt.Receipt, now time.Time) error {
	if err := v.check(r, now); err != nil {
		return err
	}

	if r.ParentReceiptSignature != "" {
		ancestorCheck := func(a *receipt.Receipt) error {
			return v.check(a, now)
		}
		if err := lineage.Verify(r, v.resolver, ancestorCheck, v.maxDepth); err != nil {
			return err
		}
	}
	return nil
}

// IsValid is the boolean convenience wrapper over the typed result.
// The typed error is deliberately discarded; callers needing the
// failure kind use Validate.
func (v *Validator) IsValid(r *receipt.Receipt) bool {
	return v.Validate(r) == nil
}

// check runs the per-receipt verification steps (everything except
// lineage recursion, which applies check to each ancestor).
func (v *Validator) check(r *receipt.Receipt, now time.Time) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if !r.Signed() {
		return &sign.VerificationError{Algorithm: r.SignatureAlgorithm, Reason: "receipt is unsigned"}
	}

	sigBytes, err := base64.StdEncoding.DecodeString(r.Signature)
	if err != nil {
		return &sign.VerificationError{Algorithm: r.SignatureAlgorithm, Reason: "signature is not valid base64"}
	}

	pub, cert, err := v.verificationKey(r)
	if err != nil {
		return err
	}

	data, err := canonical.Encode(r)
	if err != nil {
		return err
	}
	if err := sign.Verify(data, sigBytes, pub, r.SignatureAlgorithm); err != nil {
		return err
	}

	if v.requireCert {
		if cert == nil {
			return &trust.CertificateParseError{Reason: "certificate validation required but no certificate available"}
		}
		if err := trust.Validate(cert, pub, now); err != nil {
			return err
		}
	}

	return temporal.Check(r, now, v.skew)
}

// verificationKey resolves the public key and certificate for a
// receipt: the configured key wins; otherwise the key is taken from
// the configured certificate or the certificate the receipt carries.
func (v *Validator) verificationKey(r *receipt.Receipt) (crypto.PublicKey, *x509.Certificate, error) {
	cert := v.certificate
	if cert == nil && r.CertificateChain != "" {
		parsed, err := trust.Parse([]byte(r.CertificateChain))
		if err != nil {
			return nil, nil, err
		}
		cert = parsed
	}

	pub := v.public
	if pub == nil && cert != nil {
		pub = cert.PublicKey
	}
	if pub == nil {
		return nil, nil, fmt.Errorf("no verification key configured and receipt carries no certificate")
	}
	return pub, cert, nil
}
