// Package receipt defines the Proof-of-Intent receipt: a declaration,
// made by an agent before it acts, of what it intends to do, on which
// resource, and why. A receipt is created unsigned, signed exactly once
// over its canonical encoding, and treated as immutable afterwards.
package receipt

import (
	"time"

	"github.com/google/uuid"
)

// Version is the receipt schema version stamped into every receipt.
// It is part of the signed content.
const Version = "1.0"

// DefaultExpirationHorizon is applied when the caller supplies no
// explicit expiration time.
const DefaultExpirationHorizon = time.Hour

// RiskContext is the declared severity of the intended action.
type RiskContext string

const (
	RiskLow    RiskContext = "low"
	RiskMedium RiskContext = "medium"
	RiskHigh   RiskContext = "high"
)

// Valid reports whether r is one of the enumerated risk contexts.
func (r RiskContext) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Algorithm identifies the signature scheme recorded on a signed receipt.
type Algorithm string

const (
	AlgorithmRSA   Algorithm = "rsa"
	AlgorithmECDSA Algorithm = "ecdsa"
)

// Valid reports whether a is one of the enumerated algorithms.
func (a Algorithm) Valid() bool {
	return a == AlgorithmRSA || a == AlgorithmECDSA
}

// AuditEntry is a post-hoc annotation on a receipt. Audit entries are
// not part of the signed content, so they can be appended after signing
// without invalidating the signature.
type AuditEntry struct {
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Receipt is the Proof-of-Intent record. Signature and
// SignatureAlgorithm are set exactly once by the generator; every other
// field is fixed at construction. AuditTrail, ComplianceTags, and
// CertificateChain are annotations outside the signed content.
type Receipt struct {
	Version           string      `json:"version"`
	ReceiptID         string      `json:"receipt_id"`
	Timestamp         time.Time   `json:"timestamp"`
	AgentID           string      `json:"agent_id"`
	Action            string      `json:"action"`
	TargetResource    string      `json:"target_resource"`
	DeclaredObjective string      `json:"declared_objective"`
	RiskContext       RiskContext `json:"risk_context"`
	ExpirationTime    time.Time   `json:"expiration_time"`
	AdditionalContext Context     `json:"additional_context,omitempty"`

	// ParentReceiptSignature is the base64 signature of a causally
	// preceding receipt. It is a back-reference, not ownership.
	ParentReceiptSignature string `json:"parent_receipt_signature,omitempty"`

	SignatureAlgorithm Algorithm `json:"signature_algorithm,omitempty"`
	Signature          string    `json:"signature,omitempty"` // base64; empty means unsigned draft

	// CertificateChain carries the signer's PEM certificate alongside
	// the receipt for validators that require certificate checks.
	CertificateChain string `json:"certificate_chain,omitempty"`

	AuditTrail     []AuditEntry `json:"audit_trail,omitempty"`
	ComplianceTags []string     `json:"compliance_tags,omitempty"`
}

type options struct {
	risk       RiskContext
	expiration time.Time
	horizon    time.Duration
	context    Context
	parentSig  string
	now        func() time.Time
}

// Option customizes receipt construction.
type Option func(*options)

// WithRiskContext sets the declared risk severity.
func WithRiskContext(r RiskContext) Option {
	return func(o *options) { o.risk = r }
}

// WithExpiration sets an explicit expiration instant. It must be
// strictly after the creation timestamp.
func WithExpiration(t time.Time) Option {
	return func(o *options) { o.expiration = t }
}

// WithExpirationIn sets the expiration horizon relative to creation.
func WithExpirationIn(d time.Duration) Option {
	return func(o *options) { o.horizon = d }
}

// WithContext attaches the ordered additional-context fields.
func WithContext(ctx Context) Option {
	return func(o *options) { o.context = ctx }
}

// WithParentSignature links this receipt to the base64 signature of a
// causally preceding receipt, forming a lineage chain.
func WithParentSignature(sig string) Option {
	return func(o *options) { o.parentSig = sig }
}

// WithClock overrides the creation clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New constructs an unsigned receipt. AgentID, action, target resource,
// and declared objective are required; empty values are an
// InvalidFieldError. The receipt id is "poi_" plus a UUID.
func New(agentID, action, targetResource, declaredObjective string, opts ...Option) (*Receipt, error) {
	o := options{
		risk:    RiskLow,
		horizon: DefaultExpirationHorizon,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	now := o.now().UTC().Truncate(time.Microsecond)

	expiration := o.expiration
	if expiration.IsZero() {
		expiration = now.Add(o.horizon)
	}
	expiration = expiration.UTC().Truncate(time.Microsecond)

	r := &Receipt{
		Version:                Version,
		ReceiptID:              "poi_" + uuid.NewString(),
		Timestamp:              now,
		AgentID:                agentID,
		Action:                 action,
		TargetResource:         targetResource,
		DeclaredObjective:      declaredObjective,
		RiskContext:            o.risk,
		ExpirationTime:         expiration,
		AdditionalContext:      o.context,
		ParentReceiptSignature: o.parentSig,
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the construction invariants: required fields present,
// risk context enumerated, expiration strictly after the timestamp.
func (r *Receipt) Validate() error {
	switch {
	case r.AgentID == "":
		return &InvalidFieldError{Field: "agent_id", Reason: "must not be empty"}
	case r.Action == "":
		return &InvalidFieldError{Field: "action", Reason: "must not be empty"}
	case r.TargetResource == "":
		return &InvalidFieldError{Field: "target_resource", Reason: "must not be empty"}
	case r.DeclaredObjective == "":
		return &InvalidFieldError{Field: "declared_objective", Reason: "must not be empty"}
	}
	if !r.RiskContext.Valid() {
		return &InvalidFieldError{
			Field:  "risk_context",
			Reason: "must be one of low, medium, high",
		}
	}
	if !r.ExpirationTime.After(r.Timestamp) {
		return &InvalidFieldError{
			Field:  "expiration_time",
			Reason: "must be strictly after timestamp",
		}
	}
	return nil
}

// Signed reports whether the receipt carries a signature.
func (r *Receipt) Signed() bool {
	return r.Signature != ""
}

// IsExpired reports whether the receipt's expiration time has passed at
// the given instant.
func (r *Receipt) IsExpired(now time.Time) bool {
	return now.After(r.ExpirationTime)
}

// TimeUntilExpiration returns the remaining validity duration at the
// given instant. The second result is false once the receipt expired.
func (r *Receipt) TimeUntilExpiration(now time.Time) (time.Duration, bool) {
	if r.IsExpired(now) {
		return 0, false
	}
	return r.ExpirationTime.Sub(now), true
}

// AddAuditEntry appends a timestamped annotation. Audit entries live
// outside the signed content.
func (r *Receipt) AddAuditEntry(action string, details map[string]any) {
	r.AuditTrail = append(r.AuditTrail, AuditEntry{
		Action:    action,
		Details:   details,
		Timestamp: time.Now().UTC(),
	})
}

// AddComplianceTag records a compliance tag. Duplicates are ignored.
func (r *Receipt) AddComplianceTag(tag string) {
	for _, t := range r.ComplianceTags {
		if t == tag {
			return
		}
	}
	r.ComplianceTags = append(r.ComplianceTags, tag)
}
