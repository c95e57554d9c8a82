// Package canonical produces the single deterministic byte form of a
// receipt's signable content. The encoding is RFC 8785 (JSON
// Canonicalization Scheme) applied to the receipt's signable view:
// object keys sorted by UTF-8 bytes, ES6 number serialization, no HTML
// escaping, no insignificant whitespace.
//
// The signable view contains version, receipt_id, timestamp, agent_id,
// action, target_resource, declared_objective, risk_context,
// expiration_time, additional_context (omitted when empty), and
// parent_receipt_signature (omitted when absent). The signature, the
// stated algorithm, and post-signing annotations (certificate chain,
// audit trail, compliance tags) are excluded, so they can be attached
// or appended without changing the signed bytes.
//
// Two implementations that follow this layout produce byte-identical
// encodings for the same receipt; treat any change here as a
// compatibility break.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/giovannypietro/poi/pkg/receipt"
)

// TimeLayout renders instants as RFC 3339 UTC with fixed microsecond
// precision. Both implementations of the format must agree on the
// sub-second width, so it is pinned here.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// EncodingError reports a field the canonical form cannot represent.
type EncodingError struct {
	Field  string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("cannot canonicalize field %q: %s", e.Field, e.Reason)
}

// signable is the fixed set of signed receipt fields. Declaration
// order is irrelevant: JCS orders keys lexicographically.
type signable struct {
	Version                string          `json:"version"`
	ReceiptID              string          `json:"receipt_id"`
	Timestamp              string          `json:"timestamp"`
	AgentID                string          `json:"agent_id"`
	Action                 string          `json:"action"`
	TargetResource         string          `json:"target_resource"`
	DeclaredObjective      string          `json:"declared_objective"`
	RiskContext            string          `json:"risk_context"`
	ExpirationTime         string          `json:"expiration_time"`
	AdditionalContext      receipt.Context `json:"additional_context,omitempty"`
	ParentReceiptSignature string          `json:"parent_receipt_signature,omitempty"`
}

// Encode returns the canonical bytes of the receipt's signable content.
func Encode(r *receipt.Receipt) ([]byte, error) {
	for _, f := range r.AdditionalContext {
		if f.Value.Kind == receipt.KindNumber {
			if math.IsNaN(f.Value.Num) || math.IsInf(f.Value.Num, 0) {
				return nil, &EncodingError{
					Field:  "additional_context." + f.Key,
					Reason: "non-finite numbers are not representable",
				}
			}
		}
	}

	view := signable{
		Version:                r.Version,
		ReceiptID:              r.ReceiptID,
		Timestamp:              FormatTime(r.Timestamp),
		AgentID:                r.AgentID,
		Action:                 r.Action,
		TargetResource:         r.TargetResource,
		DeclaredObjective:      r.DeclaredObjective,
		RiskContext:            string(r.RiskContext),
		ExpirationTime:         FormatTime(r.ExpirationTime),
		AdditionalContext:      r.AdditionalContext,
		ParentReceiptSignature: r.ParentReceiptSignature,
	}

	raw, err := json.Marshal(view)
	if err != nil {
		return nil, &EncodingError{Field: "receipt", Reason: err.Error()}
	}

	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, &EncodingError{Field: "receipt", Reason: err.Error()}
	}
	return out, nil
}

// Hash returns the SHA-256 hex digest of the canonical encoding.
func Hash(r *receipt.Receipt) (string, error) {
	b, err := Encode(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// FormatTime renders t in the pinned canonical layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
