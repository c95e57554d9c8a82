package canonical

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giovannypietro/poi/pkg/receipt"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testInstant = time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC)

func newTestReceipt(t *testing.T, opts ...receipt.Option) *receipt.Receipt {
	t.Helper()
	opts = append([]receipt.Option{receipt.WithClock(fixedClock(testInstant))}, opts...)
	r, err := receipt.New("agent_123", "database_query", "user_data", "Fetch user profile", opts...)
	require.NoError(t, err)
	return r
}

func TestEncode_Deterministic(t *testing.T) {
	r := newTestReceipt(t)

	a, err := Encode(r)
	require.NoError(t, err)
	b, err := Encode(r)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEncode_ContextOrderIndependent(t *testing.T) {
	r1 := newTestReceipt(t, receipt.WithContext(
		receipt.Context{}.Set("b", receipt.String("2")).Set("a", receipt.String("1")),
	))
	r2 := newTestReceipt(t, receipt.WithContext(
		receipt.Context{}.Set("a", receipt.String("1")).Set("b", receipt.String("2")),
	))
	// Same identity so only insertion order differs.
	r2.ReceiptID = r1.ReceiptID

	a, err := Encode(r1)
	require.NoError(t, err)
	b, err := Encode(r2)
	require.NoError(t, err)

	assert.Equal(t, a, b, "insertion order must not influence canonical bytes")
}

func TestEncode_SortsKeysLexicographically(t *testing.T) {
	r := newTestReceipt(t, receipt.WithContext(
		receipt.Context{}.Set("zeta", receipt.String("z")).Set("alpha", receipt.String("a")),
	))

	out, err := Encode(r)
	require.NoError(t, err)

	encoded := string(out)
	assert.Less(t, strings.Index(encoded, `"alpha"`), strings.Index(encoded, `"zeta"`))
	// Top-level keys are sorted too: "action" precedes "agent_id".
	assert.Less(t, strings.Index(encoded, `"action"`), strings.Index(encoded, `"agent_id"`))
}

func TestEncode_ExcludesSignatureAndAnnotations(t *testing.T) {
	r := newTestReceipt(t)

	before, err := Encode(r)
	require.NoError(t, err)

	r.Signature = "c2lnbmF0dXJl"
	r.SignatureAlgorithm = receipt.AlgorithmRSA
	r.CertificateChain = "-----BEGIN CERTIFICATE-----"
	r.AddAuditEntry("accessed", nil)
	r.AddComplianceTag("GDPR")

	after, err := Encode(r)
	require.NoError(t, err)

	assert.Equal(t, before, after, "signature and annotations must not change canonical bytes")
}

func TestEncode_OmitsAbsentOptionalFields(t *testing.T) {
	r := newTestReceipt(t)

	out, err := Encode(r)
	require.NoError(t, err)

	encoded := string(out)
	assert.NotContains(t, encoded, "additional_context")
	assert.NotContains(t, encoded, "parent_receipt_signature")
	assert.NotContains(t, encoded, "null")
}

func TestEncode_EveryFieldChangesOutput(t *testing.T) {
	base := newTestReceipt(t, receipt.WithContext(
		receipt.Context{}.Set("k", receipt.String("v")),
	))
	baseBytes, err := Encode(base)
	require.NoError(t, err)

	mutations := map[string]func(r *receipt.Receipt){
		"receipt_id":         func(r *receipt.Receipt) { r.ReceiptID = "poi_other" },
		"timestamp":          func(r *receipt.Receipt) { r.Timestamp = r.Timestamp.Add(time.Microsecond) },
		"agent_id":           func(r *receipt.Receipt) { r.AgentID = "agent_456" },
		"action":             func(r *receipt.Receipt) { r.Action = "file_write" },
		"target_resource":    func(r *receipt.Receipt) { r.TargetResource = "other_data" },
		"declared_objective": func(r *receipt.Receipt) { r.DeclaredObjective = "Something else" },
		"risk_context":       func(r *receipt.Receipt) { r.RiskContext = receipt.RiskHigh },
		"expiration_time":    func(r *receipt.Receipt) { r.ExpirationTime = r.ExpirationTime.Add(time.Second) },
		"additional_context": func(r *receipt.Receipt) {
			r.AdditionalContext = r.AdditionalContext.Set("k", receipt.String("tampered"))
		},
		"parent_signature": func(r *receipt.Receipt) { r.ParentReceiptSignature = "cGFyZW50" },
		"version":          func(r *receipt.Receipt) { r.Version = "2.0" },
	}

	for field, mutate := range mutations {
		t.Run(field, func(t *testing.T) {
			clone := *base
			clone.AdditionalContext = append(receipt.Context(nil), base.AdditionalContext...)
			mutate(&clone)

			mutated, err := Encode(&clone)
			require.NoError(t, err)
			assert.NotEqual(t, baseBytes, mutated, "mutating %s must change canonical bytes", field)
		})
	}
}

func TestEncode_NonFiniteNumbers(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		r := newTestReceipt(t, receipt.WithContext(
			receipt.Context{}.Set("bad", receipt.Number(bad)),
		))
		_, err := Encode(r)
		var encErr *EncodingError
		require.ErrorAs(t, err, &encErr)
		assert.Contains(t, encErr.Field, "bad")
	}
}

func TestFormatTime_FixedPrecision(t *testing.T) {
	assert.Equal(t, "2026-03-01T12:00:00.123456Z", FormatTime(testInstant))

	// Whole seconds still render six fractional digits.
	whole := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-01T12:00:00.000000Z", FormatTime(whole))

	// Non-UTC instants are converted.
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, "2026-03-01T17:00:00.000000Z", FormatTime(time.Date(2026, 3, 1, 12, 0, 0, 0, est)))
}

func TestHash_StableHex(t *testing.T) {
	r := newTestReceipt(t)

	h1, err := Hash(r)
	require.NoError(t, err)
	h2, err := Hash(r)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}
