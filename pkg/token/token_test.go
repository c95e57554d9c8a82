package token

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giovannypietro/poi/pkg/generator"
	"github.com/giovannypietro/poi/pkg/keymaterial"
	"github.com/giovannypietro/poi/pkg/receipt"
)

// Tokens carry real exp claims, so receipts here are issued on the wall
// clock rather than a fixed instant.
func exportableReceipt(t *testing.T, key any) *receipt.Receipt {
	t.Helper()
	g, err := generator.New(
		generator.WithKeyMaterial(&keymaterial.Static{Material: keymaterial.Material{Private: key}}),
		generator.WithDefaultExpiration(time.Hour),
	)
	require.NoError(t, err)

	r, err := g.Generate("agent_123", "database_query", "user_data", "Fetch user profile")
	require.NoError(t, err)
	return r
}

func TestExportParse_ECDSA(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	r := exportableReceipt(t, key)

	tokenString, err := Export(r, key)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	back, err := Parse(tokenString, &key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, r.ReceiptID, back.ReceiptID)
	assert.Equal(t, r.Signature, back.Signature)
	assert.True(t, r.ExpirationTime.Equal(back.ExpirationTime))
}

func TestExportParse_RSA(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	r := exportableReceipt(t, key)

	tokenString, err := Export(r, key)
	require.NoError(t, err)

	back, err := Parse(tokenString, &key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, r.ReceiptID, back.ReceiptID)
}

func TestExport_RejectsUnsigned(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	r, err := receipt.New("agent_123", "database_query", "user_data", "Fetch user profile")
	require.NoError(t, err)

	_, err = Export(r, key)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsigned")
}

func TestExport_UnsupportedKey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	r := exportableReceipt(t, key)

	_, err = Export(r, "not a key")
	require.Error(t, err)
}

func TestParse_WrongKey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	r := exportableReceipt(t, key)
	tokenString, err := Export(r, key)
	require.NoError(t, err)

	_, err = Parse(tokenString, &other.PublicKey)
	require.Error(t, err)
}

func TestParse_CrossAlgorithmRejected(t *testing.T) {
	// ES256 token checked against an RSA key must fail on method, not
	// fall through to signature comparison.
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	r := exportableReceipt(t, ecKey)
	tokenString, err := Export(r, ecKey)
	require.NoError(t, err)

	_, err = Parse(tokenString, &rsaKey.PublicKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing method")
}

func TestParse_Garbage(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	_, err = Parse("not.a.token", &key.PublicKey)
	require.Error(t, err)
}
