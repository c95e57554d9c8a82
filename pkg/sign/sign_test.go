package sign

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giovannypietro/poi/pkg/receipt"
)

func TestRSASigner_SignVerify(t *testing.T) {
	signer, err := Generate(receipt.AlgorithmRSA)
	require.NoError(t, err)
	assert.Equal(t, receipt.AlgorithmRSA, signer.Algorithm())

	data := []byte(`{"action":"database_query"}`)
	sig, err := signer.Sign(data)
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	require.NoError(t, Verify(data, sig, signer.Public(), receipt.AlgorithmRSA))
}

func TestECDSASigner_SignVerify(t *testing.T) {
	signer, err := Generate(receipt.AlgorithmECDSA)
	require.NoError(t, err)
	assert.Equal(t, receipt.AlgorithmECDSA, signer.Algorithm())

	data := []byte(`{"action":"database_query"}`)
	sig, err := signer.Sign(data)
	require.NoError(t, err)

	require.NoError(t, Verify(data, sig, signer.Public(), receipt.AlgorithmECDSA))
}

func TestVerify_TamperedBytes(t *testing.T) {
	for _, alg := range []receipt.Algorithm{receipt.AlgorithmRSA, receipt.AlgorithmECDSA} {
		t.Run(string(alg), func(t *testing.T) {
			signer, err := Generate(alg)
			require.NoError(t, err)

			data := []byte("original canonical bytes")
			sig, err := signer.Sign(data)
			require.NoError(t, err)

			err = Verify([]byte("tampered canonical bytes"), sig, signer.Public(), alg)
			var verr *VerificationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestVerify_WrongKey(t *testing.T) {
	signer, err := Generate(receipt.AlgorithmECDSA)
	require.NoError(t, err)
	other, err := Generate(receipt.AlgorithmECDSA)
	require.NoError(t, err)

	data := []byte("canonical bytes")
	sig, err := signer.Sign(data)
	require.NoError(t, err)

	err = Verify(data, sig, other.Public(), receipt.AlgorithmECDSA)
	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
}

func TestVerify_AlgorithmMismatch(t *testing.T) {
	// Signed with ECDSA but labeled rsa: must be a mismatch, never a
	// silent pass and never a bare verification failure.
	signer, err := Generate(receipt.AlgorithmECDSA)
	require.NoError(t, err)

	data := []byte("canonical bytes")
	sig, err := signer.Sign(data)
	require.NoError(t, err)

	err = Verify(data, sig, signer.Public(), receipt.AlgorithmRSA)
	var mismatch *AlgorithmMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, receipt.AlgorithmRSA, mismatch.Stated)
}

func TestVerify_UnknownStatedAlgorithm(t *testing.T) {
	signer, err := Generate(receipt.AlgorithmRSA)
	require.NoError(t, err)

	err = Verify([]byte("x"), []byte("y"), signer.Public(), receipt.Algorithm("ed25519"))
	var mismatch *AlgorithmMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestNewSigner_DispatchesOnKeyType(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	s, err := NewSigner(rsaKey)
	require.NoError(t, err)
	assert.Equal(t, receipt.AlgorithmRSA, s.Algorithm())

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	s, err = NewSigner(ecKey)
	require.NoError(t, err)
	assert.Equal(t, receipt.AlgorithmECDSA, s.Algorithm())

	_, err = NewSigner("not a key")
	require.Error(t, err)
}

func TestNewRSASigner_RejectsShortKeys(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	_, err = NewRSASigner(key)
	require.Error(t, err)
}

func TestNewECDSASigner_RejectsOtherCurves(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	_, err = NewECDSASigner(key)
	require.Error(t, err)
}

func TestGenerate_UnknownAlgorithm(t *testing.T) {
	_, err := Generate(receipt.Algorithm("dsa"))
	require.Error(t, err)
}
