// Package sign is the algorithm-agnostic signature engine. It signs
// and verifies canonical receipt bytes with RSA or ECDSA keys.
//
// Scheme pins, part of the compatibility contract:
//   - RSA: RSA-PSS, SHA-256, salt length equal to the digest length.
//   - ECDSA: curve P-256, SHA-256, ASN.1 DER signatures.
package sign

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"github.com/giovannypietro/poi/pkg/receipt"
)

// MinRSABits is the smallest RSA modulus the engine accepts.
const MinRSABits = 2048

var pssOptions = &rsa.PSSOptions{
	SaltLength: rsa.PSSSaltLengthEqualsHash,
	Hash:       crypto.SHA256,
}

// Signer produces signatures over canonical bytes with a fixed key.
// Implementations are safe for concurrent use: the key is read-only
// for the signer's lifetime.
type Signer interface {
	Sign(data []byte) ([]byte, error)
	Algorithm() receipt.Algorithm
	Public() crypto.PublicKey
}

// RSASigner signs with RSA-PSS over SHA-256.
type RSASigner struct {
	key *rsa.PrivateKey
}

// NewRSASigner wraps an RSA private key. Keys below MinRSABits are
// rejected.
func NewRSASigner(key *rsa.PrivateKey) (*RSASigner, error) {
	if key == nil {
		return nil, fmt.Errorf("rsa signer: nil key")
	}
	if bits := key.N.BitLen(); bits < MinRSABits {
		return nil, fmt.Errorf("rsa signer: key is %d bits, need at least %d", bits, MinRSABits)
	}
	return &RSASigner{key: key}, nil
}

func (s *RSASigner) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return nil, fmt.Errorf("rsa-pss sign failed: %w", err)
	}
	return sig, nil
}

func (s *RSASigner) Algorithm() receipt.Algorithm { return receipt.AlgorithmRSA }

func (s *RSASigner) Public() crypto.PublicKey { return &s.key.PublicKey }

// ECDSASigner signs with ECDSA P-256 over SHA-256.
type ECDSASigner struct {
	key *ecdsa.PrivateKey
}

// NewECDSASigner wraps an ECDSA private key. Only P-256 is accepted.
func NewECDSASigner(key *ecdsa.PrivateKey) (*ECDSASigner, error) {
	if key == nil {
		return nil, fmt.Errorf("ecdsa signer: nil key")
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("ecdsa signer: curve %s not supported, need P-256", key.Curve.Params().Name)
	}
	return &ECDSASigner{key: key}, nil
}

func (s *ECDSASigner) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, s.key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("ecdsa sign failed: %w", err)
	}
	return sig, nil
}

func (s *ECDSASigner) Algorithm() receipt.Algorithm { return receipt.AlgorithmECDSA }

func (s *ECDSASigner) Public() crypto.PublicKey { return &s.key.PublicKey }

// NewSigner wraps an already-loaded private key, dispatching on its
// concrete type.
func NewSigner(key crypto.PrivateKey) (Signer, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return NewRSASigner(k)
	case *ecdsa.PrivateKey:
		return NewECDSASigner(k)
	default:
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
}

// Generate creates an ephemeral signer for the given algorithm. The
// key lives only in this process; receipts signed with it cannot be
// verified elsewhere.
func Generate(alg receipt.Algorithm) (Signer, error) {
	switch alg {
	case receipt.AlgorithmRSA:
		key, err := rsa.GenerateKey(rand.Reader, MinRSABits)
		if err != nil {
			return nil, fmt.Errorf("rsa key generation failed: %w", err)
		}
		return NewRSASigner(key)
	case receipt.AlgorithmECDSA:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("ecdsa key generation failed: %w", err)
		}
		return NewECDSASigner(key)
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
}

// AlgorithmForKey returns the receipt algorithm a public key supports.
func AlgorithmForKey(pub crypto.PublicKey) (receipt.Algorithm, error) {
	switch pub.(type) {
	case *rsa.PublicKey:
		return receipt.AlgorithmRSA, nil
	case *ecdsa.PublicKey:
		return receipt.AlgorithmECDSA, nil
	default:
		return "", fmt.Errorf("unsupported public key type %T", pub)
	}
}

// Verify checks a signature over canonical bytes. The stated algorithm
// must match what the key supports; a mismatch is an
// AlgorithmMismatchError, never a silent pass or a bare signature
// failure.
func Verify(data, signature []byte, pub crypto.PublicKey, stated receipt.Algorithm) error {
	if !stated.Valid() {
		return &AlgorithmMismatchError{Stated: stated, KeyType: fmt.Sprintf("%T", pub)}
	}

	supported, err := AlgorithmForKey(pub)
	if err != nil {
		return &AlgorithmMismatchError{Stated: stated, KeyType: fmt.Sprintf("%T", pub)}
	}
	if supported != stated {
		return &AlgorithmMismatchError{Stated: stated, KeyType: fmt.Sprintf("%T", pub)}
	}

	digest := sha256.Sum256(data)
	switch key := pub.(type) {
	case *rsa.PublicKey:
		if err := rsa.VerifyPSS(key, crypto.SHA256, digest[:], signature, pssOptions); err != nil {
			return &VerificationError{Algorithm: stated, Reason: err.Error()}
		}
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, digest[:], signature) {
			return &VerificationError{Algorithm: stated, Reason: "signature does not match canonical bytes"}
		}
	}
	return nil
}
