// Package token carries signed receipts through bearer-token channels.
// A receipt is embedded in a JWT as a claim and signed with the same
// key material as the receipt itself: PS256 for RSA keys, ES256 for
// P-256 keys, matching the signature engine's scheme pins.
package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/giovannypietro/poi/pkg/receipt"
)

// Issuer is the iss claim stamped on exported receipts.
const Issuer = "poi/receipt-export"

// ReceiptClaims wraps a receipt in standard JWT claims. The token's
// own expiry mirrors the receipt's expiration time.
type ReceiptClaims struct {
	jwt.RegisteredClaims
	Receipt *receipt.Receipt `json:"receipt"`
}

// Export signs the receipt into a JWT with the given private key. The
// receipt must already be signed; the JWT adds transport framing, it
// does not replace receipt verification.
func Export(r *receipt.Receipt, key crypto.PrivateKey) (string, error) {
	if !r.Signed() {
		return "", fmt.Errorf("cannot export unsigned receipt %s", r.ReceiptID)
	}

	method, err := methodForKey(key)
	if err != nil {
		return "", err
	}

	claims := ReceiptClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        r.ReceiptID,
			Subject:   r.AgentID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(r.Timestamp),
			ExpiresAt: jwt.NewNumericDate(r.ExpirationTime),
		},
		Receipt: r,
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign receipt token: %w", err)
	}
	return signed, nil
}

// Parse verifies a receipt token's JWT signature and returns the
// embedded receipt. Callers still validate the receipt itself; the
// token wrapper only authenticates transport.
func Parse(tokenString string, pub crypto.PublicKey) (*receipt.Receipt, error) {
	claims := &ReceiptClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if err := checkMethod(t.Method, pub); err != nil {
			return nil, err
		}
		return pub, nil
	}, jwt.WithIssuer(Issuer), jwt.WithLeeway(time.Minute))
	if err != nil {
		return nil, fmt.Errorf("parse receipt token: %w", err)
	}
	if !parsed.Valid || claims.Receipt == nil {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims.Receipt, nil
}

func methodForKey(key crypto.PrivateKey) (jwt.SigningMethod, error) {
	switch key.(type) {
	case *rsa.PrivateKey:
		return jwt.SigningMethodPS256, nil
	case *ecdsa.PrivateKey:
		return jwt.SigningMethodES256, nil
	default:
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
}

func checkMethod(method jwt.SigningMethod, pub crypto.PublicKey) error {
	switch pub.(type) {
	case *rsa.PublicKey:
		if method.Alg() != jwt.SigningMethodPS256.Alg() {
			return fmt.Errorf("unexpected signing method %s for RSA key", method.Alg())
		}
	case *ecdsa.PublicKey:
		if method.Alg() != jwt.SigningMethodES256.Alg() {
			return fmt.Errorf("unexpected signing method %s for ECDSA key", method.Alg())
		}
	default:
		return fmt.Errorf("unsupported public key type %T", pub)
	}
	return nil
}
