// Package trust binds verification keys to X.509 certificates. It
// checks leaf-certificate validity and key binding only; chain-of-trust
// to a root CA is the deployment's concern, consistent with a
// self-signed development model.
package trust

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/giovannypietro/poi/pkg/keymaterial"
)

// CertificateParseError reports a malformed certificate.
type CertificateParseError struct {
	Reason string
}

func (e *CertificateParseError) Error() string {
	return fmt.Sprintf("certificate parse failed: %s", e.Reason)
}

// CertificateExpiredError reports that "now" falls outside the
// certificate's validity window.
type CertificateExpiredError struct {
	NotBefore time.Time
	NotAfter  time.Time
	Now       time.Time
}

func (e *CertificateExpiredError) Error() string {
	if e.Now.Before(e.NotBefore) {
		return fmt.Sprintf("certificate not yet valid: now %s precedes NotBefore %s",
			e.Now.Format(time.RFC3339), e.NotBefore.Format(time.RFC3339))
	}
	return fmt.Sprintf("certificate expired: now %s exceeds NotAfter %s",
		e.Now.Format(time.RFC3339), e.NotAfter.Format(time.RFC3339))
}

// CertificateMismatchError reports that the certificate's embedded
// public key is not the key used for signature verification.
type CertificateMismatchError struct {
	Subject string
}

func (e *CertificateMismatchError) Error() string {
	return fmt.Sprintf("certificate %q does not carry the verification key", e.Subject)
}

// Parse decodes a PEM certificate, mapping failures to
// CertificateParseError.
func Parse(pemData []byte) (*x509.Certificate, error) {
	cert, err := keymaterial.ParseCertificate(pemData)
	if err != nil {
		return nil, &CertificateParseError{Reason: err.Error()}
	}
	return cert, nil
}

// Validate confirms that the certificate is inside its validity window
// at now and that its embedded public key equals the verification key.
// The certificate is only borrowed for the duration of the call.
func Validate(cert *x509.Certificate, verificationKey crypto.PublicKey, now time.Time) error {
	if cert == nil {
		return &CertificateParseError{Reason: "no certificate supplied"}
	}

	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return &CertificateExpiredError{
			NotBefore: cert.NotBefore,
			NotAfter:  cert.NotAfter,
			Now:       now,
		}
	}

	if verificationKey != nil && !keysEqual(cert.PublicKey, verificationKey) {
		return &CertificateMismatchError{Subject: cert.Subject.CommonName}
	}
	return nil
}

// keysEqual compares public keys structurally.
func keysEqual(a, b crypto.PublicKey) bool {
	switch key := a.(type) {
	case *rsa.PublicKey:
		return key.Equal(b)
	case *ecdsa.PublicKey:
		return key.Equal(b)
	default:
		return false
	}
}
