// Package keymaterial abstracts where keys and certificates come from.
// The core packages accept already-parsed material through the Provider
// interface, keeping them free of file and network I/O; loading from
// disk lives here, at the boundary.
package keymaterial

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// Material is a parsed bundle of key and certificate data. Any field
// may be nil; consumers check for what they need.
type Material struct {
	Private     crypto.PrivateKey
	Public      crypto.PublicKey
	Certificate *x509.Certificate

	// CertificatePEM is the original certificate encoding, kept so it
	// can be attached to generated receipts verbatim.
	CertificatePEM []byte
}

// Provider supplies key material to generators and validators.
type Provider interface {
	Load() (*Material, error)
}

// Static is an in-memory Provider for already-parsed material.
type Static struct {
	Material Material
}

func (s *Static) Load() (*Material, error) {
	m := s.Material
	return &m, nil
}

// FileProvider loads PEM-encoded material from disk. Any path may be
// empty; the corresponding field is left nil.
type FileProvider struct {
	PrivateKeyPath  string
	PublicKeyPath   string
	CertificatePath string
}

func (p *FileProvider) Load() (*Material, error) {
	var m Material

	if p.PrivateKeyPath != "" {
		data, err := os.ReadFile(p.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		m.Private, err = ParsePrivateKey(data)
		if err != nil {
			return nil, err
		}
	}

	if p.PublicKeyPath != "" {
		data, err := os.ReadFile(p.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		m.Public, err = ParsePublicKey(data)
		if err != nil {
			return nil, err
		}
	}

	if p.CertificatePath != "" {
		data, err := os.ReadFile(p.CertificatePath)
		if err != nil {
			return nil, fmt.Errorf("read certificate: %w", err)
		}
		m.Certificate, err = ParseCertificate(data)
		if err != nil {
			return nil, err
		}
		m.CertificatePEM = data
	}

	// Derive what was not supplied explicitly.
	if m.Public == nil {
		if m.Private != nil {
			if signer, ok := m.Private.(crypto.Signer); ok {
				m.Public = signer.Public()
			}
		} else if m.Certificate != nil {
			m.Public = m.Certificate.PublicKey
		}
	}

	return &m, nil
}

// ParsePrivateKey parses a PEM private key. PKCS#8, PKCS#1 (RSA), and
// SEC1 (EC) encodings are accepted.
func ParsePrivateKey(data []byte) (crypto.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("private key: no PEM block found")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		switch key.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey:
			return key, nil
		default:
			return nil, fmt.Errorf("private key: unsupported type %T", key)
		}
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("private key: unrecognized PEM encoding (type %q)", block.Type)
}

// ParsePublicKey parses a PEM public key. PKIX and PKCS#1 (RSA)
// encodings are accepted.
func ParsePublicKey(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("public key: no PEM block found")
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		switch key.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey:
			return key, nil
		default:
			return nil, fmt.Errorf("public key: unsupported type %T", key)
		}
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("public key: unrecognized PEM encoding (type %q)", block.Type)
}

// ParseCertificate parses the first certificate in a PEM bundle.
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("certificate: no CERTIFICATE PEM block found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("certificate: parse failed: %w", err)
	}
	return cert, nil
}

// EncodePrivateKey renders a private key as PKCS#8 PEM.
func EncodePrivateKey(key crypto.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("private key: marshal failed: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// EncodePublicKey renders a public key as PKIX PEM.
func EncodePublicKey(key crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("public key: marshal failed: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// EncodeCertificate renders a DER certificate as PEM.
func EncodeCertificate(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}
