// Package winckit decodes the Root Cert Store and TLS Store embedded in
// ATWINC-family Wi-Fi firmware images and rebuilds usable keys and
// certificates from them.
//
// Decoding is read-only and works over a fully loaded image. Every offset and
// length taken from the image is bounds-checked before use.
package winckit

import (
	"bytes"
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ParsePEMCertificates parses all certificates from a PEM bundle.
func ParsePEMCertificates(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("no certificates found in PEM data")
	}
	return certs, nil
}

// ParseCertificateDER parses a CERT payload. Rejection by crypto/x509 is
// reported as ErrKeyMaterialInvalid.
func ParseCertificateDER(der []byte) (*x509.Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing certificate: %v", ErrKeyMaterialInvalid, err)
	}
	return cert, nil
}

// DERToPEM wraps a DER certificate payload in a CERTIFICATE PEM block.
func DERToPEM(der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: der,
	}))
}

// MarshalPrivateKeyToPEM marshals a private key to PKCS#8 PEM format.
func MarshalPrivateKeyToPEM(key crypto.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling private key to PKCS#8: %v", ErrKeyMaterialInvalid, err)
	}
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	})), nil
}

// MarshalPublicKeyToPEM marshals a public key to PKIX PEM format.
func MarshalPublicKeyToPEM(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling public key to PKIX: %v", ErrKeyMaterialInvalid, err)
	}
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: der,
	})), nil
}

// extractPublicKeyBitString parses a DER-encoded SubjectPublicKeyInfo and
// returns the raw public key bytes (the BIT STRING value, excluding the
// unused-bits octet).
func extractPublicKeyBitString(spkiDER []byte) ([]byte, error) {
	var spki struct {
		Algorithm asn1.RawValue
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(spkiDER, &spki); err != nil {
		return nil, fmt.Errorf("parsing SubjectPublicKeyInfo: %w", err)
	}
	return spki.PublicKey.Bytes, nil
}

// ComputeSKI computes a Subject Key Identifier using RFC 7093 Method 1:
// SHA-256 of subjectPublicKey BIT STRING bytes, truncated to 160 bits.
func ComputeSKI(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal PKIX: %w", err)
	}
	bits, err := extractPublicKeyBitString(der)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(bits)
	return sum[:20], nil
}

// SSHFingerprint returns the OpenSSH-style SHA256 fingerprint of a public
// key, the form most auditors compare keys by.
func SSHFingerprint(pub crypto.PublicKey) (string, error) {
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("converting to SSH public key: %w", err)
	}
	return ssh.FingerprintSHA256(sshPub), nil
}

// ColonHex formats a byte slice as colon-separated lowercase hex.
func ColonHex(b []byte) string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02x", c)
	}
	return sb.String()
}

// FingerprintSHA256 returns the SHA-256 of der in uppercase colon-separated
// hex, as OpenSSL prints certificate fingerprints.
func FingerprintSHA256(der []byte) string {
	hash := sha256.Sum256(der)
	return strings.ToUpper(ColonHex(hash[:]))
}

// GetCertificateType determines if a certificate is root, intermediate, or leaf.
func GetCertificateType(cert *x509.Certificate) string {
	if cert.IsCA {
		if bytes.Equal(cert.RawIssuer, cert.RawSubject) {
			return "root"
		}
		return "intermediate"
	}
	return "leaf"
}

// KeyMatchesCert reports whether a private key corresponds to the public key
// in a certificate.
func KeyMatchesCert(priv crypto.Signer, cert *x509.Certificate) (bool, error) {
	type equalKey interface {
		Equal(crypto.PublicKey) bool
	}
	eq, ok := priv.Public().(equalKey)
	if !ok {
		return false, fmt.Errorf("unsupported public key type: %T", priv.Public())
	}
	return eq.Equal(cert.PublicKey), nil
}
