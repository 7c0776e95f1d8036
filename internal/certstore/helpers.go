package certstore

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sensiblebit/winckit"
)

// GetKeyType returns a human-readable description of the certificate's public
// key type, including bit length for RSA and curve name for ECDSA.
func GetKeyType(cert *x509.Certificate) string {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return fmt.Sprintf("RSA %d bits", pub.N.BitLen())
	case *ecdsa.PublicKey:
		return fmt.Sprintf("ECDSA %s", pub.Curve.Params().Name)
	default:
		return fmt.Sprintf("unknown key type: %T", pub)
	}
}

// FormatCN returns the common name of the certificate for display. Falls back
// to the first DNS SAN, then to "serial:<hex>" if no CN or SAN is present.
func FormatCN(cert *x509.Certificate) string {
	if cert.Subject.CommonName != "" {
		return cert.Subject.CommonName
	}
	if len(cert.DNSNames) > 0 {
		return cert.DNSNames[0]
	}
	return fmt.Sprintf("serial:%s", cert.SerialNumber.String())
}

// SanitizeFileName makes a directory entry name safe to use as a file name.
// Entry names come straight from the image, so path separators and control
// bytes are replaced.
func SanitizeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*':
			return '_'
		case r < 0x20 || r == 0x7F:
			return '_'
		default:
			return r
		}
	}, name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

// AnchorKeyID identifies an anchor's public key for deduplication. RSA keys
// use their SSH SHA256 fingerprint; ECDSA keys, whose raw bytes are opaque,
// use the curve id and a SHA-256 of the raw bytes.
func AnchorKeyID(km winckit.KeyMaterial) (string, error) {
	switch k := km.(type) {
	case *winckit.RSAPublic:
		pub, err := k.PublicKey()
		if err != nil {
			return "", err
		}
		return winckit.SSHFingerprint(pub)
	case *winckit.ECDSAPublic:
		sum := sha256.Sum256(k.Raw)
		return fmt.Sprintf("ecdsa-%d:%s", k.CurveID, hex.EncodeToString(sum[:])), nil
	default:
		return "", fmt.Errorf("unsupported key material %T", km)
	}
}
