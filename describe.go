package winckit

import (
	"crypto/x509"
	"fmt"
	"time"

	ctx509 "github.com/google/certificate-transparency-go/x509"
)

// CertificateSummary is the printable description of a CERT payload.
type CertificateSummary struct {
	Subject   string
	Issuer    string
	Serial    string
	NotBefore time.Time
	NotAfter  time.Time
	KeyAlgo   string
	SigAlg    string
	SHA256    string
	// Lenient is set when crypto/x509 rejected the DER and the description
	// came from the more permissive certificate-transparency parser.
	Lenient bool
}

// DescribeCertificate summarizes a DER certificate. Device certificates minted
// by firmware provisioning tools are not always strictly conforming, so a
// certificate crypto/x509 rejects is retried with the CT parser, which only
// fails on fatal structural errors.
func DescribeCertificate(der []byte) (*CertificateSummary, error) {
	if cert, err := x509.ParseCertificate(der); err == nil {
		return &CertificateSummary{
			Subject:   cert.Subject.String(),
			Issuer:    cert.Issuer.String(),
			Serial:    cert.SerialNumber.String(),
			NotBefore: cert.NotBefore.UTC(),
			NotAfter:  cert.NotAfter.UTC(),
			KeyAlgo:   cert.PublicKeyAlgorithm.String(),
			SigAlg:    cert.SignatureAlgorithm.String(),
			SHA256:    FingerprintSHA256(der),
		}, nil
	}

	cert, err := ctx509.ParseCertificate(der)
	if cert == nil || (err != nil && ctx509.IsFatal(err)) {
		return nil, fmt.Errorf("%w: parsing certificate: %v", ErrKeyMaterialInvalid, err)
	}
	return &CertificateSummary{
		Subject:   cert.Subject.String(),
		Issuer:    cert.Issuer.String(),
		Serial:    cert.SerialNumber.String(),
		NotBefore: cert.NotBefore.UTC(),
		NotAfter:  cert.NotAfter.UTC(),
		KeyAlgo:   cert.PublicKeyAlgorithm.String(),
		SigAlg:    cert.SignatureAlgorithm.String(),
		SHA256:    FingerprintSHA256(der),
		Lenient:   true,
	}, nil
}
