package winckit

import (
	"errors"
	"fmt"

	"github.com/smallstep/pkcs7"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

// EncodeIdentityPKCS12 packs a device identity into a PKCS#12/PFX bundle
// protected by password.
func EncodeIdentityPKCS12(id *DeviceIdentity, password string) ([]byte, error) {
	if id == nil || id.Key == nil || id.Leaf == nil {
		return nil, errors.New("identity has no key or leaf certificate")
	}
	pfx, err := gopkcs12.Modern.Encode(id.Key, id.Leaf, id.Chain, password)
	if err != nil {
		return nil, fmt.Errorf("encoding PKCS#12: %w", err)
	}
	return pfx, nil
}

// EncodeCertificatesPKCS7 bundles raw DER certificates into a certs-only
// PKCS#7 SignedData structure. Payloads are concatenated as stored, so
// certificates crypto/x509 would reject are still carried.
func EncodeCertificatesPKCS7(ders [][]byte) ([]byte, error) {
	if len(ders) == 0 {
		return nil, errors.New("no certificates to encode")
	}
	var derBytes []byte
	for _, der := range ders {
		derBytes = append(derBytes, der...)
	}
	p7, err := pkcs7.DegenerateCertificate(derBytes)
	if err != nil {
		return nil, fmt.Errorf("encoding PKCS#7: %w", err)
	}
	return p7, nil
}

// StoreCertificates returns the DER payloads of every CERT entry in
// directory order.
func StoreCertificates(entries []ResolvedEntry) [][]byte {
	var ders [][]byte
	for _, e := range entries {
		if e.Kind == KindCertificate {
			ders = append(ders, e.Certificate)
		}
	}
	return ders
}
