package winckit

import (
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
)

// ErrNoIdentity is returned when no private key in the TLS store matches any
// of its certificates.
var ErrNoIdentity = errors.New("no private key matches a certificate")

// DeviceIdentity is the device's TLS credential: the private key, the
// certificate for it, and the remaining certificates in directory order.
type DeviceIdentity struct {
	KeyName  string
	Key      *rsa.PrivateKey
	LeafName string
	Leaf     *x509.Certificate
	Chain    []*x509.Certificate
}

// BuildIdentity pairs the first private key with the certificate carrying its
// public key. Certificates and keys that fail to parse fail the call with
// ErrKeyMaterialInvalid, reported against their directory index.
func BuildIdentity(entries []ResolvedEntry) (*DeviceIdentity, error) {
	type namedCert struct {
		name string
		cert *x509.Certificate
	}
	var certs []namedCert
	var keys []*DeviceIdentity

	for _, e := range entries {
		switch e.Kind {
		case KindCertificate:
			cert, err := ParseCertificateDER(e.Certificate)
			if err != nil {
				return nil, entryError(TLSStoreName, e.Index, fmt.Errorf("%s: %w", e.Entry.Name, err))
			}
			certs = append(certs, namedCert{name: e.Entry.Name, cert: cert})
		case KindPrivateKey:
			key, err := e.PrivateKey.PrivateKey()
			if err != nil {
				return nil, entryError(TLSStoreName, e.Index, fmt.Errorf("%s: %w", e.Entry.Name, err))
			}
			keys = append(keys, &DeviceIdentity{KeyName: e.Entry.Name, Key: key})
		}
	}

	for _, id := range keys {
		for i, c := range certs {
			match, err := KeyMatchesCert(id.Key, c.cert)
			if err != nil || !match {
				continue
			}
			id.LeafName = c.name
			id.Leaf = c.cert
			for j, other := range certs {
				if j != i {
					id.Chain = append(id.Chain, other.cert)
				}
			}
			return id, nil
		}
	}
	return nil, ErrNoIdentity
}
