package winckit

import (
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"sync"

	"github.com/breml/rootcerts/embedded"
)

// AnchorMatch links a Root Cert Store record to a known root certificate.
type AnchorMatch struct {
	Index   int
	Subject string
	// KeyMatches is true when the record's RSA key equals the certificate's.
	// It is always false for ECDSA records, whose raw bytes are opaque.
	KeyMatches bool
	Cert       *x509.Certificate
}

var mozillaRoots = sync.OnceValues(func() (map[[sha1.Size]byte][]*x509.Certificate, error) {
	bySubject := make(map[[sha1.Size]byte][]*x509.Certificate)
	rest := []byte(embedded.MozillaCACertificatesPEM())
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		// roots the running Go version refuses to parse are skipped
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			continue
		}
		h := sha1.Sum(c.RawSubject)
		bySubject[h] = append(bySubject[h], c)
	}
	if len(bySubject) == 0 {
		return nil, errors.New("parsing embedded Mozilla root certificates")
	}
	return bySubject, nil
})

// IdentifyAnchors matches each record's name hash against the SHA-1 of the
// DER subject of every root in the embedded Mozilla trust store. Records
// with no match are omitted.
func IdentifyAnchors(store *RootCertStore) ([]AnchorMatch, error) {
	roots, err := mozillaRoots()
	if err != nil {
		return nil, err
	}
	return matchAnchors(store, roots), nil
}

func matchAnchors(store *RootCertStore, roots map[[sha1.Size]byte][]*x509.Certificate) []AnchorMatch {
	var matches []AnchorMatch
	for i, rec := range store.Records {
		candidates := roots[rec.NameHash]
		if len(candidates) == 0 {
			continue
		}
		m := AnchorMatch{Index: i, Subject: candidates[0].Subject.String(), Cert: candidates[0]}
		if rsaKey, ok := rec.Key.(*RSAPublic); ok {
			if pub, err := rsaKey.PublicKey(); err == nil {
				for _, c := range candidates {
					if certPub, ok := c.PublicKey.(*rsa.PublicKey); ok && pub.Equal(certPub) {
						m.KeyMatches = true
						m.Cert = c
						m.Subject = c.Subject.String()
						break
					}
				}
			}
		}
		matches = append(matches, m)
	}
	return matches
}
