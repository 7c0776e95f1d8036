package winckit

import (
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
)

// EncodeIdentityJKS stores a device identity in a Java KeyStore. The private
// key entry is aliased by the lower-cased PRIV entry name and carries the
// leaf followed by the chain. The same password protects the store and the
// key entry (standard Java convention).
func EncodeIdentityJKS(id *DeviceIdentity, password string, created time.Time) ([]byte, error) {
	if id == nil || id.Key == nil || id.Leaf == nil {
		return nil, errors.New("identity has no key or leaf certificate")
	}
	pkcs8Key, err := x509.MarshalPKCS8PrivateKey(id.Key)
	if err != nil {
		return nil, fmt.Errorf("marshaling private key to PKCS#8: %w", err)
	}

	chain := []keystore.Certificate{{Type: "X.509", Content: id.Leaf.Raw}}
	for _, c := range id.Chain {
		chain = append(chain, keystore.Certificate{Type: "X.509", Content: c.Raw})
	}

	ks := keystore.New()
	if err := ks.SetPrivateKeyEntry(jksAlias(id.KeyName), keystore.PrivateKeyEntry{
		CreationTime:     created,
		PrivateKey:       pkcs8Key,
		CertificateChain: chain,
	}, []byte(password)); err != nil {
		return nil, fmt.Errorf("setting JKS private key entry: %w", err)
	}

	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte(password)); err != nil {
		return nil, fmt.Errorf("storing JKS: %w", err)
	}
	return buf.Bytes(), nil
}

func jksAlias(name string) string {
	if name == "" {
		return "device"
	}
	return strings.ToLower(name)
}
