package internal

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sensiblebit/winckit"
)

var (
	rsaKeysOnce sync.Once
	rsaKeys     [2]*rsa.PrivateKey
	rsaKeysErr  error
)

// testKeys returns two 2048-bit keys shared by the whole test binary.
func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	rsaKeysOnce.Do(func() {
		for i := range rsaKeys {
			if rsaKeys[i], rsaKeysErr = rsa.GenerateKey(rand.Reader, 2048); rsaKeysErr != nil {
				return
			}
		}
	})
	if rsaKeysErr != nil {
		t.Fatalf("generate RSA keys: %v", rsaKeysErr)
	}
	return rsaKeys[0], rsaKeys[1]
}

// testDevice holds a CA and a device certificate signed by it.
type testDevice struct {
	caKey, key *rsa.PrivateKey
	ca, cert   *x509.Certificate
}

func newTestDevice(t *testing.T) testDevice {
	t.Helper()
	caKey, key := testKeys(t)
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Device CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create CA: %v", err)
	}
	ca, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "winc-device-01"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &key.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create device certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return testDevice{caKey: caKey, key: key, ca: ca, cert: cert}
}

// testEntry is one TLS store directory entry and its payload.
type testEntry struct {
	name    string
	payload []byte
}

// testLayout places the root store at 0x20 and the TLS store at 0x800.
var testLayout = winckit.Layout{RootStoreOffset: 0x20, TLSStoreOffset: 0x800}

func le16(b []byte, v uint16) []byte { return binary.LittleEndian.AppendUint16(b, v) }
func le32(b []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(b, v) }

// buildTestImage lays out both stores at testLayout with one RSA anchor per
// anchor key and payloads after the TLS directory.
func buildTestImage(t *testing.T, anchorKeys []*rsa.PrivateKey, entries []testEntry) []byte {
	t.Helper()
	b := make([]byte, testLayout.RootStoreOffset)
	b = append(b, winckit.RootStoreMagic...)
	b = le32(b, uint32(len(anchorKeys)))
	for i, key := range anchorKeys {
		var nameHash [20]byte
		nameHash[0] = byte(i + 1)
		b = append(b, nameHash[:]...)
		b = le16(b, 2020)
		b = append(b, 1, 1, 0, 0, 0, 0, 0, 0)
		b = le16(b, 2040)
		b = append(b, 12, 31, 23, 59, 59, 0, 0, 0)
		b = le32(b, winckit.TagRSAPublic)
		n, e := key.N.Bytes(), big.NewInt(int64(key.E)).Bytes()
		b = le16(b, uint16(len(n)))
		b = le16(b, uint16(len(e)))
		b = pad4(append(b, n...))
		b = pad4(append(b, e...))
	}
	if len(b) > testLayout.TLSStoreOffset {
		t.Fatalf("root store overruns TLS offset: %d bytes", len(b))
	}
	b = append(b, make([]byte, testLayout.TLSStoreOffset-len(b))...)

	b = append(b, winckit.TLSStoreMagic...)
	b = append(b, make([]byte, winckit.TLSStoreCountDisplacement-len(winckit.TLSStoreMagic))...)
	b = le32(b, uint32(len(entries)))
	b = le32(b, 0)
	next := len(b) + len(entries)*56 + 4
	for _, e := range entries {
		var name [48]byte
		copy(name[:], e.name)
		b = append(b, name[:]...)
		b = le32(b, uint32(len(e.payload)))
		b = le32(b, uint32(next))
		next += len(e.payload)
	}
	b = le32(b, 0xC0FFEE00)
	for _, e := range entries {
		b = append(b, e.payload...)
	}
	return b
}

func pad4(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

// privPayload serializes key in PRIV entry layout.
func privPayload(key *rsa.PrivateKey) []byte {
	values := [][]byte{
		key.N.Bytes(),
		big.NewInt(int64(key.E)).Bytes(),
		key.D.Bytes(),
		key.Primes[0].Bytes(),
		key.Primes[1].Bytes(),
		key.Precomputed.Dp.Bytes(),
		key.Precomputed.Dq.Bytes(),
		key.Precomputed.Qinv.Bytes(),
	}
	var b []byte
	for _, v := range values {
		b = le16(b, uint16(len(v)))
	}
	b = le32(b, 1)
	for _, v := range values {
		b = append(b, v...)
	}
	return b
}

// deviceImage builds an image holding the device CA as an anchor and the
// device key, certificate and CA certificate in the TLS store.
func deviceImage(t *testing.T, dev testDevice) []byte {
	t.Helper()
	return buildTestImage(t, []*rsa.PrivateKey{dev.caKey}, []testEntry{
		{name: "PRIV_00", payload: privPayload(dev.key)},
		{name: "CERT_00", payload: dev.cert.Raw},
		{name: "CERT_01", payload: dev.ca.Raw},
		{name: "FLAGS", payload: []byte{1, 0, 0, 0}},
	})
}

func writeTestFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
