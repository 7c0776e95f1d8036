package certstore

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"math/big"
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

// testChain holds a CA and a device leaf signed by it.
type testChain struct {
	caKey, leafKey *rsa.PrivateKey
	ca, leaf       *x509.Certificate
}

func newTestChain(t *testing.T, notAfter time.Time) testChain {
	t.Helper()
	caKey, leafKey := testKeys(t)
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Device CA"},
		NotBefore:             time.Now().Add(-48 * time.Hour),
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
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "device-42"},
		NotBefore:    time.Now().Add(-48 * time.Hour),
		NotAfter:     notAfter,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, ca, &leafKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create leaf: %v", err)
	}
	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		t.Fatal(err)
	}
	return testChain{caKey: caKey, leafKey: leafKey, ca: ca, leaf: leaf}
}

// rsaAnchor returns a root record carrying key's public half.
func rsaAnchor(key *rsa.PrivateKey, hashByte byte) winckit.RootRecord {
	return winckit.RootRecord{
		NameHash:  [20]byte{0: hashByte},
		ValidFrom: winckit.Timestamp{Year: 2020, Month: 1, Day: 1},
		ValidTo:   winckit.Timestamp{Year: 2049, Month: 12, Day: 31, Hour: 23, Minute: 59, Second: 59},
		Key:       &winckit.RSAPublic{N: key.N.Bytes(), E: big.NewInt(int64(key.E)).Bytes()},
	}
}

// imageEntry is one TLS store directory entry and its payload.
type imageEntry struct {
	name    string
	payload []byte
}

const testTLSOffset = 0x1000

var testLayout = winckit.Layout{RootStoreOffset: 0, TLSStoreOffset: testTLSOffset}

func le16(b []byte, v uint16) []byte { return binary.LittleEndian.AppendUint16(b, v) }
func le32(b []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(b, v) }

func pad4(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

// buildImage lays out a root store at 0 and a TLS store at testTLSOffset with
// payloads placed after the TLS directory.
func buildImage(t *testing.T, anchors []winckit.RootRecord, entries []imageEntry) []byte {
	t.Helper()
	b := append([]byte{}, winckit.RootStoreMagic...)
	b = le32(b, uint32(len(anchors)))
	for _, a := range anchors {
		b = append(b, a.NameHash[:]...)
		for _, ts := range []winckit.Timestamp{a.ValidFrom, a.ValidTo} {
			b = le16(b, ts.Year)
			b = append(b, ts.Month, ts.Day, ts.Hour, ts.Minute, ts.Second, 0, 0, 0)
		}
		b = le32(b, a.Key.Tag())
		switch k := a.Key.(type) {
		case *winckit.RSAPublic:
			b = le16(b, uint16(len(k.N)))
			b = le16(b, uint16(len(k.E)))
			b = pad4(append(b, k.N...))
			b = pad4(append(b, k.E...))
		case *winckit.ECDSAPublic:
			b = le16(b, k.CurveID)
			b = le16(b, uint16(len(k.Raw)))
			b = append(b, k.Raw...)
		}
	}
	if len(b) > testTLSOffset {
		t.Fatalf("root store overruns TLS offset: %d bytes", len(b))
	}
	b = append(b, make([]byte, testTLSOffset-len(b))...)

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
	b = le32(b, 0) // checksum
	for _, e := range entries {
		b = append(b, e.payload...)
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
