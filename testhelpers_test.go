package winckit

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
)

// imageBuilder appends little-endian fields to a buffer. Alignment is
// measured from base, the offset where the store being built starts.
type imageBuilder struct {
	buf  []byte
	base int
}

func (b *imageBuilder) bytes(p ...byte) *imageBuilder {
	b.buf = append(b.buf, p...)
	return b
}

func (b *imageBuilder) zeros(n int) *imageBuilder {
	b.buf = append(b.buf, make([]byte, n)...)
	return b
}

func (b *imageBuilder) u16(v uint16) *imageBuilder {
	b.buf = binary.LittleEndian.AppendUint16(b.buf, v)
	return b
}

func (b *imageBuilder) u32(v uint32) *imageBuilder {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
	return b
}

func (b *imageBuilder) align(n int) *imageBuilder {
	for (len(b.buf)-b.base)%n != 0 {
		b.buf = append(b.buf, 0xAA) // padding is never inspected
	}
	return b
}

// rootRecord describes one Root Cert Store record for buildRootStore.
type rootRecord struct {
	nameHash [20]byte
	from, to Timestamp
	tag      uint32
	n, e     []byte // tag 1
	curve    uint16 // tag 2
	raw      []byte // tag 2
}

func (b *imageBuilder) timestamp(ts Timestamp) *imageBuilder {
	b.u16(ts.Year).bytes(ts.Month, ts.Day, ts.Hour, ts.Minute, ts.Second)
	return b.zeros(timestampSize - 7)
}

func (b *imageBuilder) rootRecord(rec rootRecord) *imageBuilder {
	b.bytes(rec.nameHash[:]...).timestamp(rec.from).timestamp(rec.to).u32(rec.tag)
	switch rec.tag {
	case TagRSAPublic:
		b.u16(uint16(len(rec.n))).u16(uint16(len(rec.e)))
		b.bytes(rec.n...).align(4)
		b.bytes(rec.e...).align(4)
	case TagECDSAPublic:
		b.u16(rec.curve).u16(uint16(len(rec.raw))).bytes(rec.raw...)
	}
	return b
}

// buildRootStore returns a buffer holding a Root Cert Store at offset 0.
func buildRootStore(records ...rootRecord) []byte {
	return buildRootStoreAt(0, records...)
}

// buildRootStoreAt returns a buffer holding a Root Cert Store at offset at,
// preceded by 0xEE filler.
func buildRootStoreAt(at int, records ...rootRecord) []byte {
	b := &imageBuilder{base: at}
	for range at {
		b.bytes(0xEE)
	}
	b.bytes(RootStoreMagic...).u32(uint32(len(records)))
	for _, rec := range records {
		b.rootRecord(rec)
	}
	return b.buf
}

// tlsEntry describes one directory entry for buildTLSStore. offset is absolute.
type tlsEntry struct {
	name   string
	size   uint32
	offset uint32
}

// tlsDirectoryEnd is the offset just past the directory and checksum of a
// TLS store at offset 0 holding n entries.
func tlsDirectoryEnd(n int) int {
	return TLSStoreCountDisplacement + 8 + n*directoryEntrySize + 4
}

// buildTLSStore lays out a TLS store at offset 0: magic, filler up to the
// count slot, count, next write address, directory, checksum. The buffer is
// then extended to total bytes so payloads can be copied in by the caller.
func buildTLSStore(entries []tlsEntry, checksum uint32, total int) []byte {
	b := &imageBuilder{}
	b.bytes(TLSStoreMagic...)
	b.zeros(TLSStoreCountDisplacement - len(TLSStoreMagic))
	b.u32(uint32(len(entries))).u32(0xDEADBEEF)
	for _, e := range entries {
		var name [entryNameSize]byte
		copy(name[:], e.name)
		b.bytes(name[:]...).u32(e.size).u32(e.offset)
	}
	b.u32(checksum)
	if total > len(b.buf) {
		b.zeros(total - len(b.buf))
	}
	return b.buf
}

// encodeRSAPrivateRecord serializes a key in PRIV payload layout.
func encodeRSAPrivateRecord(key *rsa.PrivateKey, version uint32) []byte {
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
	b := &imageBuilder{}
	for _, v := range values {
		b.u16(uint16(len(v)))
	}
	b.u32(version)
	for _, v := range values {
		b.bytes(v...)
	}
	return b.buf
}

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	testKeyErr  error
)

// sharedRSAKey returns one 2048-bit key for the whole test binary; RSA key
// generation dominates test time otherwise.
func sharedRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		testKey, testKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if testKeyErr != nil {
		t.Fatalf("generate RSA key: %v", testKeyErr)
	}
	return testKey
}

// newSelfSigned creates a certificate for key, self-signed unless parent and
// parentKey are given.
func newSelfSigned(t *testing.T, key *rsa.PrivateKey, cn string, serial int64, isCA bool, parent *x509.Certificate, parentKey *rsa.PrivateKey) *x509.Certificate {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"WINC Test"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		BasicConstraintsValid: true,
		IsCA:                  isCA,
	}
	if isCA {
		tmpl.KeyUsage = x509.KeyUsageCertSign
	}
	signer, signerCert := key, tmpl
	if parent != nil {
		signer, signerCert = parentKey, parent
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, signerCert, &key.PublicKey, signer)
	if err != nil {
		t.Fatalf("create certificate %s: %v", cn, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate %s: %v", cn, err)
	}
	return cert
}
