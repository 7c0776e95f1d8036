package winckit

import (
	"fmt"
	"math/big"
)

// Key material discriminants, read as a little-endian u32 ahead of the body.
const (
	TagRSAPublic   uint32 = 1
	TagECDSAPublic uint32 = 2
)

// Magnitude is an unsigned big-endian integer as stored in the firmware.
// Leading zero bytes are permitted and do not change the value.
type Magnitude []byte

// Int returns the value of m.
func (m Magnitude) Int() *big.Int {
	return new(big.Int).SetBytes(m)
}

// KeyMaterial is the public key carried by a Root Cert Store record. The
// concrete type is *RSAPublic or *ECDSAPublic.
type KeyMaterial interface {
	// Tag returns the on-disk discriminant of the variant.
	Tag() uint32
	// Algorithm returns a human-readable algorithm name.
	Algorithm() string

	keyMaterial()
}

// RSAPublic is an RSA trust anchor (tag 1).
type RSAPublic struct {
	N Magnitude
	E Magnitude
}

func (*RSAPublic) Tag() uint32       { return TagRSAPublic }
func (*RSAPublic) Algorithm() string { return "RSA" }
func (*RSAPublic) keyMaterial()      {}

// ECDSAPublic is an ECDSA trust anchor (tag 2). Raw is kept opaque: the
// firmware does not describe its internal structure.
type ECDSAPublic struct {
	CurveID uint16
	Raw     []byte
}

func (*ECDSAPublic) Tag() uint32       { return TagECDSAPublic }
func (*ECDSAPublic) Algorithm() string { return "ECDSA" }
func (*ECDSAPublic) keyMaterial()      {}

// keyMaterialDecoders maps each discriminant to the parser of its body.
var keyMaterialDecoders = map[uint32]func(r *Reader, storeStart int) (KeyMaterial, error){
	TagRSAPublic:   decodeRSAPublic,
	TagECDSAPublic: decodeECDSAPublic,
}

func decodeKeyMaterial(r *Reader, storeStart int) (KeyMaterial, error) {
	tag, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("reading key material tag: %w", err)
	}
	decode, ok := keyMaterialDecoders[tag]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownVariantTag, tag)
	}
	return decode(r, storeStart)
}

// decodeRSAPublic reads n_size, e_size, then n and e, each padded to a
// 4-byte boundary counted from storeStart.
func decodeRSAPublic(r *Reader, storeStart int) (KeyMaterial, error) {
	nSize, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("reading RSA modulus size: %w", err)
	}
	eSize, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("reading RSA exponent size: %w", err)
	}

	key := &RSAPublic{}
	if key.N, err = readAlignedMagnitude(r, storeStart, nSize); err != nil {
		return nil, fmt.Errorf("reading RSA modulus: %w", err)
	}
	if key.E, err = readAlignedMagnitude(r, storeStart, eSize); err != nil {
		return nil, fmt.Errorf("reading RSA exponent: %w", err)
	}
	return key, nil
}

func readAlignedMagnitude(r *Reader, storeStart int, size uint16) (Magnitude, error) {
	b, err := r.ReadBytes(int(size))
	if err != nil {
		return nil, err
	}
	if err := r.AlignFrom(storeStart, rsaFieldAlignment); err != nil {
		return nil, err
	}
	return b, nil
}

func decodeECDSAPublic(r *Reader, _ int) (KeyMaterial, error) {
	curveID, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("reading ECDSA curve id: %w", err)
	}
	keySize, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("reading ECDSA key size: %w", err)
	}
	raw, err := r.ReadBytes(int(keySize))
	if err != nil {
		return nil, fmt.Errorf("reading ECDSA key: %w", err)
	}
	return &ECDSAPublic{CurveID: curveID, Raw: raw}, nil
}

// RSAPrivateKeyRecord is the payload of a PRIV directory entry.
type RSAPrivateKeyRecord struct {
	Version uint32
	N       Magnitude
	E       Magnitude
	D       Magnitude
	P       Magnitude
	Q       Magnitude
	DP      Magnitude
	DQ      Magnitude
	QInv    Magnitude
}

// RSAPrivateFieldNames lists the record's big-integer fields in on-disk order.
// Both the size table and the value table follow it.
var RSAPrivateFieldNames = [rsaPrivateFields]string{"n", "e", "d", "p", "q", "dp", "dq", "qinv"}

func (k *RSAPrivateKeyRecord) fields() [rsaPrivateFields]*Magnitude {
	return [rsaPrivateFields]*Magnitude{&k.N, &k.E, &k.D, &k.P, &k.Q, &k.DP, &k.DQ, &k.QInv}
}

// DecodeRSAPrivateKeyRecord decodes a PRIV payload: eight u16 sizes, a u32
// version, then eight magnitudes of those sizes, all in the order of
// RSAPrivateFieldNames. Trailing bytes are ignored. No value is checked
// against any other record.
func DecodeRSAPrivateKeyRecord(payload []byte) (*RSAPrivateKeyRecord, error) {
	r := NewReader(payload)

	var sizes [rsaPrivateFields]uint16
	for i := range sizes {
		v, err := r.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("reading %s size: %w", RSAPrivateFieldNames[i], err)
		}
		sizes[i] = v
	}

	rec := &RSAPrivateKeyRecord{}
	var err error
	if rec.Version, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}

	for i, field := range rec.fields() {
		b, err := r.ReadBytes(int(sizes[i]))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", RSAPrivateFieldNames[i], err)
		}
		*field = b
	}
	return rec, nil
}
