package winckit

import (
	"errors"
	"math/big"
	"testing"
)

func TestDecodeKeyMaterial_Tags(t *testing.T) {
	// WHY: The tag is the only thing deciding how many bytes the body
	// spans; each variant must take exactly its own field sequence.
	t.Parallel()

	tests := []struct {
		name    string
		body    []byte
		wantTag uint32
		wantErr error
		wantOff int
	}{
		{
			name:    "rsa",
			body:    (&imageBuilder{}).u32(1).u16(1).u16(1).bytes(0x07).align(4).bytes(0x03).align(4).buf,
			wantTag: TagRSAPublic,
			wantOff: 16,
		},
		{
			name:    "ecdsa",
			body:    (&imageBuilder{}).u32(2).u16(0x17).u16(3).bytes(0x04, 0x05, 0x06).buf,
			wantTag: TagECDSAPublic,
			wantOff: 11,
		},
		{name: "tag zero", body: (&imageBuilder{}).u32(0).buf, wantErr: ErrUnknownVariantTag},
		{name: "tag three", body: (&imageBuilder{}).u32(3).buf, wantErr: ErrUnknownVariantTag},
		{name: "tag high bits", body: (&imageBuilder{}).u32(0x01000001).buf, wantErr: ErrUnknownVariantTag},
		{name: "ecdsa short key", body: (&imageBuilder{}).u32(2).u16(0x17).u16(9).bytes(1, 2).buf, wantErr: ErrUnexpectedEndOfBuffer},
		{name: "missing tag", body: []byte{1, 0}, wantErr: ErrUnexpectedEndOfBuffer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewReader(tt.body)
			km, err := decodeKeyMaterial(r, 0)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if km.Tag() != tt.wantTag {
				t.Errorf("Tag() = %d, want %d", km.Tag(), tt.wantTag)
			}
			if r.Offset() != tt.wantOff {
				t.Errorf("cursor = %d, want %d", r.Offset(), tt.wantOff)
			}
		})
	}
}

func TestMagnitude_LeadingZeros(t *testing.T) {
	// WHY: Stored magnitudes may carry leading zero bytes; they must not
	// change the value.
	t.Parallel()
	if got := (Magnitude{0x00, 0x00, 0x01, 0x00}).Int(); got.Cmp(big.NewInt(256)) != 0 {
		t.Errorf("Int() = %s, want 256", got)
	}
	if got := Magnitude(nil).Int(); got.Sign() != 0 {
		t.Errorf("empty magnitude = %s, want 0", got)
	}
}

func TestDecodeRSAPrivateKeyRecord_RoundTrip(t *testing.T) {
	// WHY: The PRIV layout groups all sizes before all values; a field-order
	// slip would swap primes or exponents and still decode without error.
	t.Parallel()
	key := sharedRSAKey(t)
	payload := append(encodeRSAPrivateRecord(key, 0x0102), 0xEE, 0xEE)

	rec, err := DecodeRSAPrivateKeyRecord(payload)
	if err != nil {
		t.Fatalf("DecodeRSAPrivateKeyRecord: %v", err)
	}
	if rec.Version != 0x0102 {
		t.Errorf("version = %#x, want 0x102", rec.Version)
	}
	checks := []struct {
		name string
		got  Magnitude
		want *big.Int
	}{
		{"n", rec.N, key.N},
		{"e", rec.E, big.NewInt(int64(key.E))},
		{"d", rec.D, key.D},
		{"p", rec.P, key.Primes[0]},
		{"q", rec.Q, key.Primes[1]},
		{"dp", rec.DP, key.Precomputed.Dp},
		{"dq", rec.DQ, key.Precomputed.Dq},
		{"qinv", rec.QInv, key.Precomputed.Qinv},
	}
	for _, c := range checks {
		if c.got.Int().Cmp(c.want) != 0 {
			t.Errorf("%s mismatch", c.name)
		}
	}

	priv, err := rec.PrivateKey()
	if err != nil {
		t.Fatalf("PrivateKey: %v", err)
	}
	if !priv.Equal(key) {
		t.Error("rebuilt private key differs from source")
	}
}

func TestDecodeRSAPrivateKeyRecord_Truncated(t *testing.T) {
	// WHY: Truncation in the size table, the version, or any value must be
	// reported as ErrUnexpectedEndOfBuffer.
	t.Parallel()
	payload := encodeRSAPrivateRecord(sharedRSAKey(t), 1)

	for _, n := range []int{0, 7, 16, 19, 20, 300, len(payload) - 1} {
		if _, err := DecodeRSAPrivateKeyRecord(payload[:n]); !errors.Is(err, ErrUnexpectedEndOfBuffer) {
			t.Errorf("prefix %d: got %v, want ErrUnexpectedEndOfBuffer", n, err)
		}
	}
}

func TestRSAPrivateKeyRecord_PrivateKeyInvalid(t *testing.T) {
	// WHY: Components that decode fine but do not form a consistent key must
	// surface as ErrKeyMaterialInvalid, not as a usable key.
	t.Parallel()
	key := sharedRSAKey(t)
	good, err := DecodeRSAPrivateKeyRecord(encodeRSAPrivateRecord(key, 1))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(r *RSAPrivateKeyRecord)
	}{
		{"wrong d", func(r *RSAPrivateKeyRecord) { r.D = Magnitude{0x05} }},
		{"swapped n", func(r *RSAPrivateKeyRecord) { r.N = Magnitude{0x0F} }},
		{"zero modulus", func(r *RSAPrivateKeyRecord) { r.N = Magnitude{0x00} }},
		{"exponent one", func(r *RSAPrivateKeyRecord) { r.E = Magnitude{0x01} }},
		{"exponent too wide", func(r *RSAPrivateKeyRecord) { r.E = Magnitude{0x01, 0x00, 0x00, 0x00, 0x01} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := *good
			tt.mutate(&rec)
			if _, err := rec.PrivateKey(); !errors.Is(err, ErrKeyMaterialInvalid) {
				t.Fatalf("got %v, want ErrKeyMaterialInvalid", err)
			}
		})
	}
}

func TestRSAPublic_PublicKey(t *testing.T) {
	// WHY: Root records must rebuild into keys comparable with certificate
	// keys, or anchor matching can never succeed.
	t.Parallel()
	key := sharedRSAKey(t)
	pub, err := (&RSAPublic{N: append(Magnitude{0x00}, key.N.Bytes()...), E: Magnitude{0x01, 0x00, 0x01}}).PublicKey()
	if err != nil {
		t.Fatal(err)
	}
	if !pub.Equal(&key.PublicKey) {
		t.Error("rebuilt public key differs")
	}
}
