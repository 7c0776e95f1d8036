package winckit

import (
	"fmt"
	"time"
)

// RootStoreName identifies the Root Cert Store in DecodeError.
const RootStoreName = "root cert store"

// RootCertStore is the decoded trust-anchor table.
type RootCertStore struct {
	Count   uint32
	Records []RootRecord
}

// RootRecord is one trust anchor: a SHA-1 hash of the anchor's subject name,
// its validity window, and its public key.
type RootRecord struct {
	NameHash  [nameHashSize]byte
	ValidFrom Timestamp
	ValidTo   Timestamp
	Key       KeyMaterial
}

// Timestamp is the firmware's 10-byte date record. The three trailing reserved
// bytes are skipped.
type Timestamp struct {
	Year   uint16
	Month  uint8
	Day    uint8
	Hour   uint8
	Minute uint8
	Second uint8
}

// IsZero reports whether every field is zero.
func (t Timestamp) IsZero() bool {
	return t == Timestamp{}
}

// Time converts t to a UTC time. It reports false for a zero timestamp or one
// whose fields are out of range.
func (t Timestamp) Time() (time.Time, bool) {
	if t.IsZero() || t.Month < 1 || t.Month > 12 || t.Day < 1 || t.Day > 31 ||
		t.Hour > 23 || t.Minute > 59 || t.Second > 60 {
		return time.Time{}, false
	}
	return time.Date(int(t.Year), time.Month(t.Month), int(t.Day), int(t.Hour), int(t.Minute), int(t.Second), 0, time.UTC), true
}

// String formats t as YYYY-MM-DD hh:mm:ss regardless of validity.
func (t Timestamp) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Second)
}

// decodeTimestamp reads the seven date-time fields and skips the trailing
// reserved bytes of the timestamp slot without looking at them.
func decodeTimestamp(r *Reader) (Timestamp, error) {
	var t Timestamp
	var err error
	if t.Year, err = r.ReadUint16(); err != nil {
		return t, err
	}
	for _, f := range []*uint8{&t.Month, &t.Day, &t.Hour, &t.Minute, &t.Second} {
		if *f, err = r.ReadUint8(); err != nil {
			return t, err
		}
	}
	return t, r.Skip(timestampSize - 7)
}

// ParseRootCertStore decodes the Root Cert Store that starts at offset in image.
func ParseRootCertStore(image []byte, offset int) (*RootCertStore, error) {
	r := NewReader(image)
	if err := r.Seek(offset); err != nil {
		return nil, headerError(RootStoreName, err)
	}
	return DecodeRootCertStore(r)
}

// DecodeRootCertStore decodes a Root Cert Store at the cursor. Records are
// inline and sequential; the cursor is left just past the last record. Any
// failure discards the whole store.
func DecodeRootCertStore(r *Reader) (*RootCertStore, error) {
	start := r.Offset()
	if err := r.ExpectMagic(RootStoreMagic); err != nil {
		return nil, headerError(RootStoreName, err)
	}
	count, err := r.ReadUint32()
	if err != nil {
		return nil, headerError(RootStoreName, fmt.Errorf("reading count: %w", err))
	}

	store := &RootCertStore{Count: count}
	for i := range int(count) {
		rec, err := decodeRootRecord(r, start)
		if err != nil {
			return nil, entryError(RootStoreName, i, err)
		}
		store.Records = append(store.Records, rec)
	}
	return store, nil
}

// decodeRootRecord reads one record. RSA fields are aligned relative to
// storeStart.
func decodeRootRecord(r *Reader, storeStart int) (RootRecord, error) {
	var rec RootRecord
	if err := r.ReadFixed(rec.NameHash[:]); err != nil {
		return RootRecord{}, fmt.Errorf("reading name hash: %w", err)
	}
	var err error
	if rec.ValidFrom, err = decodeTimestamp(r); err != nil {
		return RootRecord{}, fmt.Errorf("reading start time: %w", err)
	}
	if rec.ValidTo, err = decodeTimestamp(r); err != nil {
		return RootRecord{}, fmt.Errorf("reading end time: %w", err)
	}
	if rec.Key, err = decodeKeyMaterial(r, storeStart); err != nil {
		return RootRecord{}, err
	}
	return rec, nil
}
