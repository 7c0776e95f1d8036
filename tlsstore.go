package winckit

import (
	"bytes"
	"fmt"
)

// TLSStoreName identifies the TLS store in DecodeError.
const TLSStoreName = "tls store"

// TLSStore is the decoded device certificate and key directory.
type TLSStore struct {
	Count   uint32
	Entries []TLSEntry
	// Checksum is the trailing reserved word. Its algorithm is unknown and it
	// is not verified.
	Checksum uint32
}

// TLSEntry is one directory entry with its payload resolved.
type TLSEntry struct {
	Name    string
	Size    uint32
	Offset  uint32 // absolute offset of the payload in the image
	Payload []byte
}

// EntryKind classifies a directory entry by its name prefix.
type EntryKind int

const (
	KindUnrecognized EntryKind = iota
	KindCertificate
	KindPrivateKey
)

func (k EntryKind) String() string {
	switch k {
	case KindCertificate:
		return "certificate"
	case KindPrivateKey:
		return "private_key"
	default:
		return "unrecognized"
	}
}

// Kind classifies the entry by the first four bytes of its name.
func (e *TLSEntry) Kind() EntryKind {
	if len(e.Name) < 4 {
		return KindUnrecognized
	}
	switch e.Name[:4] {
	case CertificatePrefix:
		return KindCertificate
	case PrivateKeyPrefix:
		return KindPrivateKey
	default:
		return KindUnrecognized
	}
}

// ParseTLSStore decodes the TLS Store that starts at offset in image. Payload
// offsets are resolved against the whole image.
func ParseTLSStore(image []byte, offset int) (*TLSStore, error) {
	r := NewReader(image)
	if err := r.Seek(offset); err != nil {
		return nil, headerError(TLSStoreName, err)
	}
	return DecodeTLSStore(r)
}

// DecodeTLSStore decodes a TLS Store at the cursor. The count lives at a fixed
// displacement from the magic rather than right after it. Directory entries
// are sequential; each payload is fetched from its own absolute offset
// without moving the directory cursor, so directory order and payload
// placement are independent.
func DecodeTLSStore(r *Reader) (*TLSStore, error) {
	start := r.Offset()
	if err := r.ExpectMagic(TLSStoreMagic); err != nil {
		return nil, headerError(TLSStoreName, err)
	}
	if err := r.SeekFrom(start, TLSStoreCountDisplacement); err != nil {
		return nil, headerError(TLSStoreName, fmt.Errorf("locating count: %w", err))
	}
	count, err := r.ReadUint32()
	if err != nil {
		return nil, headerError(TLSStoreName, fmt.Errorf("reading count: %w", err))
	}
	// next write address: only meaningful to a writer
	if _, err := r.ReadUint32(); err != nil {
		return nil, headerError(TLSStoreName, fmt.Errorf("reading next write address: %w", err))
	}

	store := &TLSStore{Count: count}
	for i := range int(count) {
		entry, err := decodeTLSEntry(r)
		if err != nil {
			return nil, entryError(TLSStoreName, i, err)
		}
		store.Entries = append(store.Entries, entry)
	}

	if store.Checksum, err = r.ReadUint32(); err != nil {
		return nil, headerError(TLSStoreName, fmt.Errorf("reading checksum: %w", err))
	}
	return store, nil
}

// decodeTLSEntry reads one fixed-size directory entry and resolves its payload.
func decodeTLSEntry(r *Reader) (TLSEntry, error) {
	if err := r.need(directoryEntrySize); err != nil {
		return TLSEntry{}, fmt.Errorf("reading directory entry: %w", err)
	}
	var name [entryNameSize]byte
	if err := r.ReadFixed(name[:]); err != nil {
		return TLSEntry{}, fmt.Errorf("reading name: %w", err)
	}
	size, err := r.ReadUint32()
	if err != nil {
		return TLSEntry{}, fmt.Errorf("reading payload size: %w", err)
	}
	offset, err := r.ReadUint32()
	if err != nil {
		return TLSEntry{}, fmt.Errorf("reading payload offset: %w", err)
	}

	entry := TLSEntry{Name: nullTerminated(name[:]), Size: size, Offset: offset}
	if entry.Payload, err = r.Slice(offset, size); err != nil {
		return TLSEntry{}, fmt.Errorf("%s: %w", entry.Name, err)
	}
	return entry, nil
}

func nullTerminated(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// ResolvedEntry is a directory entry dispatched by kind. Certificate holds the
// DER payload of a CERT entry; PrivateKey holds the decoded PRIV payload.
type ResolvedEntry struct {
	Index       int
	Entry       *TLSEntry
	Kind        EntryKind
	Certificate []byte
	PrivateKey  *RSAPrivateKeyRecord
}

// Resolve dispatches every entry by kind and decodes PRIV payloads. A PRIV
// payload that fails to decode fails the whole call. Unrecognized entries are
// returned with Kind KindUnrecognized and an undecoded payload.
func (s *TLSStore) Resolve() ([]ResolvedEntry, error) {
	resolved := make([]ResolvedEntry, 0, len(s.Entries))
	for i := range s.Entries {
		entry := &s.Entries[i]
		res := ResolvedEntry{Index: i, Entry: entry, Kind: entry.Kind()}
		switch res.Kind {
		case KindCertificate:
			res.Certificate = entry.Payload
		case KindPrivateKey:
			key, err := DecodeRSAPrivateKeyRecord(entry.Payload)
			if err != nil {
				return nil, entryError(TLSStoreName, i, fmt.Errorf("%s: %w", entry.Name, err))
			}
			res.PrivateKey = key
		}
		resolved = append(resolved, res)
	}
	return resolved, nil
}

// Unrecognized returns the names of entries whose prefix is neither CERT nor PRIV.
func (s *TLSStore) Unrecognized() []string {
	var names []string
	for i := range s.Entries {
		if s.Entries[i].Kind() == KindUnrecognized {
			names = append(names, s.Entries[i].Name)
		}
	}
	return names
}
