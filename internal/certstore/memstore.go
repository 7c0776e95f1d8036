package certstore

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/sensiblebit/winckit"
)

// AnchorRecord holds a Root Cert Store record and where it was seen.
type AnchorRecord struct {
	NameHash  string // hex-encoded SHA-1 of the anchor subject
	KeyID     string // see AnchorKeyID
	Algorithm string // "RSA" or "ECDSA"
	ValidFrom winckit.Timestamp
	ValidTo   winckit.Timestamp
	Key       winckit.KeyMaterial
	Sources   []string // images that carry this anchor, in ingestion order
}

// CertRecord holds a parsed TLS store certificate and its computed metadata.
type CertRecord struct {
	Cert      *x509.Certificate
	SHA256    string // uppercase colon-hex fingerprint of the DER
	SKI       string // hex-encoded RFC 7093 SKI
	Name      string // TLS store entry name
	CertType  string // "root", "intermediate", "leaf"
	KeyType   string // e.g. "RSA 2048 bits"
	NotAfter  time.Time
	NotBefore time.Time
	Source    string // image that contributed this cert
}

// KeyRecord holds a device private key and its computed metadata.
type KeyRecord struct {
	Key       *rsa.PrivateKey
	SKI       string // hex-encoded RFC 7093 SKI
	Name      string // TLS store entry name
	KeyType   string
	BitLength int
	PEM       []byte // PKCS#8 PEM for export
	Source    string // image that contributed this key
}

func anchorID(nameHash, keyID string) string {
	return nameHash + "\x00" + keyID
}

// MemStore is an in-memory catalog of anchors, certificates and keys that
// implements Handler. Anchors are deduplicated by name hash and key,
// certificates by DER fingerprint, keys by SKI.
type MemStore struct {
	anchors    map[string]*AnchorRecord // "nameHash\x00keyID" → anchor
	certsByFP  map[string]*CertRecord   // SHA-256 fingerprint → cert
	certsBySKI map[string][]*CertRecord // SKI → all certs with that SKI
	keys       map[string]*KeyRecord    // SKI → key
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		anchors:    make(map[string]*AnchorRecord),
		certsByFP:  make(map[string]*CertRecord),
		certsBySKI: make(map[string][]*CertRecord),
		keys:       make(map[string]*KeyRecord),
	}
}

// HandleAnchor stores a trust anchor. An anchor already present gains the new
// source instead of being stored twice.
func (s *MemStore) HandleAnchor(rec winckit.RootRecord, source string) error {
	if rec.Key == nil {
		return errors.New("anchor has no key material")
	}
	keyID, err := AnchorKeyID(rec.Key)
	if err != nil {
		return fmt.Errorf("computing anchor key id: %w", err)
	}
	nameHash := hex.EncodeToString(rec.NameHash[:])

	id := anchorID(nameHash, keyID)
	if existing, ok := s.anchors[id]; ok {
		if !slices.Contains(existing.Sources, source) {
			existing.Sources = append(existing.Sources, source)
		}
		return nil
	}
	s.anchors[id] = &AnchorRecord{
		NameHash:  nameHash,
		KeyID:     keyID,
		Algorithm: rec.Key.Algorithm(),
		ValidFrom: rec.ValidFrom,
		ValidTo:   rec.ValidTo,
		Key:       rec.Key,
		Sources:   []string{source},
	}
	return nil
}

// HandleCertificate parses and stores a CERT payload. The same certificate
// seen in several images is stored once (first source wins).
func (s *MemStore) HandleCertificate(der []byte, name, source string) error {
	cert, err := winckit.ParseCertificateDER(der)
	if err != nil {
		return err
	}
	rawSKI, err := winckit.ComputeSKI(cert.PublicKey)
	if err != nil {
		return fmt.Errorf("computing SKI: %w", err)
	}
	ski := hex.EncodeToString(rawSKI)

	fp := winckit.FingerprintSHA256(der)
	if _, exists := s.certsByFP[fp]; exists {
		return nil
	}

	rec := &CertRecord{
		Cert:      cert,
		SHA256:    fp,
		SKI:       ski,
		Name:      name,
		CertType:  winckit.GetCertificateType(cert),
		KeyType:   GetKeyType(cert),
		NotAfter:  cert.NotAfter,
		NotBefore: cert.NotBefore,
		Source:    source,
	}
	s.certsByFP[fp] = rec
	s.certsBySKI[ski] = append(s.certsBySKI[ski], rec)
	return nil
}

// HandleKey stores a private key under its SKI, replacing any earlier key
// with the same SKI.
func (s *MemStore) HandleKey(key *rsa.PrivateKey, name, source string) error {
	if key == nil {
		return errors.New("private key is nil")
	}
	rawSKI, err := winckit.ComputeSKI(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("computing SKI: %w", err)
	}
	keyPEM, err := winckit.MarshalPrivateKeyToPEM(key)
	if err != nil {
		return err
	}
	ski := hex.EncodeToString(rawSKI)
	s.keys[ski] = &KeyRecord{
		Key:       key,
		SKI:       ski,
		Name:      name,
		KeyType:   "RSA",
		BitLength: key.N.BitLen(),
		PEM:       []byte(keyPEM),
		Source:    source,
	}
	return nil
}

// GetCert returns the certificate record with the latest NotAfter for the
// given SKI, or nil if not found.
func (s *MemStore) GetCert(ski string) *CertRecord {
	certs := s.certsBySKI[ski]
	if len(certs) == 0 {
		return nil
	}
	latest := certs[0]
	for _, c := range certs[1:] {
		if c.NotAfter.After(latest.NotAfter) {
			latest = c
		}
	}
	return latest
}

// GetKey returns the key record for the given SKI, or nil.
func (s *MemStore) GetKey(ski string) *KeyRecord {
	return s.keys[ski]
}

// AllAnchors returns all anchor records sorted by name hash, then key id.
func (s *MemStore) AllAnchors() []*AnchorRecord {
	result := make([]*AnchorRecord, 0, len(s.anchors))
	for _, rec := range s.anchors {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].NameHash != result[j].NameHash {
			return result[i].NameHash < result[j].NameHash
		}
		return result[i].KeyID < result[j].KeyID
	})
	return result
}

// AllCertsFlat returns all certificate records as a flat slice.
func (s *MemStore) AllCertsFlat() []*CertRecord {
	result := make([]*CertRecord, 0, len(s.certsByFP))
	for _, rec := range s.certsByFP {
		result = append(result, rec)
	}
	return result
}

// AllKeysFlat returns all key records as a flat slice.
func (s *MemStore) AllKeysFlat() []*KeyRecord {
	result := make([]*KeyRecord, 0, len(s.keys))
	for _, rec := range s.keys {
		result = append(result, rec)
	}
	return result
}

// MatchedPairs returns, sorted, the SKIs that have both a certificate and a
// key. Device certificates are often self-signed, so any certificate type
// counts.
func (s *MemStore) MatchedPairs() []string {
	var matched []string
	for ski, certs := range s.certsBySKI {
		if len(certs) == 0 {
			continue
		}
		if _, ok := s.keys[ski]; ok {
			matched = append(matched, ski)
		}
	}
	sort.Strings(matched)
	return matched
}

// IntermediatePool returns an x509.CertPool containing all intermediate
// certificates in the store.
func (s *MemStore) IntermediatePool() *x509.CertPool {
	pool := x509.NewCertPool()
	for _, rec := range s.certsByFP {
		if rec.CertType == "intermediate" {
			pool.AddCert(rec.Cert)
		}
	}
	return pool
}

// ScanSummary returns aggregate counts of stored anchors, certificates and
// keys. When input.RootPool is non-nil, unexpired intermediates and leaves
// are also checked for a chain to it.
func (s *MemStore) ScanSummary(input ScanSummaryInput) ScanSummary {
	summary := ScanSummary{
		Anchors: len(s.anchors),
		Keys:    len(s.keys),
	}

	now := time.Now()
	for _, rec := range s.anchors {
		switch rec.Key.(type) {
		case *winckit.RSAPublic:
			summary.RSAAnchors++
		case *winckit.ECDSAPublic:
			summary.ECDSAAnchors++
		}
		if to, ok := rec.ValidTo.Time(); ok && now.After(to) {
			summary.ExpiredAnchors++
		}
	}

	var intermediatePool *x509.CertPool
	if input.RootPool != nil {
		intermediatePool = s.IntermediatePool()
	}
	for _, rec := range s.certsByFP {
		expired := now.After(rec.NotAfter)
		trusted := func() bool {
			return verifyChainTrust(rec.Cert, input.RootPool, intermediatePool)
		}

		switch rec.CertType {
		case "root":
			summary.Roots++
		case "intermediate":
			summary.Intermediates++
			if expired {
				summary.ExpiredIntermediates++
			} else if input.RootPool != nil && !trusted() {
				summary.UntrustedIntermediates++
			}
		case "leaf":
			summary.Leaves++
			if expired {
				summary.ExpiredLeaves++
			} else if input.RootPool != nil && !trusted() {
				summary.UntrustedLeaves++
			}
		}
	}
	summary.Matched = len(s.MatchedPairs())
	return summary
}

func verifyChainTrust(cert *x509.Certificate, roots, intermediates *x509.CertPool) bool {
	_, err := cert.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err == nil
}

// DumpDebug logs all anchors, certificates and keys at debug level.
func (s *MemStore) DumpDebug() {
	slog.Debug("dumping anchors")
	for _, rec := range s.AllAnchors() {
		slog.Debug("anchor record",
			"name_hash", rec.NameHash,
			"key_id", rec.KeyID,
			"algorithm", rec.Algorithm,
			"valid_to", rec.ValidTo.String(),
			"sources", strings.Join(rec.Sources, ","))
	}
	slog.Debug("total anchors", "count", len(s.anchors))

	slog.Debug("dumping certificates")
	for fp, rec := range s.certsByFP {
		slog.Debug("certificate details",
			"sha256", fp,
			"ski", rec.SKI,
			"name", rec.Name,
			"cn", rec.Cert.Subject.CommonName,
			"serial", rec.Cert.SerialNumber.String(),
			"type", rec.CertType,
			"key_type", rec.KeyType,
			"expiry", rec.NotAfter.Format(time.RFC3339))
	}
	slog.Debug("total certificates", "count", len(s.certsByFP))

	slog.Debug("dumping keys")
	for ski, rec := range s.keys {
		slog.Debug("key record", "ski", ski, "name", rec.Name, "bits", rec.BitLength)
	}
	slog.Debug("total keys", "count", len(s.keys))
}

// Reset clears the catalog.
func (s *MemStore) Reset() {
	s.anchors = make(map[string]*AnchorRecord)
	s.certsByFP = make(map[string]*CertRecord)
	s.certsBySKI = make(map[string][]*CertRecord)
	s.keys = make(map[string]*KeyRecord)
}
