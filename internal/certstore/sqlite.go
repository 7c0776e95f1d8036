package certstore

import (
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/sensiblebit/winckit"
	_ "modernc.org/sqlite"
)

// sqliteAnchorRow maps a row in the SQLite anchors table.
type sqliteAnchorRow struct {
	NameHash  string         `db:"name_hash"`
	KeyID     string         `db:"key_id"`
	Algorithm string         `db:"algorithm"`
	ValidFrom string         `db:"valid_from"`
	ValidTo   string         `db:"valid_to"`
	Tag       int64          `db:"tag"`
	CurveID   int64          `db:"curve_id"`
	Modulus   []byte         `db:"modulus"`
	Exponent  []byte         `db:"exponent"`
	Raw       []byte         `db:"raw"`
	Sources   types.JSONText `db:"sources"`
}

// sqliteCertRow maps a row in the SQLite certificates table.
type sqliteCertRow struct {
	SHA256               string         `db:"sha256"`
	SubjectKeyIdentifier string         `db:"subject_key_identifier"`
	EntryName            string         `db:"entry_name"`
	CertType             string         `db:"cert_type"`
	KeyType              string         `db:"key_type"`
	Expiry               time.Time      `db:"expiry"`
	NotBefore            *time.Time     `db:"not_before"`
	CommonName           sql.NullString `db:"common_name"`
	SANsJSON             types.JSONText `db:"sans"`
	PEM                  string         `db:"pem"`
	Source               string         `db:"source"`
}

// sqliteKeyRow maps a row in the SQLite keys table.
type sqliteKeyRow struct {
	SubjectKeyIdentifier string `db:"subject_key_identifier"`
	EntryName            string `db:"entry_name"`
	KeyType              string `db:"key_type"`
	BitLength            int    `db:"bit_length"`
	PublicExponent       int    `db:"public_exponent"`
	Modulus              string `db:"modulus"`
	KeyData              []byte `db:"key_data"`
	Source               string `db:"source"`
}

// openMemDB creates an in-memory SQLite database with the winckit schema.
func openMemDB() (*sqlx.DB, error) {
	dsn := "file::memory:?_pragma=temp_store(2)&_pragma=journal_mode(off)&_pragma=synchronous(off)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return db, nil
}

// initSQLiteSchema creates the anchors, certificates and keys tables.
func initSQLiteSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS anchors (
			name_hash  text NOT NULL,
			key_id     text NOT NULL,
			algorithm  text NOT NULL,
			valid_from text NOT NULL,
			valid_to   text NOT NULL,
			tag        integer NOT NULL,
			curve_id   integer NOT NULL,
			modulus    blob,
			exponent   blob,
			raw        blob,
			sources    text NOT NULL,
			PRIMARY KEY(name_hash, key_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating anchors table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS certificates (
			sha256                 text PRIMARY KEY,
			subject_key_identifier text NOT NULL,
			entry_name             text NOT NULL,
			cert_type              text NOT NULL,
			key_type               text NOT NULL,
			expiry                 timestamp,
			not_before             timestamp,
			common_name            text,
			sans                   text,
			pem                    blob NOT NULL,
			source                 text NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating certificates table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_certificates_ski ON certificates (subject_key_identifier);
	`)
	if err != nil {
		return fmt.Errorf("creating SKI index: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS keys (
			subject_key_identifier TEXT PRIMARY KEY,
			entry_name TEXT,
			key_type TEXT,
			bit_length INTEGER,
			public_exponent INTEGER,
			modulus TEXT,
			key_data BLOB NOT NULL,
			source TEXT
		);
	`)
	if err != nil {
		return fmt.Errorf("creating keys table: %w", err)
	}
	return nil
}

// LoadFromSQLite opens a SQLite database file and copies its anchors,
// certificates and keys into the given MemStore.
func LoadFromSQLite(store *MemStore, dbPath string) error {
	db, err := openMemDB()
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	// ATTACH the on-disk database and copy data into memory
	_, err = db.Exec("ATTACH DATABASE ? AS diskdb", dbPath)
	if err != nil {
		return fmt.Errorf("attaching database %s: %w", dbPath, err)
	}
	defer func() {
		if _, detachErr := db.Exec("DETACH DATABASE diskdb"); detachErr != nil {
			slog.Warn("detaching database", "path", dbPath, "error", detachErr)
		}
	}()

	for _, table := range []string{"anchors", "certificates", "keys"} {
		if _, err := db.Exec("INSERT OR IGNORE INTO " + table + " SELECT * FROM diskdb." + table); err != nil {
			return fmt.Errorf("loading %s from %s: %w", table, dbPath, err)
		}
	}

	var anchors []sqliteAnchorRow
	if err := db.Select(&anchors, "SELECT * FROM anchors"); err != nil {
		return fmt.Errorf("reading anchors: %w", err)
	}
	for _, a := range anchors {
		rec, sources, err := a.rootRecord()
		if err != nil {
			slog.Warn("skipping anchor from DB", "name_hash", a.NameHash, "error", err)
			continue
		}
		for _, src := range sources {
			if err := store.HandleAnchor(rec, src); err != nil {
				slog.Warn("loading anchor from DB", "name_hash", a.NameHash, "error", err)
				break
			}
		}
	}

	var certs []sqliteCertRow
	if err := db.Select(&certs, "SELECT * FROM certificates"); err != nil {
		return fmt.Errorf("reading certificates: %w", err)
	}
	for _, c := range certs {
		block, _ := pem.Decode([]byte(c.PEM))
		if block == nil {
			slog.Debug("skipping certificate with unparseable PEM", "sha256", c.SHA256)
			continue
		}
		if err := store.HandleCertificate(block.Bytes, c.EntryName, c.Source); err != nil {
			slog.Warn("loading cert from DB", "sha256", c.SHA256, "error", err)
		}
	}

	var keys []sqliteKeyRow
	if err := db.Select(&keys, "SELECT * FROM keys"); err != nil {
		return fmt.Errorf("reading keys: %w", err)
	}
	for _, k := range keys {
		key, err := parseKeyPEM(k.KeyData)
		if err != nil {
			slog.Warn("parsing key from DB", "ski", k.SubjectKeyIdentifier, "error", err)
			continue
		}
		if err := store.HandleKey(key, k.EntryName, k.Source); err != nil {
			slog.Warn("loading key from DB", "ski", k.SubjectKeyIdentifier, "error", err)
		}
	}

	slog.Info("loaded database into store", "path", dbPath)
	return nil
}

func (a sqliteAnchorRow) rootRecord() (winckit.RootRecord, []string, error) {
	var rec winckit.RootRecord
	hash, err := hex.DecodeString(a.NameHash)
	if err != nil || len(hash) != len(rec.NameHash) {
		return rec, nil, fmt.Errorf("invalid name hash %q", a.NameHash)
	}
	copy(rec.NameHash[:], hash)

	if rec.ValidFrom, err = parseTimestamp(a.ValidFrom); err != nil {
		return rec, nil, err
	}
	if rec.ValidTo, err = parseTimestamp(a.ValidTo); err != nil {
		return rec, nil, err
	}

	switch uint32(a.Tag) {
	case winckit.TagRSAPublic:
		rec.Key = &winckit.RSAPublic{N: a.Modulus, E: a.Exponent}
	case winckit.TagECDSAPublic:
		rec.Key = &winckit.ECDSAPublic{CurveID: uint16(a.CurveID), Raw: a.Raw}
	default:
		return rec, nil, fmt.Errorf("%w %d", winckit.ErrUnknownVariantTag, a.Tag)
	}

	var sources []string
	if err := json.Unmarshal(a.Sources, &sources); err != nil {
		return rec, nil, fmt.Errorf("decoding sources: %w", err)
	}
	return rec, sources, nil
}

func parseTimestamp(s string) (winckit.Timestamp, error) {
	var ts winckit.Timestamp
	if _, err := fmt.Sscanf(s, "%d-%d-%d %d:%d:%d", &ts.Year, &ts.Month, &ts.Day, &ts.Hour, &ts.Minute, &ts.Second); err != nil {
		return ts, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return ts, nil
}

func parseKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block in key data")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing PKCS#8 key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type %T", key)
	}
	return rsaKey, nil
}

// SaveToSQLite writes the contents of a MemStore to a SQLite database file.
// The file must not exist.
func SaveToSQLite(store *MemStore, dbPath string) error {
	db, err := openMemDB()
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	for _, rec := range store.AllAnchors() {
		sources, _ := json.Marshal(rec.Sources)
		row := sqliteAnchorRow{
			NameHash:  rec.NameHash,
			KeyID:     rec.KeyID,
			Algorithm: rec.Algorithm,
			ValidFrom: rec.ValidFrom.String(),
			ValidTo:   rec.ValidTo.String(),
			Tag:       int64(rec.Key.Tag()),
			Sources:   types.JSONText(sources),
		}
		switch k := rec.Key.(type) {
		case *winckit.RSAPublic:
			row.Modulus, row.Exponent = k.N, k.E
		case *winckit.ECDSAPublic:
			row.CurveID, row.Raw = int64(k.CurveID), k.Raw
		}
		_, err := db.NamedExec(`
			INSERT OR IGNORE INTO anchors (name_hash, key_id, algorithm, valid_from, valid_to, tag, curve_id, modulus, exponent, raw, sources)
			VALUES (:name_hash, :key_id, :algorithm, :valid_from, :valid_to, :tag, :curve_id, :modulus, :exponent, :raw, :sources)
		`, row)
		if err != nil {
			slog.Warn("saving anchor to DB", "name_hash", rec.NameHash, "error", err)
		}
	}

	for _, rec := range store.AllCertsFlat() {
		certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: rec.Cert.Raw})
		sansJSON, _ := json.Marshal(rec.Cert.DNSNames)

		notBefore := rec.NotBefore
		row := sqliteCertRow{
			SHA256:               rec.SHA256,
			SubjectKeyIdentifier: rec.SKI,
			EntryName:            rec.Name,
			CertType:             rec.CertType,
			KeyType:              rec.KeyType,
			Expiry:               rec.NotAfter,
			NotBefore:            &notBefore,
			CommonName:           sql.NullString{String: rec.Cert.Subject.CommonName, Valid: rec.Cert.Subject.CommonName != ""},
			SANsJSON:             types.JSONText(sansJSON),
			PEM:                  string(certPEM),
			Source:               rec.Source,
		}
		_, err := db.NamedExec(`
			INSERT OR IGNORE INTO certificates (sha256, subject_key_identifier, entry_name, cert_type, key_type, expiry, not_before, common_name, sans, pem, source)
			VALUES (:sha256, :subject_key_identifier, :entry_name, :cert_type, :key_type, :expiry, :not_before, :common_name, :sans, :pem, :source)
		`, row)
		if err != nil {
			slog.Warn("saving cert to DB", "sha256", rec.SHA256, "error", err)
		}
	}

	for _, rec := range store.AllKeysFlat() {
		row := sqliteKeyRow{
			SubjectKeyIdentifier: rec.SKI,
			EntryName:            rec.Name,
			KeyType:              rec.KeyType,
			BitLength:            rec.BitLength,
			PublicExponent:       rec.Key.E,
			Modulus:              rec.Key.N.Text(16),
			KeyData:              rec.PEM,
			Source:               rec.Source,
		}
		_, err := db.NamedExec(`
			INSERT OR IGNORE INTO keys (subject_key_identifier, entry_name, key_type, bit_length, public_exponent, modulus, key_data, source)
			VALUES (:subject_key_identifier, :entry_name, :key_type, :bit_length, :public_exponent, :modulus, :key_data, :source)
		`, row)
		if err != nil {
			slog.Warn("saving key to DB", "ski", rec.SKI, "error", err)
		}
	}

	// VACUUM INTO produces a clean, compact copy
	if _, err := db.Exec("VACUUM INTO ?", dbPath); err != nil {
		return fmt.Errorf("saving database to %s: %w", dbPath, err)
	}

	slog.Info("database saved", "path", dbPath)
	return nil
}
