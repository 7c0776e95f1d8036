package internal

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sensiblebit/winckit"
)

func TestInspectImage(t *testing.T) {
	// WHY: Inspect must describe every anchor and directory entry in order,
	// classifying entries by name prefix.
	t.Parallel()
	dev := newTestDevice(t)

	results, err := InspectImage(InspectInput{Data: deviceImage(t, dev), Layout: testLayout})
	if err != nil {
		t.Fatalf("InspectImage: %v", err)
	}

	var types []string
	for _, r := range results {
		types = append(types, r.Type)
	}
	want := []string{ResultAnchor, ResultPrivateKey, ResultCertificate, ResultCertificate, ResultUnrecognized}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Fatalf("result types mismatch (-want +got):\n%s", diff)
	}

	anchor := results[0]
	if anchor.Store != winckit.RootStoreName || anchor.KeyAlgo != "RSA" || anchor.KeySize != "2048" {
		t.Errorf("anchor = %+v", anchor)
	}
	if anchor.ValidTo != "2040-12-31 23:59:59" || !strings.HasPrefix(anchor.KeyID, "SHA256:") {
		t.Errorf("anchor validity/key id = %q, %q", anchor.ValidTo, anchor.KeyID)
	}

	key := results[1]
	if key.Error != "" || key.KeySize != "2048" || key.Version != 1 || key.SKI == "" {
		t.Errorf("private key = %+v", key)
	}
	fp, err := winckit.SSHFingerprint(&dev.key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	if key.KeyID != fp {
		t.Errorf("key fingerprint = %q, want %q", key.KeyID, fp)
	}

	if cert := results[2]; !strings.Contains(cert.Subject, "winc-device-01") || cert.Lenient {
		t.Errorf("certificate = %+v", cert)
	}
	if other := results[4]; other.Name != "FLAGS" || other.Size != 4 {
		t.Errorf("unrecognized = %+v", other)
	}
}

func TestInspectImage_PartialFailure(t *testing.T) {
	// WHY: A corrupted root store is reported in place while the TLS store is
	// still described; only a fully unreadable image is an error.
	t.Parallel()
	dev := newTestDevice(t)
	img := deviceImage(t, dev)
	img[testLayout.RootStoreOffset] ^= 0xFF

	results, err := InspectImage(InspectInput{Data: img, Layout: testLayout})
	if err != nil {
		t.Fatalf("InspectImage: %v", err)
	}
	first := results[0]
	if first.Type != ResultStoreError || first.Store != winckit.RootStoreName || first.Index != -1 {
		t.Errorf("first result = %+v", first)
	}
	if len(results) != 5 {
		t.Errorf("got %d results, want store error plus 4 entries", len(results))
	}

	img[testLayout.TLSStoreOffset] ^= 0xFF
	if _, err := InspectImage(InspectInput{Data: img, Layout: testLayout}); !errors.Is(err, winckit.ErrMagicMismatch) {
		t.Errorf("got %v, want ErrMagicMismatch", err)
	}
}

func TestInspectImage_BadEntries(t *testing.T) {
	// WHY: A truncated key or malformed certificate is reported on its own
	// entry without hiding the rest of the directory.
	t.Parallel()
	dev := newTestDevice(t)
	img := buildTestImage(t, nil, []testEntry{
		{name: "PRIV_00", payload: []byte{1}},
		{name: "CERT_00", payload: []byte("not der")},
		{name: "CERT_01", payload: dev.cert.Raw},
	})

	results, err := InspectImage(InspectInput{Data: img, Layout: testLayout})
	if err != nil {
		t.Fatalf("InspectImage: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if !strings.Contains(results[0].Error, winckit.ErrUnexpectedEndOfBuffer.Error()) {
		t.Errorf("truncated key error = %q", results[0].Error)
	}
	if !strings.Contains(results[1].Error, winckit.ErrKeyMaterialInvalid.Error()) {
		t.Errorf("bad certificate error = %q", results[1].Error)
	}
	if results[2].Error != "" {
		t.Errorf("valid certificate error = %q", results[2].Error)
	}
}

func TestFormatInspectResults(t *testing.T) {
	// WHY: All three output formats must render every result kind; JSON must
	// round-trip and unknown formats must be rejected.
	t.Parallel()
	dev := newTestDevice(t)
	results, err := InspectImage(InspectInput{Data: deviceImage(t, dev), Layout: testLayout})
	if err != nil {
		t.Fatal(err)
	}

	text, err := FormatInspectResults(results, "text")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Trust Anchor #0:", "Private Key PRIV_00:", "Certificate CERT_00:", "Unrecognized Entry FLAGS:", "winc-device-01"} {
		if !strings.Contains(text, want) {
			t.Errorf("text output missing %q", want)
		}
	}

	out, err := FormatInspectResults(results, "json")
	if err != nil {
		t.Fatal(err)
	}
	var decoded []InspectResult
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if diff := cmp.Diff(results, decoded); diff != "" {
		t.Errorf("json round trip mismatch (-want +got):\n%s", diff)
	}

	table, err := FormatInspectResults(results, "table")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"|", "PRIV_00", "FLAGS", "4 bytes at"} {
		if !strings.Contains(table, want) {
			t.Errorf("table output missing %q:\n%s", want, table)
		}
	}

	if _, err := FormatInspectResults(results, "xml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}
