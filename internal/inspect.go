package internal

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/sensiblebit/winckit"
	"github.com/sensiblebit/winckit/internal/certstore"
)

// Result types reported by InspectImage.
const (
	ResultAnchor       = "anchor"
	ResultCertificate  = "certificate"
	ResultPrivateKey   = "private_key"
	ResultUnrecognized = "unrecognized"
	ResultStoreError   = "store_error"
)

// InspectResult holds the inspection details for one decoded item.
type InspectResult struct {
	Type       string `json:"type"`
	Store      string `json:"store"`
	Index      int    `json:"index"`
	Name       string `json:"name,omitempty"`
	Offset     string `json:"offset,omitempty"`
	Size       uint32 `json:"size,omitempty"`
	NameHash   string `json:"name_hash,omitempty"`
	ValidFrom  string `json:"valid_from,omitempty"`
	ValidTo    string `json:"valid_to,omitempty"`
	KeyAlgo    string `json:"key_algorithm,omitempty"`
	KeySize    string `json:"key_size,omitempty"`
	KeyID      string `json:"key_id,omitempty"`
	KnownRoot  string `json:"known_root,omitempty"`
	KeyMatches bool   `json:"key_matches_root,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Issuer     string `json:"issuer,omitempty"`
	Serial     string `json:"serial,omitempty"`
	NotBefore  string `json:"not_before,omitempty"`
	NotAfter   string `json:"not_after,omitempty"`
	SigAlg     string `json:"signature_algorithm,omitempty"`
	SHA256     string `json:"sha256_fingerprint,omitempty"`
	Lenient    bool   `json:"lenient_parse,omitempty"`
	SKI        string `json:"subject_key_id,omitempty"`
	Version    uint32 `json:"key_version,omitempty"`
	Error      string `json:"error,omitempty"`
}

// InspectInput holds the parameters for InspectImage.
type InspectInput struct {
	Data   []byte
	Layout winckit.Layout
	// IdentifyRoots matches anchors against the embedded Mozilla roots.
	IdentifyRoots bool
}

// InspectImage decodes both stores of an image and describes every anchor and
// directory entry. A store that fails to decode is reported as a store_error
// result; an error is returned only when neither store decodes. Entries are
// described individually, so one bad payload does not hide the others.
func InspectImage(input InspectInput) ([]InspectResult, error) {
	img, err := winckit.DecodeImage(input.Data, input.Layout)
	if img.RootStore == nil && img.TLSStore == nil {
		return nil, fmt.Errorf("no store found: %w", err)
	}

	var results []InspectResult
	if err != nil {
		results = append(results, storeErrors(err)...)
	}
	if img.RootStore != nil {
		anchors, err := inspectAnchors(img.RootStore, input.IdentifyRoots)
		if err != nil {
			return nil, err
		}
		results = append(results, anchors...)
	}
	if img.TLSStore != nil {
		for i := range img.TLSStore.Entries {
			results = append(results, inspectEntry(i, &img.TLSStore.Entries[i]))
		}
	}
	return results, nil
}

func storeErrors(err error) []InspectResult {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}
	results := make([]InspectResult, 0, len(errs))
	for _, e := range errs {
		r := InspectResult{Type: ResultStoreError, Index: -1, Error: e.Error()}
		var de *winckit.DecodeError
		if errors.As(e, &de) {
			r.Store = de.Store
			r.Index = de.Index
		}
		results = append(results, r)
	}
	return results
}

func inspectAnchors(store *winckit.RootCertStore, identify bool) ([]InspectResult, error) {
	known := make(map[int]winckit.AnchorMatch)
	if identify {
		matches, err := winckit.IdentifyAnchors(store)
		if err != nil {
			return nil, fmt.Errorf("identifying anchors: %w", err)
		}
		for _, m := range matches {
			known[m.Index] = m
		}
	}

	results := make([]InspectResult, 0, len(store.Records))
	for i, rec := range store.Records {
		r := InspectResult{
			Type:      ResultAnchor,
			Store:     winckit.RootStoreName,
			Index:     i,
			NameHash:  hex.EncodeToString(rec.NameHash[:]),
			ValidFrom: rec.ValidFrom.String(),
			ValidTo:   rec.ValidTo.String(),
			KeyAlgo:   rec.Key.Algorithm(),
		}
		switch k := rec.Key.(type) {
		case *winckit.RSAPublic:
			r.KeySize = strconv.Itoa(k.N.Int().BitLen())
		case *winckit.ECDSAPublic:
			r.KeySize = fmt.Sprintf("curve %d, %d bytes", k.CurveID, len(k.Raw))
		}
		if id, err := certstore.AnchorKeyID(rec.Key); err == nil {
			r.KeyID = id
		} else {
			r.Error = err.Error()
		}
		if m, ok := known[i]; ok {
			r.KnownRoot = m.Subject
			r.KeyMatches = m.KeyMatches
		}
		results = append(results, r)
	}
	return results, nil
}

func inspectEntry(index int, e *winckit.TLSEntry) InspectResult {
	r := InspectResult{
		Type:   ResultUnrecognized,
		Store:  winckit.TLSStoreName,
		Index:  index,
		Name:   e.Name,
		Offset: fmt.Sprintf("%#x", e.Offset),
		Size:   e.Size,
	}
	switch e.Kind() {
	case winckit.KindCertificate:
		r.Type = ResultCertificate
		summary, err := winckit.DescribeCertificate(e.Payload)
		if err != nil {
			r.Error = err.Error()
			return r
		}
		r.Subject = summary.Subject
		r.Issuer = summary.Issuer
		r.Serial = summary.Serial
		r.NotBefore = summary.NotBefore.Format(time.RFC3339)
		r.NotAfter = summary.NotAfter.Format(time.RFC3339)
		r.KeyAlgo = summary.KeyAlgo
		r.SigAlg = summary.SigAlg
		r.SHA256 = summary.SHA256
		r.Lenient = summary.Lenient
	case winckit.KindPrivateKey:
		r.Type = ResultPrivateKey
		rec, err := winckit.DecodeRSAPrivateKeyRecord(e.Payload)
		if err != nil {
			r.Error = err.Error()
			return r
		}
		r.KeyAlgo = "RSA"
		r.KeySize = strconv.Itoa(rec.N.Int().BitLen())
		r.Version = rec.Version
		key, err := rec.PrivateKey()
		if err != nil {
			r.Error = err.Error()
			return r
		}
		if fp, err := winckit.SSHFingerprint(&key.PublicKey); err == nil {
			r.KeyID = fp
		}
		if ski, err := winckit.ComputeSKI(&key.PublicKey); err == nil {
			r.SKI = winckit.ColonHex(ski)
		}
	}
	return r
}

// FormatInspectResults formats inspection results as text, JSON, or a
// markdown table.
func FormatInspectResults(results []InspectResult, format string) (string, error) {
	switch format {
	case "text":
		return formatInspectText(results), nil
	case "json":
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshaling JSON: %w", err)
		}
		return string(data) + "\n", nil
	case "table":
		return formatInspectTable(results), nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use text, json or table)", format)
	}
}

func formatInspectText(results []InspectResult) string {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch r.Type {
		case ResultStoreError:
			fmt.Fprintf(&sb, "Store Error (%s):\n", r.Store)
			fmt.Fprintf(&sb, "  Error:       %s\n", r.Error)
		case ResultAnchor:
			fmt.Fprintf(&sb, "Trust Anchor #%d:\n", r.Index)
			fmt.Fprintf(&sb, "  Name Hash:   %s\n", r.NameHash)
			if r.KnownRoot != "" {
				fmt.Fprintf(&sb, "  Known Root:  %s%s\n", r.KnownRoot, keyMatchNote(r))
			}
			fmt.Fprintf(&sb, "  Valid From:  %s\n", r.ValidFrom)
			fmt.Fprintf(&sb, "  Valid To:    %s\n", r.ValidTo)
			fmt.Fprintf(&sb, "  Key:         %s %s\n", r.KeyAlgo, r.KeySize)
			if r.KeyID != "" {
				fmt.Fprintf(&sb, "  Key ID:      %s\n", r.KeyID)
			}
		case ResultCertificate:
			fmt.Fprintf(&sb, "Certificate %s:\n", r.Name)
			if r.Error != "" {
				fmt.Fprintf(&sb, "  Error:       %s\n", r.Error)
				break
			}
			fmt.Fprintf(&sb, "  Subject:     %s\n", r.Subject)
			fmt.Fprintf(&sb, "  Issuer:      %s\n", r.Issuer)
			fmt.Fprintf(&sb, "  Serial:      %s\n", r.Serial)
			fmt.Fprintf(&sb, "  Not Before:  %s\n", r.NotBefore)
			fmt.Fprintf(&sb, "  Not After:   %s\n", r.NotAfter)
			fmt.Fprintf(&sb, "  Key:         %s\n", r.KeyAlgo)
			fmt.Fprintf(&sb, "  Signature:   %s\n", r.SigAlg)
			fmt.Fprintf(&sb, "  SHA-256:     %s\n", r.SHA256)
			if r.Lenient {
				fmt.Fprintf(&sb, "  Note:        parsed leniently (not strictly DER conforming)\n")
			}
		case ResultPrivateKey:
			fmt.Fprintf(&sb, "Private Key %s:\n", r.Name)
			if r.KeySize != "" {
				fmt.Fprintf(&sb, "  Type:          %s\n", r.KeyAlgo)
				fmt.Fprintf(&sb, "  Size:          %s\n", r.KeySize)
				fmt.Fprintf(&sb, "  Version:       %d\n", r.Version)
			}
			if r.Error != "" {
				fmt.Fprintf(&sb, "  Error:         %s\n", r.Error)
				break
			}
			fmt.Fprintf(&sb, "  Fingerprint:   %s\n", r.KeyID)
			fmt.Fprintf(&sb, "  SKI (SHA-256): %s\n", r.SKI)
		case ResultUnrecognized:
			fmt.Fprintf(&sb, "Unrecognized Entry %s:\n", r.Name)
			fmt.Fprintf(&sb, "  Offset:      %s\n", r.Offset)
			fmt.Fprintf(&sb, "  Size:        %d\n", r.Size)
		}
	}
	return sb.String()
}

func keyMatchNote(r InspectResult) string {
	if r.KeyMatches {
		return " (key matches)"
	}
	return ""
}

func formatInspectTable(results []InspectResult) string {
	var buf strings.Builder
	table := tablewriter.NewTable(&buf,
		tablewriter.WithRenderer(renderer.NewMarkdown(tw.Rendition{Streaming: true})),
	)
	table.Header([]string{"Store", "#", "Type", "Name", "Key", "Details"})

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		name, details := r.Name, r.Error
		switch r.Type {
		case ResultAnchor:
			name = r.NameHash
			if details == "" {
				details = r.KnownRoot
			}
		case ResultCertificate:
			if details == "" {
				details = r.Subject
			}
		case ResultPrivateKey:
			if details == "" {
				details = r.KeyID
			}
		case ResultUnrecognized:
			details = fmt.Sprintf("%d bytes at %s", r.Size, r.Offset)
		}
		rows = append(rows, []string{
			r.Store,
			strconv.Itoa(r.Index),
			r.Type,
			name,
			strings.TrimSpace(r.KeyAlgo + " " + r.KeySize),
			details,
		})
	}

	table.Bulk(rows)
	table.Render()
	return buf.String()
}
