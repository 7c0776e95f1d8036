package certstore

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sensiblebit/winckit"
	"gopkg.in/yaml.v3"
)

// ExportFile represents a single output file of an image export.
type ExportFile struct {
	Name      string
	Data      []byte
	Sensitive bool // true for files containing private key material (mode 0600)
}

// ImageExportInput holds parameters for GenerateImageFiles.
type ImageExportInput struct {
	Image    *winckit.Image
	Entries  []winckit.ResolvedEntry // resolved TLS store entries; nil when the TLS store failed
	Identity *winckit.DeviceIdentity // nil skips the identity containers
	Password string                  // protects identity.p12 and identity.jks
	PKCS12   bool                    // write identity.p12
	JKS      bool                    // write identity.jks
	Created  time.Time               // JKS entry creation time
}

// ExportManifest describes every exported file and the directory entry or
// anchor it came from.
type ExportManifest struct {
	RootStoreOffset string           `yaml:"rootStoreOffset"`
	TLSStoreOffset  string           `yaml:"tlsStoreOffset"`
	Checksum        string           `yaml:"tlsStoreChecksum,omitempty"`
	Anchors         []ManifestAnchor `yaml:"anchors,omitempty"`
	Entries         []ManifestEntry  `yaml:"entries,omitempty"`
	Identity        []string         `yaml:"identity,omitempty"`
}

// ManifestAnchor is one Root Cert Store record in the manifest.
type ManifestAnchor struct {
	Index     int    `yaml:"index"`
	NameHash  string `yaml:"nameHash"`
	Algorithm string `yaml:"algorithm"`
	ValidFrom string `yaml:"validFrom"`
	ValidTo   string `yaml:"validTo"`
	File      string `yaml:"file"`
}

// ManifestEntry is one TLS store directory entry in the manifest.
type ManifestEntry struct {
	Index  int    `yaml:"index"`
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Offset string `yaml:"offset"`
	Size   uint32 `yaml:"size"`
	File   string `yaml:"file,omitempty"`
}

// GenerateImageFiles creates the output files for a decoded image: one public
// key per anchor, one PEM per certificate and private key, a PKCS#7 chain of
// all certificates, the optional identity containers, and manifest.yaml.
// Unrecognized entries are listed in the manifest without a file.
func GenerateImageFiles(input ImageExportInput) ([]ExportFile, error) {
	img := input.Image
	manifest := ExportManifest{
		RootStoreOffset: fmt.Sprintf("%#x", img.Layout.RootStoreOffset),
		TLSStoreOffset:  fmt.Sprintf("%#x", img.Layout.TLSStoreOffset),
	}
	var files []ExportFile

	if img.RootStore != nil {
		for i, rec := range img.RootStore.Records {
			f, err := anchorFile(i, rec)
			if err != nil {
				return nil, fmt.Errorf("exporting anchor %d: %w", i, err)
			}
			files = append(files, f)
			manifest.Anchors = append(manifest.Anchors, ManifestAnchor{
				Index:     i,
				NameHash:  hex.EncodeToString(rec.NameHash[:]),
				Algorithm: rec.Key.Algorithm(),
				ValidFrom: rec.ValidFrom.String(),
				ValidTo:   rec.ValidTo.String(),
				File:      f.Name,
			})
		}
	}

	if img.TLSStore != nil {
		manifest.Checksum = fmt.Sprintf("%#08x", img.TLSStore.Checksum)
	}
	for _, e := range input.Entries {
		me := ManifestEntry{
			Index:  e.Index,
			Name:   e.Entry.Name,
			Kind:   e.Kind.String(),
			Offset: fmt.Sprintf("%#x", e.Entry.Offset),
			Size:   e.Entry.Size,
		}
		base := fmt.Sprintf("%02d-%s", e.Index, SanitizeFileName(e.Entry.Name))
		switch e.Kind {
		case winckit.KindCertificate:
			me.File = base + ".crt.pem"
			files = append(files, ExportFile{Name: me.File, Data: []byte(winckit.DERToPEM(e.Certificate))})
		case winckit.KindPrivateKey:
			key, err := e.PrivateKey.PrivateKey()
			if err != nil {
				return nil, fmt.Errorf("exporting %s: %w", e.Entry.Name, err)
			}
			keyPEM, err := winckit.MarshalPrivateKeyToPEM(key)
			if err != nil {
				return nil, fmt.Errorf("exporting %s: %w", e.Entry.Name, err)
			}
			me.File = base + ".key.pem"
			files = append(files, ExportFile{Name: me.File, Data: []byte(keyPEM), Sensitive: true})
		}
		manifest.Entries = append(manifest.Entries, me)
	}

	if ders := winckit.StoreCertificates(input.Entries); len(ders) > 0 {
		p7, err := winckit.EncodeCertificatesPKCS7(ders)
		if err != nil {
			return nil, err
		}
		files = append(files, ExportFile{Name: "chain.p7b", Data: p7})
	}

	if input.Identity != nil {
		if input.PKCS12 {
			pfx, err := winckit.EncodeIdentityPKCS12(input.Identity, input.Password)
			if err != nil {
				return nil, err
			}
			files = append(files, ExportFile{Name: "identity.p12", Data: pfx, Sensitive: true})
			manifest.Identity = append(manifest.Identity, "identity.p12")
		}
		if input.JKS {
			jks, err := winckit.EncodeIdentityJKS(input.Identity, input.Password, input.Created)
			if err != nil {
				return nil, err
			}
			files = append(files, ExportFile{Name: "identity.jks", Data: jks, Sensitive: true})
			manifest.Identity = append(manifest.Identity, "identity.jks")
		}
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshaling manifest: %w", err)
	}
	files = append(files, ExportFile{Name: "manifest.yaml", Data: data})
	return files, nil
}

// anchorFile renders an anchor's key. RSA keys become PUBLIC KEY PEM; ECDSA
// keys are written as their raw bytes since their encoding is unknown.
func anchorFile(index int, rec winckit.RootRecord) (ExportFile, error) {
	switch k := rec.Key.(type) {
	case *winckit.RSAPublic:
		pub, err := k.PublicKey()
		if err != nil {
			return ExportFile{}, err
		}
		out, err := winckit.MarshalPublicKeyToPEM(pub)
		if err != nil {
			return ExportFile{}, err
		}
		return ExportFile{Name: fmt.Sprintf("root-%02d.pub.pem", index), Data: []byte(out)}, nil
	case *winckit.ECDSAPublic:
		return ExportFile{Name: fmt.Sprintf("root-%02d.ecdsa-%d.bin", index, k.CurveID), Data: k.Raw}, nil
	default:
		return ExportFile{}, fmt.Errorf("unsupported key material %T", rec.Key)
	}
}
