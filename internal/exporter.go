package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sensiblebit/winckit"
	"github.com/sensiblebit/winckit/internal/certstore"
)

// ExportInput holds the parameters for ExportImage.
type ExportInput struct {
	Data     []byte
	Path     string // source path, for logging
	Layout   winckit.Layout
	OutDir   string
	Password string
	PKCS12   bool
	JKS      bool
	Created  time.Time // zero uses the current time
}

// ExportImage decodes an image and writes its anchors, certificates, keys and
// manifest to input.OutDir. A store that fails to decode is logged and
// skipped; an error is returned when neither store decodes. Identity
// containers require a private key with a matching certificate. It returns
// the names of the files written.
func ExportImage(input ExportInput) ([]string, error) {
	img, err := winckit.DecodeImage(input.Data, input.Layout)
	if img.RootStore == nil && img.TLSStore == nil {
		return nil, fmt.Errorf("decoding %s: %w", input.Path, err)
	}
	if err != nil {
		slog.Warn("partially decoded image", "path", input.Path, "error", err)
	}

	var entries []winckit.ResolvedEntry
	if img.TLSStore != nil {
		if entries, err = img.TLSStore.Resolve(); err != nil {
			slog.Warn("skipping TLS store entries", "path", input.Path, "error", err)
			entries = nil
		}
		for _, name := range img.TLSStore.Unrecognized() {
			slog.Info("unrecognized TLS store entry", "path", input.Path, "name", name)
		}
	}

	var identity *winckit.DeviceIdentity
	if input.PKCS12 || input.JKS {
		if identity, err = winckit.BuildIdentity(entries); err != nil {
			return nil, fmt.Errorf("building device identity: %w", err)
		}
	}

	created := input.Created
	if created.IsZero() {
		created = time.Now()
	}
	files, err := certstore.GenerateImageFiles(certstore.ImageExportInput{
		Image:    img,
		Entries:  entries,
		Identity: identity,
		Password: input.Password,
		PKCS12:   input.PKCS12,
		JKS:      input.JKS,
		Created:  created,
	})
	if err != nil {
		return nil, fmt.Errorf("generating export files: %w", err)
	}

	fw := &filesystemWriter{outDir: input.OutDir}
	if err := fw.WriteFiles(files); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names, nil
}

// filesystemWriter writes export files to the local filesystem under outDir.
type filesystemWriter struct {
	outDir string
}

// WriteFiles creates outDir and writes each file with appropriate permissions.
// Existing files are not overwritten.
func (w *filesystemWriter) WriteFiles(files []certstore.ExportFile) error {
	if err := os.MkdirAll(w.outDir, 0755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", w.outDir, err)
	}

	for _, f := range files {
		mode := os.FileMode(0644)
		if f.Sensitive {
			mode = 0600
		}
		path := filepath.Join(w.outDir, f.Name)
		if err := writeNewFile(path, f.Data, mode); err != nil {
			return fmt.Errorf("writing %s: %w", f.Name, err)
		}
	}
	return nil
}

func writeNewFile(path string, data []byte, mode os.FileMode) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	_, err = f.Write(data)
	return err
}
