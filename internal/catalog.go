package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sensiblebit/winckit/internal/certstore"
)

// LoadCatalog merges a previously saved SQLite catalog into store. A missing
// file is not an error: the first scan creates it.
func LoadCatalog(store *certstore.MemStore, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("no existing catalog", "path", path)
		return nil
	}
	if err := certstore.LoadFromSQLite(store, path); err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	return nil
}

// SaveCatalog writes store to path, replacing any existing catalog. The
// database is written to a temporary file in the same directory and renamed
// into place, so a failed save leaves the previous catalog intact.
func SaveCatalog(store *certstore.MemStore, path string) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale %s: %w", tmp, err)
	}
	if err := certstore.SaveToSQLite(store, tmp); err != nil {
		return fmt.Errorf("saving catalog: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing catalog %s: %w", path, err)
	}
	return nil
}
