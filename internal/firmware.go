package internal

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/sensiblebit/winckit/internal/certstore"
)

// DefaultMaxImageSize bounds how much of a single file is read as a firmware
// image. ATWINC flash parts are 512 KB to 1 MB.
const DefaultMaxImageSize int64 = 16 * 1024 * 1024

// ErrImageTooLarge is returned when an input exceeds the configured size limit.
var ErrImageTooLarge = errors.New("image exceeds max size")

// skippableDirs contains directory names that cannot contain firmware images
// and should be skipped during filesystem walks to avoid unnecessary I/O.
var skippableDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"vendor":       true,
}

// IsSkippableDir reports whether the given directory name should be skipped
// during scanning.
func IsSkippableDir(name string) bool {
	return skippableDirs[name]
}

// ReadImage reads a firmware image from path, or from stdin when path is "-".
// Inputs larger than maxSize fail with ErrImageTooLarge; a maxSize of zero
// uses DefaultMaxImageSize.
func ReadImage(path string, maxSize int64) ([]byte, error) {
	if path == "-" {
		return readLimited(os.Stdin, "stdin", maxSize)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Warn("closing image", "path", path, "error", closeErr)
		}
	}()
	return readLimited(f, path, maxSize)
}

func readLimited(r io.Reader, name string, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxImageSize
	}
	// read one byte past the limit to detect overflow
	data, err := io.ReadAll(io.LimitReader(r, safeLimitSize(maxSize)))
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", name, err)
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%s: %w (%d bytes)", name, ErrImageTooLarge, maxSize)
	}
	return data, nil
}

// safeLimitSize returns maxSize+1 for overflow detection in io.LimitReader,
// clamped to math.MaxInt64 to prevent int64 wraparound.
func safeLimitSize(maxSize int64) int64 {
	if maxSize == math.MaxInt64 {
		return math.MaxInt64
	}
	return maxSize + 1
}

// ProcessFile reads one firmware image and ingests its anchors, certificates
// and keys into cfg.Store.
func ProcessFile(path string, cfg *Config) error {
	data, err := ReadImage(path, cfg.MaxImageSize)
	if err != nil {
		return err
	}
	slog.Debug("processing image", "path", path, "size", len(data))
	return certstore.ProcessImage(certstore.ProcessInput{
		Data:    data,
		Path:    path,
		Layout:  cfg.Layout,
		Handler: cfg.Store,
	})
}

// ScanPath ingests cfg.InputPath, walking it when it is a directory. Files
// that fail to decode are logged and skipped; the number of images that
// decoded without error is returned.
func ScanPath(cfg *Config) (int, error) {
	if cfg.InputPath == "-" {
		if err := ProcessFile("-", cfg); err != nil {
			return 0, fmt.Errorf("processing stdin: %w", err)
		}
		return 1, nil
	}

	if _, err := os.Stat(cfg.InputPath); err != nil {
		return 0, fmt.Errorf("input path %s: %w", cfg.InputPath, err)
	}

	decoded := 0
	err := filepath.WalkDir(cfg.InputPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != cfg.InputPath && IsSkippableDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := ProcessFile(path, cfg); err != nil {
			slog.Warn("error processing file", "path", path, "error", err)
			return nil
		}
		decoded++
		return nil
	})
	if err != nil {
		return decoded, fmt.Errorf("walking input path: %w", err)
	}
	return decoded, nil
}
