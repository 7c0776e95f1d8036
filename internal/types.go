package internal

import (
	"crypto/x509"

	"github.com/sensiblebit/winckit"
	"github.com/sensiblebit/winckit/internal/certstore"
)

// Config holds the runtime configuration of a scan.
type Config struct {
	InputPath    string
	Layout       winckit.Layout
	Store        *certstore.MemStore
	MaxImageSize int64
	// RootPool, when set, is used to classify scanned certificates as
	// trusted or untrusted in the summary.
	RootPool *x509.CertPool
}
