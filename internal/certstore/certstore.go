// Package certstore catalogs the trust anchors, certificates and private keys
// decoded from one or more firmware images, and persists the catalog to
// SQLite.
package certstore

import (
	"crypto/rsa"

	"github.com/sensiblebit/winckit"
)

// Handler receives decoded material from ProcessImage.
type Handler interface {
	HandleAnchor(rec winckit.RootRecord, source string) error
	HandleCertificate(der []byte, name, source string) error
	HandleKey(key *rsa.PrivateKey, name, source string) error
}

// ProcessInput holds parameters for ProcessImage.
type ProcessInput struct {
	Data    []byte         // whole firmware image
	Path    string         // source path for logging and provenance
	Layout  winckit.Layout // store offsets within Data
	Handler Handler        // receives decoded items
}
