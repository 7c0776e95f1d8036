package certstore

import (
	"fmt"
	"log/slog"

	"github.com/sensiblebit/winckit"
)

// ProcessImage decodes both stores of a firmware image and dispatches every
// anchor, certificate and private key to the handler. A store that fails to
// decode does not stop the other; its error is returned after the surviving
// store has been dispatched. Items the handler rejects are logged and skipped.
func ProcessImage(input ProcessInput) error {
	img, decodeErr := winckit.DecodeImage(input.Data, input.Layout)
	if decodeErr != nil {
		slog.Warn("decoding firmware image", "path", input.Path, "error", decodeErr)
	}

	if img.RootStore != nil {
		slog.Debug("dispatching root store", "path", input.Path, "count", img.RootStore.Count)
		processAnchors(img.RootStore, input.Path, input.Handler)
	}
	if img.TLSStore != nil {
		slog.Debug("dispatching TLS store", "path", input.Path, "count", img.TLSStore.Count)
		if err := processTLSStore(img.TLSStore, input.Path, input.Handler); err != nil {
			return err
		}
	}

	if decodeErr != nil {
		return fmt.Errorf("decoding %s: %w", input.Path, decodeErr)
	}
	return nil
}

func processAnchors(store *winckit.RootCertStore, source string, handler Handler) {
	for i, rec := range store.Records {
		if err := handler.HandleAnchor(rec, source); err != nil {
			slog.Debug("handler rejected anchor", "path", source, "index", i, "error", err)
		}
	}
}

// processTLSStore resolves directory entries by kind. A PRIV payload that does
// not decode fails the store, matching Resolve; keys that decode but do not
// validate are logged and skipped.
func processTLSStore(store *winckit.TLSStore, source string, handler Handler) error {
	entries, err := store.Resolve()
	if err != nil {
		return fmt.Errorf("resolving TLS store in %s: %w", source, err)
	}

	for _, e := range entries {
		switch e.Kind {
		case winckit.KindCertificate:
			if err := handler.HandleCertificate(e.Certificate, e.Entry.Name, source); err != nil {
				slog.Warn("skipping certificate", "path", source, "index", e.Index, "name", e.Entry.Name, "error", err)
			}
		case winckit.KindPrivateKey:
			key, err := e.PrivateKey.PrivateKey()
			if err != nil {
				slog.Warn("skipping private key", "path", source, "index", e.Index, "name", e.Entry.Name, "error", err)
				continue
			}
			if err := handler.HandleKey(key, e.Entry.Name, source); err != nil {
				slog.Debug("handler rejected key", "path", source, "index", e.Index, "error", err)
			}
		default:
			slog.Debug("unrecognized TLS store entry", "path", source, "index", e.Index, "name", e.Entry.Name)
		}
	}
	return nil
}
