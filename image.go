package winckit

import "errors"

// Image holds the stores decoded from one firmware image. A store that failed
// to decode is nil.
type Image struct {
	Layout    Layout
	RootStore *RootCertStore
	TLSStore  *TLSStore
}

// DecodeImage decodes both stores from image at the offsets in layout. The
// stores are decoded independently: a failure in one does not stop the
// other. The returned error joins every failure, and the Image carries the
// stores that did decode.
func DecodeImage(image []byte, layout Layout) (*Image, error) {
	img := &Image{Layout: layout}

	root, rootErr := ParseRootCertStore(image, layout.RootStoreOffset)
	if rootErr == nil {
		img.RootStore = root
	}
	tls, tlsErr := ParseTLSStore(image, layout.TLSStoreOffset)
	if tlsErr == nil {
		img.TLSStore = tls
	}
	return img, errors.Join(rootErr, tlsErr)
}
