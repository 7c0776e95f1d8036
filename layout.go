package winckit

// Firmware layout constants. Offsets and sizes are in bytes.
const (
	// DefaultRootStoreOffset and DefaultTLSStoreOffset are where the stores
	// were observed in ATWINC1500 images. They are deployment-specific.
	DefaultRootStoreOffset = 0x4000
	DefaultTLSStoreOffset  = 0x5000

	// TLSStoreCountDisplacement locates the TLS store entry count, measured
	// from the first byte of the TLS store magic.
	TLSStoreCountDisplacement = 0x5008

	nameHashSize       = 20
	timestampSize      = 10
	rsaFieldAlignment  = 4
	entryNameSize      = 48
	directoryEntrySize = entryNameSize + 4 + 4
	rsaPrivateFields   = 8
)

var (
	// RootStoreMagic opens a Root Cert Store.
	RootStoreMagic = []byte{0x11, 0xF1, 0x12, 0xF2, 0x13, 0xF3, 0x14, 0xF4, 0x15, 0xF5, 0x16, 0xF6, 0x17, 0xF7, 0x18, 0xF8}
	// TLSStoreMagic opens a TLS Store.
	TLSStoreMagic = []byte{0xAB, 0xFE, 0x18, 0x5B, 0x70, 0xC3, 0x46, 0x92}
)

// Directory entry name prefixes used for classification.
const (
	CertificatePrefix = "CERT"
	PrivateKeyPrefix  = "PRIV"
)

// Layout locates the two stores inside a firmware image.
type Layout struct {
	RootStoreOffset int
	TLSStoreOffset  int
}

// DefaultLayout returns the ATWINC1500 store offsets.
func DefaultLayout() Layout {
	return Layout{
		RootStoreOffset: DefaultRootStoreOffset,
		TLSStoreOffset:  DefaultTLSStoreOffset,
	}
}
