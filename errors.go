package winckit

import (
	"errors"
	"fmt"
)

var (
	// ErrMagicMismatch is returned when a store header constant does not match.
	ErrMagicMismatch = errors.New("magic mismatch")
	// ErrUnexpectedEndOfBuffer is returned when a read or seek would leave the buffer.
	ErrUnexpectedEndOfBuffer = errors.New("unexpected end of buffer")
	// ErrUnknownVariantTag is returned for a key material discriminant outside {1, 2}.
	ErrUnknownVariantTag = errors.New("unknown key material tag")
	// ErrPayloadOutOfBounds is returned when a directory entry's offset+size
	// lies beyond the buffer.
	ErrPayloadOutOfBounds = errors.New("payload out of bounds")
	// ErrKeyMaterialInvalid is returned when decoded components are rejected by
	// the crypto library (unusable modulus, malformed DER, failed validation).
	ErrKeyMaterialInvalid = errors.New("key material invalid")
)

// DecodeError reports which store and which record or directory entry a
// decode failed on. Index is -1 when the failure is in the store header.
type DecodeError struct {
	Store string
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: header: %v", e.Store, e.Err)
	}
	return fmt.Sprintf("%s: entry %d: %v", e.Store, e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func headerError(store string, err error) error {
	return &DecodeError{Store: store, Index: -1, Err: err}
}

func entryError(store string, index int, err error) error {
	return &DecodeError{Store: store, Index: index, Err: err}
}
