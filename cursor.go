package winckit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
)

// Reader is a bounds-checked cursor over a fully loaded firmware buffer. The
// buffer is never modified, and every value handed out is a copy, so decoded
// results do not alias the input.
//
// A failed read or seek leaves the cursor where it was.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the absolute cursor position.
func (r *Reader) Offset() int { return r.off }

// Len returns the length of the underlying buffer.
func (r *Reader) Len() int { return len(r.buf) }

// Seek moves the cursor to an absolute position. Seeking to Len() is allowed.
func (r *Reader) Seek(off int) error {
	if off < 0 || off > len(r.buf) {
		return fmt.Errorf("%w: seek to %d, buffer is %d bytes", ErrUnexpectedEndOfBuffer, off, len(r.buf))
	}
	r.off = off
	return nil
}

// SeekFrom moves the cursor to base+displacement. Fixed absolute-offset header
// fields are read through this so the non-sequential layout stays visible at
// the call site.
func (r *Reader) SeekFrom(base, displacement int) error {
	if displacement < 0 || base > len(r.buf)-displacement {
		return fmt.Errorf("%w: seek to %d+%#x, buffer is %d bytes", ErrUnexpectedEndOfBuffer, base, displacement, len(r.buf))
	}
	return r.Seek(base + displacement)
}

func (r *Reader) need(n int) error {
	if n < 0 || n > len(r.buf)-r.off {
		return fmt.Errorf("%w: need %d bytes at offset %d, buffer is %d bytes", ErrUnexpectedEndOfBuffer, n, r.off, len(r.buf))
	}
	return nil
}

// Skip advances the cursor by n bytes without looking at them.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.off += n
	return nil
}

// Align advances the cursor to the next multiple of n, measured from the start
// of the buffer. Padding bytes are not validated.
func (r *Reader) Align(n int) error { return r.AlignFrom(0, n) }

// AlignFrom advances the cursor until its distance from base is a multiple of
// n. Stores embedded at arbitrary image offsets align relative to their own
// start.
func (r *Reader) AlignFrom(base, n int) error {
	if rem := (r.off - base) % n; rem != 0 {
		if rem < 0 {
			rem += n
		}
		return r.Skip(n - rem)
	}
	return nil
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

// ReadUint16 reads a little-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

// ReadUint32 reads a little-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

// ReadBytes returns a copy of the next n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := slices.Clone(r.buf[r.off : r.off+n])
	r.off += n
	return v, nil
}

// ReadFixed fills dst from the next len(dst) bytes.
func (r *Reader) ReadFixed(dst []byte) error {
	if err := r.need(len(dst)); err != nil {
		return err
	}
	r.off += copy(dst, r.buf[r.off:])
	return nil
}

// ExpectMagic consumes len(magic) bytes and fails with ErrMagicMismatch if
// they differ from magic. A truncated buffer whose available bytes already
// differ is still a mismatch. On failure the cursor is not advanced.
func (r *Reader) ExpectMagic(magic []byte) error {
	avail := r.buf[r.off:]
	if len(avail) > len(magic) {
		avail = avail[:len(magic)]
	}
	if !bytes.HasPrefix(magic, avail) {
		return fmt.Errorf("%w at offset %#x", ErrMagicMismatch, r.off)
	}
	if err := r.need(len(magic)); err != nil {
		return err
	}
	r.off += len(magic)
	return nil
}

// Slice returns a copy of size bytes at the absolute offset off, independent of
// the cursor. The pair is validated against the whole buffer before any byte
// is touched.
func (r *Reader) Slice(off, size uint32) ([]byte, error) {
	end := uint64(off) + uint64(size)
	if end > uint64(len(r.buf)) {
		return nil, fmt.Errorf("%w: %d bytes at %#x, buffer is %d bytes", ErrPayloadOutOfBounds, size, off, len(r.buf))
	}
	return slices.Clone(r.buf[off:end]), nil
}
