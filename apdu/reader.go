package apdu

import (
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

// Reader is a bounds-checked cursor over response data.
// Every read either consumes exactly the requested bytes or fails with ErrTruncatedResponse
// and leaves the cursor untouched.
type Reader struct {
	s   cryptobyte.String
	off int
}

// NewReader returns a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{s: cryptobyte.String(data)}
}

func (r *Reader) truncated(what string, need int) error {
	return fmt.Errorf("%w: reading %s at offset %d needs %d bytes, %d left", ErrTruncatedResponse, what, r.off, need, len(r.s))
}

// Uint8 reads one byte.
func (r *Reader) Uint8() (uint8, error) {
	var v uint8
	if !r.s.ReadUint8(&v) {
		return 0, r.truncated("uint8", 1)
	}
	r.off++
	return v, nil
}

// Uint16 reads a big-endian uint16.
func (r *Reader) Uint16() (uint16, error) {
	var v uint16
	if !r.s.ReadUint16(&v) {
		return 0, r.truncated("uint16", 2)
	}
	r.off += 2
	return v, nil
}

// Uint32 reads a big-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	var v uint32
	if !r.s.ReadUint32(&v) {
		return 0, r.truncated("uint32", 4)
	}
	r.off += 4
	return v, nil
}

// Bool reads one byte and reports whether it is non zero.
func (r *Reader) Bool() (bool, error) {
	v, err := r.Uint8()
	return v != 0, err
}

// Bytes reads n bytes and returns a copy of them.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, r.truncated("bytes", n)
	}

	var v []byte
	if !r.s.ReadBytes(&v, n) {
		return nil, r.truncated("bytes", n)
	}
	r.off += n
	return append([]byte(nil), v...), nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if !r.s.Skip(n) {
		return r.truncated("padding", n)
	}
	r.off += n
	return nil
}

// Uint8LengthPrefixed reads a value prefixed by its length on one byte.
func (r *Reader) Uint8LengthPrefixed() ([]byte, error) {
	var v cryptobyte.String
	saved := r.s
	if !r.s.ReadUint8LengthPrefixed(&v) {
		r.s = saved
		return nil, r.truncated("uint8 length prefixed value", r.declaredLength(1))
	}
	before := len(saved)
	r.off += before - len(r.s)
	return append([]byte(nil), v...), nil
}

// Uint16LengthPrefixed reads a value prefixed by its length on two bytes.
func (r *Reader) Uint16LengthPrefixed() ([]byte, error) {
	var v cryptobyte.String
	saved := r.s
	if !r.s.ReadUint16LengthPrefixed(&v) {
		r.s = saved
		return nil, r.truncated("uint16 length prefixed value", r.declaredLength(2))
	}
	before := len(saved)
	r.off += before - len(r.s)
	return append([]byte(nil), v...), nil
}

// declaredLength returns the total size announced by a length prefix of the given width,
// or the prefix width itself when even the prefix is missing.
func (r *Reader) declaredLength(width int) int {
	if len(r.s) < width {
		return width
	}

	n := 0
	for _, b := range r.s[:width] {
		n = n<<8 | int(b)
	}

	return width + n
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.s)
}

// Empty reports whether all bytes have been read.
func (r *Reader) Empty() bool {
	return r.s.Empty()
}

// Rest returns a copy of the unread bytes and consumes them.
func (r *Reader) Rest() []byte {
	rest := append([]byte(nil), r.s...)
	r.off += len(r.s)
	r.s = r.s[len(r.s):]
	return rest
}

// Builder is the writing counterpart of Reader.
// Length prefixed values that overflow their prefix make Bytes fail.
type Builder struct {
	b *cryptobyte.Builder
}

// NewBuilder returns a Builder with room for size bytes.
func NewBuilder(size int) *Builder {
	return &Builder{b: cryptobyte.NewBuilder(make([]byte, 0, size))}
}

// AddUint8 appends one byte.
func (b *Builder) AddUint8(v uint8) {
	b.b.AddUint8(v)
}

// AddUint16 appends a big-endian uint16.
func (b *Builder) AddUint16(v uint16) {
	b.b.AddUint16(v)
}

// AddUint32 appends a big-endian uint32.
func (b *Builder) AddUint32(v uint32) {
	b.b.AddUint32(v)
}

// AddBytes appends raw bytes.
func (b *Builder) AddBytes(v []byte) {
	b.b.AddBytes(v)
}

// AddUint8LengthPrefixed appends v prefixed by its length on one byte.
func (b *Builder) AddUint8LengthPrefixed(v []byte) {
	b.b.AddUint8LengthPrefixed(func(child *cryptobyte.Builder) {
		child.AddBytes(v)
	})
}

// AddUint16LengthPrefixed appends v prefixed by its length on two bytes.
func (b *Builder) AddUint16LengthPrefixed(v []byte) {
	b.b.AddUint16LengthPrefixed(func(child *cryptobyte.Builder) {
		child.AddBytes(v)
	})
}

// Bytes returns the built bytes or the first error encountered while building.
func (b *Builder) Bytes() ([]byte, error) {
	return b.b.Bytes()
}
