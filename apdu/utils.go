package apdu

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// Tag is a BER-TLV tag, one or more bytes long.
type Tag []byte

// String returns the tag in the upper case hex form used by bertlv.
func (t Tag) String() string {
	return strings.ToUpper(hex.EncodeToString(t))
}

// maxLengthBytes bounds the long form length field. Short apdus never carry more than 256 bytes.
const maxLengthBytes = 3

var ErrMalformedTLV = errors.New("malformed BER-TLV data")

// ErrTagNotFound is an error returned if a tag is not found in a TLV sequence.
type ErrTagNotFound struct {
	tag Tag
}

// Error implements the error interface
func (e *ErrTagNotFound) Error() string {
	return fmt.Sprintf("tag %s not found", e.tag)
}

// FindTag searches for a tag value within a BER-TLV sequence.
// Each tag after the first is searched inside the value of the previous one.
func FindTag(raw []byte, tags ...Tag) ([]byte, error) {
	return FindTagN(raw, 0, tags...)
}

// FindTagN searches for a tag value within a BER-TLV sequence and returns the n occurrence
func FindTagN(raw []byte, n int, tags ...Tag) (found []byte, err error) {
	if len(tags) == 0 {
		return raw, nil
	}

	if err := checkTLV(raw); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			found = nil
			err = fmt.Errorf("%w: %v", ErrMalformedTLV, r)
		}
	}()

	packets, err := bertlv.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("bertlv decode failed: %w", err)
	}

	return findTag(packets, n, tags...)
}

// checkTLV walks raw the way bertlv.Decode does and rejects any length
// that does not fit the remaining bytes, since bertlv slices on it unchecked.
func checkTLV(raw []byte) error {
	for len(raw) > 0 {
		tagLen := 1
		if raw[0]&0x1F == 0x1F {
			for tagLen < len(raw) && raw[tagLen]&0x80 != 0 {
				tagLen++
			}
			tagLen++
		}

		if tagLen >= len(raw) {
			if tagLen == 1 && raw[0] == 0x00 {
				return nil
			}

			return fmt.Errorf("%w: truncated tag or length", ErrMalformedTLV)
		}

		constructed := raw[0]&0x20 != 0
		padding := raw[0] == 0x00
		raw = raw[tagLen:]
		if padding {
			continue
		}

		length := int(raw[0])
		raw = raw[1:]
		if length >= 0x80 {
			n := length & 0x7F
			if n > maxLengthBytes || n > len(raw) {
				return fmt.Errorf("%w: bad length field", ErrMalformedTLV)
			}

			length = 0
			for _, b := range raw[:n] {
				length = length<<8 | int(b)
			}
			raw = raw[n:]
		}

		if length > len(raw) {
			return fmt.Errorf("%w: length %d exceeds %d remaining bytes", ErrMalformedTLV, length, len(raw))
		}

		if constructed {
			if err := checkTLV(raw[:length]); err != nil {
				return err
			}
		}

		raw = raw[length:]
	}

	return nil
}

func findTag(packets []bertlv.TLV, occurrence int, tags ...Tag) ([]byte, error) {
	target := tags[0]
	var notFound error = &ErrTagNotFound{target}

	for _, p := range packets {
		if !strings.EqualFold(p.Tag, target.String()) {
			continue
		}

		if len(tags) > 1 {
			found, err := findTag(p.TLVs, occurrence, tags[1:]...)
			if err == nil {
				return found, nil
			}
			notFound = err
			continue
		}

		// occurrences are only counted on the last tag of the search path
		if occurrence > 0 {
			occurrence--
			continue
		}

		return packetValue(p), nil
	}

	return nil, notFound
}

func packetValue(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}

	return p.Value
}
