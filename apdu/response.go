package apdu

import (
	"errors"
	"fmt"
)

const (
	SwOK                     = 0x9000
	SwFileNotFound           = 0x6A82
	SwReferencedDataNotFound = 0x6A88
	SwInsNotSupported        = 0x6D00
	SwClaNotSupported        = 0x6E00
)

// ErrTruncatedResponse is returned when a response, or a record inside it, is shorter than expected.
var ErrTruncatedResponse = errors.New("truncated response")

// Response represents a struct containing the smartcard response fields.
type Response struct {
	Data []byte
	Sw1  uint8
	Sw2  uint8
	Sw   uint16
}

// ParseResponse parses a raw response and return a Response.
// The last two bytes are the status word.
func ParseResponse(data []byte) (*Response, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: %d bytes, status word missing", ErrTruncatedResponse, len(data))
	}

	swOffset := len(data) - 2
	r := &Response{
		Data: append([]byte(nil), data[:swOffset]...),
		Sw1:  data[swOffset],
		Sw2:  data[swOffset+1],
	}
	r.Sw = uint16(r.Sw1)<<8 | uint16(r.Sw2)

	return r, nil
}

// IsOK returns true if the response Sw is 0x9000.
func (r *Response) IsOK() bool {
	return r.Sw == SwOK
}

// Serialize returns the raw response, data followed by the status word.
func (r *Response) Serialize() []byte {
	out := make([]byte, 0, len(r.Data)+2)
	out = append(out, r.Data...)
	return append(out, uint8(r.Sw>>8), uint8(r.Sw))
}
