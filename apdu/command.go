package apdu

import (
	"errors"
	"fmt"
)

// MaxDataLength is the largest data field a short APDU can carry.
const MaxDataLength = 255

// ErrDataTooLong is returned when a command data field does not fit in a short APDU.
var ErrDataTooLong = errors.New("command data longer than 255 bytes")

// ErrBadRawCommand is returned when raw bytes cannot be parsed as a short command APDU.
var ErrBadRawCommand = errors.New("malformed command apdu")

// Command struct represent the data sent as an APDU command with CLA, Ins, P1, P2, Lc, Data, and Le.
type Command struct {
	Cla        uint8
	Ins        uint8
	P1         uint8
	P2         uint8
	Data       []byte
	le         uint8
	requiresLe bool
}

// NewCommand returns a new apdu Command.
func NewCommand(cla, ins, p1, p2 uint8, data []byte) *Command {
	return &Command{
		Cla:  cla,
		Ins:  ins,
		P1:   p1,
		P2:   p2,
		Data: data,
	}
}

// SetLe sets the expected length of the response.
// A value of 0 asks the card for up to 256 bytes.
func (c *Command) SetLe(le uint8) {
	c.requiresLe = true
	c.le = le
}

// Le returns if Le is set and its value.
func (c *Command) Le() (bool, uint8) {
	return c.requiresLe, c.le
}

// Serialize serializes the command into a raw short APDU.
// Lc and data are only written when data is not empty.
func (c *Command) Serialize() ([]byte, error) {
	if len(c.Data) > MaxDataLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLong, len(c.Data))
	}

	b := NewBuilder(4 + 1 + len(c.Data) + 1)
	b.AddUint8(c.Cla)
	b.AddUint8(c.Ins)
	b.AddUint8(c.P1)
	b.AddUint8(c.P2)

	if len(c.Data) > 0 {
		b.AddUint8(uint8(len(c.Data)))
		b.AddBytes(c.Data)
	}

	if c.requiresLe {
		b.AddUint8(c.le)
	}

	return b.Bytes()
}

// ParseCommand parses a raw short APDU produced by Serialize.
// A trailing byte after the data field is read as Le.
func ParseCommand(raw []byte) (*Command, error) {
	r := NewReader(raw)

	var header [4]byte
	for i := range header {
		v, err := r.Uint8()
		if err != nil {
			return nil, ErrBadRawCommand
		}
		header[i] = v
	}

	cmd := NewCommand(header[0], header[1], header[2], header[3], nil)

	switch r.Remaining() {
	case 0:
		return cmd, nil
	case 1:
		le, _ := r.Uint8()
		cmd.SetLe(le)
		return cmd, nil
	}

	lc, _ := r.Uint8()
	if lc == 0 {
		return nil, ErrBadRawCommand
	}

	data, err := r.Bytes(int(lc))
	if err != nil {
		return nil, ErrBadRawCommand
	}
	cmd.Data = data

	switch r.Remaining() {
	case 0:
	case 1:
		le, _ := r.Uint8()
		cmd.SetLe(le)
	default:
		return nil, ErrBadRawCommand
	}

	return cmd, nil
}

// String returns a short description of the command header, suitable for logging.
func (c *Command) String() string {
	return fmt.Sprintf("%02X %02X %02X %02X (%d bytes)", c.Cla, c.Ins, c.P1, c.P2, len(c.Data))
}
