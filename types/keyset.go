package types

import (
	"fmt"

	"github.com/electricdreams/satocash-go/apdu"
)

const (
	KeysetIDLength = 8
	// KeysetRecordLength is index, id, mint index and unit.
	KeysetRecordLength = 1 + KeysetIDLength + 1 + 1
)

// Keyset is a keyset slot stored on the card.
type Keyset struct {
	Index     int
	ID        [KeysetIDLength]byte
	MintIndex int
	Unit      Unit
}

// IDHex returns the keyset id in the hex form used by mints.
func (k *Keyset) IDHex() string {
	return fmt.Sprintf("%x", k.ID[:])
}

// ParseKeysets parses a sequence of keyset records.
func ParseKeysets(data []byte) ([]*Keyset, error) {
	if len(data)%KeysetRecordLength != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of keyset records", apdu.ErrTruncatedResponse, len(data))
	}

	r := apdu.NewReader(data)
	keysets := make([]*Keyset, 0, len(data)/KeysetRecordLength)

	for !r.Empty() {
		index, _ := r.Uint8()
		id, _ := r.Bytes(KeysetIDLength)
		mintIndex, _ := r.Uint8()
		unit, err := r.Uint8()
		if err != nil {
			return nil, err
		}

		k := &Keyset{
			Index:     int(index),
			MintIndex: int(mintIndex),
			Unit:      Unit(unit),
		}
		copy(k.ID[:], id)
		keysets = append(keysets, k)
	}

	return keysets, nil
}
