package types

import (
	"crypto/sha256"
	"fmt"

	"github.com/electricdreams/satocash-go/apdu"
)

// Authentikey is the long term card key used to sign secure channel and export material.
// The card only discloses its x coordinate.
type Authentikey struct {
	CoordX    []byte
	Signature []byte
	// signed is the exact length prefixed x coordinate covered by Signature.
	signed []byte
}

// ParseAuthentikey parses u16 len || x || u16 len || signature.
func ParseAuthentikey(data []byte) (*Authentikey, error) {
	r := apdu.NewReader(data)

	coordX, err := r.Uint16LengthPrefixed()
	if err != nil {
		return nil, err
	}

	sig, err := r.Uint16LengthPrefixed()
	if err != nil {
		return nil, err
	}

	if len(coordX) != 32 {
		return nil, fmt.Errorf("unexpected authentikey coordinate size %d", len(coordX))
	}

	return &Authentikey{
		CoordX:    coordX,
		Signature: sig,
		signed:    data[:2+len(coordX)],
	}, nil
}

// PublicKey returns the compressed authentikey whose signature over its own
// length prefixed x coordinate verifies.
func (a *Authentikey) PublicKey() ([]byte, error) {
	hash := sha256.Sum256(a.signed)

	for _, candidate := range compressedCandidates(a.CoordX) {
		if err := VerifyDERSignature(candidate, hash[:], a.Signature); err == nil {
			return candidate, nil
		}
	}

	return nil, ErrInvalidSignature
}
