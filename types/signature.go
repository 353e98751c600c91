package types

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

var ErrInvalidSignature = errors.New("invalid signature")

// VerifyDERSignature checks a DER encoded ECDSA signature made by pubKey over hash.
// pubKey can be compressed or uncompressed.
func VerifyDERSignature(pubKey []byte, hash []byte, der []byte) error {
	key, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return err
	}

	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return ErrInvalidSignature
	}

	if !sig.Verify(hash, key) {
		return ErrInvalidSignature
	}

	return nil
}

// compressedCandidates returns both compressed encodings sharing the x coordinate.
func compressedCandidates(coordX []byte) [][]byte {
	candidates := make([][]byte, 0, 2)
	for _, prefix := range []byte{0x02, 0x03} {
		candidates = append(candidates, append([]byte{prefix}, coordX...))
	}

	return candidates
}
