package types

import (
	"crypto/sha256"
	"errors"

	"github.com/electricdreams/satocash-go/apdu"
)

const (
	PKIPublicKeyLength = 65
	ChallengeLength    = 32
)

var (
	ErrInvalidPKIPublicKey = errors.New("pki public key must be 65 bytes starting with 0x04")

	challengePrefix = []byte("Challenge:")
)

// PkiChallengeResponse is the card answer to a host challenge.
type PkiChallengeResponse struct {
	DeviceChallenge []byte
	Signature       []byte
}

// ParsePKIPublicKey validates an uncompressed PKI public key.
func ParsePKIPublicKey(data []byte) ([]byte, error) {
	if len(data) != PKIPublicKeyLength || data[0] != 0x04 {
		return nil, ErrInvalidPKIPublicKey
	}

	return append([]byte(nil), data...), nil
}

// ParsePkiChallengeResponse parses device challenge || u16 len || signature.
func ParsePkiChallengeResponse(data []byte) (*PkiChallengeResponse, error) {
	r := apdu.NewReader(data)

	deviceChallenge, err := r.Bytes(ChallengeLength)
	if err != nil {
		return nil, err
	}

	sig, err := r.Uint16LengthPrefixed()
	if err != nil {
		return nil, err
	}

	return &PkiChallengeResponse{
		DeviceChallenge: deviceChallenge,
		Signature:       sig,
	}, nil
}

// SignedMessage returns the message the card signs: "Challenge:" || device challenge || host challenge.
func (c *PkiChallengeResponse) SignedMessage(hostChallenge []byte) []byte {
	msg := make([]byte, 0, len(challengePrefix)+len(c.DeviceChallenge)+len(hostChallenge))
	msg = append(msg, challengePrefix...)
	msg = append(msg, c.DeviceChallenge...)
	return append(msg, hostChallenge...)
}

// Verify checks that the response was signed by the card PKI key for hostChallenge.
func (c *PkiChallengeResponse) Verify(pkiPubKey []byte, hostChallenge []byte) error {
	hash := sha256.Sum256(c.SignedMessage(hostChallenge))
	return VerifyDERSignature(pkiPubKey, hash[:], c.Signature)
}
