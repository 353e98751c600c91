package types

import (
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/electricdreams/satocash-go/apdu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPkiChallengeResponse(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	hostChallenge := make([]byte, ChallengeLength)
	deviceChallenge := make([]byte, ChallengeLength)
	for i := range hostChallenge {
		hostChallenge[i] = byte(i)
		deviceChallenge[i] = byte(0xFF - i)
	}

	msg := append([]byte("Challenge:"), deviceChallenge...)
	msg = append(msg, hostChallenge...)
	hash := sha256.Sum256(msg)
	sig := ecdsa.Sign(priv, hash[:]).Serialize()

	data := append([]byte(nil), deviceChallenge...)
	data = append(data, byte(len(sig)>>8), byte(len(sig)))
	data = append(data, sig...)

	resp, err := ParsePkiChallengeResponse(data)
	require.NoError(t, err)
	assert.Equal(t, deviceChallenge, resp.DeviceChallenge)
	assert.Equal(t, sig, resp.Signature)

	pub, err := ParsePKIPublicKey(priv.PubKey().SerializeUncompressed())
	require.NoError(t, err)
	assert.NoError(t, resp.Verify(pub, hostChallenge))

	hostChallenge[0] ^= 0x01
	assert.Equal(t, ErrInvalidSignature, resp.Verify(pub, hostChallenge))

	_, err = ParsePkiChallengeResponse(data[:33])
	assert.True(t, errors.Is(err, apdu.ErrTruncatedResponse))
}

func TestParsePKIPublicKey(t *testing.T) {
	_, err := ParsePKIPublicKey(make([]byte, 65))
	assert.Equal(t, ErrInvalidPKIPublicKey, err)

	_, err = ParsePKIPublicKey(append([]byte{0x04}, make([]byte, 32)...))
	assert.Equal(t, ErrInvalidPKIPublicKey, err)
}

func TestAuthentikey(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	compressed := priv.PubKey().SerializeCompressed()
	signed := append([]byte{0x00, 0x20}, compressed[1:]...)
	hash := sha256.Sum256(signed)
	sig := ecdsa.Sign(priv, hash[:]).Serialize()

	data := append([]byte(nil), signed...)
	data = append(data, byte(len(sig)>>8), byte(len(sig)))
	data = append(data, sig...)

	key, err := ParseAuthentikey(data)
	require.NoError(t, err)
	assert.Equal(t, compressed[1:], key.CoordX)

	pub, err := key.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, compressed, pub)

	key.Signature = append([]byte(nil), key.Signature...)
	key.Signature[len(key.Signature)-1] ^= 0x01
	_, err = key.PublicKey()
	assert.Equal(t, ErrInvalidSignature, err)

	_, err = ParseAuthentikey(data[:40])
	assert.True(t, errors.Is(err, apdu.ErrTruncatedResponse))
}
