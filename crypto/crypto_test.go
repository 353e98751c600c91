package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hexMustDecode(str string) []byte {
	out, err := hex.DecodeString(str)
	if err != nil {
		panic(err)
	}

	return out
}

func TestECDH(t *testing.T) {
	pk1, err := crypto.GenerateKey()
	assert.NoError(t, err)
	pk2, err := crypto.GenerateKey()
	assert.NoError(t, err)

	sharedSecret1 := GenerateECDHSharedSecret(pk1, &pk2.PublicKey)
	sharedSecret2 := GenerateECDHSharedSecret(pk2, &pk1.PublicKey)

	assert.Equal(t, sharedSecret1, sharedSecret2)
	assert.Len(t, sharedSecret1, SharedSecretLength)
}

func TestECDHIgnoresPointParity(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	card, err := crypto.GenerateKey()
	require.NoError(t, err)

	compressed := crypto.CompressPubkey(&card.PublicKey)
	compressed[0] ^= 0x01
	negated, err := crypto.DecompressPubkey(compressed)
	require.NoError(t, err)

	assert.Equal(t,
		GenerateECDHSharedSecret(priv, &card.PublicKey),
		GenerateECDHSharedSecret(priv, negated),
	)
}

func TestDeriveSessionKeys(t *testing.T) {
	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = byte(i + 1)
	}

	encKey, macKey := DeriveSessionKeys(secret)
	assert.Equal(t, hexMustDecode("6e298dbd382b7523384e6323771062a3"), encKey)
	assert.Equal(t, hexMustDecode("0c2ca467a2e60763b69fcd9f116232666e0b32dc"), macKey)

	encKey2, macKey2 := DeriveSessionKeys(append([]byte(nil), secret...))
	assert.Equal(t, encKey, encKey2)
	assert.Equal(t, macKey, macKey2)
}

func TestPadding(t *testing.T) {
	for n := 0; n <= 64; n++ {
		data := bytes.Repeat([]byte{0xAB}, n)
		padded := AppendPadding(BlockSize, data)

		assert.Equal(t, 0, len(padded)%BlockSize, "length %d", n)
		assert.Greater(t, len(padded), n)

		unpadded, err := RemovePadding(BlockSize, padded)
		require.NoError(t, err, "length %d", n)
		assert.True(t, bytes.Equal(data, unpadded), "length %d", n)
	}
}

func TestRemovePaddingRejectsCorruption(t *testing.T) {
	for n := 1; n <= 48; n++ {
		padded := AppendPadding(BlockSize, bytes.Repeat([]byte{0x01}, n))
		paddingSize := int(padded[len(padded)-1])

		for i := len(padded) - paddingSize; i < len(padded); i++ {
			corrupted := append([]byte(nil), padded...)
			corrupted[i] ^= 0x40

			_, err := RemovePadding(BlockSize, corrupted)
			assert.Equal(t, ErrInvalidPadding, err, "length %d, byte %d", n, i)
		}
	}

	_, err := RemovePadding(BlockSize, nil)
	assert.Equal(t, ErrInvalidPadding, err)

	zero := make([]byte, BlockSize)
	_, err = RemovePadding(BlockSize, zero)
	assert.Equal(t, ErrInvalidPadding, err)

	tooLong := bytes.Repeat([]byte{0x11}, BlockSize)
	_, err = RemovePadding(BlockSize, tooLong)
	assert.Equal(t, ErrInvalidPadding, err)
}

func TestEncryptDecrypt(t *testing.T) {
	encKey := hexMustDecode("6e298dbd382b7523384e6323771062a3")
	iv := hexMustDecode("000102030405060708090a0b00000003")

	for n := 1; n <= 100; n++ {
		data := bytes.Repeat([]byte{byte(n)}, n)

		ct, err := EncryptData(data, encKey, iv)
		require.NoError(t, err)
		assert.Equal(t, 0, len(ct)%BlockSize)

		plain, err := DecryptData(ct, encKey, iv)
		require.NoError(t, err)
		assert.Equal(t, data, plain)
	}

	_, err := DecryptData([]byte{0x01, 0x02}, encKey, iv)
	assert.Equal(t, ErrInvalidCiphertextLength, err)

	_, err = EncryptData([]byte{0x01}, encKey[:8], iv)
	assert.Equal(t, ErrInvalidKeyLength, err)
}

func TestVerifyMac(t *testing.T) {
	macKey := hexMustDecode("0c2ca467a2e60763b69fcd9f116232666e0b32dc")
	iv := hexMustDecode("000102030405060708090a0b00000003")
	ct := bytes.Repeat([]byte{0x5A}, 32)

	mac := CalculateMac(macKey, iv, ct)
	assert.Len(t, mac, MacLength)
	assert.True(t, VerifyMac(macKey, iv, ct, mac))

	for bit := 0; bit < len(ct)*8; bit++ {
		flipped := append([]byte(nil), ct...)
		flipped[bit/8] ^= 1 << (bit % 8)
		assert.False(t, VerifyMac(macKey, iv, flipped, mac), "bit %d", bit)
	}

	for bit := 0; bit < len(mac)*8; bit++ {
		flipped := append([]byte(nil), mac...)
		flipped[bit/8] ^= 1 << (bit % 8)
		assert.False(t, VerifyMac(macKey, iv, ct, flipped), "bit %d", bit)
	}
}
