package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// SharedSecretLength is the size of the ECDH output, the x coordinate of the shared point.
	SharedSecretLength = 32
	// SessionKeyLength is the size of the AES-128 session key.
	SessionKeyLength = 16
	// MacKeyLength is the size of the HMAC-SHA1 key.
	MacKeyLength = sha1.Size
	// MacLength is the size of a secure channel MAC.
	MacLength = sha1.Size
	// BlockSize is the AES block size, also used for padding.
	BlockSize = aes.BlockSize
)

var (
	sessionKeyLabel = []byte("sc_key")
	macKeyLabel     = []byte("sc_mac")
)

var (
	ErrInvalidPadding          = errors.New("invalid padding")
	ErrInvalidCiphertextLength = errors.New("ciphertext is not a multiple of the block size")
	ErrInvalidKeyLength        = errors.New("invalid key length")
)

// GenerateECDHSharedSecret returns the x coordinate of priv * pub, left padded to 32 bytes.
func GenerateECDHSharedSecret(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) []byte {
	x, _ := crypto.S256().ScalarMult(pub.X, pub.Y, priv.D.Bytes())
	secret := make([]byte, SharedSecretLength)
	return x.FillBytes(secret)
}

// DeriveSessionKeys derives the AES session key and the MAC key from the ECDH shared secret.
func DeriveSessionKeys(secret []byte) (encKey []byte, macKey []byte) {
	encKey = hmacSHA1(secret, sessionKeyLabel)[:SessionKeyLength]
	macKey = hmacSHA1(secret, macKeyLabel)
	return encKey, macKey
}

// EncryptData pads data with PKCS#7 and encrypts it with AES-CBC.
func EncryptData(data []byte, encKey []byte, iv []byte) ([]byte, error) {
	block, err := newCipher(encKey)
	if err != nil {
		return nil, err
	}

	data = AppendPadding(BlockSize, data)
	ciphertext := make([]byte, len(data))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, data)

	return ciphertext, nil
}

// DecryptData decrypts AES-CBC data and strips its PKCS#7 padding.
// It must only be called on data whose MAC has already been verified.
func DecryptData(data []byte, encKey []byte, iv []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%BlockSize != 0 {
		return nil, ErrInvalidCiphertextLength
	}

	block, err := newCipher(encKey)
	if err != nil {
		return nil, err
	}

	plain := make([]byte, len(data))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plain, data)

	return RemovePadding(BlockSize, plain)
}

// CalculateMac returns HMAC-SHA1(macKey, iv || u16(len(ciphertext)) || ciphertext).
func CalculateMac(macKey []byte, iv []byte, ciphertext []byte) []byte {
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(ciphertext)))

	h := hmac.New(sha1.New, macKey)
	h.Write(iv)
	h.Write(length[:])
	h.Write(ciphertext)

	return h.Sum(nil)
}

// VerifyMac recomputes the MAC of iv and ciphertext and compares it in constant time.
func VerifyMac(macKey []byte, iv []byte, ciphertext []byte, mac []byte) bool {
	return hmac.Equal(CalculateMac(macKey, iv, ciphertext), mac)
}

// AppendPadding appends PKCS#7 padding. A full block is added when data is already aligned.
func AppendPadding(blockSize int, data []byte) []byte {
	paddingSize := blockSize - len(data)%blockSize
	padded := make([]byte, len(data), len(data)+paddingSize)
	copy(padded, data)

	for i := 0; i < paddingSize; i++ {
		padded = append(padded, byte(paddingSize))
	}

	return padded
}

// RemovePadding strips PKCS#7 padding. Every padding byte must equal the padding length.
func RemovePadding(blockSize int, data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}

	paddingSize := int(data[len(data)-1])
	if paddingSize == 0 || paddingSize > blockSize {
		return nil, ErrInvalidPadding
	}

	var diff byte
	for _, b := range data[len(data)-paddingSize:] {
		diff |= b ^ byte(paddingSize)
	}

	if diff != 0 {
		return nil, ErrInvalidPadding
	}

	return data[:len(data)-paddingSize], nil
}

func newCipher(encKey []byte) (cipher.Block, error) {
	if len(encKey) != SessionKeyLength {
		return nil, ErrInvalidKeyLength
	}

	return aes.NewCipher(encKey)
}

func hmacSHA1(key, data []byte) []byte {
	h := hmac.New(sha1.New, key)
	h.Write(data)
	return h.Sum(nil)
}
