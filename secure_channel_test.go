package satocash

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/electricdreams/satocash-go/apdu"
	"github.com/electricdreams/satocash-go/crypto"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testEncKey = bytes.Repeat([]byte{0x11}, crypto.SessionKeyLength)
	testMacKey = bytes.Repeat([]byte{0x22}, crypto.MacKeyLength)
)

func newEstablishedChannel() *SecureChannel {
	sc := NewSecureChannel()
	sc.encKey = append([]byte(nil), testEncKey...)
	sc.macKey = append([]byte(nil), testMacKey...)
	sc.ivCounter = 1
	sc.state = ChannelEstablished

	return sc
}

// cardFrame builds a response frame the way the card does.
func cardFrame(t *testing.T, plain []byte, counter uint32) []byte {
	iv := make([]byte, ivLength)
	copy(iv, bytes.Repeat([]byte{0x5A}, ivRandomLength))
	binary.BigEndian.PutUint32(iv[ivRandomLength:], counter)

	ct, err := crypto.EncryptData(plain, testEncKey, iv)
	require.NoError(t, err)

	frame, err := encodeSecureFrame(iv, ct, crypto.CalculateMac(testMacKey, iv, ct))
	require.NoError(t, err)

	return frame
}

func handshakeAnswer(t *testing.T, x []byte) []byte {
	b := apdu.NewBuilder(256)
	b.AddUint16LengthPrefixed(x)
	b.AddUint16LengthPrefixed([]byte{0x30, 0x01})
	b.AddUint16LengthPrefixed([]byte{0x30, 0x02})
	b.AddUint16LengthPrefixed(bytes.Repeat([]byte{0xCD}, 32))

	data, err := b.Bytes()
	require.NoError(t, err)

	return data
}

func TestSecureChannelHandshake(t *testing.T) {
	sc := NewSecureChannel()
	assert.Equal(t, ChannelUninitialized, sc.State())

	pub, err := sc.InitHandshake()
	require.NoError(t, err)
	require.Len(t, pub, 65)
	assert.Equal(t, byte(0x04), pub[0])
	assert.Equal(t, ChannelHandshakeStarted, sc.State())

	clientKey, err := ethcrypto.UnmarshalPubkey(pub)
	require.NoError(t, err)

	cardKey, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	x := cardKey.PublicKey.X.FillBytes(make([]byte, 32))
	require.NoError(t, sc.CompleteHandshake(handshakeAnswer(t, x)))
	assert.Equal(t, ChannelEstablished, sc.State())
	assert.Nil(t, sc.key)
	assert.Equal(t, bytes.Repeat([]byte{0xCD}, 32), sc.CardAuthentikeyX())
	assert.Len(t, sc.CardSignatures(), 2)

	encKey, macKey := crypto.DeriveSessionKeys(crypto.GenerateECDHSharedSecret(cardKey, clientKey))
	assert.Equal(t, encKey, sc.encKey)
	assert.Equal(t, macKey, sc.macKey)
}

func TestSecureChannelHandshakeWithoutAuthentikey(t *testing.T) {
	sc := NewSecureChannel()
	_, err := sc.InitHandshake()
	require.NoError(t, err)

	cardKey, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	answer := handshakeAnswer(t, cardKey.PublicKey.X.FillBytes(make([]byte, 32)))
	// drop the authentikey
	answer = answer[:len(answer)-34]

	require.NoError(t, sc.CompleteHandshake(answer))
	assert.Nil(t, sc.CardAuthentikeyX())
}

func TestSecureChannelCompleteHandshakeNotStarted(t *testing.T) {
	sc := NewSecureChannel()

	err := sc.CompleteHandshake(handshakeAnswer(t, make([]byte, 32)))
	assert.Equal(t, ErrHandshakeNotStarted, err)
	assert.True(t, errors.Is(err, ErrPrecondition))
}

func TestSecureChannelHandshakeInvalidPoint(t *testing.T) {
	sc := NewSecureChannel()
	_, err := sc.InitHandshake()
	require.NoError(t, err)

	x := make([]byte, 32)
	x[31] = 0x05

	err = sc.CompleteHandshake(handshakeAnswer(t, x))
	var secErr *SecurityError
	require.True(t, errors.As(err, &secErr))
	assert.True(t, errors.Is(err, ErrPointRecovery))
	assert.Equal(t, ChannelUninitialized, sc.State())
}

func TestSecureChannelHandshakeTruncated(t *testing.T) {
	sc := NewSecureChannel()
	_, err := sc.InitHandshake()
	require.NoError(t, err)

	err = sc.CompleteHandshake([]byte{0x00, 0x20, 0x01, 0x02})
	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.True(t, errors.Is(err, apdu.ErrTruncatedResponse))
	assert.Equal(t, ChannelUninitialized, sc.State())
}

func TestSecureChannelRoundTrip(t *testing.T) {
	sc := newEstablishedChannel()
	inner := []byte{ClaSatocash, InsVerifyPIN, 0x00, 0x00, 0x04, '1', '2', '3', '4'}

	frame, err := sc.EncryptCommand(inner)
	require.NoError(t, err)

	iv, ct, mac, err := parseSecureFrame(frame)
	require.NoError(t, err)
	assert.True(t, crypto.VerifyMac(testMacKey, iv, ct, mac))
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(iv[ivRandomLength:]))

	plain, err := crypto.DecryptData(ct, testEncKey, iv)
	require.NoError(t, err)
	assert.Equal(t, inner, plain)

	data, err := sc.DecryptResponse(cardFrame(t, []byte{0x01, 0x02, 0x03}, 2))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, data)
	assert.Equal(t, ChannelEstablished, sc.State())
}

func TestSecureChannelIVCounter(t *testing.T) {
	sc := newEstablishedChannel()
	seen := map[string]bool{}

	for i := 0; i < 10; i++ {
		frame, err := sc.EncryptCommand([]byte{0x00})
		require.NoError(t, err)

		iv := frame[:ivLength]
		assert.Equal(t, uint32(3+2*i), binary.BigEndian.Uint32(iv[ivRandomLength:]))
		assert.False(t, seen[string(iv)])
		seen[string(iv)] = true
	}
}

func TestSecureChannelIVCounterOverflow(t *testing.T) {
	sc := newEstablishedChannel()
	sc.ivCounter = math.MaxUint32 - 2

	frame, err := sc.EncryptCommand([]byte{0x00})
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), binary.BigEndian.Uint32(frame[ivRandomLength:ivLength]))

	_, err = sc.EncryptCommand([]byte{0x00})
	var secErr *SecurityError
	require.True(t, errors.As(err, &secErr))
	assert.True(t, errors.Is(err, ErrIVCounterOverflow))
	assert.Equal(t, ChannelUninitialized, sc.State())
}

func TestSecureChannelPlaintextLimit(t *testing.T) {
	sc := newEstablishedChannel()

	frame, err := sc.EncryptCommand(make([]byte, maxSecurePlaintextLength))
	require.NoError(t, err)
	assert.True(t, len(frame) <= MaxSecureFrameLength)
	assert.Equal(t, 207, maxSecurePlaintextLength)

	_, err = sc.EncryptCommand(make([]byte, maxSecurePlaintextLength+1))
	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.True(t, errors.Is(err, apdu.ErrDataTooLong))
	assert.Equal(t, ChannelEstablished, sc.State())
}

func TestSecureChannelMaxCommandData(t *testing.T) {
	sc := newEstablishedChannel()

	cmd := apdu.NewCommand(ClaSatocash, InsImportMint, 0, 0, make([]byte, MaxSecureCommandDataLength))
	plain, err := cmd.Serialize()
	require.NoError(t, err)

	_, err = sc.EncryptCommand(plain)
	require.NoError(t, err)
}

func TestSecureChannelTamperedResponse(t *testing.T) {
	frame := cardFrame(t, []byte("response data"), 2)

	for i := range frame {
		for bit := 0; bit < 8; bit++ {
			sc := newEstablishedChannel()
			tampered := append([]byte(nil), frame...)
			tampered[i] ^= 1 << bit

			_, err := sc.DecryptResponse(tampered)
			var secErr *SecurityError
			require.True(t, errors.As(err, &secErr), "byte %d bit %d", i, bit)
			require.Equal(t, ChannelUninitialized, sc.State())
			require.Nil(t, sc.encKey)
		}
	}
}

func TestSecureChannelMalformedResponses(t *testing.T) {
	frame := cardFrame(t, []byte{0x01}, 2)

	cases := map[string][]byte{
		"empty":          {},
		"short iv":       frame[:10],
		"missing mac":    frame[:ivLength+2+16],
		"trailing bytes": append(append([]byte(nil), frame...), 0x00),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			sc := newEstablishedChannel()
			_, err := sc.DecryptResponse(data)
			assert.True(t, errors.Is(err, ErrBadSecureFrame))
			assert.Equal(t, ChannelUninitialized, sc.State())
		})
	}
}

func TestSecureChannelBadPadding(t *testing.T) {
	iv := make([]byte, ivLength)
	iv[ivLength-1] = 2

	block, err := aes.NewCipher(testEncKey)
	require.NoError(t, err)

	// decrypts to a zero block, whose last byte is not a valid padding length
	ct := make([]byte, aes.BlockSize)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, make([]byte, aes.BlockSize))

	frame, err := encodeSecureFrame(iv, ct, crypto.CalculateMac(testMacKey, iv, ct))
	require.NoError(t, err)

	sc := newEstablishedChannel()
	_, err = sc.DecryptResponse(frame)
	var secErr *SecurityError
	require.True(t, errors.As(err, &secErr))
	assert.True(t, errors.Is(err, crypto.ErrInvalidPadding))
	assert.Equal(t, ChannelUninitialized, sc.State())
}

func TestSecureChannelNotEstablished(t *testing.T) {
	sc := NewSecureChannel()

	_, err := sc.EncryptCommand([]byte{0x00})
	assert.Equal(t, ErrChannelNotEstablished, err)

	_, err = sc.DecryptResponse(cardFrame(t, []byte{0x00}, 2))
	assert.Equal(t, ErrChannelNotEstablished, err)
}

func TestSecureChannelReset(t *testing.T) {
	sc := newEstablishedChannel()
	encKey := sc.encKey

	sc.Reset()
	assert.Equal(t, ChannelUninitialized, sc.State())
	assert.Equal(t, make([]byte, crypto.SessionKeyLength), encKey)
	assert.Nil(t, sc.macKey)
	assert.Equal(t, uint32(0), sc.ivCounter)
}
