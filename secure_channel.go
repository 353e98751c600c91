package satocash

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/electricdreams/satocash-go/apdu"
	"github.com/electricdreams/satocash-go/crypto"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	ivRandomLength  = 12
	ivCounterLength = 4
	ivLength        = ivRandomLength + ivCounterLength
	coordXLength    = 32

	// MaxSecureFrameLength is the largest frame that fits the data of one command apdu.
	MaxSecureFrameLength = apdu.MaxDataLength
	// MaxSecureCommandDataLength is the largest data an inner command can carry once
	// it is serialized, padded, encrypted and framed.
	MaxSecureCommandDataLength = maxSecurePlaintextLength - 5

	// frame overhead is the iv, two length prefixes and the mac
	secureFrameOverhead      = ivLength + 2 + 2 + crypto.MacLength
	maxSecureCiphertext      = (MaxSecureFrameLength - secureFrameOverhead) / crypto.BlockSize * crypto.BlockSize
	maxSecurePlaintextLength = maxSecureCiphertext - 1
)

type SecureChannelState int

const (
	ChannelUninitialized SecureChannelState = iota
	ChannelHandshakeStarted
	ChannelEstablished
)

func (s SecureChannelState) String() string {
	switch s {
	case ChannelUninitialized:
		return "uninitialized"
	case ChannelHandshakeStarted:
		return "handshake started"
	case ChannelEstablished:
		return "established"
	default:
		return fmt.Sprintf("SecureChannelState(%d)", int(s))
	}
}

// SecureChannel holds the keys and iv state of one secure channel session.
// It only transforms payloads, sending them is done by CommandSet.
type SecureChannel struct {
	state     SecureChannelState
	key       *ecdsa.PrivateKey
	encKey    []byte
	macKey    []byte
	ivCounter uint32
	rand      io.Reader

	cardAuthentikeyX []byte
	cardSignatures   [][]byte
}

func NewSecureChannel() *SecureChannel {
	return &SecureChannel{rand: rand.Reader}
}

func (sc *SecureChannel) State() SecureChannelState {
	return sc.state
}

// CardAuthentikeyX returns the authentikey x coordinate sent by the card during the
// last handshake, or nil if the card did not send it.
func (sc *SecureChannel) CardAuthentikeyX() []byte {
	return sc.cardAuthentikeyX
}

// CardSignatures returns the raw signatures from the last handshake answer.
// They are not verified by the channel.
func (sc *SecureChannel) CardSignatures() [][]byte {
	return sc.cardSignatures
}

// InitHandshake generates a new ephemeral key and returns its uncompressed public point.
func (sc *SecureChannel) InitHandshake() ([]byte, error) {
	sc.Reset()

	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	sc.key = key
	sc.state = ChannelHandshakeStarted

	return ethcrypto.FromECDSAPub(&key.PublicKey), nil
}

type handshakeResponse struct {
	ephemeralX   []byte
	signatures   [][]byte
	authentikeyX []byte
}

func parseHandshakeResponse(data []byte) (*handshakeResponse, error) {
	r := apdu.NewReader(data)

	x, err := r.Uint16LengthPrefixed()
	if err != nil {
		return nil, err
	}

	if len(x) != coordXLength {
		return nil, fmt.Errorf("unexpected ephemeral coordinate size %d", len(x))
	}

	hs := &handshakeResponse{ephemeralX: x}
	for i := 0; i < 2; i++ {
		sig, err := r.Uint16LengthPrefixed()
		if err != nil {
			return nil, err
		}

		hs.signatures = append(hs.signatures, sig)
	}

	if !r.Empty() {
		authX, err := r.Uint16LengthPrefixed()
		if err != nil {
			return nil, err
		}

		hs.authentikeyX = authX
	}

	return hs, nil
}

// recoverCardPublicKey returns a point with the given x coordinate.
// Both points share the same ECDH x coordinate, so the first valid prefix is used.
func recoverCardPublicKey(x []byte) (*ecdsa.PublicKey, error) {
	for _, prefix := range []byte{0x02, 0x03} {
		pub, err := ethcrypto.DecompressPubkey(append([]byte{prefix}, x...))
		if err == nil {
			return pub, nil
		}
	}

	return nil, ErrPointRecovery
}

// CompleteHandshake parses the card answer to the init secure channel command and derives
// the session keys. The card signatures over its ephemeral key are kept but not checked.
func (sc *SecureChannel) CompleteHandshake(resp []byte) error {
	if sc.state != ChannelHandshakeStarted {
		return ErrHandshakeNotStarted
	}

	hs, err := parseHandshakeResponse(resp)
	if err != nil {
		sc.Reset()
		return &ProtocolError{Op: "init secure channel", Err: err}
	}

	cardKey, err := recoverCardPublicKey(hs.ephemeralX)
	if err != nil {
		sc.Reset()
		return &SecurityError{Op: "init secure channel", Err: err}
	}

	secret := crypto.GenerateECDHSharedSecret(sc.key, cardKey)
	sc.encKey, sc.macKey = crypto.DeriveSessionKeys(secret)
	wipe(secret)

	sc.key = nil
	sc.ivCounter = 1
	sc.cardAuthentikeyX = hs.authentikeyX
	sc.cardSignatures = hs.signatures
	sc.state = ChannelEstablished

	logger.Debug("secure channel established", "cardEphemeralX", fmt.Sprintf("%x", hs.ephemeralX), "authentikeyX", fmt.Sprintf("%x", hs.authentikeyX))

	return nil
}

func (sc *SecureChannel) nextIV() ([]byte, error) {
	if sc.ivCounter > math.MaxUint32-2 {
		sc.Reset()
		return nil, &SecurityError{Op: "encrypt command", Err: ErrIVCounterOverflow}
	}

	sc.ivCounter += 2

	iv := make([]byte, ivLength)
	if _, err := io.ReadFull(sc.rand, iv[:ivRandomLength]); err != nil {
		return nil, err
	}

	binary.BigEndian.PutUint32(iv[ivRandomLength:], sc.ivCounter)

	return iv, nil
}

// EncryptCommand wraps a serialized inner command into a secure frame.
func (sc *SecureChannel) EncryptCommand(plain []byte) ([]byte, error) {
	if sc.state != ChannelEstablished {
		return nil, ErrChannelNotEstablished
	}

	if len(plain) > maxSecurePlaintextLength {
		return nil, &ProtocolError{
			Op:  "encrypt command",
			Err: fmt.Errorf("%w: %d bytes of plaintext, max %d", apdu.ErrDataTooLong, len(plain), maxSecurePlaintextLength),
		}
	}

	iv, err := sc.nextIV()
	if err != nil {
		return nil, err
	}

	ct, err := crypto.EncryptData(plain, sc.encKey, iv)
	if err != nil {
		return nil, err
	}

	mac := crypto.CalculateMac(sc.macKey, iv, ct)

	return encodeSecureFrame(iv, ct, mac)
}

// DecryptResponse checks and decrypts a secure frame sent by the card.
// Any failure tears the channel down.
func (sc *SecureChannel) DecryptResponse(frame []byte) ([]byte, error) {
	if sc.state != ChannelEstablished {
		return nil, ErrChannelNotEstablished
	}

	iv, ct, mac, err := parseSecureFrame(frame)
	if err != nil {
		sc.Reset()
		return nil, &SecurityError{Op: "decrypt response", Err: err}
	}

	if !crypto.VerifyMac(sc.macKey, iv, ct, mac) {
		sc.Reset()
		return nil, &SecurityError{Op: "decrypt response", Err: ErrMACMismatch}
	}

	plain, err := crypto.DecryptData(ct, sc.encKey, iv)
	if err != nil {
		sc.Reset()
		return nil, &SecurityError{Op: "decrypt response", Err: err}
	}

	return plain, nil
}

// Reset wipes all key material and returns to the uninitialized state.
func (sc *SecureChannel) Reset() {
	if sc.key != nil {
		sc.key.D.SetInt64(0)
	}

	wipe(sc.encKey)
	wipe(sc.macKey)

	sc.key = nil
	sc.encKey = nil
	sc.macKey = nil
	sc.ivCounter = 0
	sc.cardAuthentikeyX = nil
	sc.cardSignatures = nil
	sc.state = ChannelUninitialized
}

func encodeSecureFrame(iv, ct, mac []byte) ([]byte, error) {
	b := apdu.NewBuilder(len(iv) + 2 + len(ct) + 2 + len(mac))
	b.AddBytes(iv)
	b.AddUint16LengthPrefixed(ct)
	b.AddUint16LengthPrefixed(mac)

	return b.Bytes()
}

func parseSecureFrame(frame []byte) (iv, ct, mac []byte, err error) {
	r := apdu.NewReader(frame)

	if iv, err = r.Bytes(ivLength); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrBadSecureFrame, err)
	}

	if ct, err = r.Uint16LengthPrefixed(); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrBadSecureFrame, err)
	}

	if mac, err = r.Uint16LengthPrefixed(); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrBadSecureFrame, err)
	}

	if !r.Empty() {
		return nil, nil, nil, fmt.Errorf("%w: %d trailing bytes", ErrBadSecureFrame, r.Remaining())
	}

	if len(mac) != crypto.MacLength {
		return nil, nil, nil, fmt.Errorf("%w: mac is %d bytes", ErrBadSecureFrame, len(mac))
	}

	if len(ct) == 0 || len(ct)%crypto.BlockSize != 0 {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrBadSecureFrame, crypto.ErrInvalidCiphertextLength)
	}

	return iv, ct, mac, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
