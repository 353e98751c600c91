package satocash

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"

	"github.com/electricdreams/satocash-go/apdu"
	"github.com/electricdreams/satocash-go/crypto"
	"github.com/electricdreams/satocash-go/globalplatform"
	"github.com/electricdreams/satocash-go/identifiers"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var errSimulatedIO = errors.New("simulated i/o failure")

// secureHandler answers one decrypted inner command.
type secureHandler func(cmd *apdu.Command) ([]byte, uint16)

// simulatedCard plays the card side of the protocol over types.Transport.
type simulatedCard struct {
	connects  int
	closes    int
	transmits int
	// transmitErr fails every exchange while set.
	transmitErr error

	aids     [][]byte
	selected []byte
	fci      []byte

	status    []byte
	statusSw  uint16
	generic   []byte
	genericSw uint16

	// handshakeX replaces the card ephemeral x coordinate in the handshake answer.
	handshakeX   []byte
	authentikeyX []byte

	encKey  []byte
	macKey  []byte
	counter uint32
	// tamperMAC corrupts the mac of the next secure response.
	tamperMAC bool

	handlers   map[uint8]secureHandler
	plain      []*apdu.Command
	received   []*apdu.Command
	ivCounters []uint32
}

func newSimulatedCard() *simulatedCard {
	return &simulatedCard{
		aids:         [][]byte{identifiers.SatocashAID},
		status:       satocashStatusRecord(0, 0),
		statusSw:     apdu.SwOK,
		genericSw:    apdu.SwInsNotSupported,
		authentikeyX: bytes.Repeat([]byte{0xAB}, 32),
		handlers:     map[uint8]secureHandler{},
	}
}

// satocashStatusRecord returns a status record with proof counters:
// protocol 0.1, applet 0.2, 5 pin tries, 10 puk tries, setup done, 8 mints (1 used),
// 32 keysets (2 used) and 64 proofs.
func satocashStatusRecord(unspent, spent uint16) []byte {
	return statusWithCapacity(unspent, spent, 64)
}

// statusWithCapacity is satocashStatusRecord with room for maxProofs proofs.
func statusWithCapacity(unspent, spent, maxProofs uint16) []byte {
	return []byte{
		0x00, 0x01, 0x00, 0x02, 0x05, 0x0A, 0x00, 0x00, 0x00,
		0x00, 0x01, 0x01, 0x00, 0x00, 0x00, 0x08, 0x01, 0x20, 0x02,
		byte(maxProofs >> 8), byte(maxProofs), byte(unspent >> 8), byte(unspent), byte(spent >> 8), byte(spent),
	}
}

func (c *simulatedCard) Connect() error {
	c.connects++
	return nil
}

func (c *simulatedCard) Close() error {
	c.closes++
	c.selected = nil
	c.resetChannel()
	return nil
}

func (c *simulatedCard) Transmit(raw []byte) ([]byte, error) {
	c.transmits++
	if c.transmitErr != nil {
		return nil, c.transmitErr
	}

	var (
		data []byte
		sw   uint16
	)

	cmd, err := apdu.ParseCommand(raw)
	if err != nil {
		sw = 0x6700
	} else {
		data, sw = c.dispatch(cmd)
	}

	resp := append([]byte(nil), data...)
	return append(resp, byte(sw>>8), byte(sw)), nil
}

// receivedIns returns the instructions of the secure commands received so far.
func (c *simulatedCard) receivedIns() []uint8 {
	ins := make([]uint8, 0, len(c.received))
	for _, cmd := range c.received {
		ins = append(ins, cmd.Ins)
	}

	return ins
}

func (c *simulatedCard) plainIns() []uint8 {
	ins := make([]uint8, 0, len(c.plain))
	for _, cmd := range c.plain {
		ins = append(ins, cmd.Ins)
	}

	return ins
}

func (c *simulatedCard) resetChannel() {
	c.encKey = nil
	c.macKey = nil
	c.counter = 0
}

func (c *simulatedCard) dispatch(cmd *apdu.Command) ([]byte, uint16) {
	if cmd.Ins != InsProcessSecureChannel {
		c.plain = append(c.plain, cmd)
	}

	if cmd.Cla == globalplatform.ClaISO7816 && cmd.Ins == globalplatform.InsSelect {
		c.resetChannel()
		for _, aid := range c.aids {
			if bytes.Equal(aid, cmd.Data) {
				c.selected = aid
				return c.fci, apdu.SwOK
			}
		}

		c.selected = nil
		return nil, apdu.SwFileNotFound
	}

	if cmd.Cla != ClaSatocash {
		return nil, apdu.SwClaNotSupported
	}

	if c.selected == nil {
		return nil, apdu.SwInsNotSupported
	}

	switch cmd.Ins {
	case InsGetStatus:
		return c.status, c.statusSw
	case InsGetGenericStatus:
		return c.generic, c.genericSw
	case InsInitSecureChannel:
		return c.handshake(cmd.Data)
	case InsProcessSecureChannel:
		return c.processSecure(cmd.Data)
	default:
		return nil, apdu.SwInsNotSupported
	}
}

func (c *simulatedCard) handshake(data []byte) ([]byte, uint16) {
	clientKey, err := ethcrypto.UnmarshalPubkey(data)
	if err != nil {
		return nil, SwInvalidParameter
	}

	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, SwInternalError
	}

	secret := crypto.GenerateECDHSharedSecret(key, clientKey)
	c.encKey, c.macKey = crypto.DeriveSessionKeys(secret)
	c.counter = 0

	x := key.PublicKey.X.FillBytes(make([]byte, 32))
	if c.handshakeX != nil {
		x = c.handshakeX
	}

	// the signatures are opaque to the client
	sig := bytes.Repeat([]byte{0x30}, 70)

	b := apdu.NewBuilder(256)
	b.AddUint16LengthPrefixed(x)
	b.AddUint16LengthPrefixed(sig)
	b.AddUint16LengthPrefixed(sig)
	b.AddUint16LengthPrefixed(c.authentikeyX)

	out, err := b.Bytes()
	if err != nil {
		return nil, SwInternalError
	}

	return out, apdu.SwOK
}

func (c *simulatedCard) processSecure(frame []byte) ([]byte, uint16) {
	if c.encKey == nil {
		return nil, SwSecureChannelUninitialized
	}

	iv, ct, mac, err := parseSecureFrame(frame)
	if err != nil {
		return nil, SwInvalidParameter
	}

	if !crypto.VerifyMac(c.macKey, iv, ct, mac) {
		return nil, SwSecureChannelWrongMAC
	}

	c.ivCounters = append(c.ivCounters, binary.BigEndian.Uint32(iv[ivRandomLength:]))

	plain, err := crypto.DecryptData(ct, c.encKey, iv)
	if err != nil {
		return nil, SwInvalidParameter
	}

	inner, err := apdu.ParseCommand(plain)
	if err != nil {
		return nil, SwInvalidParameter
	}

	c.received = append(c.received, inner)

	h, ok := c.handlers[inner.Ins]
	if !ok {
		return nil, apdu.SwInsNotSupported
	}

	data, sw := h(inner)
	if sw != apdu.SwOK {
		return nil, sw
	}

	return c.encryptResponse(data)
}

func (c *simulatedCard) encryptResponse(data []byte) ([]byte, uint16) {
	c.counter += 2

	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv[:ivRandomLength]); err != nil {
		return nil, SwInternalError
	}
	binary.BigEndian.PutUint32(iv[ivRandomLength:], c.counter)

	ct, err := crypto.EncryptData(data, c.encKey, iv)
	if err != nil {
		return nil, SwInternalError
	}

	mac := crypto.CalculateMac(c.macKey, iv, ct)
	if c.tamperMAC {
		mac[0] ^= 0x01
		c.tamperMAC = false
	}

	frame, err := encodeSecureFrame(iv, ct, mac)
	if err != nil {
		return nil, SwInternalError
	}

	return frame, apdu.SwOK
}

// okHandler answers every command with an empty success.
func okHandler(*apdu.Command) ([]byte, uint16) {
	return nil, apdu.SwOK
}

// pinHandler accepts pin and reports 2 tries left otherwise.
func pinHandler(pin string) secureHandler {
	return func(cmd *apdu.Command) ([]byte, uint16) {
		if string(cmd.Data) == pin {
			return nil, apdu.SwOK
		}

		return nil, SwPINFailed | 0x02
	}
}
