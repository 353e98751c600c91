package satocash

import (
	"fmt"

	"github.com/electricdreams/satocash-go/apdu"
	"github.com/electricdreams/satocash-go/types"
)

const (
	ClaSatocash = 0xB0

	InsSetup                = 0x2A
	InsGetGenericStatus     = 0x3C
	InsInitSecureChannel    = 0x81
	InsProcessSecureChannel = 0x82
	InsVerifyPIN            = 0x42
	InsChangePIN            = 0x44
	InsUnblockPIN           = 0x46
	InsLogoutAll            = 0x60

	InsGetStatus     = 0xB0
	InsImportMint    = 0xB1
	InsExportMint    = 0xB2
	InsRemoveMint    = 0xB3
	InsImportKeyset  = 0xB4
	InsExportKeysets = 0xB5
	InsRemoveKeyset  = 0xB6
	InsImportProof   = 0xB7
	InsExportProofs  = 0xB8
	InsGetProofInfo  = 0xB9

	InsSetPINPolicy     = 0x3A
	InsSetPinlessAmount = 0x3B
	InsCardLabel        = 0x3D
	InsSetNFCPolicy     = 0x3E
	InsSetNDEF          = 0x3F

	InsBIP32GetAuthentikey = 0x73
	InsExportAuthentikey   = 0xAD
	InsPrintLogs           = 0xA9

	InsImportPKICertificate = 0x92
	InsExportPKICertificate = 0x93
	InsSignPKICSR           = 0x94
	InsExportPKIPubkey      = 0x98
	InsLockPKI              = 0x99
	InsChallengeResponsePKI = 0x9A

	P2OpInit     = 0x01
	P2OpProcess  = 0x02
	P2OpFinalize = 0x03

	P2CardLabelSet = 0x00
	P2CardLabelGet = 0x01

	DefaultPINID = 0x00

	// MaxPINLength is the longest PIN or PUK the applet stores.
	MaxPINLength = 16
	// MaxExportProofs is the largest index list that fits one secure command.
	MaxExportProofs = (MaxSecureCommandDataLength - 1) / 2
	// MaxExportKeysets is the most keyset records one secure response can carry.
	MaxExportKeysets = maxSecurePlaintextLength / types.KeysetRecordLength
)

func NewCommandGetStatus() *apdu.Command {
	return apdu.NewCommand(ClaSatocash, InsGetStatus, 0, 0, nil)
}

func NewCommandGetGenericStatus() *apdu.Command {
	return apdu.NewCommand(ClaSatocash, InsGetGenericStatus, 0, 0, nil)
}

func NewCommandInitSecureChannel(pubKey []byte) *apdu.Command {
	return apdu.NewCommand(ClaSatocash, InsInitSecureChannel, 0, 0, pubKey)
}

func NewCommandProcessSecureChannel(frame []byte) *apdu.Command {
	return apdu.NewCommand(ClaSatocash, InsProcessSecureChannel, 0, 0, frame)
}

// SetupParams is the initial configuration written by SetupApplet.
type SetupParams struct {
	// DefaultPIN is the factory PIN that authorises the setup.
	DefaultPIN string
	UserPIN    string
	UserPUK    string
	PINTries   uint8
	PUKTries   uint8
}

func NewCommandSetup(defaultPIN, userPIN, userPUK []byte, pinTries, pukTries uint8) (*apdu.Command, error) {
	b := apdu.NewBuilder(64)
	b.AddUint8LengthPrefixed(defaultPIN)
	b.AddUint8(pinTries)
	b.AddUint8(pukTries)
	b.AddUint8LengthPrefixed(userPIN)
	b.AddUint8LengthPrefixed(userPUK)
	b.AddUint8(pinTries)
	b.AddUint8(pukTries)
	// pin1 and puk1 are not used
	b.AddUint8(0)
	b.AddUint8(0)
	b.AddBytes(make([]byte, 9))

	data, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	return apdu.NewCommand(ClaSatocash, InsSetup, 0, 0, data), nil
}

func NewCommandVerifyPIN(pinID uint8, pin []byte) *apdu.Command {
	return apdu.NewCommand(ClaSatocash, InsVerifyPIN, pinID, 0, pin)
}

func NewCommandChangePIN(pinID uint8, oldPIN, newPIN []byte) (*apdu.Command, error) {
	b := apdu.NewBuilder(2 + len(oldPIN) + len(newPIN))
	b.AddUint8LengthPrefixed(oldPIN)
	b.AddUint8LengthPrefixed(newPIN)

	data, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	return apdu.NewCommand(ClaSatocash, InsChangePIN, pinID, 0, data), nil
}

func NewCommandUnblockPIN(pinID uint8, puk []byte) *apdu.Command {
	return apdu.NewCommand(ClaSatocash, InsUnblockPIN, pinID, 0, puk)
}

func NewCommandLogoutAll() *apdu.Command {
	return apdu.NewCommand(ClaSatocash, InsLogoutAll, 0, 0, nil)
}

func NewCommandImportMint(url []byte) (*apdu.Command, error) {
	b := apdu.NewBuilder(1 + len(url))
	b.AddUint8LengthPrefixed(url)

	data, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	return apdu.NewCommand(ClaSatocash, InsImportMint, 0, 0, data), nil
}

func NewCommandExportMint(index uint8) *apdu.Command {
	return apdu.NewCommand(ClaSatocash, InsExportMint, index, 0, nil)
}

func NewCommandRemoveMint(index uint8) *apdu.Command {
	return apdu.NewCommand(ClaSatocash, InsRemoveMint, index, 0, nil)
}

func NewCommandImportKeyset(id [types.KeysetIDLength]byte, mintIndex uint8, unit types.Unit) *apdu.Command {
	data := make([]byte, 0, types.KeysetIDLength+2)
	data = append(data, id[:]...)
	data = append(data, mintIndex, byte(unit))

	return apdu.NewCommand(ClaSatocash, InsImportKeyset, 0, 0, data)
}

func NewCommandExportKeysets(indices []uint8) (*apdu.Command, error) {
	if len(indices) > MaxExportKeysets {
		return nil, fmt.Errorf("%w: %d keysets, max %d", ErrTooManyIndices, len(indices), MaxExportKeysets)
	}

	b := apdu.NewBuilder(1 + len(indices))
	b.AddUint8LengthPrefixed(indices)

	data, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	return apdu.NewCommand(ClaSatocash, InsExportKeysets, 0, 0, data), nil
}

func NewCommandRemoveKeyset(index uint8) *apdu.Command {
	return apdu.NewCommand(ClaSatocash, InsRemoveKeyset, index, 0, nil)
}

func NewCommandImportProof(keysetIndex uint8, amountExponent uint8, unblindedKey []byte, secret []byte) (*apdu.Command, error) {
	if len(unblindedKey) != types.UnblindedKeyLength {
		return nil, fmt.Errorf("%w: unblinded key must be %d bytes, got %d", ErrBadArgument, types.UnblindedKeyLength, len(unblindedKey))
	}

	if len(secret) != types.SecretLength {
		return nil, fmt.Errorf("%w: secret must be %d bytes, got %d", ErrBadArgument, types.SecretLength, len(secret))
	}

	data := make([]byte, 0, 2+types.UnblindedKeyLength+types.SecretLength)
	data = append(data, keysetIndex, amountExponent)
	data = append(data, unblindedKey...)
	data = append(data, secret...)

	return apdu.NewCommand(ClaSatocash, InsImportProof, 0, 0, data), nil
}

// NewCommandExportProofsInit starts an export of the proofs at indices.
// Following steps are sent with NewCommandSequenceProcess.
func NewCommandExportProofsInit(indices []uint16) (*apdu.Command, error) {
	if len(indices) > MaxExportProofs {
		return nil, fmt.Errorf("%w: %d proofs, max %d", ErrTooManyIndices, len(indices), MaxExportProofs)
	}

	b := apdu.NewBuilder(1 + 2*len(indices))
	b.AddUint8(uint8(len(indices)))
	for _, index := range indices {
		b.AddUint16(index)
	}

	data, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	return apdu.NewCommand(ClaSatocash, InsExportProofs, 0, P2OpInit, data), nil
}

func NewCommandPrintLogsInit() *apdu.Command {
	return apdu.NewCommand(ClaSatocash, InsPrintLogs, 0, P2OpInit, nil)
}

// NewCommandSequenceProcess asks for the next chunk of a chunked operation.
func NewCommandSequenceProcess(ins uint8) *apdu.Command {
	return apdu.NewCommand(ClaSatocash, ins, 0, P2OpProcess, nil)
}

func NewCommandGetProofInfo(unit types.Unit, infoType types.ProofInfoType, start uint16, size uint16) *apdu.Command {
	data := []byte{byte(start >> 8), byte(start), byte(size >> 8), byte(size)}
	return apdu.NewCommand(ClaSatocash, InsGetProofInfo, byte(unit), byte(infoType), data)
}

func NewCommandSetCardLabel(label []byte) (*apdu.Command, error) {
	b := apdu.NewBuilder(1 + len(label))
	b.AddUint8LengthPrefixed(label)

	data, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	return apdu.NewCommand(ClaSatocash, InsCardLabel, 0, P2CardLabelSet, data), nil
}

func NewCommandGetCardLabel() *apdu.Command {
	return apdu.NewCommand(ClaSatocash, InsCardLabel, 0, P2CardLabelGet, nil)
}

func NewCommandSetNFCPolicy(policy uint8) *apdu.Command {
	return apdu.NewCommand(ClaSatocash, InsSetNFCPolicy, policy, 0, nil)
}

func NewCommandSetPINPolicy(policy uint8) *apdu.Command {
	return apdu.NewCommand(ClaSatocash, InsSetPINPolicy, policy, 0, nil)
}

func NewCommandSetPinlessAmount(amount uint32) *apdu.Command {
	data := []byte{byte(amount >> 24), byte(amount >> 16), byte(amount >> 8), byte(amount)}
	return apdu.NewCommand(ClaSatocash, InsSetPinlessAmount, 0, 0, data)
}

func NewCommandExportAuthentikey() *apdu.Command {
	return apdu.NewCommand(ClaSatocash, InsExportAuthentikey, 0, 0, nil)
}

func NewCommandExportPKIPubkey() *apdu.Command {
	return apdu.NewCommand(ClaSatocash, InsExportPKIPubkey, 0, 0, nil)
}

func NewCommandSignPKICSR(hash []byte) (*apdu.Command, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("%w: csr hash must be 32 bytes, got %d", ErrBadArgument, len(hash))
	}

	return apdu.NewCommand(ClaSatocash, InsSignPKICSR, 0, 0, hash), nil
}

func NewCommandChallengeResponsePKI(challenge []byte) (*apdu.Command, error) {
	if len(challenge) != types.ChallengeLength {
		return nil, fmt.Errorf("%w: challenge must be %d bytes, got %d", ErrBadArgument, types.ChallengeLength, len(challenge))
	}

	return apdu.NewCommand(ClaSatocash, InsChallengeResponsePKI, 0, 0, challenge), nil
}

func NewCommandLockPKI() *apdu.Command {
	return apdu.NewCommand(ClaSatocash, InsLockPKI, 0, 0, nil)
}
