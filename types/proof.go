package types

import (
	"fmt"

	"github.com/electricdreams/satocash-go/apdu"
)

const (
	UnblindedKeyLength = 33
	SecretLength       = 32
	// ProofRecordLength is index, state, keyset index, amount exponent, unblinded key and secret.
	ProofRecordLength = 2 + 1 + 1 + 1 + UnblindedKeyLength + SecretLength
)

const (
	ProofStateEmpty   = 0x00
	ProofStateUnspent = 0x01
	ProofStateSpent   = 0x02

	// AmountSpentFlag marks a spent proof in the amount exponent byte of proof info queries.
	AmountSpentFlag   = 0x80
	amountExponentMax = 63
)

// Proof is a proof slot exported from the card.
type Proof struct {
	Index          int
	State          uint8
	KeysetIndex    int
	AmountExponent int
	UnblindedKey   []byte
	Secret         []byte
}

// IsUnspent reports whether the proof can still be spent.
func (p *Proof) IsUnspent() bool {
	return p.State == ProofStateUnspent
}

// Amount returns the proof value, 2^AmountExponent in keyset units.
func (p *Proof) Amount() uint64 {
	return AmountFromExponent(uint8(p.AmountExponent))
}

// AmountFromExponent decodes an amount exponent byte, ignoring the spent flag.
func AmountFromExponent(exp uint8) uint64 {
	exp &^= AmountSpentFlag
	if exp > amountExponentMax {
		return 0
	}

	return 1 << exp
}

// ParseProofs parses a sequence of proof records.
func ParseProofs(data []byte) ([]*Proof, error) {
	if len(data)%ProofRecordLength != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of proof records", apdu.ErrTruncatedResponse, len(data))
	}

	r := apdu.NewReader(data)
	proofs := make([]*Proof, 0, len(data)/ProofRecordLength)

	for !r.Empty() {
		index, _ := r.Uint16()
		state, _ := r.Uint8()
		keysetIndex, _ := r.Uint8()
		exp, _ := r.Uint8()
		key, _ := r.Bytes(UnblindedKeyLength)
		secret, err := r.Bytes(SecretLength)
		if err != nil {
			return nil, err
		}

		proofs = append(proofs, &Proof{
			Index:          int(index),
			State:          state,
			KeysetIndex:    int(keysetIndex),
			AmountExponent: int(exp),
			UnblindedKey:   key,
			Secret:         secret,
		})
	}

	return proofs, nil
}
