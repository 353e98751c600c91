package satocash

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/electricdreams/satocash-go/types"
)

// proofInfoBatch is the number of proofs queried per proof info request.
const proofInfoBatch = 128

var (
	ErrProofInfoMismatch = errors.New("proof info lengths differ")
	ErrNoProofCounters   = errors.New("applet does not report proof counters")
)

// Balance is the value of the unspent proofs stored on the card for one unit.
type Balance struct {
	Unit          types.Unit
	Amount        uint64
	UnspentProofs int
	// TotalProofs is the number of non empty proof slots scanned.
	TotalProofs int
}

// GetBalance sums the amounts of the unspent proofs of unit.
// It only reads proof metadata, never the proofs themselves.
// Every slot up to the card capacity is scanned since used slots need not be contiguous.
func GetBalance(cs *CommandSet, unit types.Unit) (*Balance, error) {
	const op = "get balance"
	status, err := cs.GetStatus()
	if err != nil {
		return nil, err
	}

	if !status.HasProofCounters {
		return nil, &ProtocolError{Op: op, Err: ErrNoProofCounters}
	}

	balance := &Balance{Unit: unit}
	if status.TotalProofs() == 0 {
		return balance, nil
	}

	for start := 0; start < status.MaxProofs; start += proofInfoBatch {
		size := status.MaxProofs - start
		if size > proofInfoBatch {
			size = proofInfoBatch
		}

		states, err := cs.GetProofInfo(unit, types.ProofInfoState, uint16(start), uint16(size))
		if err != nil {
			return nil, err
		}

		exponents, err := cs.GetProofInfo(unit, types.ProofInfoAmountExponent, uint16(start), uint16(size))
		if err != nil {
			return nil, err
		}

		if len(states) != len(exponents) {
			return nil, &ProtocolError{
				Op:  op,
				Err: fmt.Errorf("%w: %d states, %d amounts", ErrProofInfoMismatch, len(states), len(exponents)),
			}
		}

		for i, state := range states {
			if state == types.ProofStateEmpty {
				continue
			}

			balance.TotalProofs++
			if state != types.ProofStateUnspent || exponents[i]&types.AmountSpentFlag != 0 {
				continue
			}

			balance.Amount += types.AmountFromExponent(exponents[i])
			balance.UnspentProofs++
		}

		// a short answer means the card has no slots past it
		if len(states) < size {
			break
		}
	}

	logger.Debug("balance computed", "unit", unit, "amount", balance.Amount, "unspent", balance.UnspentProofs)

	return balance, nil
}

// ListMints returns the url of every used mint slot, by slot index.
func ListMints(cs *CommandSet) (map[int]string, error) {
	status, err := cs.GetStatus()
	if err != nil {
		return nil, err
	}

	mints := make(map[int]string)
	for i := 0; i < status.MaxMints; i++ {
		url, err := cs.ExportMint(uint8(i))
		if errors.Is(err, ErrObjectNotFound) {
			continue
		}

		if err != nil {
			return nil, err
		}

		if url != "" {
			mints[i] = url
		}
	}

	return mints, nil
}

// AuthenticateCard checks that the card holds the private key of its PKI public key
// by having it sign a fresh challenge. It returns the PKI public key.
func AuthenticateCard(cs *CommandSet) ([]byte, error) {
	pubKey, err := cs.ExportPKIPubkey()
	if err != nil {
		return nil, err
	}

	challenge := make([]byte, types.ChallengeLength)
	if _, err := rand.Read(challenge); err != nil {
		return nil, err
	}

	resp, err := cs.ChallengeResponsePKI(challenge)
	if err != nil {
		return nil, err
	}

	if err := resp.Verify(pubKey, challenge); err != nil {
		return nil, err
	}

	return pubKey, nil
}
