package types

import (
	"fmt"
	"strings"
)

// Unit is the currency unit a keyset is denominated in.
type Unit uint8

const (
	UnitEmpty Unit = 0x00
	UnitSat   Unit = 0x01
	UnitMsat  Unit = 0x02
	UnitUSD   Unit = 0x03
	UnitEUR   Unit = 0x04
)

var unitNames = map[Unit]string{
	UnitEmpty: "empty",
	UnitSat:   "sat",
	UnitMsat:  "msat",
	UnitUSD:   "usd",
	UnitEUR:   "eur",
}

func (u Unit) String() string {
	if name, ok := unitNames[u]; ok {
		return name
	}

	return fmt.Sprintf("unit(%d)", uint8(u))
}

// ParseUnit returns the Unit named s, case insensitive.
func ParseUnit(s string) (Unit, error) {
	for u, name := range unitNames {
		if strings.EqualFold(name, s) {
			return u, nil
		}
	}

	return UnitEmpty, fmt.Errorf("unknown unit %q", s)
}

// ProofInfoType selects the proof metadata field returned by a proof info query.
type ProofInfoType uint8

const (
	ProofInfoState          ProofInfoType = 0x00
	ProofInfoKeysetIndex    ProofInfoType = 0x01
	ProofInfoAmountExponent ProofInfoType = 0x02
	ProofInfoMintIndex      ProofInfoType = 0x03
	ProofInfoUnit           ProofInfoType = 0x04
)
