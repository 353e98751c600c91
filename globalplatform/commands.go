package globalplatform

import (
	"github.com/electricdreams/satocash-go/apdu"
)

const (
	ClaISO7816 = 0x00

	InsSelect = 0xA4

	P1SelectByAID    = 0x04
	P2SelectFirstFCI = 0x00
)

// NewCommandSelect returns a SELECT by AID command without Le.
func NewCommandSelect(aid []byte) *apdu.Command {
	return apdu.NewCommand(
		ClaISO7816,
		InsSelect,
		P1SelectByAID,
		P2SelectFirstFCI,
		aid,
	)
}
