package types

import (
	"github.com/electricdreams/satocash-go/apdu"
)

var (
	TagFileControlInformation = apdu.Tag{0x6F}
	TagDedicatedFileName      = apdu.Tag{0x84}
	TagProprietaryTemplate    = apdu.Tag{0xA5}
)

// ApplicationInfo describes the applet answering a SELECT command.
type ApplicationInfo struct {
	// AID is the identifier used to select the applet.
	AID []byte
	// DFName is the dedicated file name from the FCI, when the card returns one.
	DFName []byte
	// Proprietary is the raw proprietary template from the FCI, if any.
	Proprietary []byte
	// Raw is the unparsed SELECT response data.
	Raw []byte
}

// ParseApplicationInfo reads the SELECT response for aid.
// Satocash applets usually answer with no data, in which case only the AID is set.
// Data that is not a BER-TLV FCI is kept in Raw and is not an error.
func ParseApplicationInfo(aid []byte, data []byte) *ApplicationInfo {
	info := &ApplicationInfo{
		AID: append([]byte(nil), aid...),
	}

	if len(data) == 0 {
		return info
	}

	info.Raw = append([]byte(nil), data...)

	if name, err := apdu.FindTag(data, TagFileControlInformation, TagDedicatedFileName); err == nil {
		info.DFName = name
	}

	if prop, err := apdu.FindTag(data, TagFileControlInformation, TagProprietaryTemplate); err == nil {
		info.Proprietary = prop
	}

	return info
}
