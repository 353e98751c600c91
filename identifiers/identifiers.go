package identifiers

var (
	// SatocashAID is the AID of the Satocash applet instance.
	SatocashAID = []byte{0xA0, 0x00, 0x00, 0x00, 0x04, 0x53, 0x61, 0x74, 0x6F, 0x63, 0x61, 0x73, 0x68}

	// SatocashShortAID is the ASCII "Satocash" AID used by some installs.
	SatocashShortAID = []byte{0x53, 0x61, 0x74, 0x6F, 0x63, 0x61, 0x73, 0x68}

	// SatochipAID is the AID of the Satochip applet, which answers the generic status command.
	SatochipAID = []byte{0xA0, 0x00, 0x00, 0x00, 0x62, 0x03, 0x01, 0x08, 0x01}

	// CardManagerAID is the AID of the GlobalPlatform card manager.
	CardManagerAID = []byte{0xA0, 0x00, 0x00, 0x01, 0x51, 0x00, 0x00, 0x00}
)

// CandidateAIDs returns, in probing order, the AIDs tried when looking for a compatible applet.
// A new slice is returned on every call.
func CandidateAIDs() [][]byte {
	return [][]byte{
		clone(SatocashAID),
		clone(SatocashShortAID),
		clone(SatochipAID),
		clone(CardManagerAID),
	}
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
