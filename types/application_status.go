package types

import (
	"fmt"

	"github.com/electricdreams/satocash-go/apdu"
)

// Version is a major.minor version pair.
type Version struct {
	Major uint8
	Minor uint8
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ApplicationStatus is the decoded status record of the applet.
type ApplicationStatus struct {
	ProtocolVersion Version
	AppletVersion   Version

	PINTriesRemaining  int
	PUKTriesRemaining  int
	PIN1TriesRemaining int
	PUK1TriesRemaining int
	Needs2FA           bool

	// Generic is set when the record came from the generic status command,
	// which carries none of the fields below.
	Generic bool

	SetupDone          bool
	NeedsSecureChannel bool
	NFCPolicy          uint8
	PINPolicy          uint8

	MaxMints   int
	Mints      int
	MaxKeysets int
	Keysets    int

	// HasProofCounters is false for applets that do not report proof counters.
	HasProofCounters bool
	MaxProofs        int
	UnspentProofs    int
	SpentProofs      int
}

// TotalProofs returns the number of proof slots in use.
func (s *ApplicationStatus) TotalProofs() int {
	return s.UnspentProofs + s.SpentProofs
}

const (
	// satocashStatusLength is the size of the Satocash specific block following the common header.
	satocashStatusLength = 10
	proofCountersLength  = 6
)

// ParseSatocashStatus parses the response of the Satocash status command.
func ParseSatocashStatus(data []byte) (*ApplicationStatus, error) {
	r := apdu.NewReader(data)
	s := &ApplicationStatus{}

	if err := parseCommonStatus(r, s); err != nil {
		return nil, err
	}

	block, err := r.Bytes(satocashStatusLength)
	if err != nil {
		return nil, err
	}

	// block[0] and block[5] are reserved
	s.SetupDone = block[1] != 0
	s.NeedsSecureChannel = block[2] != 0
	s.NFCPolicy = block[3]
	s.PINPolicy = block[4]
	s.MaxMints = int(block[6])
	s.Mints = int(block[7])
	s.MaxKeysets = int(block[8])
	s.Keysets = int(block[9])

	if r.Remaining() < proofCountersLength {
		return s, nil
	}

	maxProofs, _ := r.Uint16()
	unspent, _ := r.Uint16()
	spent, _ := r.Uint16()

	s.HasProofCounters = true
	s.MaxProofs = int(maxProofs)
	s.UnspentProofs = int(unspent)
	s.SpentProofs = int(spent)

	return s, nil
}

// ParseGenericStatus parses the response of the generic status command.
func ParseGenericStatus(data []byte) (*ApplicationStatus, error) {
	r := apdu.NewReader(data)
	s := &ApplicationStatus{Generic: true}

	if err := parseCommonStatus(r, s); err != nil {
		return nil, err
	}

	return s, nil
}

// parseCommonStatus reads the 9 bytes both status records start with.
func parseCommonStatus(r *apdu.Reader, s *ApplicationStatus) error {
	fields := []*uint8{
		&s.ProtocolVersion.Major,
		&s.ProtocolVersion.Minor,
		&s.AppletVersion.Major,
		&s.AppletVersion.Minor,
	}

	for _, f := range fields {
		v, err := r.Uint8()
		if err != nil {
			return err
		}
		*f = v
	}

	tries := []*int{
		&s.PINTriesRemaining,
		&s.PUKTriesRemaining,
		&s.PIN1TriesRemaining,
		&s.PUK1TriesRemaining,
	}

	for _, f := range tries {
		v, err := r.Uint8()
		if err != nil {
			return err
		}
		*f = int(v)
	}

	needs2FA, err := r.Bool()
	if err != nil {
		return err
	}
	s.Needs2FA = needs2FA

	return nil
}
