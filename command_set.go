package satocash

import (
	"errors"
	"fmt"

	"github.com/electricdreams/satocash-go/apdu"
	"github.com/electricdreams/satocash-go/globalplatform"
	"github.com/electricdreams/satocash-go/io"
	"github.com/electricdreams/satocash-go/types"
	"golang.org/x/text/unicode/norm"
)

// Names of the status commands reported by discovery.
const (
	StatusSatocash = "satocash"
	StatusGeneric  = "generic"
)

type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connected
	AppletSelected
	SecureChannelActive
	PinVerified
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case AppletSelected:
		return "applet selected"
	case SecureChannelActive:
		return "secure channel active"
	case PinVerified:
		return "pin verified"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// CommandSet is the client of one Satocash card. It is not safe for concurrent use.
type CommandSet struct {
	t   types.Transport
	c   *io.NormalChannel
	sc  *SecureChannel
	cfg *Config

	state          ConnectionState
	transportOpen  bool
	activeSequence *SequenceState
	pkiLocked      bool

	ApplicationInfo *types.ApplicationInfo
}

// NewCommandSet returns a client over t. A nil cfg selects DefaultConfig.
func NewCommandSet(t types.Transport, cfg *Config) *CommandSet {
	return &CommandSet{
		t:   t,
		c:   io.NewNormalChannel(t),
		sc:  NewSecureChannel(),
		cfg: cfg.withDefaults(),
	}
}

func (cs *CommandSet) State() ConnectionState {
	return cs.state
}

// CardAuthentikeyX returns the authentikey x coordinate announced during the last handshake.
func (cs *CommandSet) CardAuthentikeyX() []byte {
	return cs.sc.CardAuthentikeyX()
}

// CardSignatures returns the unverified signatures sent with the last handshake.
func (cs *CommandSet) CardSignatures() [][]byte {
	return cs.sc.CardSignatures()
}

func (cs *CommandSet) Connect() error {
	if cs.state != Disconnected {
		return &StateError{Op: "connect", State: cs.state, Required: Disconnected}
	}

	if cs.transportOpen {
		// left open by a transport failure
		if err := cs.closeTransport(); err != nil {
			logger.Warn("error closing stale transport", "error", err)
		}
	}

	if err := cs.t.Connect(); err != nil {
		return &TransportError{Op: "connect", Err: err}
	}

	cs.transportOpen = true
	if ts, ok := cs.t.(types.TimeoutSetter); ok {
		ts.SetTimeout(cs.cfg.Timeout)
	}

	cs.c.SetTimeout(cs.cfg.Timeout)
	cs.state = Connected
	logger.Debug("connected", "timeout", cs.cfg.Timeout)

	return nil
}

// Close resets the client and closes the transport. It can be called more than once.
func (cs *CommandSet) Close() error {
	cs.sc.Reset()
	cs.activeSequence = nil
	cs.pkiLocked = false
	cs.ApplicationInfo = nil
	cs.state = Disconnected

	if !cs.transportOpen {
		return nil
	}

	return cs.closeTransport()
}

func (cs *CommandSet) closeTransport() error {
	cs.transportOpen = false
	if err := cs.t.Close(); err != nil {
		return &TransportError{Op: "close", Err: err}
	}

	logger.Debug("disconnected")

	return nil
}

// WithSession connects, runs fn and closes the client whatever fn returns.
func (cs *CommandSet) WithSession(fn func(*CommandSet) error) (err error) {
	if err := cs.Connect(); err != nil {
		return err
	}

	defer func() {
		if cerr := cs.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(cs)
}

// SelectApplet selects aid, or the configured AID when aid is empty.
func (cs *CommandSet) SelectApplet(aid []byte) (*types.ApplicationInfo, error) {
	const op = "select applet"
	if err := cs.require(op, Connected); err != nil {
		return nil, err
	}

	if len(aid) == 0 {
		aid = cs.cfg.AID
	}

	// selecting resets the applet session on the card
	cs.sc.Reset()
	cs.ApplicationInfo = nil
	cs.state = Connected

	resp, err := cs.send(op, globalplatform.NewCommandSelect(aid))
	if err = cs.checkOK(op, resp, err); err != nil {
		return nil, err
	}

	cs.ApplicationInfo = types.ParseApplicationInfo(aid, resp.Data)
	cs.state = AppletSelected
	logger.Debug("applet selected", "aid", fmt.Sprintf("%X", aid))

	return cs.ApplicationInfo, nil
}

// DiscoveryAttempt records the outcome of probing one AID.
type DiscoveryAttempt struct {
	AID []byte
	// Status is StatusSatocash or StatusGeneric when the applet answered.
	Status string
	Err    error
}

type DiscoveryResult struct {
	AID      []byte
	Info     *types.ApplicationInfo
	Status   *types.ApplicationStatus
	Attempts []DiscoveryAttempt
}

// DiscoverApplets probes the configured candidate AIDs in order and leaves the first
// one that answers a status command selected.
func (cs *CommandSet) DiscoverApplets() (*DiscoveryResult, error) {
	const op = "discover applets"
	if err := cs.require(op, Connected); err != nil {
		return nil, err
	}

	result := &DiscoveryResult{}
	for _, aid := range cs.cfg.CandidateAIDs {
		attempt := DiscoveryAttempt{AID: aid}

		info, err := cs.SelectApplet(aid)
		if err == nil {
			var status *types.ApplicationStatus
			status, attempt.Status, err = cs.getStatus()
			if err == nil {
				result.AID = aid
				result.Info = info
				result.Status = status
				result.Attempts = append(result.Attempts, attempt)
				logger.Debug("applet found", "aid", fmt.Sprintf("%X", aid), "status", attempt.Status)
				return result, nil
			}
		}

		attempt.Err = err
		result.Attempts = append(result.Attempts, attempt)
		logger.Debug("no applet answering", "aid", fmt.Sprintf("%X", aid), "error", err)

		var te *TransportError
		if errors.As(err, &te) {
			return result, err
		}
	}

	// no candidate answered, do not leave a foreign applet selected
	if cs.state > Connected {
		cs.sc.Reset()
		cs.ApplicationInfo = nil
		cs.state = Connected
	}

	return result, ErrNoAppletFound
}

// InitSecureChannel runs the ECDH handshake. Any previous channel is discarded first.
func (cs *CommandSet) InitSecureChannel() error {
	const op = "init secure channel"
	if err := cs.require(op, AppletSelected); err != nil {
		return err
	}

	cs.state = AppletSelected

	pubKey, err := cs.sc.InitHandshake()
	if err != nil {
		return err
	}

	data, err := cs.sendPlain(op, NewCommandInitSecureChannel(pubKey))
	if err != nil {
		cs.sc.Reset()
		return err
	}

	if err := cs.sc.CompleteHandshake(data); err != nil {
		return err
	}

	cs.state = SecureChannelActive

	return nil
}

// GetStatus reads the Satocash status, or the generic status if the applet refuses it.
func (cs *CommandSet) GetStatus() (*types.ApplicationStatus, error) {
	status, _, err := cs.getStatus()
	return status, err
}

func (cs *CommandSet) getStatus() (*types.ApplicationStatus, string, error) {
	const op = "get status"
	if err := cs.require(op, AppletSelected); err != nil {
		return nil, "", err
	}

	data, err := cs.sendPlain(op, NewCommandGetStatus())
	if err == nil {
		status, err := types.ParseSatocashStatus(data)
		if err != nil {
			return nil, "", &ProtocolError{Op: op, Err: err}
		}

		return status, StatusSatocash, nil
	}

	var ce *CardError
	if !errors.As(err, &ce) {
		return nil, "", err
	}

	logger.Debug("satocash status refused, trying generic status", "sw", fmt.Sprintf("%04X", ce.Sw))

	const genericOp = "get generic status"
	data, err = cs.sendPlain(genericOp, NewCommandGetGenericStatus())
	if err != nil {
		return nil, "", err
	}

	status, err := types.ParseGenericStatus(data)
	if err != nil {
		return nil, "", &ProtocolError{Op: genericOp, Err: err}
	}

	return status, StatusGeneric, nil
}

func normalizePIN(pin string) ([]byte, error) {
	b := []byte(norm.NFKD.String(pin))
	if len(b) == 0 || len(b) > MaxPINLength {
		return nil, ErrBadPIN
	}

	for _, c := range b {
		if c >= 0x80 {
			return nil, ErrBadPIN
		}
	}

	return b, nil
}

func (cs *CommandSet) VerifyPIN(pin string, pinID uint8) error {
	const op = "verify pin"
	if err := cs.require(op, SecureChannelActive); err != nil {
		return err
	}

	b, err := normalizePIN(pin)
	if err != nil {
		return err
	}
	defer wipe(b)

	if _, err := cs.sendSecure(op, NewCommandVerifyPIN(pinID, b)); err != nil {
		if cs.state == PinVerified {
			cs.state = SecureChannelActive
		}

		return wrongPINError(err)
	}

	cs.state = PinVerified

	return nil
}

func (cs *CommandSet) ChangePIN(oldPIN string, newPIN string, pinID uint8) error {
	const op = "change pin"
	if err := cs.require(op, SecureChannelActive); err != nil {
		return err
	}

	oldB, err := normalizePIN(oldPIN)
	if err != nil {
		return err
	}
	defer wipe(oldB)

	newB, err := normalizePIN(newPIN)
	if err != nil {
		return err
	}
	defer wipe(newB)

	cmd, err := NewCommandChangePIN(pinID, oldB, newB)
	if err != nil {
		return err
	}

	_, err = cs.sendSecure(op, cmd)

	return wrongPINError(err)
}

func (cs *CommandSet) UnblockPIN(puk string, pinID uint8) error {
	const op = "unblock pin"
	if err := cs.require(op, SecureChannelActive); err != nil {
		return err
	}

	b, err := normalizePIN(puk)
	if err != nil {
		return err
	}
	defer wipe(b)

	_, err = cs.sendSecure(op, NewCommandUnblockPIN(pinID, b))

	var ce *CardError
	if errors.As(err, &ce) {
		if n, ok := ce.RemainingAttempts(); ok {
			return &WrongPUKError{RemainingAttempts: n, Sw: ce.Sw}
		}
	}

	return err
}

func wrongPINError(err error) error {
	var ce *CardError
	if errors.As(err, &ce) {
		if n, ok := ce.RemainingAttempts(); ok {
			return &WrongPINError{RemainingAttempts: n, Sw: ce.Sw}
		}
	}

	return err
}

func (cs *CommandSet) LogoutAll() error {
	_, err := cs.sendSecure("logout all", NewCommandLogoutAll())
	if err != nil {
		return err
	}

	if cs.state == PinVerified {
		cs.state = SecureChannelActive
	}

	return nil
}

func (cs *CommandSet) SetupApplet(params *SetupParams) error {
	const op = "setup"
	if err := cs.require(op, SecureChannelActive); err != nil {
		return err
	}

	var secrets [3][]byte
	for i, pin := range []string{params.DefaultPIN, params.UserPIN, params.UserPUK} {
		b, err := normalizePIN(pin)
		if err != nil {
			return err
		}
		defer wipe(b)

		secrets[i] = b
	}

	cmd, err := NewCommandSetup(secrets[0], secrets[1], secrets[2], params.PINTries, params.PUKTries)
	if err != nil {
		return err
	}

	_, err = cs.sendSecure(op, cmd)

	return err
}

func (cs *CommandSet) ImportMint(url string) (int, error) {
	const op = "import mint"
	if len(url) > MaxSecureCommandDataLength-1 {
		return 0, fmt.Errorf("%w: mint url is %d bytes", ErrBadArgument, len(url))
	}

	cmd, err := NewCommandImportMint([]byte(url))
	if err != nil {
		return 0, err
	}

	data, err := cs.sendSecure(op, cmd)
	if err != nil {
		return 0, err
	}

	index, err := apdu.NewReader(data).Uint8()
	if err != nil {
		return 0, &ProtocolError{Op: op, Err: err}
	}

	return int(index), nil
}

// ExportMint returns the url of the mint at index, or "" for an empty slot.
func (cs *CommandSet) ExportMint(index uint8) (string, error) {
	const op = "export mint"
	data, err := cs.sendSecure(op, NewCommandExportMint(index))
	if err != nil {
		return "", err
	}

	url, err := apdu.NewReader(data).Uint8LengthPrefixed()
	if err != nil {
		return "", &ProtocolError{Op: op, Err: err}
	}

	return string(url), nil
}

func (cs *CommandSet) RemoveMint(index uint8) error {
	_, err := cs.sendSecure("remove mint", NewCommandRemoveMint(index))
	return err
}

func (cs *CommandSet) ImportKeyset(id [types.KeysetIDLength]byte, mintIndex uint8, unit types.Unit) (int, error) {
	const op = "import keyset"
	data, err := cs.sendSecure(op, NewCommandImportKeyset(id, mintIndex, unit))
	if err != nil {
		return 0, err
	}

	index, err := apdu.NewReader(data).Uint8()
	if err != nil {
		return 0, &ProtocolError{Op: op, Err: err}
	}

	return int(index), nil
}

func (cs *CommandSet) ExportKeysets(indices []uint8) ([]*types.Keyset, error) {
	const op = "export keysets"
	cmd, err := NewCommandExportKeysets(indices)
	if err != nil {
		return nil, err
	}

	data, err := cs.sendSecure(op, cmd)
	if err != nil {
		return nil, err
	}

	keysets, err := types.ParseKeysets(data)
	if err != nil {
		return nil, &ProtocolError{Op: op, Err: err}
	}

	return keysets, nil
}

func (cs *CommandSet) RemoveKeyset(index uint8) error {
	_, err := cs.sendSecure("remove keyset", NewCommandRemoveKeyset(index))
	return err
}

// ImportProof stores a proof and returns its slot index.
func (cs *CommandSet) ImportProof(keysetIndex uint8, amountExponent uint8, unblindedKey []byte, secret []byte) (int, error) {
	const op = "import proof"
	cmd, err := NewCommandImportProof(keysetIndex, amountExponent, unblindedKey, secret)
	if err != nil {
		return 0, err
	}

	data, err := cs.sendSecure(op, cmd)
	if err != nil {
		return 0, err
	}

	index, err := apdu.NewReader(data).Uint16()
	if err != nil {
		return 0, &ProtocolError{Op: op, Err: err}
	}

	return int(index), nil
}

// ExportProofs returns the proofs at indices, in the order they were requested.
// The card may leave out empty slots. Nothing is returned if any step fails.
func (cs *CommandSet) ExportProofs(indices []uint16) ([]*types.Proof, error) {
	const op = "export proofs"
	if err := cs.require(op, SecureChannelActive); err != nil {
		return nil, err
	}

	if len(indices) == 0 {
		return []*types.Proof{}, nil
	}

	initCmd, err := NewCommandExportProofsInit(indices)
	if err != nil {
		return nil, err
	}

	proofs := make([]*types.Proof, 0, len(indices))
	next := 0
	decode := func(_ SequencePhase, data []byte) (int, error) {
		chunk, err := types.ParseProofs(data)
		if err != nil {
			return 0, err
		}

		for _, p := range chunk {
			for next < len(indices) && int(indices[next]) != p.Index {
				next++
			}

			if next == len(indices) {
				return 0, fmt.Errorf("%w: index %d", errUnexpectedProof, p.Index)
			}

			next++
			proofs = append(proofs, p)
		}

		return len(chunk), nil
	}

	_, err = cs.runSequence(&chunkedOperation{
		name:      op,
		initCmd:   initCmd,
		ins:       InsExportProofs,
		requested: len(indices),
		decode:    decode,
	})
	if err != nil {
		return nil, err
	}

	return proofs, nil
}

// GetProofInfo returns one byte of the selected metadata for each proof in [start, start+size).
func (cs *CommandSet) GetProofInfo(unit types.Unit, infoType types.ProofInfoType, start uint16, size uint16) ([]byte, error) {
	const op = "get proof info"
	data, err := cs.sendSecure(op, NewCommandGetProofInfo(unit, infoType, start, size))
	if err != nil {
		return nil, err
	}

	if len(data) > int(size) {
		return nil, &ProtocolError{Op: op, Err: fmt.Errorf("got %d bytes of proof info for %d proofs", len(data), size)}
	}

	return data, nil
}

func (cs *CommandSet) SetCardLabel(label string) error {
	b := []byte(norm.NFC.String(label))
	if len(b) > MaxSecureCommandDataLength-1 {
		return fmt.Errorf("%w: label is %d bytes", ErrBadArgument, len(b))
	}

	cmd, err := NewCommandSetCardLabel(b)
	if err != nil {
		return err
	}

	_, err = cs.sendSecure("set card label", cmd)

	return err
}

func (cs *CommandSet) GetCardLabel() (string, error) {
	const op = "get card label"
	data, err := cs.sendSecure(op, NewCommandGetCardLabel())
	if err != nil {
		return "", err
	}

	label, err := apdu.NewReader(data).Uint8LengthPrefixed()
	if err != nil {
		return "", &ProtocolError{Op: op, Err: err}
	}

	return string(label), nil
}

func (cs *CommandSet) SetNFCPolicy(policy uint8) error {
	_, err := cs.sendSecure("set nfc policy", NewCommandSetNFCPolicy(policy))
	return err
}

func (cs *CommandSet) SetPINPolicy(policy uint8) error {
	_, err := cs.sendSecure("set pin policy", NewCommandSetPINPolicy(policy))
	return err
}

func (cs *CommandSet) SetPinlessAmount(amount uint32) error {
	_, err := cs.sendSecure("set pinless amount", NewCommandSetPinlessAmount(amount))
	return err
}

func (cs *CommandSet) ExportAuthentikey() (*types.Authentikey, error) {
	const op = "export authentikey"
	data, err := cs.sendSecure(op, NewCommandExportAuthentikey())
	if err != nil {
		return nil, err
	}

	key, err := types.ParseAuthentikey(data)
	if err != nil {
		return nil, &ProtocolError{Op: op, Err: err}
	}

	return key, nil
}

// PrintLogs reads the operation log of the card.
func (cs *CommandSet) PrintLogs() (*types.Logs, error) {
	const op = "print logs"
	logs := &types.Logs{}
	decode := func(phase SequencePhase, data []byte) (int, error) {
		if phase == PhaseInit {
			header, rest, err := types.ParseLogsHeader(data)
			if err != nil {
				return 0, err
			}

			logs.Total = header.Total
			logs.Available = header.Available
			data = rest
		}

		entries, err := types.ParseLogEntries(data)
		if err != nil {
			return 0, err
		}

		logs.Entries = append(logs.Entries, entries...)

		return len(entries), nil
	}

	_, err := cs.runSequence(&chunkedOperation{
		name:    op,
		initCmd: NewCommandPrintLogsInit(),
		ins:     InsPrintLogs,
		decode:  decode,
	})
	if err != nil {
		return nil, err
	}

	return logs, nil
}

func (cs *CommandSet) ExportPKIPubkey() ([]byte, error) {
	const op = "export pki pubkey"
	data, err := cs.sendSecure(op, NewCommandExportPKIPubkey())
	if err != nil {
		return nil, err
	}

	pubKey, err := types.ParsePKIPublicKey(data)
	if err != nil {
		return nil, &ProtocolError{Op: op, Err: err}
	}

	return pubKey, nil
}

// SignPKICSR returns the DER signature of the card PKI key over hash.
func (cs *CommandSet) SignPKICSR(hash []byte) ([]byte, error) {
	const op = "sign pki csr"
	cmd, err := NewCommandSignPKICSR(hash)
	if err != nil {
		return nil, err
	}

	data, err := cs.sendSecure(op, cmd)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, &ProtocolError{Op: op, Err: fmt.Errorf("%w: empty signature", apdu.ErrTruncatedResponse)}
	}

	return data, nil
}

func (cs *CommandSet) ChallengeResponsePKI(challenge []byte) (*types.PkiChallengeResponse, error) {
	const op = "challenge response pki"
	cmd, err := NewCommandChallengeResponsePKI(challenge)
	if err != nil {
		return nil, err
	}

	data, err := cs.sendSecure(op, cmd)
	if err != nil {
		return nil, err
	}

	resp, err := types.ParsePkiChallengeResponse(data)
	if err != nil {
		return nil, &ProtocolError{Op: op, Err: err}
	}

	return resp, nil
}

// LockPKI locks the card PKI. It cannot be undone.
func (cs *CommandSet) LockPKI() error {
	if cs.pkiLocked {
		return ErrPKILocked
	}

	_, err := cs.sendSecure("lock pki", NewCommandLockPKI())
	if err == nil || errors.Is(err, ErrPKIAlreadyLocked) {
		cs.pkiLocked = true
	}

	return err
}

func (cs *CommandSet) require(op string, min ConnectionState) error {
	if cs.activeSequence != nil {
		return ErrSequenceInProgress
	}

	if cs.state < min {
		return &StateError{Op: op, State: cs.state, Required: min}
	}

	return nil
}

func (cs *CommandSet) send(op string, cmd *apdu.Command) (*apdu.Response, error) {
	resp, err := cs.c.Send(cmd)
	if err == nil {
		return resp, nil
	}

	var te *io.TransmitError
	if errors.As(err, &te) {
		cs.sc.Reset()
		cs.state = Disconnected
		logger.Warn("transport failure", "op", op, "error", te.Err)
		return nil, &TransportError{Op: op, Err: te.Err}
	}

	return nil, &ProtocolError{Op: op, Err: err}
}

func (cs *CommandSet) sendPlain(op string, cmd *apdu.Command) ([]byte, error) {
	resp, err := cs.send(op, cmd)
	if err = cs.checkOK(op, resp, err); err != nil {
		return nil, err
	}

	return resp.Data, nil
}

// sendSecure sends cmd through the secure channel and returns the decrypted response data.
func (cs *CommandSet) sendSecure(op string, cmd *apdu.Command) ([]byte, error) {
	if err := cs.require(op, SecureChannelActive); err != nil {
		return nil, err
	}

	return cs.transmitSecure(op, cmd)
}

// transmitSecure is sendSecure without the sequence check, used for the steps of a sequence.
func (cs *CommandSet) transmitSecure(op string, cmd *apdu.Command) ([]byte, error) {
	if cs.state < SecureChannelActive {
		return nil, &StateError{Op: op, State: cs.state, Required: SecureChannelActive}
	}

	plain, err := cmd.Serialize()
	if err != nil {
		return nil, &ProtocolError{Op: op, Err: err}
	}

	frame, err := cs.sc.EncryptCommand(plain)
	if err != nil {
		return nil, cs.secureFailure(op, err)
	}

	logger.Debug("sending secure apdu", "op", op, "ins", fmt.Sprintf("%02X", cmd.Ins))

	resp, err := cs.send(op, NewCommandProcessSecureChannel(frame))
	if err != nil {
		return nil, err
	}

	if resp.Sw != apdu.SwOK {
		switch resp.Sw {
		case SwSecureChannelRequired, SwSecureChannelUninitialized, SwSecureChannelWrongIV, SwSecureChannelWrongMAC:
			logger.Warn("card rejected secure channel", "op", op, "sw", fmt.Sprintf("%04X", resp.Sw))
			cs.dropSecureChannel()
		}

		return nil, &CardError{Op: op, Sw: resp.Sw}
	}

	data, err := cs.sc.DecryptResponse(resp.Data)
	if err != nil {
		return nil, cs.secureFailure(op, err)
	}

	return data, nil
}

func (cs *CommandSet) secureFailure(op string, err error) error {
	var se *SecurityError
	if !errors.As(err, &se) {
		return err
	}

	logger.Warn("secure channel torn down", "op", op, "error", se.Err)
	cs.dropSecureChannel()

	return &SecurityError{Op: op, Err: se.Err}
}

func (cs *CommandSet) dropSecureChannel() {
	cs.sc.Reset()
	if cs.state > AppletSelected {
		cs.state = AppletSelected
	}
}

func (cs *CommandSet) checkOK(op string, resp *apdu.Response, err error, allowedResponses ...uint16) error {
	if err != nil {
		return err
	}

	if len(allowedResponses) == 0 {
		allowedResponses = []uint16{apdu.SwOK}
	}

	for _, code := range allowedResponses {
		if code == resp.Sw {
			return nil
		}
	}

	return &CardError{Op: op, Sw: resp.Sw}
}
