package satocash

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition is wrapped by every error returned for a command that is illegal
	// in the current client state. No I/O happens in that case.
	ErrPrecondition = errors.New("precondition failed")

	ErrChannelNotEstablished = fmt.Errorf("%w: secure channel not established", ErrPrecondition)
	ErrHandshakeNotStarted   = fmt.Errorf("%w: secure channel handshake not started", ErrPrecondition)
	ErrSequenceInProgress    = fmt.Errorf("%w: chunked operation in progress", ErrPrecondition)
	ErrPKILocked             = fmt.Errorf("%w: pki is locked", ErrPrecondition)

	ErrNoAppletFound     = errors.New("no compatible applet found")
	ErrMACMismatch       = errors.New("response mac mismatch")
	ErrPointRecovery     = errors.New("cannot recover card ephemeral public key")
	ErrIVCounterOverflow = errors.New("iv counter exhausted")
	ErrBadSecureFrame    = errors.New("malformed secure channel frame")
	ErrTooManyIndices    = errors.New("too many indices for one request")
	ErrBadPIN            = errors.New("pin must be 1 to 16 ascii characters")
	ErrBadArgument       = errors.New("bad argument")
)

// TransportError reports an I/O failure, a timeout or a lost card.
// The session cannot be resumed: the client must be closed and connected again.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a malformed or truncated frame.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error during %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// SecurityError reports a failed integrity check on the secure channel.
// The channel is torn down when it is returned.
type SecurityError struct {
	Op  string
	Err error
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security error during %s: %v", e.Op, e.Err)
}

func (e *SecurityError) Unwrap() error {
	return e.Err
}

// CardError reports a status word other than 0x9000.
type CardError struct {
	Op string
	Sw uint16
}

func (e *CardError) Error() string {
	return fmt.Sprintf("%s failed with sw %04X: %s", e.Op, e.Sw, StatusWordText(e.Sw))
}

// Unwrap returns the error matching the status word, so errors.Is(err, ErrSequenceEnd) works.
func (e *CardError) Unwrap() error {
	return StatusWordError(e.Sw)
}

// RemainingAttempts decodes the tries left from a 0x63Cx status word.
func (e *CardError) RemainingAttempts() (int, bool) {
	if e.Sw&swPINFailedMask != SwPINFailed {
		return 0, false
	}

	return int(e.Sw & swRemainingAttemptsMask), true
}

type WrongPINError struct {
	RemainingAttempts int
	Sw                uint16
}

func (e *WrongPINError) Error() string {
	return fmt.Sprintf("wrong pin. remaining attempts: %d", e.RemainingAttempts)
}

func (e *WrongPINError) Unwrap() error {
	return &CardError{Op: "verify pin", Sw: e.Sw}
}

type WrongPUKError struct {
	RemainingAttempts int
	Sw                uint16
}

func (e *WrongPUKError) Error() string {
	return fmt.Sprintf("wrong puk. remaining attempts: %d", e.RemainingAttempts)
}

func (e *WrongPUKError) Unwrap() error {
	return &CardError{Op: "unblock pin", Sw: e.Sw}
}

// StateError is returned when an operation is not allowed in the current connection state.
type StateError struct {
	Op       string
	State    ConnectionState
	Required ConnectionState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s requires state %s, client is %s", e.Op, e.Required, e.State)
}

func (e *StateError) Unwrap() error {
	return ErrPrecondition
}
