package satocash

import (
	"errors"
	"fmt"

	"github.com/electricdreams/satocash-go/apdu"
)

const (
	SwPINFailed                  = 0x63C0
	SwNoMemoryLeft               = 0x9C01
	SwOperationNotAllowed        = 0x9C03
	SwSetupNotDone               = 0x9C04
	SwUnsupportedFeature         = 0x9C05
	SwUnauthorized               = 0x9C06
	SwSetupAlreadyDone           = 0x9C07
	SwObjectNotFound             = 0x9C08
	SwSignatureInvalid           = 0x9C0B
	SwIdentityBlocked            = 0x9C0C
	SwInvalidParameter           = 0x9C0F
	SwIncorrectP1                = 0x9C10
	SwIncorrectP2                = 0x9C11
	SwSequenceEnd                = 0x9C12
	SwIncorrectInitialization    = 0x9C13
	SwHMACUnsupportedKeySize     = 0x9C1E
	SwHMACUnsupportedMsgSize     = 0x9C1F
	SwSecureChannelRequired      = 0x9C20
	SwSecureChannelUninitialized = 0x9C21
	SwSecureChannelWrongIV       = 0x9C22
	SwSecureChannelWrongMAC      = 0x9C23
	SwInsDeprecated              = 0x9C26
	SwLockError                  = 0x9C30
	SwPKIAlreadyLocked           = 0x9C40
	SwNFCDisabled                = 0x9C48
	SwNFCBlocked                 = 0x9C49
	SwObjectAlreadyPresent       = 0x9C60
	SwInternalError              = 0x9CFF
	SwDebugFlag                  = 0x9FFF
	SwResetToFactory             = 0xFF00
	SwUnknownError               = 0x6F00
	swPINFailedMask              = 0xFFF0
	swRemainingAttemptsMask      = 0x000F
)

// Errors matching the status words returned by the applet.
// Use errors.Is on any error returned by CommandSet to test for them.
var (
	ErrPINFailed                  = errors.New("pin verification failed")
	ErrNoMemoryLeft               = errors.New("no memory left")
	ErrOperationNotAllowed        = errors.New("operation not allowed")
	ErrSetupNotDone               = errors.New("setup not done")
	ErrUnsupportedFeature         = errors.New("unsupported feature")
	ErrUnauthorized               = errors.New("unauthorized")
	ErrSetupAlreadyDone           = errors.New("setup already done")
	ErrObjectNotFound             = errors.New("object not found")
	ErrCardSignatureInvalid       = errors.New("signature invalid")
	ErrIdentityBlocked            = errors.New("identity blocked")
	ErrInvalidParameter           = errors.New("invalid parameter")
	ErrIncorrectP1                = errors.New("incorrect p1")
	ErrIncorrectP2                = errors.New("incorrect p2")
	ErrSequenceEnd                = errors.New("sequence end")
	ErrIncorrectInitialization    = errors.New("incorrect initialization")
	ErrHMACUnsupportedKeySize     = errors.New("hmac unsupported key size")
	ErrHMACUnsupportedMsgSize     = errors.New("hmac unsupported message size")
	ErrSecureChannelRequired      = errors.New("secure channel required")
	ErrSecureChannelUninitialized = errors.New("secure channel uninitialized")
	ErrSecureChannelWrongIV       = errors.New("secure channel wrong iv")
	ErrSecureChannelWrongMAC      = errors.New("secure channel wrong mac")
	ErrInsDeprecated              = errors.New("instruction deprecated")
	ErrLockError                  = errors.New("lock error")
	ErrPKIAlreadyLocked           = errors.New("pki already locked")
	ErrNFCDisabled                = errors.New("nfc disabled")
	ErrNFCBlocked                 = errors.New("nfc blocked")
	ErrObjectAlreadyPresent       = errors.New("object already present")
	ErrCardInternal               = errors.New("card internal error")
	ErrDebugFlag                  = errors.New("debug flag")
	ErrResetToFactory             = errors.New("reset to factory")
	ErrCardUnknown                = errors.New("unknown card error")
)

var statusWordErrors = map[uint16]error{
	SwNoMemoryLeft:               ErrNoMemoryLeft,
	SwOperationNotAllowed:        ErrOperationNotAllowed,
	SwSetupNotDone:               ErrSetupNotDone,
	SwUnsupportedFeature:         ErrUnsupportedFeature,
	SwUnauthorized:               ErrUnauthorized,
	SwSetupAlreadyDone:           ErrSetupAlreadyDone,
	SwObjectNotFound:             ErrObjectNotFound,
	SwSignatureInvalid:           ErrCardSignatureInvalid,
	SwIdentityBlocked:            ErrIdentityBlocked,
	SwInvalidParameter:           ErrInvalidParameter,
	SwIncorrectP1:                ErrIncorrectP1,
	SwIncorrectP2:                ErrIncorrectP2,
	SwSequenceEnd:                ErrSequenceEnd,
	SwIncorrectInitialization:    ErrIncorrectInitialization,
	SwHMACUnsupportedKeySize:     ErrHMACUnsupportedKeySize,
	SwHMACUnsupportedMsgSize:     ErrHMACUnsupportedMsgSize,
	SwSecureChannelRequired:      ErrSecureChannelRequired,
	SwSecureChannelUninitialized: ErrSecureChannelUninitialized,
	SwSecureChannelWrongIV:       ErrSecureChannelWrongIV,
	SwSecureChannelWrongMAC:      ErrSecureChannelWrongMAC,
	SwInsDeprecated:              ErrInsDeprecated,
	SwLockError:                  ErrLockError,
	SwPKIAlreadyLocked:           ErrPKIAlreadyLocked,
	SwNFCDisabled:                ErrNFCDisabled,
	SwNFCBlocked:                 ErrNFCBlocked,
	SwObjectAlreadyPresent:       ErrObjectAlreadyPresent,
	SwInternalError:              ErrCardInternal,
	SwDebugFlag:                  ErrDebugFlag,
	SwResetToFactory:             ErrResetToFactory,
	SwUnknownError:               ErrCardUnknown,
}

// StatusWordError returns the error matching sw, or nil for success and unknown status words.
func StatusWordError(sw uint16) error {
	if sw&swPINFailedMask == SwPINFailed {
		return ErrPINFailed
	}

	return statusWordErrors[sw]
}

// StatusWordText returns a human readable description of sw.
func StatusWordText(sw uint16) string {
	if sw == apdu.SwOK {
		return "success"
	}

	if err := StatusWordError(sw); err != nil {
		return err.Error()
	}

	return fmt.Sprintf("unknown status word %04X", sw)
}
