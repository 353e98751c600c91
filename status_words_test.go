package satocash

import (
	"errors"
	"testing"

	"github.com/electricdreams/satocash-go/apdu"
	"github.com/stretchr/testify/assert"
)

func TestStatusWordError(t *testing.T) {
	assert.Nil(t, StatusWordError(apdu.SwOK))
	assert.Nil(t, StatusWordError(0x6A82))
	assert.Equal(t, ErrPINFailed, StatusWordError(0x63C0))
	assert.Equal(t, ErrPINFailed, StatusWordError(0x63C7))
	assert.Equal(t, ErrSequenceEnd, StatusWordError(SwSequenceEnd))
	assert.Equal(t, ErrPKIAlreadyLocked, StatusWordError(0x9C40))

	for sw, err := range statusWordErrors {
		assert.Equal(t, err, StatusWordError(sw))
	}
}

func TestStatusWordText(t *testing.T) {
	assert.Equal(t, "success", StatusWordText(apdu.SwOK))
	assert.Equal(t, "secure channel wrong mac", StatusWordText(0x9C23))
	assert.Equal(t, "unknown status word 6A82", StatusWordText(0x6A82))
}

func TestCardError(t *testing.T) {
	err := error(&CardError{Op: "import mint", Sw: SwNoMemoryLeft})
	assert.True(t, errors.Is(err, ErrNoMemoryLeft))
	assert.False(t, errors.Is(err, ErrObjectNotFound))
	assert.Equal(t, "import mint failed with sw 9C01: no memory left", err.Error())

	ce := &CardError{Op: "verify pin", Sw: 0x63C3}
	remaining, ok := ce.RemainingAttempts()
	assert.True(t, ok)
	assert.Equal(t, 3, remaining)

	_, ok = (&CardError{Sw: SwUnauthorized}).RemainingAttempts()
	assert.False(t, ok)
}

func TestWrongPINError(t *testing.T) {
	err := error(&WrongPINError{RemainingAttempts: 1, Sw: 0x63C1})
	assert.Equal(t, "wrong pin. remaining attempts: 1", err.Error())
	assert.True(t, errors.Is(err, ErrPINFailed))

	var ce *CardError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, uint16(0x63C1), ce.Sw)
}

func TestStateError(t *testing.T) {
	err := error(&StateError{Op: "verify pin", State: AppletSelected, Required: SecureChannelActive})
	assert.True(t, errors.Is(err, ErrPrecondition))
	assert.Equal(t, "verify pin requires state secure channel active, client is applet selected", err.Error())
}
