package types

import (
	"time"

	"github.com/electricdreams/satocash-go/apdu"
)

// Channel is an interface with a Send method to send apdu commands and receive apdu responses.
type Channel interface {
	Send(*apdu.Command) (*apdu.Response, error)
}

// Transmitter sends a raw command to the card and returns its raw response.
// *scard.Card implements it.
type Transmitter interface {
	Transmit([]byte) ([]byte, error)
}

// Transport is a Transmitter bound to the lifecycle of one physical card connection.
type Transport interface {
	Transmitter
	Connect() error
	Close() error
}

// TimeoutSetter is implemented by transports that can bound each exchange themselves,
// like an ISO-DEP link on a phone.
type TimeoutSetter interface {
	SetTimeout(time.Duration)
}
