package io

import (
	"errors"
	"fmt"
	"time"

	"github.com/electricdreams/satocash-go/apdu"
	"github.com/electricdreams/satocash-go/types"
	"github.com/ethereum/go-ethereum/log"
)

var logger = log.New("package", "satocash/io")

var ErrTimeout = errors.New("timeout waiting for card response")

// TransmitError wraps a failure of the underlying transmitter.
// Any other error returned by Send comes from encoding or decoding the apdu.
type TransmitError struct {
	Err error
}

func (e *TransmitError) Error() string {
	return fmt.Sprintf("transmit failed: %v", e.Err)
}

func (e *TransmitError) Unwrap() error {
	return e.Err
}

// NormalChannel sends plain apdu commands over a Transmitter.
type NormalChannel struct {
	t       types.Transmitter
	timeout time.Duration
}

var _ types.Channel = (*NormalChannel)(nil)

func NewNormalChannel(t types.Transmitter) *NormalChannel {
	return &NormalChannel{t: t}
}

// SetTimeout bounds every exchange. Zero disables the bound.
func (c *NormalChannel) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

func (c *NormalChannel) Send(cmd *apdu.Command) (*apdu.Response, error) {
	rawCmd, err := cmd.Serialize()
	if err != nil {
		return nil, err
	}

	logger.Trace("apdu command", "hex", fmt.Sprintf("%X", rawCmd))
	rawResp, err := c.transmit(rawCmd)
	if err != nil {
		return nil, err
	}

	logger.Trace("apdu response", "hex", fmt.Sprintf("%X", rawResp))

	resp, err := apdu.ParseResponse(rawResp)
	if err != nil {
		return nil, err
	}

	logger.Debug("apdu exchange", "ins", fmt.Sprintf("%02X", cmd.Ins), "sw", fmt.Sprintf("%04X", resp.Sw), "len", len(resp.Data))

	return resp, nil
}

type transmitResult struct {
	resp []byte
	err  error
}

func (c *NormalChannel) transmit(rawCmd []byte) ([]byte, error) {
	if c.timeout <= 0 {
		resp, err := c.t.Transmit(rawCmd)
		if err != nil {
			return nil, &TransmitError{Err: err}
		}

		return resp, nil
	}

	// the transmitter keeps running after a timeout until the transport is closed
	done := make(chan transmitResult, 1)
	go func() {
		resp, err := c.t.Transmit(rawCmd)
		done <- transmitResult{resp: resp, err: err}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, &TransmitError{Err: r.err}
		}

		return r.resp, nil
	case <-timer.C:
		return nil, &TransmitError{Err: ErrTimeout}
	}
}
