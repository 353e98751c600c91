package main

import (
	"errors"
	"fmt"

	"github.com/ebfe/scard"
)

var errNoReader = errors.New("couldn't find any reader")

// pcscTransport connects to the first card reader, or to the named one.
type pcscTransport struct {
	readerName string

	ctx  *scard.Context
	card *scard.Card
}

func newPCSCTransport(readerName string) *pcscTransport {
	return &pcscTransport{readerName: readerName}
}

func (t *pcscTransport) Connect() error {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return fmt.Errorf("error establishing card context: %w", err)
	}

	reader, err := t.pickReader(ctx)
	if err != nil {
		t.release(ctx)
		return err
	}

	logger.Debug("connecting to card", "reader", reader)
	card, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		t.release(ctx)
		return fmt.Errorf("error connecting to card: %w", err)
	}

	status, err := card.Status()
	if err == nil {
		switch status.ActiveProtocol {
		case scard.ProtocolT0:
			logger.Debug("card protocol", "T", "0")
		case scard.ProtocolT1:
			logger.Debug("card protocol", "T", "1")
		default:
			logger.Debug("card protocol", "T", "unknown")
		}
	}

	t.ctx = ctx
	t.card = card

	return nil
}

func (t *pcscTransport) pickReader(ctx *scard.Context) (string, error) {
	readers, err := ctx.ListReaders()
	if err != nil {
		return "", fmt.Errorf("error getting readers: %w", err)
	}

	if len(readers) == 0 {
		return "", errNoReader
	}

	if t.readerName == "" {
		if len(readers) > 1 {
			logger.Warn("more than one reader found, using the first", "readers", readers)
		}

		return readers[0], nil
	}

	for _, r := range readers {
		if r == t.readerName {
			return r, nil
		}
	}

	return "", fmt.Errorf("reader %q not found", t.readerName)
}

func (t *pcscTransport) Transmit(cmd []byte) ([]byte, error) {
	if t.card == nil {
		return nil, errors.New("card not connected")
	}

	return t.card.Transmit(cmd)
}

func (t *pcscTransport) Close() error {
	var err error
	if t.card != nil {
		err = t.card.Disconnect(scard.ResetCard)
		t.card = nil
	}

	if t.ctx != nil {
		t.release(t.ctx)
		t.ctx = nil
	}

	return err
}

func (t *pcscTransport) release(ctx *scard.Context) {
	if err := ctx.Release(); err != nil {
		logger.Error("error releasing context", "error", err)
	}
}
