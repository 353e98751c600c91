package satocash

import (
	"errors"
	"fmt"

	"github.com/electricdreams/satocash-go/apdu"
)

var (
	errSequenceFinished  = errors.New("sequence already finished")
	errTooManyItems      = errors.New("card returned more items than requested")
	errTooManySteps      = errors.New("card did not end the sequence")
	errUnexpectedProof   = errors.New("card returned a proof that was not requested")
	errUnknownSequenceEv = errors.New("unknown sequence event")
)

type SequencePhase int

const (
	PhaseInit SequencePhase = iota
	PhaseProcess
	PhaseDone
	PhaseAborted
)

func (p SequencePhase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseProcess:
		return "process"
	case PhaseDone:
		return "done"
	case PhaseAborted:
		return "aborted"
	default:
		return fmt.Sprintf("SequencePhase(%d)", int(p))
	}
}

type sequenceEvent int

const (
	// eventItems reports a chunk carrying zero or more items.
	eventItems sequenceEvent = iota
	// eventNoMoreData is an empty chunk or the sequence end status word.
	eventNoMoreData
	eventFailure
)

// SequenceState tracks one chunked operation. Requested is zero when the card decides
// how many items it sends.
type SequenceState struct {
	Requested int
	Received  int
	Phase     SequencePhase
}

func (s SequenceState) finished() bool {
	return s.Phase == PhaseDone || s.Phase == PhaseAborted
}

// next applies one event to the state.
func (s SequenceState) next(ev sequenceEvent, items int) (SequenceState, error) {
	if s.finished() {
		return s, errSequenceFinished
	}

	switch ev {
	case eventFailure:
		s.Phase = PhaseAborted
	case eventNoMoreData:
		s.Phase = PhaseDone
	case eventItems:
		s.Received += items
		switch {
		case s.Requested > 0 && s.Received > s.Requested:
			s.Phase = PhaseAborted
			return s, errTooManyItems
		case s.Requested > 0 && s.Received == s.Requested:
			s.Phase = PhaseDone
		default:
			s.Phase = PhaseProcess
		}
	default:
		s.Phase = PhaseAborted
		return s, errUnknownSequenceEv
	}

	return s, nil
}

// chunkedOperation describes a command that returns its result over several exchanges.
type chunkedOperation struct {
	name      string
	initCmd   *apdu.Command
	ins       uint8
	requested int
	// decode consumes one decrypted chunk and returns the number of items it held.
	decode func(phase SequencePhase, data []byte) (int, error)
}

// runSequence drives op until the card has sent everything or an error occurs.
// No other command can be sent through the CommandSet meanwhile.
func (cs *CommandSet) runSequence(op *chunkedOperation) (SequenceState, error) {
	state := SequenceState{Requested: op.requested, Phase: PhaseInit}
	if err := cs.require(op.name, SecureChannelActive); err != nil {
		return state, err
	}

	if cs.activeSequence != nil {
		return state, ErrSequenceInProgress
	}

	cs.activeSequence = &state
	defer func() {
		cs.activeSequence = nil
	}()

	for steps := 0; !state.finished(); steps++ {
		if steps >= cs.cfg.MaxSequenceSteps {
			state.Phase = PhaseAborted
			return state, &ProtocolError{Op: op.name, Err: fmt.Errorf("%w after %d steps", errTooManySteps, steps)}
		}

		cmd := op.initCmd
		if state.Phase == PhaseProcess {
			cmd = NewCommandSequenceProcess(op.ins)
		}

		data, err := cs.transmitSecure(op.name, cmd)

		ev, items := eventItems, 0
		switch {
		case err == nil && len(data) == 0 && state.Phase == PhaseProcess:
			ev = eventNoMoreData
		case err == nil:
			items, err = op.decode(state.Phase, data)
			if err != nil {
				err = &ProtocolError{Op: op.name, Err: err}
				ev = eventFailure
			}
		case errors.Is(err, ErrSequenceEnd):
			ev, err = eventNoMoreData, nil
		default:
			ev = eventFailure
		}

		next, terr := state.next(ev, items)
		state = next
		if terr != nil {
			err = &ProtocolError{Op: op.name, Err: terr}
		}

		if state.Phase == PhaseAborted {
			logger.Debug("sequence aborted", "op", op.name, "received", state.Received, "requested", state.Requested, "error", err)
			return state, err
		}
	}

	logger.Debug("sequence done", "op", op.name, "received", state.Received)

	return state, nil
}
