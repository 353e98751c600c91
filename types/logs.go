package types

import (
	"fmt"

	"github.com/electricdreams/satocash-go/apdu"
)

// logEntryLength is instruction, p1, p2 and status word.
const logEntryLength = 1 + 2 + 2 + 2

// LogEntry is one operation recorded by the applet.
type LogEntry struct {
	Instruction uint8
	P1          uint16
	P2          uint16
	Sw          uint16
}

func (e *LogEntry) String() string {
	return fmt.Sprintf("INS: 0x%02X, P1: %d, P2: %d, SW: 0x%04X", e.Instruction, e.P1, e.P2, e.Sw)
}

// Logs is the operation log of the card.
type Logs struct {
	Total     int
	Available int
	Entries   []*LogEntry
}

// ParseLogsHeader reads the log counters at the start of the first log response
// and returns the entries data that follows them.
func ParseLogsHeader(data []byte) (logs *Logs, rest []byte, err error) {
	r := apdu.NewReader(data)

	total, err := r.Uint16()
	if err != nil {
		return nil, nil, err
	}

	available, err := r.Uint16()
	if err != nil {
		return nil, nil, err
	}

	logs = &Logs{
		Total:     int(total),
		Available: int(available),
	}

	return logs, r.Rest(), nil
}

// ParseLogEntries parses a sequence of log entries.
func ParseLogEntries(data []byte) ([]*LogEntry, error) {
	if len(data)%logEntryLength != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of log entries", apdu.ErrTruncatedResponse, len(data))
	}

	r := apdu.NewReader(data)
	entries := make([]*LogEntry, 0, len(data)/logEntryLength)

	for !r.Empty() {
		ins, _ := r.Uint8()
		p1, _ := r.Uint16()
		p2, _ := r.Uint16()
		sw, err := r.Uint16()
		if err != nil {
			return nil, err
		}

		entries = append(entries, &LogEntry{
			Instruction: ins,
			P1:          p1,
			P2:          p2,
			Sw:          sw,
		})
	}

	return entries, nil
}
