package satocash

import (
	"time"

	"github.com/electricdreams/satocash-go/identifiers"
)

const (
	DefaultTimeout = 5 * time.Second

	// DefaultMaxSequenceSteps bounds the number of exchanges of one chunked operation.
	DefaultMaxSequenceSteps = 256
)

// Config holds the client settings. The zero value of a field selects its default.
type Config struct {
	// Timeout bounds each card exchange.
	Timeout time.Duration
	// AID is selected by SelectApplet when no AID is given.
	AID []byte
	// CandidateAIDs are probed in order by DiscoverApplets.
	CandidateAIDs [][]byte
	// MaxSequenceSteps bounds chunked operations against a card that never ends them.
	MaxSequenceSteps int
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:          DefaultTimeout,
		AID:              identifiers.SatocashAID,
		CandidateAIDs:    identifiers.CandidateAIDs(),
		MaxSequenceSteps: DefaultMaxSequenceSteps,
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}

	out := *c
	if out.Timeout == 0 {
		out.Timeout = d.Timeout
	}

	if len(out.AID) == 0 {
		out.AID = d.AID
	}

	if len(out.CandidateAIDs) == 0 {
		out.CandidateAIDs = d.CandidateAIDs
	}

	if out.MaxSequenceSteps <= 0 {
		out.MaxSequenceSteps = d.MaxSequenceSteps
	}

	return &out
}
