package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	satocash "github.com/electricdreams/satocash-go"
	yaml "gopkg.in/yaml.v2"
)

// fileConfig is the content of the optional YAML config file.
type fileConfig struct {
	Reader           string   `yaml:"reader"`
	Timeout          string   `yaml:"timeout"`
	AID              string   `yaml:"aid"`
	CandidateAIDs    []string `yaml:"candidateAIDs"`
	MaxSequenceSteps int      `yaml:"maxSequenceSteps"`
	LogLevel         string   `yaml:"logLevel"`
}

// loadConfig reads path over the client defaults. An empty path returns the defaults.
func loadConfig(path string) (*satocash.Config, *fileConfig, error) {
	cfg := satocash.DefaultConfig()
	fc := &fileConfig{}

	if path == "" {
		return cfg, fc, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.UnmarshalStrict(raw, fc); err != nil {
		return nil, nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	if err := fc.apply(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, fc, nil
}

func (fc *fileConfig) apply(cfg *satocash.Config) error {
	if fc.Timeout != "" {
		timeout, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return err
		}

		cfg.Timeout = timeout
	}

	if fc.AID != "" {
		aid, err := parseHex(fc.AID)
		if err != nil {
			return fmt.Errorf("aid: %w", err)
		}

		cfg.AID = aid
	}

	if len(fc.CandidateAIDs) > 0 {
		cfg.CandidateAIDs = nil
		for _, s := range fc.CandidateAIDs {
			aid, err := parseHex(s)
			if err != nil {
				return fmt.Errorf("candidate aid %q: %w", s, err)
			}

			cfg.CandidateAIDs = append(cfg.CandidateAIDs, aid)
		}
	}

	if fc.MaxSequenceSteps > 0 {
		cfg.MaxSequenceSteps = fc.MaxSequenceSteps
	}

	return nil
}

func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	return hex.DecodeString(s)
}
