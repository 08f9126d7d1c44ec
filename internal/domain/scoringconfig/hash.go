package scoringconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// hashedFields is the subset of a config that contributes to its hash.
type hashedFields struct {
	ModelVersion  int                `json:"model_version"`
	Weights       map[string]float64 `json:"weights"`
	Toggles       map[string]bool    `json:"toggles"`
	Constants     Constants          `json:"constants"`
	SDMode        string             `json:"sd_mode"`
	FreshnessDays int                `json:"freshness_days"`
}

// ComputeHash returns the hex SHA-256 of the canonical JSON encoding of the
// config's hashed fields.
func ComputeHash(c *ScoringConfig) (string, error) {
	if c == nil {
		return "", fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	canon, err := Canonicalize(hashedFields{
		ModelVersion:  c.ModelVersion,
		Weights:       c.Weights,
		Toggles:       c.Toggles,
		Constants:     c.Constants,
		SDMode:        c.SDMode,
		FreshnessDays: c.FreshnessDays,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize encodes v as compact JSON with every mapping's keys sorted,
// recursively. Struct field order is erased by round-tripping through generic
// maps, which encoding/json always writes in key order.
func Canonicalize(v any) ([]byte, error) {
	first, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(first))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return out, nil
}
