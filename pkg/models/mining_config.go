package models

import (
	"fmt"

	"github.com/loomworks/loom-engine/pkg/apperrors"
)

// MiningConfig tunes pattern mining. Zero values are not meaningful;
// use DefaultMiningConfig and override fields as needed.
type MiningConfig struct {
	// SequenceWindowMs bounds how far forward a sequence walk may step.
	SequenceWindowMs int64 `json:"sequence_window_ms"`
	// MinFrequency drops clusters observed fewer times than this.
	MinFrequency int `json:"min_frequency"`
	// MinConfidence drops clusters below this anchor-relative ratio.
	MinConfidence float64 `json:"min_confidence"`
	// MaxEditDistance is the token edit-distance ceiling for two
	// sequences to land in the same cluster.
	MaxEditDistance int `json:"max_edit_distance"`
	// MaxSequenceLength caps extracted sequences, anchor included.
	MaxSequenceLength int `json:"max_sequence_length"`
}

// DefaultMiningConfig returns the documented defaults.
func DefaultMiningConfig() MiningConfig {
	return MiningConfig{
		SequenceWindowMs:  4 * 60 * 60 * 1000, // 4h
		MinFrequency:      3,
		MinConfidence:     0.3,
		MaxEditDistance:   2,
		MaxSequenceLength: 10,
	}
}

// Validate rejects malformed configs before any computation runs.
func (c MiningConfig) Validate() error {
	if c.SequenceWindowMs <= 0 {
		return fmt.Errorf("%w: sequence_window_ms must be positive, got %d", apperrors.ErrInvalidConfig, c.SequenceWindowMs)
	}
	if c.MinFrequency < 0 {
		return fmt.Errorf("%w: min_frequency must not be negative, got %d", apperrors.ErrInvalidConfig, c.MinFrequency)
	}
	if c.MinConfidence < 0 {
		return fmt.Errorf("%w: min_confidence must not be negative, got %f", apperrors.ErrInvalidConfig, c.MinConfidence)
	}
	if c.MaxEditDistance < 0 {
		return fmt.Errorf("%w: max_edit_distance must not be negative, got %d", apperrors.ErrInvalidConfig, c.MaxEditDistance)
	}
	if c.MaxSequenceLength < 2 {
		return fmt.Errorf("%w: max_sequence_length must be at least 2, got %d", apperrors.ErrInvalidConfig, c.MaxSequenceLength)
	}
	return nil
}
