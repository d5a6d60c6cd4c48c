package staleness

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/reductor/goldensync/internal/digest"
	"github.com/reductor/goldensync/internal/hashstore"
)

// Records is the subset of the hash store the oracle reads
type Records interface {
	Load() (digest.Digest, error)
}

// Verdict is the outcome of a staleness check
type Verdict struct {
	Stale         bool
	SourceMissing bool
	HasRecord     bool
	Current       digest.Digest
	Recorded      digest.Digest
}

// Oracle decides whether the derived artifacts need regenerating
type Oracle struct {
	records   Records
	algorithm digest.Algorithm
	logger    *slog.Logger
}

// NewOracle creates an oracle comparing against records
func NewOracle(records Records, algorithm digest.Algorithm, logger *slog.Logger) *Oracle {
	return &Oracle{
		records:   records,
		algorithm: algorithm,
		logger:    logger,
	}
}

// Algorithm returns the digest algorithm in use
func (o *Oracle) Algorithm() digest.Algorithm {
	return o.algorithm
}

// Check hashes the source and compares it with the persisted record.
//
// A missing source is not stale: there is nothing to regenerate from. A
// missing or corrupt record is stale. Any error reading the record is
// returned, since staleness cannot be determined.
func (o *Oracle) Check(source string) (Verdict, error) {
	current, err := digest.HashFile(o.algorithm, source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			o.logger.Info("source asset not found, nothing to regenerate", "source", source)
			return Verdict{SourceMissing: true}, nil
		}
		return Verdict{}, fmt.Errorf("failed to hash source asset: %w", err)
	}

	verdict := Verdict{Current: current}

	recorded, err := o.records.Load()
	switch {
	case err == nil:
		verdict.HasRecord = true
		verdict.Recorded = recorded
		verdict.Stale = recorded.String() != current.String()
	case errors.Is(err, hashstore.ErrNotFound):
		o.logger.Debug("no hash record, treating as first run")
		verdict.Stale = true
	case errors.Is(err, hashstore.ErrCorrupt):
		o.logger.Warn("hash record is corrupt, treating as stale", "error", err)
		verdict.Stale = true
	default:
		return Verdict{}, err
	}

	o.logger.Debug("staleness check",
		"source", source,
		"current", current.String(),
		"has_record", verdict.HasRecord,
		"stale", verdict.Stale)

	return verdict, nil
}

// IsStale reports only whether regeneration is needed
func (o *Oracle) IsStale(source string) (bool, error) {
	v, err := o.Check(source)
	if err != nil {
		return false, err
	}
	return v.Stale, nil
}
