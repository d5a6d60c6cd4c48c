package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reductor/goldensync/internal/converter"
	"github.com/reductor/goldensync/internal/digest"
	"github.com/reductor/goldensync/internal/staleness"
)

// Outcome summarizes one pipeline run
type Outcome string

const (
	OutcomeSkipped        Outcome = "skipped"
	OutcomeSucceeded      Outcome = "succeeded"
	OutcomePartialFailure Outcome = "partial-failure"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeSourceChanged  Outcome = "source-changed"
)

// Records is the hash store as seen by the pipeline
type Records interface {
	staleness.Records
	Store(d digest.Digest) error
	Lock(ctx context.Context) (func() error, error)
}

// Converter performs one conversion
type Converter interface {
	Convert(ctx context.Context, source string, target converter.Target) converter.Result
}

// Options tunes a pipeline
type Options struct {
	// Concurrency bounds how many conversions run at once; values below 1 mean 1
	Concurrency int
	// DryRun reports what would be converted without running anything
	DryRun bool
}

// Result is the outcome of Run
type Result struct {
	Outcome       Outcome
	Verdict       staleness.Verdict
	Results       []converter.Result
	Committed     bool
	Digest        digest.Digest
	Duration      time.Duration
	SourceMissing bool
	DryRun        bool
}

// Failed returns the results of every target that did not succeed, in target order
func (r *Result) Failed() []converter.Result {
	var failed []converter.Result
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Pipeline regenerates every target when the source is stale and commits
// the new digest only when all of them succeeded.
type Pipeline struct {
	oracle    *staleness.Oracle
	records   Records
	converter Converter
	opts      Options
	logger    *slog.Logger
}

// New creates a pipeline
func New(oracle *staleness.Oracle, records Records, conv Converter, opts Options, logger *slog.Logger) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Pipeline{
		oracle:    oracle,
		records:   records,
		converter: conv,
		opts:      opts,
		logger:    logger,
	}
}

// Run executes one regeneration.
//
// The committed digest is the one computed before the conversions. The source
// is hashed again after the fan-out; if it changed meanwhile the outputs may
// mix two versions, so nothing is committed and the outcome is
// OutcomeSourceChanged.
//
// A returned error means an I/O failure on the hash record (or the source);
// conversion failures are reported in the Result instead.
func (p *Pipeline) Run(ctx context.Context, source string, targets []converter.Target) (*Result, error) {
	start := time.Now()
	result := &Result{}
	defer func() { result.Duration = time.Since(start) }()

	// The first check runs unlocked so a skipped run touches nothing on disk.
	verdict, err := p.check(result, source)
	if err != nil {
		return nil, err
	}
	if !verdict.Stale {
		p.skip(result, source)
		return result, nil
	}

	p.logger.Info("source changed, regenerating outputs",
		"source", source,
		"digest", verdict.Current.String(),
		"targets", len(targets),
		"concurrency", p.opts.Concurrency,
		"dry_run", p.opts.DryRun)

	if p.opts.DryRun {
		for _, target := range targets {
			p.logger.Info("[dry-run] would convert", "format", target.Format, "dest", target.Path)
		}
		result.Outcome = OutcomeSkipped
		result.DryRun = true
		return result, nil
	}

	unlock, err := p.records.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lock hash record: %w", err)
	}
	defer func() {
		if err := unlock(); err != nil {
			p.logger.Warn("failed to release hash record lock", "error", err)
		}
	}()

	// Another runner may have committed while this one waited for the lock.
	verdict, err = p.check(result, source)
	if err != nil {
		return nil, err
	}
	if !verdict.Stale {
		p.skip(result, source)
		return result, nil
	}

	// Phase one: every conversion runs to completion before anything is decided.
	result.Results = p.fanOut(ctx, source, targets)

	// Phase two: the commit depends on how the fan-out went, not just on it finishing.
	switch {
	case ctx.Err() != nil:
		p.logger.Warn("run cancelled, hash record left unchanged")
		result.Outcome = OutcomeCancelled
		return result, nil
	case !allSucceeded(result.Results):
		p.logger.Error("some conversions failed, hash record left unchanged",
			"failed", len(result.Failed()),
			"total", len(result.Results))
		result.Outcome = OutcomePartialFailure
		return result, nil
	}

	after, err := digest.HashFile(p.oracle.Algorithm(), source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("source removed during regeneration, hash record left unchanged")
			result.Outcome = OutcomeSourceChanged
			return result, nil
		}
		return result, fmt.Errorf("failed to rehash source asset: %w", err)
	}
	if after != verdict.Current {
		p.logger.Warn("source changed during regeneration, hash record left unchanged",
			"before", verdict.Current.String(),
			"after", after.String())
		result.Outcome = OutcomeSourceChanged
		return result, nil
	}

	if err := p.records.Store(verdict.Current); err != nil {
		return result, fmt.Errorf("failed to commit hash record: %w", err)
	}
	result.Committed = true
	result.Digest = verdict.Current
	result.Outcome = OutcomeSucceeded

	p.logger.Info("all outputs regenerated, hash record updated", "digest", verdict.Current.String())
	return result, nil
}

func (p *Pipeline) check(result *Result, source string) (staleness.Verdict, error) {
	verdict, err := p.oracle.Check(source)
	if err != nil {
		return verdict, fmt.Errorf("failed to check staleness: %w", err)
	}
	result.Verdict = verdict
	result.SourceMissing = verdict.SourceMissing
	return verdict, nil
}

func (p *Pipeline) skip(result *Result, source string) {
	p.logger.Info("outputs are up to date, skipping", "source", source)
	result.Outcome = OutcomeSkipped
}

// fanOut converts every target on a bounded pool and waits for all of them.
// Results are returned in target order.
func (p *Pipeline) fanOut(ctx context.Context, source string, targets []converter.Target) []converter.Result {
	results := make([]converter.Result, len(targets))

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, target := range targets {
		g.Go(func() error {
			results[i] = p.converter.Convert(ctx, source, target)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	return results
}

func allSucceeded(results []converter.Result) bool {
	for _, res := range results {
		if !res.OK() {
			return false
		}
	}
	return true
}
