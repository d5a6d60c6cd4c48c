package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Status classifies the result of one conversion
type Status string

const (
	StatusOK            Status = "ok"
	StatusLaunchFailure Status = "launch-failure"
	StatusNonZeroExit   Status = "non-zero-exit"
	StatusTimedOut      Status = "timed-out"
	StatusCancelled     Status = "cancelled"
	StatusMissingOutput Status = "missing-output"
)

// Target pairs an output format with the path the converter writes to
type Target struct {
	Format string
	Path   string
}

// Result is the outcome of converting the source into one target
type Result struct {
	Target   Target
	Status   Status
	ExitCode int
	Output   string
	Duration time.Duration
	Err      error
}

// OK reports whether the target output is known consistent with the source
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Cause is a one-line description of why the conversion failed
func (r Result) Cause() string {
	switch r.Status {
	case StatusOK:
		return ""
	case StatusNonZeroExit:
		msg := fmt.Sprintf("exit code %d", r.ExitCode)
		if line := lastLine(r.Output); line != "" {
			msg += ": " + line
		}
		return msg
	default:
		if r.Err != nil {
			return r.Err.Error()
		}
		return string(r.Status)
	}
}

// Converter invokes the external tool as `<binary> -o <destination> <source>`
type Converter struct {
	binary  string
	runner  Runner
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a converter. A zero timeout disables the per-call limit.
func New(binary string, runner Runner, timeout time.Duration, logger *slog.Logger) *Converter {
	return &Converter{
		binary:  binary,
		runner:  runner,
		timeout: timeout,
		logger:  logger,
	}
}

// Args returns the command-line arguments for one conversion
func Args(source string, target Target) []string {
	return []string{"-o", target.Path, source}
}

// Convert runs one conversion. It never deletes an existing output; on
// failure whatever was at target.Path is left as it was.
func (c *Converter) Convert(ctx context.Context, source string, target Target) Result {
	result := Result{Target: target}

	if err := os.MkdirAll(filepath.Dir(target.Path), 0755); err != nil {
		result.Status = StatusLaunchFailure
		result.ExitCode = -1
		result.Err = fmt.Errorf("failed to create output directory: %w", err)
		return result
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.logger.Info("converting", "format", target.Format, "dest", target.Path)

	start := time.Now()
	outcome := c.runner.Run(callCtx, c.binary, Args(source, target)...)
	result.Duration = time.Since(start)
	result.ExitCode = outcome.ExitCode
	result.Output = string(outcome.Output)

	switch {
	case ctx.Err() != nil:
		result.Status = StatusCancelled
		result.Err = fmt.Errorf("conversion to %s cancelled: %w", target.Format, ctx.Err())
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		result.Status = StatusTimedOut
		result.Err = fmt.Errorf("conversion to %s timed out after %s", target.Format, c.timeout)
	case !outcome.Started:
		result.Status = StatusLaunchFailure
		result.Err = fmt.Errorf("failed to launch %s: %w", c.binary, outcome.Err)
	case outcome.ExitCode != 0:
		result.Status = StatusNonZeroExit
		result.Err = fmt.Errorf("%s exited with code %d", c.binary, outcome.ExitCode)
	default:
		if _, err := os.Stat(target.Path); err != nil {
			result.Status = StatusMissingOutput
			result.Err = fmt.Errorf("%s exited 0 but produced no output at %s", c.binary, target.Path)
		} else {
			result.Status = StatusOK
		}
	}

	if result.OK() {
		c.logger.Info("conversion finished", "format", target.Format, "duration", result.Duration)
	} else {
		c.logger.Error("conversion failed",
			"format", target.Format,
			"status", result.Status,
			"error", result.Err)
	}

	return result
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
