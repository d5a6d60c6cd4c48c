package converter

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// defaultWaitDelay bounds how long Run waits for the output pipes to close
// after the process was killed or exited
const defaultWaitDelay = 5 * time.Second

// Outcome is the result of spawning one external process
type Outcome struct {
	// Started is false when the process could not be launched at all
	Started  bool
	ExitCode int
	Output   []byte
	Err      error
}

// Runner spawns an external process and reports how it exited
type Runner interface {
	Run(ctx context.Context, name string, args ...string) Outcome
}

// ExecRunner implements Runner with os/exec
type ExecRunner struct {
	// WaitDelay is applied to every command. Children of the tool that keep
	// the output pipe open are cut off after it.
	WaitDelay time.Duration
}

// NewExecRunner creates a runner that spawns real processes
func NewExecRunner() *ExecRunner {
	return &ExecRunner{WaitDelay: defaultWaitDelay}
}

// Run executes name with args and captures combined stdout and stderr.
// The process is killed when ctx is done.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) Outcome {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = r.WaitDelay
	output, err := cmd.CombinedOutput()
	if err == nil {
		return Outcome{Started: true, Output: output}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Outcome{
			Started:  true,
			ExitCode: exitErr.ExitCode(),
			Output:   output,
			Err:      err,
		}
	}

	return Outcome{Started: false, ExitCode: -1, Output: output, Err: err}
}
