package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/reductor/goldensync/internal/converter"
)

// FakeRunner implements converter.Runner without spawning processes. Args are
// expected in the converter's `-o <dest> <source>` form; on success it writes
// a small file at dest.
type FakeRunner struct {
	// Outcomes overrides the result for a given destination path
	Outcomes map[string]converter.Outcome
	// Delay is how long each call blocks before returning
	Delay time.Duration
	// NoOutput makes successful calls skip writing the destination
	NoOutput bool
	// OnCall runs before the outcome is decided
	OnCall func(dest, source string)

	mu          sync.Mutex
	calls       [][]string
	inFlight    int
	maxInFlight int
}

// Run records the call and returns the configured outcome
func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) converter.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if len(args) != 3 || args[0] != "-o" {
		return converter.Outcome{Started: true, ExitCode: 64, Err: fmt.Errorf("unexpected args %v", args)}
	}
	dest, source := args[1], args[2]

	if f.OnCall != nil {
		f.OnCall(dest, source)
	}

	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return converter.Outcome{Started: true, ExitCode: -1, Err: ctx.Err()}
		case <-time.After(f.Delay):
		}
	}

	if outcome, ok := f.Outcomes[dest]; ok {
		return outcome
	}

	if !f.NoOutput {
		if err := os.WriteFile(dest, []byte("converted "+source), 0644); err != nil {
			return converter.Outcome{Started: true, ExitCode: 1, Err: err}
		}
	}
	return converter.Outcome{Started: true}
}

// Calls returns a copy of every recorded invocation (name first)
func (f *FakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// MaxInFlight returns the highest number of concurrent calls observed
func (f *FakeRunner) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// ExitWith is an outcome for a tool that ran and exited with code
func ExitWith(code int, output string) converter.Outcome {
	return converter.Outcome{
		Started:  true,
		ExitCode: code,
		Output:   []byte(output),
		Err:      fmt.Errorf("exit status %d", code),
	}
}

// LaunchFailed is an outcome for a tool that could not be started
func LaunchFailed() converter.Outcome {
	return converter.Outcome{Started: false, ExitCode: -1, Err: errors.New("executable file not found in $PATH")}
}
