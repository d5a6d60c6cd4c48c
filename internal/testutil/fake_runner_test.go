package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/reductor/goldensync/internal/converter"
)

func TestFakeRunner_WritesDestination(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.pdf")
	runner := &FakeRunner{}

	outcome := runner.Run(context.Background(), "mscore", "-o", dest, "in.mscz")
	if !outcome.Started || outcome.ExitCode != 0 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if _, ok := ReadFile(t, dest); !ok {
		t.Error("destination not written")
	}
	if calls := runner.Calls(); len(calls) != 1 || calls[0][0] != "mscore" {
		t.Errorf("calls = %v", calls)
	}
}

func TestFakeRunner_Override(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.png")
	runner := &FakeRunner{Outcomes: map[string]converter.Outcome{dest: ExitWith(3, "boom")}}

	outcome := runner.Run(context.Background(), "mscore", "-o", dest, "in.mscz")
	if outcome.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", outcome.ExitCode)
	}
	if _, ok := ReadFile(t, dest); ok {
		t.Error("failed call should not write output")
	}
}

func TestFakeRunner_DelayHonorsContext(t *testing.T) {
	runner := &FakeRunner{Delay: time.Minute}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	outcome := runner.Run(ctx, "mscore", "-o", filepath.Join(t.TempDir(), "x"), "in")
	if outcome.Err == nil {
		t.Error("expected context error")
	}
}
