//go:build integration

package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reductor/goldensync/internal/testutil"
)

const defaultTimeout = 2 * time.Minute

// fakeMscore stands in for the notation editor. It honors the
// `-o <dest> <source>` contract, appends every call to $FAKE_MSCORE_LOG, and
// fails for destinations whose extension matches $FAKE_MSCORE_FAIL.
const fakeMscore = `#!/bin/sh
[ "$1" = "-o" ] || { echo "usage: mscore -o <dest> <source>" >&2; exit 64; }
dest="$2"
src="$3"
echo "$(date -u +%Y-%m-%dT%H:%M:%SZ) $dest $src" >> "$FAKE_MSCORE_LOG"
case "$dest" in
  *"$FAKE_MSCORE_FAIL")
    if [ -n "$FAKE_MSCORE_FAIL" ]; then
      echo "cannot export $dest" >&2
      exit 1
    fi
    ;;
esac
cat "$src" > "$dest"
`

// Harness builds the goldensync binary and runs it against a throwaway project
type Harness struct {
	t       *testing.T
	binary  string
	dir     string
	config  string
	shimLog string
	failExt string
}

// ShimLogEntry is one recorded converter invocation
type ShimLogEntry struct {
	Timestamp string
	Dest      string
	Source    string
}

// NewHarness builds the CLI and lays out a project with the default resource dir
func NewHarness(ctx context.Context, t *testing.T) *Harness {
	t.Helper()
	dir := t.TempDir()
	h := &Harness{
		t:       t,
		binary:  filepath.Join(dir, "bin", "goldensync"),
		dir:     dir,
		config:  filepath.Join(dir, "goldensync.yaml"),
		shimLog: filepath.Join(dir, "mscore.log"),
	}

	root, err := testutil.FindProjectRoot()
	if err != nil {
		t.Fatalf("find project root: %v", err)
	}

	build := exec.CommandContext(ctx, "go", "build", "-o", h.binary, "./cmd/goldensync")
	build.Dir = root
	build.Stdout = &testWriter{t: t, prefix: "[build] "}
	build.Stderr = &testWriter{t: t, prefix: "[build] "}
	if err := build.Run(); err != nil {
		t.Fatalf("go build: %v", err)
	}

	tool := filepath.Join(dir, "bin", "mscore")
	testutil.WriteFile(t, tool, fakeMscore)
	if err := os.Chmod(tool, 0755); err != nil {
		t.Fatal(err)
	}

	testutil.WriteFile(t, h.config, fmt.Sprintf(`paths:
  root: %q
converter:
  binary: %q
  timeout: "30s"
sync:
  concurrency: 2
`, dir, tool))

	return h
}

// ResourcePath returns a path inside src/test/resources
func (h *Harness) ResourcePath(name string) string {
	return filepath.Join(h.dir, "src", "test", "resources", name)
}

// FailExtension makes the fake converter fail for outputs ending in ext ("" to disable)
func (h *Harness) FailExtension(ext string) {
	h.failExt = ext
}

// Run executes goldensync with args and returns stdout, stderr and the exit code
func (h *Harness) Run(ctx context.Context, args ...string) (string, string, int) {
	h.t.Helper()
	cmd := exec.CommandContext(ctx, h.binary, append([]string{"--config", h.config}, args...)...)
	cmd.Env = append(os.Environ(),
		"FAKE_MSCORE_LOG="+h.shimLog,
		"FAKE_MSCORE_FAIL="+h.failExt,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			h.t.Fatalf("exec failed: %v", err)
		}
	}

	return stdout.String(), stderr.String(), exitCode
}

// MustRun executes goldensync and fails the test on a non-zero exit
func (h *Harness) MustRun(ctx context.Context, args ...string) string {
	h.t.Helper()
	stdout, stderr, code := h.Run(ctx, args...)
	if code != 0 {
		h.t.Fatalf("goldensync %v exited %d\nstdout: %s\nstderr: %s", args, code, stdout, stderr)
	}
	return stdout
}

// ReadShimLog parses the fake converter's call log
func (h *Harness) ReadShimLog() []ShimLogEntry {
	h.t.Helper()
	content, ok := testutil.ReadFile(h.t, h.shimLog)
	if !ok {
		return nil
	}

	var entries []ShimLogEntry
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		// Parse: "2024-01-01T12:00:00Z <dest> <source>"
		parts := strings.Fields(scanner.Text())
		if len(parts) != 3 {
			continue
		}
		entries = append(entries, ShimLogEntry{Timestamp: parts[0], Dest: parts[1], Source: parts[2]})
	}
	if err := scanner.Err(); err != nil {
		h.t.Fatalf("read shim log: %v", err)
	}
	return entries
}

// ClearShimLog truncates the fake converter's call log
func (h *Harness) ClearShimLog() {
	h.t.Helper()
	if err := os.Remove(h.shimLog); err != nil && !os.IsNotExist(err) {
		h.t.Fatal(err)
	}
}

// testWriter forwards command output to the test log
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		w.t.Log(w.prefix + line)
	}
	return len(p), nil
}
