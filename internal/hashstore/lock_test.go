package hashstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLock_Exclusive(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), ".golden.hash"))

	unlock, err := store.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if _, err := store.Lock(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Lock while held: got %v, want DeadlineExceeded", err)
	}

	if err := unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	unlock2, err := store.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	if err := unlock2(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
}

func TestLock_MissingDirectoryCreatesNothing(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "src", "test", "resources", ".golden.hash"))

	unlock, err := store.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "src")); !os.IsNotExist(err) {
		t.Errorf("Lock created the record directory, stat err = %v", err)
	}
}

func TestLock_CreatesSidecarFile(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), ".golden.hash"))

	unlock, err := store.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer func() { _ = unlock() }()

	if _, err := os.Stat(store.Path() + ".lock"); err != nil {
		t.Errorf("lock file missing: %v", err)
	}
}
