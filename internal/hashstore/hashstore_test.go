package hashstore

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/reductor/goldensync/internal/digest"
)

func testDigest(t *testing.T, content string) digest.Digest {
	t.Helper()
	d, err := digest.Sum(digest.SHA256, []byte(content))
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestLoad_Missing(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), ".golden.hash"))

	_, err := store.Load()
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load on missing record: got %v, want ErrNotFound", err)
	}
}

func TestStoreLoad_RoundTrip(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), ".golden.hash"))

	for _, content := range []string{"", "first", "second version"} {
		want := testDigest(t, content)
		if err := store.Store(want); err != nil {
			t.Fatalf("Store: %v", err)
		}

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got != want {
			t.Errorf("Load() = %s, want %s", got, want)
		}
	}
}

func TestStore_WritesBareEncoding(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".golden.hash")
	store := New(path)
	d := testDigest(t, "bare")

	if err := store.Store(d); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != d.String() {
		t.Errorf("record content = %q, want %q", data, d.String())
	}
}

func TestStore_CreatesParentAndLeavesNoTemp(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "resources")
	store := New(filepath.Join(dir, ".golden.hash"))

	if err := store.Store(testDigest(t, "x")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != ".golden.hash" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("unexpected directory contents: %v", names)
	}
}

func TestLoad_ReadsRecordFromOtherWriters(t *testing.T) {
	// Records produced by the original build script are the same bare base64.
	path := filepath.Join(t.TempDir(), ".golden.hash")
	d := testDigest(t, "compat")
	if err := os.WriteFile(path, []byte(d.String()), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := New(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != d {
		t.Errorf("Load() = %s, want %s", got, d)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	valid := testDigest(t, "v").String()
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "torn", content: valid[:17]},
		{name: "garbage", content: "not a digest at all"},
		{name: "trailing newline", content: valid + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ".golden.hash")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			_, err := New(path).Load()
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("Load: got %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestLoad_Unreadable(t *testing.T) {
	// A directory at the record path cannot be read as a file.
	path := filepath.Join(t.TempDir(), ".golden.hash")
	if err := os.Mkdir(path, 0755); err != nil {
		t.Fatal(err)
	}

	_, err := New(path).Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorrupt) {
		t.Errorf("unreadable record should be an I/O error, got %v", err)
	}
}

func TestStore_FailureKeepsPriorRecord(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("requires non-root unix permissions")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, ".golden.hash")
	store := New(path)
	prior := testDigest(t, "prior")
	if err := store.Store(prior); err != nil {
		t.Fatal(err)
	}

	if err := os.Chmod(dir, 0555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0755) })

	if err := store.Store(testDigest(t, "next")); err == nil {
		t.Fatal("expected Store to fail in read-only directory")
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != prior {
		t.Errorf("record changed after failed Store: %s, want %s", got, prior)
	}
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".golden.hash")
	store := New(path)

	if err := store.Remove(); err != nil {
		t.Fatalf("Remove on missing record: %v", err)
	}

	if err := store.Store(testDigest(t, "r")); err != nil {
		t.Fatal(err)
	}
	if err := store.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after Remove: got %v, want ErrNotFound", err)
	}
}
