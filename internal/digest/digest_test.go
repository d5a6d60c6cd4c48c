package digest

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSum_SHA256MatchesStdlib(t *testing.T) {
	data := []byte("golden-test score bytes")

	got, err := Sum(SHA256, data)
	if err != nil {
		t.Fatal(err)
	}

	want := sha256.Sum256(data)
	if got != Digest(want) {
		t.Errorf("Sum = %x, want %x", got, want)
	}
}

func TestSum_Deterministic(t *testing.T) {
	for _, alg := range []Algorithm{SHA256, BLAKE3} {
		t.Run(string(alg), func(t *testing.T) {
			data := []byte("same bytes every time")

			first, err := Sum(alg, data)
			if err != nil {
				t.Fatal(err)
			}
			second, err := Sum(alg, data)
			if err != nil {
				t.Fatal(err)
			}
			if first != second {
				t.Errorf("digest not deterministic: %s != %s", first, second)
			}

			changed := append([]byte(nil), data...)
			changed[0] ^= 0x01
			third, err := Sum(alg, changed)
			if err != nil {
				t.Fatal(err)
			}
			if first == third {
				t.Error("one-byte change should change the digest")
			}
		})
	}
}

func TestSum_AlgorithmsDiffer(t *testing.T) {
	data := []byte("abc")
	a, _ := Sum(SHA256, data)
	b, _ := Sum(BLAKE3, data)
	if a == b {
		t.Error("sha256 and blake3 digests should differ")
	}
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "score.mscz")
	content := []byte("PK\x03\x04 pretend zip")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	for _, alg := range []Algorithm{SHA256, BLAKE3} {
		got, err := HashFile(alg, path)
		if err != nil {
			t.Fatalf("HashFile(%s): %v", alg, err)
		}
		want, _ := Sum(alg, content)
		if got != want {
			t.Errorf("HashFile(%s) = %s, want %s", alg, got, want)
		}
	}
}

func TestHashFile_Nonexistent(t *testing.T) {
	_, err := HashFile(SHA256, filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestStringMatchesBase64(t *testing.T) {
	sum := sha256.Sum256([]byte("x"))
	want := base64.StdEncoding.EncodeToString(sum[:])
	if got := Digest(sum).String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	d, _ := Sum(SHA256, []byte("round trip"))

	parsed, err := Parse(d.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed != d {
		t.Errorf("Parse(String()) = %s, want %s", parsed, d)
	}
}

func TestParse_Rejects(t *testing.T) {
	valid, _ := Sum(SHA256, []byte("v"))
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "trailing newline", input: valid.String() + "\n"},
		{name: "truncated", input: valid.String()[:20]},
		{name: "not base64", input: strings.Repeat("!", 44)},
		{name: "hex", input: strings.Repeat("ab", 32)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Parse(%q) error = %v, want ErrMalformed", tt.input, err)
			}
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	for _, name := range []string{"sha256", "blake3"} {
		if _, err := ParseAlgorithm(name); err != nil {
			t.Errorf("ParseAlgorithm(%q): %v", name, err)
		}
	}
	if _, err := ParseAlgorithm("md5"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("ParseAlgorithm(md5) error = %v, want ErrUnknownAlgorithm", err)
	}
}
