package digest

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Size is the length in bytes of every supported digest
const Size = 32

// Algorithm names a hash function used for content digests
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// ErrUnknownAlgorithm is returned for algorithm names that are not supported
var ErrUnknownAlgorithm = errors.New("unknown digest algorithm")

// ErrMalformed is returned when an encoded digest cannot be decoded
var ErrMalformed = errors.New("malformed digest")

// Digest is a fixed-size content digest
type Digest [Size]byte

// ParseAlgorithm validates an algorithm name
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case SHA256, BLAKE3:
		return Algorithm(name), nil
	default:
		return "", fmt.Errorf("%w: %q (must be sha256 or blake3)", ErrUnknownAlgorithm, name)
	}
}

func (a Algorithm) newHash() (hash.Hash, error) {
	switch a {
	case SHA256, "":
		return sha256.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, string(a))
	}
}

// Sum computes the digest of data
func Sum(alg Algorithm, data []byte) (Digest, error) {
	h, err := alg.newHash()
	if err != nil {
		return Digest{}, err
	}
	_, _ = h.Write(data)

	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// HashFile streams the file at path through the hash function.
func HashFile(alg Algorithm, path string) (Digest, error) {
	h, err := alg.newHash()
	if err != nil {
		return Digest{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer func() {
		_ = f.Close()
	}()

	if _, err := io.Copy(h, f); err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// String returns the standard padded base64 encoding of the digest.
// This is the on-disk record format.
func (d Digest) String() string {
	return base64.StdEncoding.EncodeToString(d[:])
}

// Parse decodes the canonical base64 form produced by String. Anything else,
// including surrounding whitespace, is rejected.
func Parse(s string) (Digest, error) {
	var d Digest
	if len(s) != base64.StdEncoding.EncodedLen(Size) {
		return d, fmt.Errorf("%w: length %d, want %d", ErrMalformed, len(s), base64.StdEncoding.EncodedLen(Size))
	}

	decoded, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(decoded) != Size {
		return d, fmt.Errorf("%w: decoded %d bytes, want %d", ErrMalformed, len(decoded), Size)
	}

	copy(d[:], decoded)
	return d, nil
}
