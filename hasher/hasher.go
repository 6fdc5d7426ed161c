// Package hasher turns file content into fixed-width hex digests.
// Digests depend on content bytes only, never on names or metadata.
package hasher

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"syscall"

	"github.com/pkg/errors"
	. "github.com/stevegt/goadapt"
	"github.com/zeebo/blake3"
)

// DefaultAlgo is used when a repository doesn't name one.
const DefaultAlgo = "sha256"

// Hasher computes digests with a single algorithm.
type Hasher struct {
	Algo string
	mk   func() hash.Hash
}

// New returns a Hasher for algo.  Unknown algorithms return ENOSYS.
func New(algo string) (h Hasher, err error) {
	if algo == "" {
		algo = DefaultAlgo
	}
	h.Algo = algo
	switch algo {
	case "sha256":
		h.mk = sha256.New
	case "sha512":
		h.mk = sha512.New
	case "blake3":
		h.mk = func() hash.Hash { return blake3.New() }
	default:
		return h, fmt.Errorf("%w: %s", syscall.ENOSYS, algo)
	}
	return
}

// Algos lists the supported algorithm names.
func Algos() []string {
	return []string{"blake3", "sha256", "sha512"}
}

// Sum returns the hex digest of buf.
func (h Hasher) Sum(buf []byte) string {
	Assert(h.mk != nil, "hasher not initialized")
	d := h.mk()
	// hash.Hash.Write never returns an error
	d.Write(buf)
	return bin2hex(d.Sum(nil))
}

// SumReader streams rd through the hash and returns the hex digest.
func (h Hasher) SumReader(rd io.Reader) (hexhash string, err error) {
	Assert(h.mk != nil, "hasher not initialized")
	d := h.mk()
	_, err = io.Copy(d, rd)
	if err != nil {
		return "", errors.Wrapf(err, "%s", h.Algo)
	}
	return bin2hex(d.Sum(nil)), nil
}

// Width is the length of a hex digest produced by h.
func (h Hasher) Width() int {
	Assert(h.mk != nil, "hasher not initialized")
	return h.mk().Size() * 2
}

// Valid reports whether s looks like a digest from h.
func (h Hasher) Valid(s string) bool {
	if len(s) != h.Width() {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func bin2hex(buf []byte) string {
	return hex.EncodeToString(buf)
}
