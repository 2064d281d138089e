// Package ed2k computes eDonkey2000 file hashes, the identity the catalog
// uses for files.
//
// A file is split into chunks of ChunkSize bytes, each hashed with MD4. A file
// of at most one chunk hashes to that chunk's digest; a longer one to the MD4
// of the concatenated chunk digests.
package ed2k

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"golang.org/x/crypto/md4"
)

const (
	ChunkSize = 9728000
	Size      = md4.Size
)

type digest struct {
	leaf   hash.Hash
	filled int
	leaves []byte
}

// New returns a streaming ed2k hash.
func New() hash.Hash {
	return &digest{leaf: md4.New()}
}

func (d *digest) Write(p []byte) (int, error) {
	n := len(p)

	for len(p) > 0 {
		take := ChunkSize - d.filled
		if take > len(p) {
			take = len(p)
		}

		d.leaf.Write(p[:take])
		d.filled += take
		p = p[take:]

		if d.filled == ChunkSize {
			d.leaves = d.leaf.Sum(d.leaves)
			d.leaf.Reset()
			d.filled = 0
		}
	}

	return n, nil
}

func (d *digest) Sum(b []byte) []byte {
	leaves := d.leaves
	if d.filled > 0 || len(leaves) == 0 {
		leaves = d.leaf.Sum(append([]byte(nil), leaves...))
	}

	if len(leaves) == Size {
		return append(b, leaves...)
	}

	root := md4.New()
	root.Write(leaves)
	return root.Sum(b)
}

func (d *digest) Reset() {
	d.leaf.Reset()
	d.filled = 0
	d.leaves = d.leaves[:0]
}

func (d *digest) Size() int {
	return Size
}

func (d *digest) BlockSize() int {
	return d.leaf.BlockSize()
}

// Hash reads r to the end and returns its hex encoded hash and length.
func Hash(r io.Reader) (string, int64, error) {
	h := New()

	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// File hashes the file at path.
func File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}

	defer f.Close()

	sum, size, err := Hash(f)
	if err != nil {
		return "", 0, fmt.Errorf("Failed to hash %s: %w", path, err)
	}

	return sum, size, nil
}

// Link formats an ed2k:// file link.
func Link(name string, size int64, sum string) string {
	return fmt.Sprintf("ed2k://|file|%s|%d|%s|/", name, size, sum)
}
