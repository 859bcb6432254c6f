// Package catalog defines the data model of the versioned catalog graph:
// immutable, content-addressed Catalog objects linked along the nested axis
// (parent to child subtree) and the history axis (root to previous-revision
// root), plus the TagHistory of named snapshots and the Fetcher port used to
// resolve hashes to objects. Parsing of on-disk catalog formats, repository
// manifest loading and network transport are not this package's concern;
// see pkg/fetcher for reference implementations of the Fetcher port.
package catalog

import (
	"encoding/hex"
	"fmt"
	"time"

	"lukechampine.com/blake3"
)

// Hash identifies a Catalog or TagHistory by content. Two objects with the
// same Hash are the same object.
type Hash [32]byte

// ZeroHash is the hash of no object; it is never a valid catalog identity.
var ZeroHash Hash

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// ParseHash decodes a hex-encoded hash string, as produced by String.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("catalog: invalid hash %q: %w", s, err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("catalog: invalid hash %q: want %d bytes, got %d", s, len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Ref is a pointer to a nested catalog: its hash and the mountpoint at which
// it is attached. The mountpoint always strictly extends the parent's.
type Ref struct {
	Hash       Hash
	Mountpoint string
}

// Catalog is an immutable, content-addressed unit of the repository's
// directory-and-file metadata. Root catalogs have an empty Mountpoint and,
// for every revision after the first, a PreviousRootHash.
type Catalog struct {
	Hash             Hash
	Revision         uint64
	Mountpoint       string
	Timestamp        time.Time
	PreviousRootHash *Hash
	Nested           []Ref
}

// IsRoot reports whether c is a root catalog (mountpoint "").
func (c *Catalog) IsRoot() bool {
	return c.Mountpoint == ""
}

// Snapshot names a (root hash, revision, timestamp) tuple recorded in a
// TagHistory.
type Snapshot struct {
	RootHash  Hash
	Revision  uint64
	Timestamp time.Time
	Label     string
}

// TagHistory is the immutable, content-addressed record of named snapshots.
type TagHistory struct {
	Hash      Hash
	Snapshots []Snapshot
}

// ComputeHash derives a Catalog's content hash from every field except Hash
// itself, so that two catalogs built with identical content always compare
// equal. memfetcher uses this to construct its fixture; no Fetcher
// re-verifies objects read back from storage with it, and it is not invoked
// by the traversal engine, which trusts whatever Hash a Fetcher hands it.
func ComputeHash(c *Catalog) Hash {
	h := blake3.New(32, nil)

	fmt.Fprintf(h, "rev:%d\x00mp:%s\x00ts:%d\x00", c.Revision, c.Mountpoint, c.Timestamp.UnixNano())
	if c.PreviousRootHash != nil {
		fmt.Fprintf(h, "prev:%s\x00", c.PreviousRootHash.String())
	}
	for _, ref := range c.Nested {
		fmt.Fprintf(h, "child:%s:%s\x00", ref.Hash.String(), ref.Mountpoint)
	}

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
