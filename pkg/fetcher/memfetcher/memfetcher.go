// Package memfetcher is an in-memory reference implementation of
// catalog.Fetcher, built around a fixed six-revision dataset whose topology
// mirrors a real versioned repository closely enough to exercise every
// traversal property: branch reuse across revisions, a removed branch at
// the repository HEAD, and named snapshots at non-contiguous revisions.
// It exists for tests; production fetchers live under pkg/fetcher/badgerfetcher.
package memfetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/i5heu/catgraph/pkg/catalog"
)

// Fetcher serves catalogs out of an in-memory Fixture. It is safe for
// concurrent use: Delete and FetchCatalog may be called from multiple
// goroutines, matching the concurrency contract catalog.Fetcher documents.
type Fetcher struct {
	mu       sync.RWMutex
	catalogs map[catalog.Hash]*catalog.Catalog
	head     catalog.Hash
	history  *catalog.TagHistory
	deleted  map[catalog.Hash]bool

	fetchCount int
}

// New wraps a Fixture in a Fetcher.
func New(f *Fixture) *Fetcher {
	return &Fetcher{
		catalogs: f.Catalogs,
		head:     f.Head,
		history:  f.TagHistory,
		deleted:  make(map[catalog.Hash]bool),
	}
}

// Delete marks hash as unavailable: subsequent fetches of it fail with a
// catalog.NotFoundError, simulating an object that has been garbage
// collected out from under a running traversal.
func (f *Fetcher) Delete(hash catalog.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[hash] = true
}

// FetchCount reports how many times FetchCatalog has returned successfully.
func (f *Fetcher) FetchCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.fetchCount
}

func (f *Fetcher) FetchManifest(ctx context.Context) (catalog.Hash, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.head, nil
}

func (f *Fetcher) FetchTagHistory(ctx context.Context) (*catalog.TagHistory, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.history == nil {
		return nil, catalog.ErrTagHistoryUnavailable
	}
	return f.history, nil
}

func (f *Fetcher) FetchCatalog(ctx context.Context, hash catalog.Hash, expectedMountpoint string) (*catalog.Catalog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleted[hash] {
		return nil, &catalog.NotFoundError{Hash: hash}
	}
	c, ok := f.catalogs[hash]
	if !ok {
		return nil, &catalog.NotFoundError{Hash: hash}
	}
	if expectedMountpoint != "" && c.Mountpoint != expectedMountpoint {
		return nil, fmt.Errorf("memfetcher: mountpoint mismatch for %s: want %q, got %q", hash, expectedMountpoint, c.Mountpoint)
	}
	f.fetchCount++
	return c, nil
}

// Fixture is a self-contained dataset: every catalog reachable from Head,
// indexed by hash, plus the per-revision root index and tag history that a
// Fetcher built over it will serve.
type Fixture struct {
	Catalogs      map[catalog.Hash]*catalog.Catalog
	RevisionRoots map[uint64]catalog.Hash
	Head          catalog.Hash
	TagHistory    *catalog.TagHistory
}

// RootHash returns the root hash of revision, panicking if revision was
// never built. Test helpers use this to assert against specific revisions.
func (f *Fixture) RootHash(revision uint64) catalog.Hash {
	h, ok := f.RevisionRoots[revision]
	if !ok {
		panic(fmt.Sprintf("memfetcher: no such revision %d", revision))
	}
	return h
}

// HashAt returns the hash of the catalog at mountpoint within revision's
// tree, or panics if no such catalog exists in the fixture. Mountpoint ""
// means the revision's own root.
func (f *Fixture) HashAt(revision uint64, mountpoint string) catalog.Hash {
	for hash, c := range f.Catalogs {
		if c.Mountpoint == mountpoint && reachesFromRevision(f, revision, hash) {
			return hash
		}
	}
	panic(fmt.Sprintf("memfetcher: no catalog at %q reachable from revision %d", mountpoint, revision))
}

func reachesFromRevision(f *Fixture, revision uint64, target catalog.Hash) bool {
	root, ok := f.RevisionRoots[revision]
	if !ok {
		return false
	}
	seen := map[catalog.Hash]bool{}
	var stack []catalog.Hash
	stack = append(stack, root)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[h] {
			continue
		}
		seen[h] = true
		if h == target {
			return true
		}
		c := f.Catalogs[h]
		if c == nil {
			continue
		}
		for _, ref := range c.Nested {
			stack = append(stack, ref.Hash)
		}
	}
	return false
}

func date(day, month, year int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// BuildSixRevisionFixture constructs the reference dataset used by
// pkg/traversal's scenario tests:
//
//	revision 1: root only
//	revision 2: adds branch /00/10
//	revision 3: adds branch /00/11, reuses /00/10 from revision 2
//	revision 4: adds branch /00/12, recreates branch /00/11, reuses /00/10
//	revision 5: adds branch /00/13, reuses /00/10, /00/11 (rev 4), /00/12 (rev 4)
//	revision 6: removes branch /00/10; keeps /00/11, /00/12 (rev 4), /00/13 (rev 5)
//
// giving 42 distinct catalog objects in total, 21 reachable from revision 6
// alone, and named snapshots at revisions 2, 5 and 6.
func BuildSixRevisionFixture() *Fixture {
	f := &Fixture{Catalogs: make(map[catalog.Hash]*catalog.Catalog)}

	put := func(c *catalog.Catalog) *catalog.Catalog {
		c.Hash = catalog.ComputeHash(c)
		f.Catalogs[c.Hash] = c
		return c
	}
	leaf := func(mountpoint string, revision uint64, ts time.Time) *catalog.Catalog {
		return put(&catalog.Catalog{Revision: revision, Mountpoint: mountpoint, Timestamp: ts})
	}
	node := func(mountpoint string, revision uint64, ts time.Time, children ...*catalog.Catalog) *catalog.Catalog {
		refs := make([]catalog.Ref, len(children))
		for i, ch := range children {
			refs[i] = catalog.Ref{Hash: ch.Hash, Mountpoint: ch.Mountpoint}
		}
		return put(&catalog.Catalog{Revision: revision, Mountpoint: mountpoint, Timestamp: ts, Nested: refs})
	}
	root := func(revision uint64, ts time.Time, prev *catalog.Hash, children ...*catalog.Catalog) *catalog.Catalog {
		refs := make([]catalog.Ref, len(children))
		for i, ch := range children {
			refs[i] = catalog.Ref{Hash: ch.Hash, Mountpoint: ch.Mountpoint}
		}
		return put(&catalog.Catalog{Revision: revision, Mountpoint: "", Timestamp: ts, PreviousRootHash: prev, Nested: refs})
	}

	sec := time.Second

	branch10 := func(revision uint64, rootTS time.Time) *catalog.Catalog {
		l40 := leaf("/00/10/20/30/40", revision, rootTS.Add(7*sec))
		n30 := node("/00/10/20/30", revision, rootTS.Add(4*sec), l40)
		l31 := leaf("/00/10/20/31", revision, rootTS.Add(5*sec))
		l32 := leaf("/00/10/20/32", revision, rootTS.Add(6*sec))
		n20 := node("/00/10/20", revision, rootTS.Add(2*sec), n30, l31, l32)
		l21 := leaf("/00/10/21", revision, rootTS.Add(3*sec))
		return node("/00/10", revision, rootTS.Add(1*sec), n20, l21)
	}
	branch11 := func(revision uint64, rootTS time.Time) *catalog.Catalog {
		l41 := leaf("/00/11/22/34/41", revision, rootTS.Add(14*sec))
		l42 := leaf("/00/11/22/34/42", revision, rootTS.Add(15*sec))
		l43 := leaf("/00/11/22/34/43", revision, rootTS.Add(16*sec))
		n34 := node("/00/11/22/34", revision, rootTS.Add(13*sec), l41, l42, l43)
		l33 := leaf("/00/11/22/33", revision, rootTS.Add(12*sec))
		n22 := node("/00/11/22", revision, rootTS.Add(9*sec), l33, n34)
		l23 := leaf("/00/11/23", revision, rootTS.Add(10*sec))
		l24 := leaf("/00/11/24", revision, rootTS.Add(11*sec))
		return node("/00/11", revision, rootTS.Add(8*sec), n22, l23, l24)
	}
	branch12 := func(revision uint64, rootTS time.Time) *catalog.Catalog {
		l25 := leaf("/00/12/25", revision, rootTS.Add(28*sec))
		l35 := leaf("/00/12/26/35", revision, rootTS.Add(21*sec))
		l36 := leaf("/00/12/26/36", revision, rootTS.Add(22*sec))
		l37 := leaf("/00/12/26/37", revision, rootTS.Add(23*sec))
		l38 := leaf("/00/12/26/38", revision, rootTS.Add(24*sec))
		n26 := node("/00/12/26", revision, rootTS.Add(19*sec), l35, l36, l37, l38)
		l27 := leaf("/00/12/27", revision, rootTS.Add(20*sec))
		return node("/00/12", revision, rootTS.Add(17*sec), l25, n26, l27)
	}
	branch13 := func(revision uint64, rootTS time.Time) *catalog.Catalog {
		l28 := leaf("/00/13/28", revision, rootTS.Add(26*sec))
		l29 := leaf("/00/13/29", revision, rootTS.Add(27*sec))
		return node("/00/13", revision, rootTS.Add(25*sec), l28, l29)
	}

	ts1 := date(27, 11, 1987)
	ts2 := date(24, 12, 2004)
	ts3 := date(6, 3, 2009)
	ts4 := date(18, 7, 2010)
	ts5 := date(16, 11, 2014)
	ts6 := date(17, 11, 2014)

	r1 := root(1, ts1, nil)

	b10at2 := branch10(2, ts2)
	r2 := root(2, ts2, &r1.Hash, b10at2)

	b11at3 := branch11(3, ts3)
	r3 := root(3, ts3, &r2.Hash, b11at3, b10at2)

	b12at4 := branch12(4, ts4)
	b11at4 := branch11(4, ts4)
	r4 := root(4, ts4, &r3.Hash, b12at4, b11at4, b10at2)

	b13at5 := branch13(5, ts5)
	r5 := root(5, ts5, &r4.Hash, b13at5, b10at2, b11at4, b12at4)

	r6 := root(6, ts6, &r5.Hash, b11at4, b12at4, b13at5)

	f.RevisionRoots = map[uint64]catalog.Hash{
		1: r1.Hash, 2: r2.Hash, 3: r3.Hash, 4: r4.Hash, 5: r5.Hash, 6: r6.Hash,
	}
	f.Head = r6.Hash
	f.TagHistory = &catalog.TagHistory{
		Snapshots: []catalog.Snapshot{
			{RootHash: r2.Hash, Revision: 2, Timestamp: ts2, Label: "Revision2"},
			{RootHash: r5.Hash, Revision: 5, Timestamp: ts5, Label: "Revision5"},
			{RootHash: r6.Hash, Revision: 6, Timestamp: ts6, Label: "Revision6"},
		},
	}
	return f
}
