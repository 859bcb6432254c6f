package badgerfetcher_test

import (
	"context"
	"testing"
	"time"

	"github.com/i5heu/catgraph/pkg/catalog"
	"github.com/i5heu/catgraph/pkg/fetcher/badgerfetcher"
	"github.com/i5heu/catgraph/pkg/fetcher/memfetcher"
	"github.com/i5heu/catgraph/pkg/traversal"
	"github.com/stretchr/testify/require"
)

func openFetcher(t *testing.T) *badgerfetcher.Fetcher {
	t.Helper()
	f, err := badgerfetcher.Open(badgerfetcher.Options{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, f.Close()) })
	return f
}

func TestCatalogPutFetchRoundTrip(t *testing.T) {
	f := openFetcher(t)
	ctx := context.Background()

	c := &catalog.Catalog{
		Revision:   1,
		Mountpoint: "/00/10",
		Timestamp:  time.Date(2009, 3, 6, 0, 0, 0, 0, time.UTC),
		Nested: []catalog.Ref{
			{Hash: catalog.Hash{1}, Mountpoint: "/00/10/20"},
		},
	}
	c.Hash = catalog.ComputeHash(c)

	require.NoError(t, f.PutCatalog(ctx, c))

	got, err := f.FetchCatalog(ctx, c.Hash, "/00/10")
	require.NoError(t, err)
	require.Equal(t, c.Hash, got.Hash)
	require.Equal(t, c.Mountpoint, got.Mountpoint)
	require.Equal(t, c.Nested, got.Nested)
	require.True(t, c.Timestamp.Equal(got.Timestamp))
}

func TestFetchCatalogMissingReturnsNotFound(t *testing.T) {
	f := openFetcher(t)
	_, err := f.FetchCatalog(context.Background(), catalog.Hash{42}, "")
	require.Error(t, err)
	require.True(t, catalog.IsNotFound(err))
}

func TestFetchCatalogMountpointMismatch(t *testing.T) {
	f := openFetcher(t)
	ctx := context.Background()

	c := &catalog.Catalog{Revision: 1, Mountpoint: "/00/10", Timestamp: time.Now()}
	c.Hash = catalog.ComputeHash(c)
	require.NoError(t, f.PutCatalog(ctx, c))

	_, err := f.FetchCatalog(ctx, c.Hash, "/00/99")
	require.Error(t, err)
	require.False(t, catalog.IsNotFound(err))
}

func TestManifestRoundTrip(t *testing.T) {
	f := openFetcher(t)
	ctx := context.Background()

	_, err := f.FetchManifest(ctx)
	require.ErrorIs(t, err, catalog.ErrManifestUnavailable)

	head := catalog.Hash{9}
	require.NoError(t, f.PutManifest(ctx, head))

	got, err := f.FetchManifest(ctx)
	require.NoError(t, err)
	require.Equal(t, head, got)
}

func TestTagHistoryRoundTrip(t *testing.T) {
	f := openFetcher(t)
	ctx := context.Background()

	_, err := f.FetchTagHistory(ctx)
	require.ErrorIs(t, err, catalog.ErrTagHistoryUnavailable)

	h := &catalog.TagHistory{
		Snapshots: []catalog.Snapshot{
			{RootHash: catalog.Hash{1}, Revision: 2, Timestamp: time.Now(), Label: "Revision2"},
		},
	}
	h.Hash = catalog.Hash{123}
	require.NoError(t, f.PutTagHistory(ctx, h))

	got, err := f.FetchTagHistory(ctx)
	require.NoError(t, err)
	require.Equal(t, h.Hash, got.Hash)
	require.Len(t, got.Snapshots, 1)
	require.Equal(t, h.Snapshots[0].Label, got.Snapshots[0].Label)
}

// TestTraversalOverBadgerMirrorsFixture loads the same six-revision dataset
// memfetcher builds in memory into a Badger store and checks that a default
// traversal against the disk-backed Fetcher visits the same number of
// catalogs (21) as the in-memory one, end to end through the real
// compression and wire codec.
func TestTraversalOverBadgerMirrorsFixture(t *testing.T) {
	ctx := context.Background()
	fixture := memfetcher.BuildSixRevisionFixture()

	bf := openFetcher(t)
	var cats []*catalog.Catalog
	for _, c := range fixture.Catalogs {
		cats = append(cats, c)
	}
	require.NoError(t, bf.PutCatalogs(ctx, cats))
	require.NoError(t, bf.PutManifest(ctx, fixture.Head))
	require.NoError(t, bf.PutTagHistory(ctx, fixture.TagHistory))

	e, err := traversal.New(traversal.Params{Fetcher: bf})
	require.NoError(t, err)

	var visited int
	e.RegisterListener(func(ev traversal.Event) error {
		visited++
		return nil
	})

	ok, err := e.Traverse(ctx, traversal.BreadthFirst)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 21, visited)
}
