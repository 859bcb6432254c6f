package memfetcher

import (
	"context"
	"testing"

	"github.com/i5heu/catgraph/pkg/catalog"
	"github.com/stretchr/testify/require"
)

func TestBuildSixRevisionFixtureTotals(t *testing.T) {
	f := BuildSixRevisionFixture()
	require.Len(t, f.Catalogs, 42)
	require.Len(t, f.RevisionRoots, 6)
}

func TestFetcherServesManifestAndTagHistory(t *testing.T) {
	f := BuildSixRevisionFixture()
	fetcher := New(f)
	ctx := context.Background()

	head, err := fetcher.FetchManifest(ctx)
	require.NoError(t, err)
	require.Equal(t, f.RootHash(6), head)

	history, err := fetcher.FetchTagHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history.Snapshots, 3)
}

func TestFetcherDeleteMakesCatalogNotFound(t *testing.T) {
	f := BuildSixRevisionFixture()
	fetcher := New(f)
	ctx := context.Background()

	missing := f.HashAt(2, "/00/10/20")
	fetcher.Delete(missing)

	_, err := fetcher.FetchCatalog(ctx, missing, "/00/10/20")
	require.Error(t, err)
	require.True(t, catalog.IsNotFound(err))
}

func TestFetcherRejectsMountpointMismatch(t *testing.T) {
	f := BuildSixRevisionFixture()
	fetcher := New(f)
	ctx := context.Background()

	root6 := f.RootHash(6)
	_, err := fetcher.FetchCatalog(ctx, root6, "/not/the/root")
	require.Error(t, err)
}

func TestFetchCountTracksSuccessfulFetches(t *testing.T) {
	f := BuildSixRevisionFixture()
	fetcher := New(f)
	ctx := context.Background()

	require.Equal(t, 0, fetcher.FetchCount())
	_, err := fetcher.FetchCatalog(ctx, f.RootHash(6), "")
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.FetchCount())
}
