package traversal_test

import (
	"context"
	"testing"

	"github.com/i5heu/catgraph/pkg/catalog"
	"github.com/i5heu/catgraph/pkg/fetcher/memfetcher"
	"github.com/i5heu/catgraph/pkg/traversal"
	"github.com/stretchr/testify/require"
)

type visit struct {
	revision   uint64
	mountpoint string
}

func collect(t *testing.T, e *traversal.Engine, ctx context.Context, order traversal.Order) ([]visit, bool, error) {
	t.Helper()
	var visits []visit
	e.RegisterListener(func(ev traversal.Event) error {
		visits = append(visits, visit{revision: ev.Revision, mountpoint: ev.Catalog.Mountpoint})
		return nil
	})
	ok, err := e.Traverse(ctx, order)
	return visits, ok, err
}

// Scenario 1: default traverse() on the six-revision dataset emits exactly
// the 21 catalogs reachable from revision 6 alone.
func TestScenarioDefaultTraverseRevisionSixAlone(t *testing.T) {
	f := memfetcher.BuildSixRevisionFixture()
	e, err := traversal.New(traversal.Params{Fetcher: memfetcher.New(f)})
	require.NoError(t, err)

	visits, ok, err := collect(t, e, context.Background(), traversal.BreadthFirst)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, visits, 21)
	require.Equal(t, visit{6, ""}, visits[0])
}

// Scenario 2: history=0 is identical to scenario 1.
func TestScenarioHistoryZeroMatchesDefault(t *testing.T) {
	f := memfetcher.BuildSixRevisionFixture()
	e, err := traversal.New(traversal.Params{Fetcher: memfetcher.New(f), History: 0})
	require.NoError(t, err)

	visits, ok, err := collect(t, e, context.Background(), traversal.BreadthFirst)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, visits, 21)
}

// Scenario 3: history=1 emits 49 catalogs (revision 6's full tree plus
// revision 5's full tree, counted without deduplication).
func TestScenarioHistoryOneEmitsFortyNine(t *testing.T) {
	f := memfetcher.BuildSixRevisionFixture()
	e, err := traversal.New(traversal.Params{Fetcher: memfetcher.New(f), History: 1})
	require.NoError(t, err)

	visits, ok, err := collect(t, e, context.Background(), traversal.BreadthFirst)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, visits, 49)
}

// Scenario 4: full history with no_repeat_history emits exactly the 42
// unique catalog objects in the fixture.
func TestScenarioFullHistoryNoRepeatEmitsFortyTwoUnique(t *testing.T) {
	f := memfetcher.BuildSixRevisionFixture()
	e, err := traversal.New(traversal.Params{
		Fetcher:         memfetcher.New(f),
		History:         traversal.FullHistory,
		NoRepeatHistory: true,
	})
	require.NoError(t, err)

	visits, ok, err := collect(t, e, context.Background(), traversal.BreadthFirst)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, visits, 42)

	seen := map[visit]bool{}
	for _, v := range visits {
		require.False(t, seen[v], "duplicate visit %+v", v)
		seen[v] = true
	}
}

// Scenario 5: a missing nested catalog aborts the traversal when
// ignore_load_failure is false, and the emission set is truncated at the
// missing node.
func TestScenarioMissingCatalogAbortsWithoutIgnoreLoadFailure(t *testing.T) {
	f := memfetcher.BuildSixRevisionFixture()
	fetcher := memfetcher.New(f)
	fetcher.Delete(f.HashAt(2, "/00/10/20"))

	e, err := traversal.New(traversal.Params{
		Fetcher:           fetcher,
		History:           4,
		NoRepeatHistory:   true,
		IgnoreLoadFailure: false,
		Quiet:             true,
	})
	require.NoError(t, err)

	visits, ok, err := collect(t, e, context.Background(), traversal.BreadthFirst)
	require.Error(t, err)
	require.False(t, ok)
	require.NotEmpty(t, visits)
	for _, v := range visits {
		require.NotEqual(t, visit{2, "/00/10/20"}, v)
	}
}

// Scenario 6: the same setup with ignore_load_failure=true succeeds,
// excludes the missing subtree, but still reaches the ancestor revision's
// root afterwards.
func TestScenarioMissingCatalogPrunedWithIgnoreLoadFailure(t *testing.T) {
	f := memfetcher.BuildSixRevisionFixture()
	fetcher := memfetcher.New(f)
	fetcher.Delete(f.HashAt(2, "/00/10/20"))

	e, err := traversal.New(traversal.Params{
		Fetcher:           fetcher,
		History:           4,
		NoRepeatHistory:   true,
		IgnoreLoadFailure: true,
		Quiet:             true,
	})
	require.NoError(t, err)

	visits, ok, err := collect(t, e, context.Background(), traversal.BreadthFirst)
	require.NoError(t, err)
	require.True(t, ok)

	pruned := []visit{
		{2, "/00/10/20"},
		{2, "/00/10/20/30"},
		{2, "/00/10/20/31"},
		{2, "/00/10/20/32"},
		{2, "/00/10/20/30/40"},
	}
	for _, p := range pruned {
		for _, v := range visits {
			require.NotEqual(t, p, v)
		}
	}
	require.Contains(t, visits, visit{4, ""})
}

// Scenario 7: named-snapshot traversal visits snapshots in ascending
// revision order; with no_repeat_history the revision-6 snapshot contributes
// only its own root once everything else has already been seen.
func TestScenarioNamedSnapshotsAscendingWithDedup(t *testing.T) {
	f := memfetcher.BuildSixRevisionFixture()
	e, err := traversal.New(traversal.Params{
		Fetcher:         memfetcher.New(f),
		NoRepeatHistory: true,
	})
	require.NoError(t, err)

	var visits []visit
	e.RegisterListener(func(ev traversal.Event) error {
		visits = append(visits, visit{ev.Revision, ev.Catalog.Mountpoint})
		return nil
	})

	ok, err := e.TraverseNamedSnapshots(context.Background(), traversal.BreadthFirst)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, visits)

	require.Equal(t, uint64(2), visits[0].revision)

	firstRevFiveIdx, firstRevSixIdx := -1, -1
	for i, v := range visits {
		if v.revision == 5 && firstRevFiveIdx == -1 {
			firstRevFiveIdx = i
		}
		if v.revision == 6 && firstRevSixIdx == -1 {
			firstRevSixIdx = i
		}
	}
	require.Greater(t, firstRevFiveIdx, 0)
	require.Greater(t, firstRevSixIdx, firstRevFiveIdx)

	var revSixVisits []visit
	for _, v := range visits {
		if v.revision == 6 {
			revSixVisits = append(revSixVisits, v)
		}
	}
	require.Equal(t, []visit{{6, ""}}, revSixVisits)
}

func TestCutoffBoundaryIncludesEqualExcludesStrictlyBefore(t *testing.T) {
	f := memfetcher.BuildSixRevisionFixture()
	rev5 := f.Catalogs[f.RootHash(5)]

	e, err := traversal.New(traversal.Params{
		Fetcher:   memfetcher.New(f),
		History:   traversal.FullHistory,
		Timestamp: rev5.Timestamp,
	})
	require.NoError(t, err)

	visits, ok, err := collect(t, e, context.Background(), traversal.BreadthFirst)
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, visits, visit{5, ""})
	require.NotContains(t, visits, visit{4, ""})
}

func TestPostOrderInDepthFirstMode(t *testing.T) {
	f := memfetcher.BuildSixRevisionFixture()
	e, err := traversal.New(traversal.Params{Fetcher: memfetcher.New(f)})
	require.NoError(t, err)

	index := map[catalog.Hash]int{}
	var order []catalog.Hash
	pos := 0
	e.RegisterListener(func(ev traversal.Event) error {
		index[ev.Catalog.Hash] = pos
		order = append(order, ev.Catalog.Hash)
		pos++
		return nil
	})

	ok, err := e.TraverseRoot(context.Background(), f.RootHash(6), traversal.DepthFirst)
	require.NoError(t, err)
	require.True(t, ok)

	root := f.Catalogs[f.RootHash(6)]
	for _, ref := range root.Nested {
		require.Less(t, index[ref.Hash], index[root.Hash], "child %s must be emitted before parent", ref.Mountpoint)
	}
	_ = order
}

func TestRevisionOrderingInDepthFirstMode(t *testing.T) {
	f := memfetcher.BuildSixRevisionFixture()
	e, err := traversal.New(traversal.Params{
		Fetcher: memfetcher.New(f),
		History: traversal.FullHistory,
	})
	require.NoError(t, err)

	index := map[visit]int{}
	pos := 0
	e.RegisterListener(func(ev traversal.Event) error {
		index[visit{ev.Revision, ev.Catalog.Mountpoint}] = pos
		pos++
		return nil
	})

	ok, err := e.Traverse(context.Background(), traversal.DepthFirst)
	require.NoError(t, err)
	require.True(t, ok)

	require.Less(t, index[visit{5, ""}], index[visit{6, ""}])
	require.Less(t, index[visit{1, ""}], index[visit{2, ""}])
	require.Less(t, index[visit{4, ""}], index[visit{5, ""}])
}

func TestStabilityOfVisitSetAcrossOrderings(t *testing.T) {
	params := func(f *memfetcher.Fixture) traversal.Params {
		return traversal.Params{
			Fetcher:         memfetcher.New(f),
			History:         traversal.FullHistory,
			NoRepeatHistory: true,
		}
	}

	fBFS := memfetcher.BuildSixRevisionFixture()
	eBFS, err := traversal.New(params(fBFS))
	require.NoError(t, err)
	bfsVisits, ok, err := collect(t, eBFS, context.Background(), traversal.BreadthFirst)
	require.NoError(t, err)
	require.True(t, ok)

	fDFS := memfetcher.BuildSixRevisionFixture()
	eDFS, err := traversal.New(params(fDFS))
	require.NoError(t, err)
	dfsVisits, ok, err := collect(t, eDFS, context.Background(), traversal.DepthFirst)
	require.NoError(t, err)
	require.True(t, ok)

	require.ElementsMatch(t, bfsVisits, dfsVisits)
}

func TestNoCloseCountingMatchesOutstandingHandles(t *testing.T) {
	f := memfetcher.BuildSixRevisionFixture()
	e, err := traversal.New(traversal.Params{Fetcher: memfetcher.New(f), NoClose: true})
	require.NoError(t, err)

	var released []func()
	e.RegisterListener(func(ev traversal.Event) error {
		released = append(released, ev.Release)
		return nil
	})

	ok, err := e.Traverse(context.Background(), traversal.BreadthFirst)
	require.NoError(t, err)
	require.True(t, ok)

	require.EqualValues(t, len(released), e.LiveHandles())

	for _, release := range released {
		release()
	}
	require.EqualValues(t, 0, e.LiveHandles())
}
