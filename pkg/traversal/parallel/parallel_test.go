package parallel_test

import (
	"context"
	"sync"
	"testing"

	"github.com/i5heu/catgraph/pkg/catalog"
	"github.com/i5heu/catgraph/pkg/fetcher/memfetcher"
	"github.com/i5heu/catgraph/pkg/traversal"
	"github.com/i5heu/catgraph/pkg/traversal/parallel"
	"github.com/stretchr/testify/require"
)

type visit struct {
	revision   uint64
	mountpoint string
}

func sequentialVisits(t *testing.T, f *memfetcher.Fixture, order traversal.Order, history int, noRepeat bool) ([]visit, bool, error) {
	t.Helper()
	e, err := traversal.New(traversal.Params{
		Fetcher:         memfetcher.New(f),
		History:         history,
		NoRepeatHistory: noRepeat,
	})
	require.NoError(t, err)

	var visits []visit
	e.RegisterListener(func(ev traversal.Event) error {
		visits = append(visits, visit{ev.Revision, ev.Catalog.Mountpoint})
		return nil
	})
	ok, err := e.Traverse(context.Background(), order)
	return visits, ok, err
}

func parallelVisits(t *testing.T, f *memfetcher.Fixture, order traversal.Order, history int, noRepeat bool, numThreads int) ([]visit, bool, error) {
	t.Helper()
	e, err := parallel.New(parallel.Params{
		Fetcher:         memfetcher.New(f),
		History:         history,
		NoRepeatHistory: noRepeat,
		NumThreads:      numThreads,
	})
	require.NoError(t, err)

	var visits []visit
	var mu sync.Mutex
	e.RegisterListener(func(ev traversal.Event) error {
		mu.Lock()
		visits = append(visits, visit{ev.Revision, ev.Catalog.Mountpoint})
		mu.Unlock()
		return nil
	})
	ok, err := e.Traverse(context.Background(), order)
	return visits, ok, err
}

func TestParallelEquivalenceBreadthFirst(t *testing.T) {
	seqVisits, seqOK, seqErr := sequentialVisits(t, memfetcher.BuildSixRevisionFixture(), traversal.BreadthFirst, traversal.FullHistory, true)
	require.NoError(t, seqErr)
	require.True(t, seqOK)

	parVisits, parOK, parErr := parallelVisits(t, memfetcher.BuildSixRevisionFixture(), traversal.BreadthFirst, traversal.FullHistory, true, 8)
	require.NoError(t, parErr)
	require.True(t, parOK)

	require.ElementsMatch(t, seqVisits, parVisits)
}

func TestParallelEquivalenceDepthFirst(t *testing.T) {
	seqVisits, seqOK, seqErr := sequentialVisits(t, memfetcher.BuildSixRevisionFixture(), traversal.DepthFirst, traversal.FullHistory, true)
	require.NoError(t, seqErr)
	require.True(t, seqOK)

	parVisits, parOK, parErr := parallelVisits(t, memfetcher.BuildSixRevisionFixture(), traversal.DepthFirst, traversal.FullHistory, true, 8)
	require.NoError(t, parErr)
	require.True(t, parOK)

	require.ElementsMatch(t, seqVisits, parVisits)
}

func TestParallelPostOrderPreservation(t *testing.T) {
	f := memfetcher.BuildSixRevisionFixture()
	e, err := parallel.New(parallel.Params{
		Fetcher:    memfetcher.New(f),
		NumThreads: 8,
	})
	require.NoError(t, err)

	index := map[catalog.Hash]int{}
	pos := 0
	var mu sync.Mutex
	e.RegisterListener(func(ev traversal.Event) error {
		mu.Lock()
		index[ev.Catalog.Hash] = pos
		pos++
		mu.Unlock()
		return nil
	})

	ok, err := e.TraverseRoot(context.Background(), f.RootHash(6), traversal.DepthFirst)
	require.NoError(t, err)
	require.True(t, ok)

	root := f.Catalogs[f.RootHash(6)]
	for _, ref := range root.Nested {
		require.Less(t, index[ref.Hash], index[root.Hash])
	}
}

func TestParallelFailureAbortsWithoutIgnoreLoadFailure(t *testing.T) {
	f := memfetcher.BuildSixRevisionFixture()
	fetcher := memfetcher.New(f)
	fetcher.Delete(f.HashAt(2, "/00/10/20"))

	e, err := parallel.New(parallel.Params{
		Fetcher:         fetcher,
		History:         4,
		NoRepeatHistory: true,
		NumThreads:      4,
		Quiet:           true,
	})
	require.NoError(t, err)

	ok, err := e.Traverse(context.Background(), traversal.BreadthFirst)
	require.Error(t, err)
	require.False(t, ok)
}

func TestParallelIgnoreLoadFailureSucceeds(t *testing.T) {
	f := memfetcher.BuildSixRevisionFixture()
	fetcher := memfetcher.New(f)
	fetcher.Delete(f.HashAt(2, "/00/10/20"))

	e, err := parallel.New(parallel.Params{
		Fetcher:           fetcher,
		History:           4,
		NoRepeatHistory:   true,
		IgnoreLoadFailure: true,
		NumThreads:        4,
		Quiet:             true,
	})
	require.NoError(t, err)

	var visits []visit
	var mu sync.Mutex
	e.RegisterListener(func(ev traversal.Event) error {
		mu.Lock()
		visits = append(visits, visit{ev.Revision, ev.Catalog.Mountpoint})
		mu.Unlock()
		return nil
	})

	ok, err := e.Traverse(context.Background(), traversal.BreadthFirst)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotContains(t, visits, visit{2, "/00/10/20"})
	require.Contains(t, visits, visit{4, ""})
}
