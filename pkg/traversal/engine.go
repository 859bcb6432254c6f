// Package traversal implements the sequential catalog-graph traversal
// engine: the scheduler that decides which catalogs to visit, in what order,
// the deduplication of visits across revisions, and the partial-failure
// policy when catalogs are missing from backing storage. See
// pkg/traversal/parallel for the concurrent variant.
package traversal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/i5heu/catgraph/pkg/catalog"
	"github.com/i5heu/catgraph/pkg/traversal/bookkeeping"
)

// Engine runs traversals against a fixed set of Params. Bookkeeping state
// (visited catalogs, visited revision roots) is session-scoped to the
// Engine instance and accumulates across repeated entry-point calls.
type Engine struct {
	params      Params
	listeners   []Listener
	book        bookkeeping.Session[catalog.Hash]
	liveHandles atomic.Int64
}

// New constructs an Engine. It returns an error if params is invalid
// (missing Fetcher, or an out-of-range History budget).
func New(params Params) (*Engine, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &Engine{params: params}, nil
}

// RegisterListener adds l to the set of listeners invoked on every
// emission. Multiple listeners are permitted; each receives every event.
func (e *Engine) RegisterListener(l Listener) {
	e.listeners = append(e.listeners, l)
}

// LiveHandles reports the number of emitted events whose Release has not
// yet been called. Under NoClose=true this is the count of outstanding
// handles the caller is responsible for releasing.
func (e *Engine) LiveHandles() int64 {
	return e.liveHandles.Load()
}

// Traverse walks from the repository's current HEAD.
func (e *Engine) Traverse(ctx context.Context, order Order) (bool, error) {
	root, err := e.params.Fetcher.FetchManifest(ctx)
	if err != nil {
		return false, fmt.Errorf("traversal: fetch manifest: %w", err)
	}
	return e.TraverseRoot(ctx, root, order)
}

// TraverseRoot walks from an explicit root hash.
func (e *Engine) TraverseRoot(ctx context.Context, root catalog.Hash, order Order) (bool, error) {
	run := newRun(e, order)
	ok, err := run.walkEntryRoot(ctx, root, true)
	return ok, err
}

// TraverseNamedSnapshots fetches the repository's tag history and walks
// each named snapshot's revision, in strictly ascending revision order
// (ties broken by ascending timestamp), performing a zero-history walk of
// each snapshot's nested tree. History and Timestamp do not restrict which
// snapshots are visited; NoRepeatHistory still applies across snapshots.
func (e *Engine) TraverseNamedSnapshots(ctx context.Context, order Order) (bool, error) {
	history, err := e.params.Fetcher.FetchTagHistory(ctx)
	if err != nil {
		if errors.Is(err, catalog.ErrTagHistoryUnavailable) {
			return true, nil
		}
		return false, fmt.Errorf("traversal: fetch tag history: %w", err)
	}

	snapshots := append([]catalog.Snapshot(nil), history.Snapshots...)
	sort.SliceStable(snapshots, func(i, j int) bool {
		if snapshots[i].Revision != snapshots[j].Revision {
			return snapshots[i].Revision < snapshots[j].Revision
		}
		return snapshots[i].Timestamp.Before(snapshots[j].Timestamp)
	})

	run := newRun(e, order)
	for _, snap := range snapshots {
		ok, err := run.walkEntryRoot(ctx, snap.RootHash, false)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
