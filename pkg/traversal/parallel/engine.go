package parallel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/i5heu/catgraph/pkg/catalog"
	"github.com/i5heu/catgraph/pkg/traversal"
	"github.com/i5heu/catgraph/pkg/workerpool"
)

// Engine runs parallel traversals against a fixed set of Params, sharing a
// worker pool and dedup bookkeeping across repeated entry-point calls, the
// same session-scoping contract as traversal.Engine.
type Engine struct {
	params    Params
	listeners []traversal.Listener
	pool      *workerpool.Pool
	book      dedupSession

	liveHandles atomic.Int64
	listenerMu  sync.Mutex
}

// New constructs a parallel Engine and starts its worker pool.
func New(params Params) (*Engine, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		params: params,
		pool:   workerpool.New(workerpool.Config{WorkerCount: params.NumThreads}),
	}, nil
}

func (e *Engine) RegisterListener(l traversal.Listener) {
	e.listeners = append(e.listeners, l)
}

func (e *Engine) LiveHandles() int64 {
	return e.liveHandles.Load()
}

func (e *Engine) Traverse(ctx context.Context, order traversal.Order) (bool, error) {
	root, err := e.params.Fetcher.FetchManifest(ctx)
	if err != nil {
		return false, fmt.Errorf("parallel: fetch manifest: %w", err)
	}
	return e.TraverseRoot(ctx, root, order)
}

func (e *Engine) TraverseRoot(ctx context.Context, root catalog.Hash, order traversal.Order) (bool, error) {
	w := &walk{e: e, order: order}
	return w.walkEntryRoot(ctx, root, true)
}

func (e *Engine) TraverseNamedSnapshots(ctx context.Context, order traversal.Order) (bool, error) {
	history, err := e.params.Fetcher.FetchTagHistory(ctx)
	if err != nil {
		if errors.Is(err, catalog.ErrTagHistoryUnavailable) {
			return true, nil
		}
		return false, fmt.Errorf("parallel: fetch tag history: %w", err)
	}

	snapshots := append([]catalog.Snapshot(nil), history.Snapshots...)
	sort.SliceStable(snapshots, func(i, j int) bool {
		if snapshots[i].Revision != snapshots[j].Revision {
			return snapshots[i].Revision < snapshots[j].Revision
		}
		return snapshots[i].Timestamp.Before(snapshots[j].Timestamp)
	})

	w := &walk{e: e, order: order}
	for _, snap := range snapshots {
		ok, err := w.walkEntryRoot(ctx, snap.RootHash, false)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// emit invokes every registered listener for cat under the engine's global
// listener lock, so that concurrently-completing workers never overlap a
// listener call, and listeners themselves need not be goroutine-safe.
func (e *Engine) emit(cat *catalog.Catalog, level int, revision uint64) error {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()

	e.liveHandles.Add(1)
	var released atomic.Bool
	release := func() {
		if released.CompareAndSwap(false, true) {
			e.liveHandles.Add(-1)
		}
	}

	ev := traversal.Event{Catalog: cat, Level: level, Revision: revision, Release: release}
	for _, l := range e.listeners {
		if err := l(ev); err != nil {
			if !e.params.NoClose {
				release()
			}
			return fmt.Errorf("parallel: listener: %w", err)
		}
	}
	if !e.params.NoClose {
		release()
	}
	return nil
}

func (e *Engine) logPruned(ref catalog.Ref, err error) {
	if e.params.Quiet {
		return
	}
	e.params.logger().Warn("parallel traversal: pruned nested catalog",
		"hash", ref.Hash.String(), "mountpoint", ref.Mountpoint, "reason", pruneReason(err), "error", err)
}

func (e *Engine) logPrunedHistory(hash catalog.Hash, err error) {
	if e.params.Quiet {
		return
	}
	e.params.logger().Warn("parallel traversal: stopped history descent",
		"hash", hash.String(), "reason", pruneReason(err), "error", err)
}

func pruneReason(err error) string {
	if catalog.IsNotFound(err) {
		return "not_found"
	}
	return "fetch_error"
}
