package traversal

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/i5heu/catgraph/pkg/catalog"
)

// run carries the state of one revision-chain walk: the order it emits
// under and a reference back to the owning Engine for its shared bookkeeping
// and listeners. A single TraverseNamedSnapshots call reuses one run across
// all of its snapshot walks, so that NoRepeatHistory dedup is cumulative
// across snapshots within that call, exactly as it already is across
// separate entry-point calls on the same Engine.
type run struct {
	e     *Engine
	order Order
}

func newRun(e *Engine, order Order) *run {
	return &run{e: e, order: order}
}

// walkEntryRoot walks the revision chain starting at root. useHistory
// selects whether Params.History governs descent (Traverse/TraverseRoot) or
// is forced to zero (TraverseNamedSnapshots, per spec: History and
// Timestamp never restrict which snapshots are visited).
func (r *run) walkEntryRoot(ctx context.Context, root catalog.Hash, useHistory bool) (bool, error) {
	budget := 0
	if useHistory {
		budget = r.e.params.History
	}
	if r.order == DepthFirst {
		return r.walkDFS(ctx, root, budget)
	}
	return r.walkBFS(ctx, root, budget)
}

type bfsItem struct {
	cat   *catalog.Catalog
	level int
}

// walkBFS emits rootHash's own revision in full, then, budget and cutoffs
// permitting, the full nested tree of its previous-revision root, and so on
// toward older revisions.
func (r *run) walkBFS(ctx context.Context, rootHash catalog.Hash, historyBudget int) (bool, error) {
	if r.e.params.NoRepeatHistory {
		if !r.e.book.Revisions.Admit(rootHash) {
			return true, nil
		}
	}

	current, err := r.fetch(ctx, rootHash, "")
	if err != nil {
		return false, fmt.Errorf("traversal: fetch entry root %s: %w", rootHash, err)
	}

	budget := historyBudget
	for {
		if err := r.emitRevisionBFS(ctx, current); err != nil {
			return false, err
		}

		next, ok, err := r.nextHistoryTarget(ctx, current, &budget)
		if err != nil {
			return false, err
		}
		if !ok {
			break
		}
		current = next
	}
	return true, nil
}

func (r *run) emitRevisionBFS(ctx context.Context, root *catalog.Catalog) error {
	if r.e.params.NoRepeatHistory {
		r.e.book.Catalogs.Admit(root.Hash)
	}

	queue := []bfsItem{{root, 0}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if err := r.emit(item.cat, item.level); err != nil {
			return err
		}

		for _, ref := range item.cat.Nested {
			if r.e.params.NoRepeatHistory && r.e.book.Catalogs.Contains(ref.Hash) {
				continue
			}
			child, err := r.fetch(ctx, ref.Hash, ref.Mountpoint)
			if err != nil {
				if r.e.params.IgnoreLoadFailure {
					r.logPruned(ref, err)
					continue
				}
				return fmt.Errorf("traversal: fetch nested catalog %s at %q: %w", ref.Hash, ref.Mountpoint, err)
			}
			if r.e.params.NoRepeatHistory && !r.e.book.Catalogs.Admit(ref.Hash) {
				continue
			}
			queue = append(queue, bfsItem{child, item.level + 1})
		}
	}
	return nil
}

// dfsFrame is one explicit stack frame of the post-order walk. Only root
// frames carry a history pseudo-child, which is always processed before the
// frame's own real nested children so that, within a single entry point,
// every catalog of an older revision precedes every catalog of a newer one.
type dfsFrame struct {
	cat         *catalog.Catalog
	level       int
	isRoot      bool
	historyDone bool
	childIdx    int
}

func (r *run) walkDFS(ctx context.Context, rootHash catalog.Hash, historyBudget int) (bool, error) {
	if r.e.params.NoRepeatHistory {
		if !r.e.book.Revisions.Admit(rootHash) {
			return true, nil
		}
	}

	root, err := r.fetch(ctx, rootHash, "")
	if err != nil {
		return false, fmt.Errorf("traversal: fetch entry root %s: %w", rootHash, err)
	}
	if r.e.params.NoRepeatHistory {
		r.e.book.Catalogs.Admit(root.Hash)
	}

	budget := historyBudget
	stack := []*dfsFrame{{cat: root, isRoot: true}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if top.isRoot && !top.historyDone {
			top.historyDone = true
			prev, ok, err := r.nextHistoryTarget(ctx, top.cat, &budget)
			if err != nil {
				return false, err
			}
			if ok {
				if r.e.params.NoRepeatHistory {
					r.e.book.Catalogs.Admit(prev.Hash)
				}
				stack = append(stack, &dfsFrame{cat: prev, isRoot: true})
				continue
			}
		}

		if top.childIdx < len(top.cat.Nested) {
			ref := top.cat.Nested[top.childIdx]
			top.childIdx++

			if r.e.params.NoRepeatHistory && r.e.book.Catalogs.Contains(ref.Hash) {
				continue
			}
			child, err := r.fetch(ctx, ref.Hash, ref.Mountpoint)
			if err != nil {
				if r.e.params.IgnoreLoadFailure {
					r.logPruned(ref, err)
					continue
				}
				return false, fmt.Errorf("traversal: fetch nested catalog %s at %q: %w", ref.Hash, ref.Mountpoint, err)
			}
			if r.e.params.NoRepeatHistory && !r.e.book.Catalogs.Admit(ref.Hash) {
				continue
			}
			stack = append(stack, &dfsFrame{cat: child, level: top.level + 1})
			continue
		}

		if err := r.emit(top.cat, top.level); err != nil {
			return false, err
		}
		stack = stack[:len(stack)-1]
	}
	return true, nil
}

// nextHistoryTarget decides whether to descend from cat to its
// previous-revision root, per History budget, NoRepeatHistory and Timestamp
// cutoff. On success it returns the already-fetched previous root and
// admits it into the Revisions set; the caller is responsible for also
// admitting it into the Catalogs set before emitting it.
func (r *run) nextHistoryTarget(ctx context.Context, cat *catalog.Catalog, budget *int) (*catalog.Catalog, bool, error) {
	if *budget == 0 {
		return nil, false, nil
	}
	if cat.PreviousRootHash == nil {
		return nil, false, nil
	}
	prevHash := *cat.PreviousRootHash

	if r.e.params.NoRepeatHistory && r.e.book.Revisions.Contains(prevHash) {
		return nil, false, nil
	}

	prev, err := r.fetch(ctx, prevHash, "")
	if err != nil {
		if r.e.params.IgnoreLoadFailure {
			r.logPrunedHistory(prevHash, err)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("traversal: fetch previous root %s: %w", prevHash, err)
	}

	if !entersByTimestamp(prev.Timestamp, r.e.params.Timestamp) {
		return nil, false, nil
	}

	if *budget != FullHistory {
		*budget--
	}
	if r.e.params.NoRepeatHistory && !r.e.book.Revisions.Admit(prevHash) {
		return nil, false, nil
	}
	return prev, true, nil
}

func (r *run) fetch(ctx context.Context, hash catalog.Hash, mountpoint string) (*catalog.Catalog, error) {
	return r.e.params.Fetcher.FetchCatalog(ctx, hash, mountpoint)
}

func (r *run) emit(cat *catalog.Catalog, level int) error {
	r.e.liveHandles.Add(1)
	var released atomic.Bool
	release := func() {
		if released.CompareAndSwap(false, true) {
			r.e.liveHandles.Add(-1)
		}
	}

	ev := Event{Catalog: cat, Level: level, Revision: cat.Revision, Release: release}
	for _, l := range r.e.listeners {
		if err := l(ev); err != nil {
			if !r.e.params.NoClose {
				release()
			}
			return fmt.Errorf("traversal: listener: %w", err)
		}
	}
	if !r.e.params.NoClose {
		release()
	}
	return nil
}

func (r *run) logPruned(ref catalog.Ref, err error) {
	if r.e.params.Quiet {
		return
	}
	r.e.params.logger().Warn("traversal: pruned nested catalog",
		"hash", ref.Hash.String(), "mountpoint", ref.Mountpoint, "reason", pruneReason(err), "error", err)
}

func (r *run) logPrunedHistory(hash catalog.Hash, err error) {
	if r.e.params.Quiet {
		return
	}
	r.e.params.logger().Warn("traversal: stopped history descent",
		"hash", hash.String(), "reason", pruneReason(err), "error", err)
}

func pruneReason(err error) string {
	if catalog.IsNotFound(err) {
		return "not_found"
	}
	return "fetch_error"
}
