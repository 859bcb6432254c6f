package parallel

import (
	"context"
	"fmt"

	"github.com/i5heu/catgraph/pkg/catalog"
	"github.com/i5heu/catgraph/pkg/traversal"
	"github.com/i5heu/catgraph/pkg/workerpool"
)

// walk carries the state of one revision-chain walk. History descent from
// one revision root to the previous is driven sequentially by this
// goroutine, exactly as in the sequential engine, since each previous-root
// hash is only known after its successor has been fetched; the worker pool
// is instead used to parallelize fetches *within* one revision's nested
// tree, where the whole set of direct children is known up front.
type walk struct {
	e     *Engine
	order traversal.Order
}

func (w *walk) walkEntryRoot(ctx context.Context, root catalog.Hash, useHistory bool) (bool, error) {
	budget := 0
	if useHistory {
		budget = w.e.params.History
	}

	if w.e.params.NoRepeatHistory {
		if !w.e.book.revisions.Admit(root) {
			return true, nil
		}
	}

	current, err := w.fetch(ctx, root, "")
	if err != nil {
		return false, fmt.Errorf("parallel: fetch entry root %s: %w", root, err)
	}

	// In depth-first mode the revision chain is collected first and expanded
	// oldest first, so an older revision's tree precedes its successor's.
	var chain []*catalog.Catalog
	for {
		postOrder := w.order == traversal.DepthFirst
		if postOrder {
			chain = append(chain, current)
		} else if err := w.expandRevision(ctx, current, postOrder); err != nil {
			return false, err
		}

		next, ok, err := w.nextHistoryTarget(ctx, current, &budget)
		if err != nil {
			return false, err
		}
		if !ok {
			break
		}
		current = next
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if err := w.expandRevision(ctx, chain[i], true); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (w *walk) nextHistoryTarget(ctx context.Context, cat *catalog.Catalog, budget *int) (*catalog.Catalog, bool, error) {
	if *budget == 0 {
		return nil, false, nil
	}
	if cat.PreviousRootHash == nil {
		return nil, false, nil
	}
	prevHash := *cat.PreviousRootHash

	if w.e.params.NoRepeatHistory && w.e.book.revisions.Contains(prevHash) {
		return nil, false, nil
	}

	prev, err := w.fetch(ctx, prevHash, "")
	if err != nil {
		if w.e.params.IgnoreLoadFailure {
			w.e.logPrunedHistory(prevHash, err)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("parallel: fetch previous root %s: %w", prevHash, err)
	}

	if !entersByTimestamp(prev.Timestamp, w.e.params.Timestamp) {
		return nil, false, nil
	}

	if *budget != traversal.FullHistory {
		*budget--
	}
	if w.e.params.NoRepeatHistory && !w.e.book.revisions.Admit(prevHash) {
		return nil, false, nil
	}
	return prev, true, nil
}

func (w *walk) fetch(ctx context.Context, hash catalog.Hash, mountpoint string) (*catalog.Catalog, error) {
	return w.e.params.Fetcher.FetchCatalog(ctx, hash, mountpoint)
}

// fetchOutcome is one worker's result: either the fetched catalog or the
// error encountered trying to fetch it, tagged with enough context
// (parent, level) for the driver to fold it back into the node-counter
// bookkeeping without consulting shared state.
type fetchOutcome struct {
	parent catalog.Hash
	ref    catalog.Ref
	level  int
	cat    *catalog.Catalog
	err    error
}

// pendingNode is one not-yet-emitted catalog in the expansion, tracked by
// the driver goroutine only — no locking needed since only the driver
// mutates this map.
type pendingNode struct {
	cat      *catalog.Catalog
	level    int
	parent   catalog.Hash
	hasParent bool
	pending  int // unresolved nested children; 0 means ready to emit
}

// expandRevision walks root's entire nested tree, dispatching fetches for
// a node's children to the worker pool as soon as the node itself is known,
// and folding their results back in a single driver loop. In breadth-first
// mode a node is emitted the moment it is fetched (pending forced to 0);
// in depth-first (postOrder) mode a node is emitted only once every one of
// its children has itself been emitted, reproducing the sequential
// engine's post-order guarantee while still fetching concurrently.
func (w *walk) expandRevision(ctx context.Context, root *catalog.Catalog, postOrder bool) error {
	room := workerpool.NewRoom[fetchOutcome](w.e.pool, 1024)

	nodes := map[catalog.Hash]*pendingNode{}
	var readyQueue []catalog.Hash
	inFlight := 0
	aborted := false
	var firstErr error

	dispatch := func(parent catalog.Hash, level int, refs []catalog.Ref) int {
		dispatched := 0
		for _, ref := range refs {
			if w.e.params.NoRepeatHistory && w.e.book.catalogs.Contains(ref.Hash) {
				continue
			}
			dispatched++
			inFlight++
			r := ref
			room.Submit(func() fetchOutcome {
				c, err := w.fetch(ctx, r.Hash, r.Mountpoint)
				return fetchOutcome{parent: parent, ref: r, level: level, cat: c, err: err}
			})
		}
		return dispatched
	}

	register := func(hash catalog.Hash, cat *catalog.Catalog, level int, parent catalog.Hash, hasParent bool) {
		n := &pendingNode{cat: cat, level: level, parent: parent, hasParent: hasParent}
		nodes[hash] = n

		if postOrder {
			n.pending = dispatch(hash, level+1, cat.Nested)
			if n.pending == 0 {
				readyQueue = append(readyQueue, hash)
			}
		} else {
			readyQueue = append(readyQueue, hash)
			dispatch(hash, level+1, cat.Nested)
		}
	}

	if w.e.params.NoRepeatHistory {
		w.e.book.catalogs.Admit(root.Hash)
	}
	register(root.Hash, root, 0, catalog.Hash{}, false)

	resolveReady := func(hash catalog.Hash) error {
		n := nodes[hash]
		if err := w.e.emit(n.cat, n.level, n.cat.Revision); err != nil {
			return err
		}
		if postOrder && n.hasParent {
			p := nodes[n.parent]
			p.pending--
			if p.pending == 0 {
				readyQueue = append(readyQueue, n.parent)
			}
		}
		return nil
	}

	for len(readyQueue) > 0 || inFlight > 0 {
		for len(readyQueue) > 0 {
			hash := readyQueue[0]
			readyQueue = readyQueue[1:]
			if aborted {
				continue
			}
			if err := resolveReady(hash); err != nil {
				aborted = true
				firstErr = err
			}
		}
		if inFlight == 0 {
			break
		}

		outcome := room.Next()
		inFlight--

		if outcome.err != nil {
			if aborted {
				continue
			}
			if w.e.params.IgnoreLoadFailure {
				w.e.logPruned(outcome.ref, outcome.err)
				if postOrder {
					parent := nodes[outcome.parent]
					parent.pending--
					if parent.pending == 0 {
						readyQueue = append(readyQueue, outcome.parent)
					}
				}
				continue
			}
			aborted = true
			firstErr = fmt.Errorf("parallel: fetch nested catalog %s at %q: %w", outcome.ref.Hash, outcome.ref.Mountpoint, outcome.err)
			continue
		}

		if aborted {
			continue
		}

		if w.e.params.NoRepeatHistory && !w.e.book.catalogs.Admit(outcome.cat.Hash) {
			if postOrder {
				parent := nodes[outcome.parent]
				parent.pending--
				if parent.pending == 0 {
					readyQueue = append(readyQueue, outcome.parent)
				}
			}
			continue
		}

		register(outcome.cat.Hash, outcome.cat, outcome.level, outcome.parent, true)
	}

	if aborted {
		return firstErr
	}
	return nil
}
