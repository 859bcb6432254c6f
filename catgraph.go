// Package catgraph is a thin facade wiring the sequential and parallel
// traversal engines behind a single Engine type, mirroring how the teacher
// repository's root package wires its storage layer behind one handle.
// Most callers reach for pkg/traversal or pkg/traversal/parallel directly;
// this package exists for the common case of picking one or the other from
// a single configuration value (NumThreads) without importing both.
package catgraph

import (
	"context"

	"github.com/i5heu/catgraph/pkg/catalog"
	"github.com/i5heu/catgraph/pkg/traversal"
	"github.com/i5heu/catgraph/pkg/traversal/parallel"
)

// Re-exported so callers of this package need not also import pkg/catalog
// and pkg/traversal for the common types.
type (
	Catalog    = catalog.Catalog
	Hash       = catalog.Hash
	Ref        = catalog.Ref
	Snapshot   = catalog.Snapshot
	TagHistory = catalog.TagHistory
	Fetcher    = catalog.Fetcher
	Event      = traversal.Event
	Listener   = traversal.Listener
	Order      = traversal.Order
)

const (
	BreadthFirst = traversal.BreadthFirst
	DepthFirst   = traversal.DepthFirst
	FullHistory  = traversal.FullHistory
)

// Params configures an Engine. It is traversal.Params plus NumThreads:
// NumThreads <= 1 runs the sequential engine (pkg/traversal); NumThreads > 1
// runs the worker-pool-backed parallel engine (pkg/traversal/parallel) with
// that many workers.
type Params struct {
	traversal.Params
	NumThreads int
}

// engine is the minimal surface both pkg/traversal.Engine and
// pkg/traversal/parallel.Engine implement, letting Engine dispatch without
// a type switch at every call site.
type engine interface {
	RegisterListener(traversal.Listener)
	LiveHandles() int64
	Traverse(ctx context.Context, order traversal.Order) (bool, error)
	TraverseRoot(ctx context.Context, root catalog.Hash, order traversal.Order) (bool, error)
	TraverseNamedSnapshots(ctx context.Context, order traversal.Order) (bool, error)
}

// Engine runs traversals under Params, on whichever of the sequential or
// parallel implementations Params.NumThreads selects.
type Engine struct {
	inner engine
}

// New constructs an Engine. See Params.NumThreads for how the underlying
// implementation is chosen.
func New(params Params) (*Engine, error) {
	if params.NumThreads > 1 {
		e, err := parallel.New(parallel.Params{
			Fetcher:           params.Fetcher,
			History:           params.History,
			Timestamp:         params.Timestamp,
			NoRepeatHistory:   params.NoRepeatHistory,
			NoClose:           params.NoClose,
			IgnoreLoadFailure: params.IgnoreLoadFailure,
			Quiet:             params.Quiet,
			Logger:            params.Logger,
			NumThreads:        params.NumThreads,
		})
		if err != nil {
			return nil, err
		}
		return &Engine{inner: e}, nil
	}

	e, err := traversal.New(params.Params)
	if err != nil {
		return nil, err
	}
	return &Engine{inner: e}, nil
}

// RegisterListener adds l to the set of listeners invoked for every visited
// catalog. Listener invocation is serialized even under the parallel engine.
func (e *Engine) RegisterListener(l traversal.Listener) {
	e.inner.RegisterListener(l)
}

// LiveHandles reports the number of emitted Events not yet released, only
// meaningful when Params.NoClose is set.
func (e *Engine) LiveHandles() int64 {
	return e.inner.LiveHandles()
}

// Traverse walks the repository from its current HEAD manifest.
func (e *Engine) Traverse(ctx context.Context, order traversal.Order) (bool, error) {
	return e.inner.Traverse(ctx, order)
}

// TraverseRoot walks the repository from an explicit root hash instead of
// the HEAD manifest.
func (e *Engine) TraverseRoot(ctx context.Context, root catalog.Hash, order traversal.Order) (bool, error) {
	return e.inner.TraverseRoot(ctx, root, order)
}

// TraverseNamedSnapshots walks every snapshot in the repository's tag
// history, ascending by revision.
func (e *Engine) TraverseNamedSnapshots(ctx context.Context, order traversal.Order) (bool, error) {
	return e.inner.TraverseNamedSnapshots(ctx, order)
}
