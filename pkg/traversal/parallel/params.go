// Package parallel implements the concurrent variant of the catalog-graph
// traversal engine, with nested-tree fetches dispatched across a worker
// pool. It emits the same visit set and keeps the same deduplication, the
// parent-before-child and newer-revision-first order of BreadthFirst, and the
// post-order and older-revision-first order of DepthFirst as pkg/traversal.
// Catalogs are emitted as their fetches complete, so sibling order, and in
// BreadthFirst the level-by-level order, need not match the sequential
// engine's. See pkg/traversal for the sequential engine and the shared Event,
// Listener and Order types this package reuses.
package parallel

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/i5heu/catgraph/pkg/catalog"
	"github.com/i5heu/catgraph/pkg/catgraphlog"
	"github.com/i5heu/catgraph/pkg/traversal"
)

// Params configures a parallel traversal entry point. It carries the same
// fields as traversal.Params plus NumThreads, which sizes the worker pool.
type Params struct {
	Fetcher           catalog.Fetcher
	History           int
	Timestamp         time.Time
	NoRepeatHistory   bool
	NoClose           bool
	IgnoreLoadFailure bool
	Quiet             bool
	Logger            *slog.Logger

	// NumThreads sizes the worker pool. Must be >= 1.
	NumThreads int
}

func (p Params) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return catgraphlog.Default
}

func (p Params) validate() error {
	if p.Fetcher == nil {
		return fmt.Errorf("parallel: Params.Fetcher is required")
	}
	if p.History < 0 && p.History != traversal.FullHistory {
		return fmt.Errorf("parallel: invalid Params.History %d", p.History)
	}
	if p.NumThreads < 1 {
		return fmt.Errorf("parallel: Params.NumThreads must be >= 1, got %d", p.NumThreads)
	}
	return nil
}

func entersByTimestamp(ts, cutoff time.Time) bool {
	if cutoff.IsZero() {
		return true
	}
	return !ts.Before(cutoff)
}
