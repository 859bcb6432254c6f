package traversal

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/i5heu/catgraph/pkg/catalog"
	"github.com/i5heu/catgraph/pkg/catgraphlog"
)

// Order selects the ordering guarantee a traversal emits catalogs under.
type Order int

const (
	// BreadthFirst visits a revision's root, then its direct nested
	// children in stored order, then grandchildren, and so on; across
	// history, a newer revision's nested tree is emitted in full before
	// the walk descends to the previous revision's root. This is the
	// default.
	BreadthFirst Order = iota

	// DepthFirst visits a catalog only after every catalog in its nested
	// subtree has been visited (post-order); across history, an older
	// revision's entire nested tree is emitted before its successor's.
	DepthFirst
)

func (o Order) String() string {
	if o == DepthFirst {
		return "depth_first"
	}
	return "breadth_first"
}

// FullHistory is the History sentinel for "follow previous-root links until
// a revision with no previous root, or a missing object, is reached."
const FullHistory = -1

// Params configures a traversal entry point. The zero value is invalid: a
// Fetcher is always required.
type Params struct {
	// Fetcher resolves hashes to catalogs and tag histories. Required.
	Fetcher catalog.Fetcher

	// History is the number of previous-revision roots to follow from
	// each entry root: 0 means the current revision only, N means follow
	// N previous-root links, FullHistory means follow until a revision
	// with no previous root or a missing object is reached.
	History int

	// Timestamp is an absolute wall-clock cutoff. A revision whose root
	// timestamp is strictly older than Timestamp is not entered; the
	// zero time.Time means no cutoff.
	Timestamp time.Time

	// NoRepeatHistory, if set, skips a revision whose root hash was
	// already visited in this session, and skips a nested catalog whose
	// hash was already visited.
	NoRepeatHistory bool

	// NoClose suppresses the engine's automatic post-callback release of
	// each event; ownership of the release passes to the listener, which
	// must call Event.Release itself.
	NoClose bool

	// IgnoreLoadFailure, if set, treats a fetch failure on a nested or
	// previous-root object as a pruning point rather than a fatal error.
	IgnoreLoadFailure bool

	// Quiet suppresses diagnostic logging on a tolerated fetch failure;
	// it does not change the success/failure outcome.
	Quiet bool

	// Logger receives diagnostic output. A nil Logger falls back to
	// catgraphlog.Default.
	Logger *slog.Logger
}

func (p Params) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return catgraphlog.Default
}

func (p Params) validate() error {
	if p.Fetcher == nil {
		return fmt.Errorf("traversal: Params.Fetcher is required")
	}
	if p.History < 0 && p.History != FullHistory {
		return fmt.Errorf("traversal: invalid Params.History %d", p.History)
	}
	return nil
}

// entersByTimestamp reports whether a revision root with timestamp ts may be
// entered given cutoff: the zero cutoff means no restriction, otherwise ts
// must not be strictly before cutoff.
func entersByTimestamp(ts, cutoff time.Time) bool {
	if cutoff.IsZero() {
		return true
	}
	return !ts.Before(cutoff)
}
