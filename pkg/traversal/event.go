package traversal

import "github.com/i5heu/catgraph/pkg/catalog"

// Event is emitted exactly once per visit.
type Event struct {
	Catalog  *catalog.Catalog
	Level    int    // depth under the current revision walk's root; 0 at root
	Revision uint64

	// Release returns ownership of Catalog. Under close-on-visit (the
	// default, NoClose=false) the engine calls this itself immediately
	// after the listener returns, and listeners need not call it.
	// Under NoClose=true, ownership transfers to the listener, which
	// must call Release when it is done with Catalog.
	Release func()
}

// Listener is invoked once per visit. A listener returning a non-nil error
// aborts the session: no further listener calls are made, outstanding work
// drains, and the entry point returns that error alongside a false success
// flag.
type Listener func(Event) error
