package render

import "sync/atomic"

// livenessState is the strong count shared between a Liveness observer and
// every Alive clone minted for the same resource.
type livenessState struct {
	strongRefs int64
}

// Liveness is a weak observer that reports whether any strong (Alive)
// references to a resource still exist. Registry entries retain the Liveness
// half of a pair so that the cleanup pass can lazily discover when every
// public handle and submission reference to a resource is gone, without the
// final drop having to mutate the registry synchronously.
//
// Liveness values are only valid when obtained from NewLiveness.
type Liveness struct {
	state *livenessState
}

// Alive is a cheap, cloneable strong marker paired with a Liveness observer.
// Each clone is an independent owner: the paired Liveness does not report
// dropped until every clone has been released.
type Alive struct {
	state *livenessState
}

// NewLiveness creates a fresh liveness pair. The strong count begins at 1,
// owned by the returned Alive.
func NewLiveness() (Liveness, Alive) {
	state := &livenessState{strongRefs: 1}
	return Liveness{state: state}, Alive{state: state}
}

// Dropped returns true if every Alive clone paired with this observer has been
// released. It has no side effects and may be called any number of times.
// When clones are shared across goroutines, a fully-completed release is
// observed by subsequent calls, but no ordering is guaranteed beyond the
// synchronization the caller itself used to share the clone.
func (l Liveness) Dropped() bool {
	return atomic.LoadInt64(&l.state.strongRefs) == 0
}

// Clone mints an additional independent owner for the underlying resource.
func (a Alive) Clone() Alive {
	if atomic.AddInt64(&a.state.strongRefs, 1) < 2 {
		panic("attempted to clone an Alive marker after all of its owners were released")
	}

	return Alive{state: a.state}
}

// Release drops this owner. Once the last owner has been released, the paired
// Liveness reports dropped. Releasing more owners than were ever minted is a
// programming error.
func (a Alive) Release() {
	if atomic.AddInt64(&a.state.strongRefs, -1) < 0 {
		panic("attempted to release an Alive marker more times than it had owners")
	}
}
