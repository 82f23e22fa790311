// Package render implements the resource-lifetime and submission-tracking
// core of a compositor renderer: image and staging-buffer registries with
// weak-liveness handles, GPU memory allocator integration, and the
// submission/completion-counter protocol that defers destruction of GPU
// objects until no in-flight work can reference them.
package render

import (
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"
)

// ImageID is the opaque identifier of an image registry entry. IDs are
// assigned monotonically at creation and are never reused.
type ImageID uint64

// StagingID is the opaque identifier of a staging-buffer registry entry. IDs
// are assigned monotonically at creation and are never reused.
type StagingID uint64

// Renderer owns the image and staging-buffer registries, the memory
// allocator, and the submission queue for a single device, and runs the
// deferred-reclaim protocol across them.
//
// All Renderer methods must be called from the renderer's owning thread; the
// renderer performs no internal locking. GPU work executes asynchronously on
// the device's own timeline and is coupled to CPU calls only through the
// completion counter. Alive clones held by handles may be released from other
// threads; the liveness count itself is atomic, and any further
// synchronization is the sharing caller's obligation.
type Renderer struct {
	logger    *slog.Logger
	driver    Driver
	allocator MemoryAllocator
	timeline  Timeline

	flags                   CreateFlags
	dedicatedImageThreshold int

	images      *swiss.Map[ImageID, *imageEntry]
	nextImageID ImageID

	stagingBuffers *swiss.Map[StagingID, *stagingEntry]
	nextStagingID  StagingID

	// pending holds in-flight submissions ordered by strictly increasing
	// target value.
	pending     []*submission
	submitCount uint64

	// lastCompleted is the most recent counter value observed by a reclaim
	// pass, kept for Statistics.
	lastCompleted uint64

	destroyed bool
}

func (r *Renderer) allocateImageID() ImageID {
	id := r.nextImageID
	r.nextImageID++
	return id
}

func (r *Renderer) allocateStagingID() StagingID {
	id := r.nextStagingID
	r.nextStagingID++
	return id
}
