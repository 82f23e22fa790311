package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"golang.org/x/exp/slog"
)

// PollAndReclaim reads the device-side completion counter once, retires every
// pending submission whose target value has been reached (releasing the
// liveness clones those submissions held), and then destroys every registry
// entry whose liveness has dropped. It returns the observed counter value.
//
// An entry referenced by a still-pending submission always survives the
// destroy pass, because the submission's clone keeps its liveness count above
// zero even when every public handle is gone. An entry no submission ever
// referenced is destroyed as soon as its handles are gone.
//
// A failure reading the counter means the device connection is lost; the
// error is returned and no destroy pass runs.
func (r *Renderer) PollAndReclaim() (uint64, common.VkResult, error) {
	r.logger.Debug("Renderer::PollAndReclaim")

	if r.destroyed {
		panic("attempted to reclaim with a destroyed Renderer")
	}

	completed, res, err := r.timeline.CompletedValue()
	if err != nil {
		return 0, res, errors.Wrap(err, "the device completion counter could not be read")
	}
	r.lastCompleted = completed

	r.retireSubmissions(completed)

	return completed, res, r.destroyDroppedEntries()
}

// retireSubmissions releases the clones of every pending submission whose
// target value has been reached, oldest first. Pending submissions are
// ordered by target, so retirement never skips or reorders records.
func (r *Renderer) retireSubmissions(completed uint64) {
	retired := 0
	for _, pending := range r.pending {
		if pending.target > completed {
			break
		}

		for _, alive := range pending.keepAlive {
			alive.Release()
		}
		retired++
	}

	if retired > 0 {
		r.pending = r.pending[retired:]
		r.logger.Debug("Renderer::retireSubmissions",
			slog.Int("Retired", retired),
			slog.Uint64("Completed", completed),
		)
	}
}

// destroyDroppedEntries destroys every image and staging entry whose liveness
// has dropped. Destruction is not expected to fail once liveness and
// completion have been established; a failure here is surfaced as the narrow
// fatal path it is.
func (r *Renderer) destroyDroppedEntries() error {
	var deadImages []ImageID
	r.images.Iter(func(id ImageID, entry *imageEntry) bool {
		if entry.liveness.Dropped() {
			deadImages = append(deadImages, id)
		}
		return false
	})

	var err error
	for _, id := range deadImages {
		entry, ok := r.images.Get(id)
		if !ok {
			continue
		}
		r.images.Delete(id)

		if destroyErr := r.destroyImageEntry(entry); destroyErr != nil && err == nil {
			err = destroyErr
		}
	}

	var deadStaging []StagingID
	r.stagingBuffers.Iter(func(id StagingID, entry *stagingEntry) bool {
		if entry.liveness.Dropped() {
			deadStaging = append(deadStaging, id)
		}
		return false
	})

	for _, id := range deadStaging {
		entry, ok := r.stagingBuffers.Get(id)
		if !ok {
			continue
		}
		r.stagingBuffers.Delete(id)

		if destroyErr := r.destroyStagingEntry(entry); destroyErr != nil && err == nil {
			err = destroyErr
		}
	}

	return err
}

// destroyStagingEntry destroys an entry's device objects in reverse creation
// order: the buffer, then the memory.
func (r *Renderer) destroyStagingEntry(entry *stagingEntry) error {
	r.logger.Debug("Renderer::destroyStagingEntry", slog.Uint64("StagingID", uint64(entry.id)))

	entry.buffer.Destroy()
	return entry.memory.Free()
}

// Destroy tears the renderer down. It force-waits for full device idle so the
// destroy pass cannot race in-flight work, retires every pending submission,
// destroys every entry whose liveness has dropped, and then destroys the
// timeline and the allocator. Calling Destroy again afterward is safe and
// destroys nothing further.
//
// Entries still kept alive by public handles are never destroyed out from
// under their holders; they are reported in the returned error instead.
func (r *Renderer) Destroy() error {
	r.logger.Debug("Renderer::Destroy")

	if r.destroyed {
		return nil
	}

	if _, err := r.timeline.WaitIdle(); err != nil {
		return errors.Wrap(err, "the device could not be drained during renderer teardown")
	}

	r.retireSubmissions(r.submitCount)
	err := r.destroyDroppedEntries()

	r.destroyed = true
	r.pending = nil
	r.timeline.Destroy()

	if err != nil {
		return err
	}

	liveImages := r.images.Count()
	liveStaging := r.stagingBuffers.Count()
	if liveImages > 0 || liveStaging > 0 {
		return errors.Newf("the renderer was destroyed while %d images and %d staging buffers were still alive", liveImages, liveStaging)
	}

	return r.allocator.Destroy()
}
