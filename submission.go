package render

import (
	"fmt"
	"time"

	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

// submission is one batch of GPU work in flight: the completion-counter value
// it signals and the liveness clones it holds until retirement.
type submission struct {
	target    uint64
	keepAlive []Alive
}

// SubmissionBuilder accumulates the command buffers and resource references
// of one batch of GPU work before it is handed to Renderer.Submit. A builder
// is used for exactly one submission.
type SubmissionBuilder struct {
	renderer       *Renderer
	commandBuffers []core1_0.CommandBuffer
	keepAlive      []Alive
	submitted      bool
}

// BeginSubmission opens a new pending submission.
func (r *Renderer) BeginSubmission() *SubmissionBuilder {
	r.logger.Debug("Renderer::BeginSubmission")

	if r.destroyed {
		panic("attempted to begin a submission with a destroyed Renderer")
	}

	return &SubmissionBuilder{renderer: r}
}

// AddCommandBuffers attaches recorded work to the submission. The tracker
// treats the buffers as opaque and hands them to the timeline on Submit.
func (b *SubmissionBuilder) AddCommandBuffers(commandBuffers ...core1_0.CommandBuffer) {
	b.commandBuffers = append(b.commandBuffers, commandBuffers...)
}

// Retain records that this submission's GPU work touches the resource behind
// alive. The submission holds its own clone for its entire pendency, so
// dropping every public handle cannot destroy the resource while the
// submission is in flight. Retain may be called any number of times,
// including zero.
func (b *SubmissionBuilder) Retain(alive Alive) {
	b.keepAlive = append(b.keepAlive, alive.Clone())
}

// RetainImage records that this submission's GPU work touches image.
func (b *SubmissionBuilder) RetainImage(image *Image) {
	b.Retain(image.alive)
}

// RetainStagingBuffer records that this submission's GPU work touches
// staging.
func (b *SubmissionBuilder) RetainStagingBuffer(staging *StagingBuffer) {
	b.Retain(staging.alive)
}

// Submit issues the builder's work to the device, asking the completion
// counter to reach the next value (one past the previous submission's) when
// the work finishes, enqueues the submission record, and returns the assigned
// value. Submissions complete in submission order because they share one
// queue.
//
// If the device rejects the submission, the builder's retained clones are
// released, nothing is enqueued, the counter value is not consumed, and the
// device error is returned.
func (r *Renderer) Submit(b *SubmissionBuilder) (uint64, common.VkResult, error) {
	r.logger.Debug("Renderer::Submit")

	if r.destroyed {
		panic("attempted to submit with a destroyed Renderer")
	}
	if b.renderer != r {
		panic("attempted to submit a SubmissionBuilder that belongs to a different Renderer")
	}
	if b.submitted {
		panic("attempted to submit a SubmissionBuilder a second time")
	}
	b.submitted = true

	target := r.submitCount + 1

	res, err := r.timeline.Submit(b.commandBuffers, target)
	if err != nil {
		for _, alive := range b.keepAlive {
			alive.Release()
		}
		b.keepAlive = nil

		return 0, res, err
	}

	r.submitCount = target
	r.pending = append(r.pending, &submission{
		target:    target,
		keepAlive: b.keepAlive,
	})
	b.keepAlive = nil

	return target, res, nil
}

// Wait blocks the calling thread until the device-side completion counter
// reaches target or timeout elapses, in which case it returns
// core1_0.VKTimeout. It is intended for explicit drain paths, not
// steady-state frame pacing; timing out does not affect device-side
// execution. Waiting for a value that no submission was assigned is a
// programming error.
func (r *Renderer) Wait(target uint64, timeout time.Duration) (common.VkResult, error) {
	r.logger.Debug("Renderer::Wait", slog.Uint64("Target", target))

	if r.destroyed {
		panic("attempted to wait with a destroyed Renderer")
	}
	if target > r.submitCount {
		panic(fmt.Sprintf("attempted to wait for completion value %d, but only %d submissions have been issued", target, r.submitCount))
	}

	return r.timeline.Wait(target, timeout)
}
