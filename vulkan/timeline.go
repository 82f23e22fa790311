package vulkan

import (
	"fmt"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
	"golang.org/x/exp/slog"
	"time"
)

type pendingFence struct {
	value uint64
	fence core1_0.Fence
}

// FenceTimeline implements render.Timeline by pairing each submission with a
// fence from a reusable pool. Because every submission goes to the same
// queue, fences signal in submission order, and the completed value is the
// value of the newest fence observed signaled.
type FenceTimeline struct {
	logger    *slog.Logger
	device    core1_0.Device
	queue     core1_0.Queue
	callbacks *driver.AllocationCallbacks

	pending    []pendingFence
	freeFences []core1_0.Fence
	completed  uint64
}

// NewFenceTimeline creates a FenceTimeline that submits to the provided
// queue. The queue must not be used by any other timeline.
func NewFenceTimeline(logger *slog.Logger, device core1_0.Device, queue core1_0.Queue, callbacks *driver.AllocationCallbacks) *FenceTimeline {
	return &FenceTimeline{
		logger:    logger,
		device:    device,
		queue:     queue,
		callbacks: callbacks,
	}
}

func (t *FenceTimeline) takeFence() (core1_0.Fence, common.VkResult, error) {
	count := len(t.freeFences)
	if count > 0 {
		fence := t.freeFences[count-1]
		t.freeFences = t.freeFences[:count-1]
		return fence, core1_0.VKSuccess, nil
	}

	return t.device.CreateFence(t.callbacks, core1_0.FenceCreateInfo{})
}

// advance retires signaled fences from the front of the pending list,
// recycling each one and raising the completed value to its signal value.
func (t *FenceTimeline) advance() (common.VkResult, error) {
	for len(t.pending) > 0 {
		next := t.pending[0]

		res, err := next.fence.Status()
		if err != nil {
			return res, err
		}
		if res == core1_0.VKNotReady {
			break
		}

		res, err = next.fence.Reset()
		if err != nil {
			return res, err
		}

		t.completed = next.value
		t.freeFences = append(t.freeFences, next.fence)
		t.pending = t.pending[1:]
	}

	return core1_0.VKSuccess, nil
}

// Submit submits the provided command buffers to the timeline's queue with a
// fence that will signal the provided value when the work completes. Signal
// values must strictly increase across Submit calls.
func (t *FenceTimeline) Submit(commandBuffers []core1_0.CommandBuffer, signalValue uint64) (common.VkResult, error) {
	t.logger.Debug("FenceTimeline::Submit", slog.Uint64("SignalValue", signalValue))

	lastValue := t.completed
	if len(t.pending) > 0 {
		lastValue = t.pending[len(t.pending)-1].value
	}
	if signalValue <= lastValue {
		panic(fmt.Sprintf("attempted to submit signal value %d when %d had already been issued", signalValue, lastValue))
	}

	fence, res, err := t.takeFence()
	if err != nil {
		return res, err
	}

	res, err = t.queue.Submit(fence, []core1_0.SubmitInfo{
		{
			CommandBuffers: commandBuffers,
		},
	})
	if err != nil {
		// The fence was never submitted, so it is still unsignaled and can
		// be reused.
		t.freeFences = append(t.freeFences, fence)
		return res, err
	}

	t.pending = append(t.pending, pendingFence{value: signalValue, fence: fence})
	return res, nil
}

// CompletedValue polls the pending fences and reports the highest signal
// value the device has completed.
func (t *FenceTimeline) CompletedValue() (uint64, common.VkResult, error) {
	res, err := t.advance()
	if err != nil {
		return 0, res, err
	}

	return t.completed, res, nil
}

// Wait blocks until the provided signal value completes or the timeout
// elapses, returning core1_0.VKTimeout in the latter case. When the exact
// value has no fence of its own, Wait waits on the next fence submitted
// after it.
func (t *FenceTimeline) Wait(value uint64, timeout time.Duration) (common.VkResult, error) {
	t.logger.Debug("FenceTimeline::Wait", slog.Uint64("Value", value))

	if value <= t.completed {
		return core1_0.VKSuccess, nil
	}

	var fence core1_0.Fence
	for _, pending := range t.pending {
		if pending.value >= value {
			fence = pending.fence
			break
		}
	}
	if fence == nil {
		panic(fmt.Sprintf("attempted to wait for signal value %d, which was never submitted", value))
	}

	res, err := fence.Wait(timeout)
	if err != nil || res == core1_0.VKTimeout {
		return res, err
	}

	return t.advance()
}

// WaitIdle blocks until the device is idle and retires every pending fence.
func (t *FenceTimeline) WaitIdle() (common.VkResult, error) {
	t.logger.Debug("FenceTimeline::WaitIdle")

	res, err := t.device.WaitIdle()
	if err != nil {
		return res, err
	}

	return t.advance()
}

// Destroy destroys the timeline's fences. All submitted work must have
// completed.
func (t *FenceTimeline) Destroy() {
	t.logger.Debug("FenceTimeline::Destroy")

	for _, pending := range t.pending {
		pending.fence.Destroy(t.callbacks)
	}
	t.pending = nil

	for _, fence := range t.freeFences {
		fence.Destroy(t.callbacks)
	}
	t.freeFences = nil
}
