package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
	"github.com/vkngwrapper/extensions/v2/khr_external_memory_capabilities"
	"github.com/vkngwrapper/render"
	"golang.org/x/exp/slog"
)

// RendererOptions configures NewRenderer.
type RendererOptions struct {
	// Flags indicates specific renderer behaviors to activate
	Flags render.CreateFlags
	// DedicatedImageThreshold is the image memory size, in bytes, at which
	// images stop sharing pooled memory blocks and receive dedicated
	// allocations. 0 selects render.DefaultDedicatedImageThreshold.
	DedicatedImageThreshold int

	// PreferredLargeHeapBlockSize is the block size used for pooled
	// allocations on heaps 1GB and larger. 0 selects vam's default of 256MB.
	PreferredLargeHeapBlockSize int
	// VulkanCallbacks is an optional set of allocation callbacks applied to
	// every Vulkan object and device memory allocation the renderer makes
	VulkanCallbacks *driver.AllocationCallbacks
	// HeapSizeLimits caps how much memory may be allocated from each heap.
	// Either leave this nil or provide one entry per heap, with -1 for
	// unlimited heaps.
	HeapSizeLimits []int
	// ExternalMemoryHandleTypes indicates, per memory type, the external
	// handle types that device memory allocations should be shareable with
	ExternalMemoryHandleTypes []khr_external_memory_capabilities.ExternalMemoryHandleTypeFlags
}

// NewRenderer assembles a render.Renderer against a live device: a Driver
// for image and buffer creation, a vam-backed Allocator for device memory,
// and a FenceTimeline submitting to the provided queue.
//
// The renderer does not own the instance, device, or queue. It must be
// destroyed before they are.
func NewRenderer(logger *slog.Logger, instance core1_0.Instance, physicalDevice core1_0.PhysicalDevice, device core1_0.Device, queue core1_0.Queue, options RendererOptions) (*render.Renderer, error) {
	if device == nil {
		return nil, errors.New("attempted to create a renderer against a nil device")
	}
	if queue == nil {
		return nil, errors.New("attempted to create a renderer against a nil queue")
	}

	allocator, err := NewAllocator(logger, instance, physicalDevice, device, AllocatorOptions{
		PreferredLargeHeapBlockSize: options.PreferredLargeHeapBlockSize,
		VulkanCallbacks:             options.VulkanCallbacks,
		HeapSizeLimits:              options.HeapSizeLimits,
		ExternalMemoryHandleTypes:   options.ExternalMemoryHandleTypes,
	})
	if err != nil {
		return nil, err
	}

	return render.New(
		logger,
		NewDriver(logger, physicalDevice, device, options.VulkanCallbacks),
		allocator,
		NewFenceTimeline(logger, device, queue, options.VulkanCallbacks),
		render.CreateOptions{
			Flags:                   options.Flags,
			DedicatedImageThreshold: options.DedicatedImageThreshold,
		},
	)
}
