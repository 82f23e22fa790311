package render

import (
	"time"
	"unsafe"

	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// AllocationFlags adjust how a MemoryAllocator places a single block.
type AllocationFlags int32

var allocationFlagsMapping = common.NewFlagStringMapping[AllocationFlags]()

func (f AllocationFlags) Register(str string) {
	allocationFlagsMapping.Register(f, str)
}
func (f AllocationFlags) String() string {
	return allocationFlagsMapping.FlagsToString(f)
}

const (
	// AllocationDedicated requests a dedicated allocation sized and scoped
	// exclusively to the resource, rather than a region of a pooled block.
	// Implementations must also promote to a dedicated allocation when the
	// device reports that the resource requires or prefers one, regardless of
	// this flag.
	AllocationDedicated AllocationFlags = 1 << iota
	// AllocationHostAccess requests memory that the host can map and write
	// sequentially. Blocks allocated without this flag may not support Map.
	AllocationHostAccess
)

func init() {
	AllocationDedicated.Register("AllocationDedicated")
	AllocationHostAccess.Register("AllocationHostAccess")
}

// Driver is the slice of device behavior the renderer consumes to create
// resources. The vulkan package provides the production implementation
// against a core1_0.Device; tests substitute fakes. Keeping the device behind
// a narrow interface keeps the liveness/submission protocol independent of
// the concrete graphics API.
type Driver interface {
	// ImageFormatProperties is the capability oracle consulted before image
	// creation: it reports the maximum extent, mip levels, array layers, and
	// sample counts the device supports for the format/usage combination. If
	// the combination cannot be created at all, it returns
	// core1_0.VKErrorFormatNotSupported.
	ImageFormatProperties(format core1_0.Format, imageType core1_0.ImageType, tiling core1_0.ImageTiling, usage core1_0.ImageUsageFlags) (core1_0.ImageFormatProperties, common.VkResult, error)
	// CreateImage creates an image object with no memory bound to it.
	CreateImage(o core1_0.ImageCreateInfo) (DriverImage, common.VkResult, error)
	// CreateBuffer creates a buffer object with no memory bound to it.
	CreateBuffer(o core1_0.BufferCreateInfo) (DriverBuffer, common.VkResult, error)
}

// DriverImage is a device image created by a Driver, together with the view
// the renderer creates for it once memory has been bound.
type DriverImage interface {
	// MemoryRequirements reports the size, alignment, and memory type mask
	// that memory bound to this image must satisfy.
	MemoryRequirements() core1_0.MemoryRequirements
	// CreateView creates the image's view. Memory must already be bound.
	CreateView(format core1_0.Format) (common.VkResult, error)
	// Destroy destroys the view, if one was created, and then the image. It
	// never destroys memory.
	Destroy()
}

// DriverBuffer is a device buffer created by a Driver.
type DriverBuffer interface {
	// MemoryRequirements reports the size, alignment, and memory type mask
	// that memory bound to this buffer must satisfy.
	MemoryRequirements() core1_0.MemoryRequirements
	// Destroy destroys the buffer. It never destroys memory.
	Destroy()
}

// MemoryBlock is a single device memory allocation handed out by a
// MemoryAllocator. Exactly one registry entry owns each block.
type MemoryBlock interface {
	// Size is the byte size of the block.
	Size() int
	// Map exposes the block to host writes and returns the base pointer.
	// Offsets are applied by pointer arithmetic on the returned base. Only
	// valid for blocks allocated with AllocationHostAccess.
	Map() (unsafe.Pointer, common.VkResult, error)
	// Unmap releases a mapping obtained from Map.
	Unmap() error
	// Flush makes host writes in the given range visible to the device. It is
	// required for correctness on non-coherent memory types and harmless on
	// coherent ones.
	Flush(offset, size int) (common.VkResult, error)
	// BindImage binds the block's memory to an image created by the same
	// Driver the block's allocator serves.
	BindImage(image DriverImage) (common.VkResult, error)
	// BindBuffer binds the block's memory to a buffer created by the same
	// Driver the block's allocator serves.
	BindBuffer(buffer DriverBuffer) (common.VkResult, error)
	// Free returns the block to its allocator. The caller must guarantee that
	// no pending GPU work references the block.
	Free() error
}

// MemoryAllocator hands out device memory for the renderer's resources. It
// performs free-list bookkeeping only and never issues GPU work. Device
// memory exhaustion surfaces as core1_0.VKErrorOutOfDeviceMemory and host
// memory exhaustion as core1_0.VKErrorOutOfHostMemory; the renderer never
// retries an allocation internally.
type MemoryAllocator interface {
	// AllocateForImage allocates a block satisfying the image's memory
	// requirements.
	AllocateForImage(image DriverImage, flags AllocationFlags) (MemoryBlock, common.VkResult, error)
	// AllocateForBuffer allocates a block satisfying the buffer's memory
	// requirements.
	AllocateForBuffer(buffer DriverBuffer, flags AllocationFlags) (MemoryBlock, common.VkResult, error)
	// Destroy tears the allocator down. Every block must have been freed.
	Destroy() error
}

// Timeline combines the device's submission queue with its completion
// counter (a fence ring or timeline semaphore, in Vulkan terms). Batches
// complete in submission order and the counter only increases.
type Timeline interface {
	// Submit hands recorded work to the device queue with the request that
	// the completion counter reach signalValue once the batch finishes.
	Submit(commandBuffers []core1_0.CommandBuffer, signalValue uint64) (common.VkResult, error)
	// CompletedValue reads the current completion counter. Failures indicate
	// the device connection is lost.
	CompletedValue() (uint64, common.VkResult, error)
	// Wait blocks until the completion counter reaches value or timeout
	// elapses, in which case it returns core1_0.VKTimeout. Timing out does
	// not affect device-side execution.
	Wait(value uint64, timeout time.Duration) (common.VkResult, error)
	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() (common.VkResult, error)
	// Destroy releases the timeline's device objects. All submitted work must
	// have completed.
	Destroy()
}
