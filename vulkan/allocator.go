package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/vam"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
	"github.com/vkngwrapper/extensions/v2/khr_external_memory_capabilities"
	"github.com/vkngwrapper/render"
	"golang.org/x/exp/slog"
	"unsafe"
)

// AllocatorOptions configures the vam allocator backing a renderer.
type AllocatorOptions struct {
	// PreferredLargeHeapBlockSize is the block size used for pooled
	// allocations on heaps 1GB and larger. 0 selects vam's default of 256MB.
	PreferredLargeHeapBlockSize int
	// VulkanCallbacks is an optional set of allocation callbacks applied to
	// device memory allocated through this allocator
	VulkanCallbacks *driver.AllocationCallbacks
	// HeapSizeLimits caps how much memory may be allocated from each heap.
	// Either leave this nil or provide one entry per heap, with -1 for
	// unlimited heaps.
	HeapSizeLimits []int
	// ExternalMemoryHandleTypes indicates, per memory type, the external
	// handle types that device memory allocations should be shareable with
	ExternalMemoryHandleTypes []khr_external_memory_capabilities.ExternalMemoryHandleTypeFlags
}

// Allocator implements render.MemoryAllocator over a vam.Allocator. Because
// a renderer drives all of its device memory traffic from a single goroutine,
// the underlying allocator is created externally-synchronized.
type Allocator struct {
	logger    *slog.Logger
	allocator *vam.Allocator

	outstandingBlocks int
}

// NewAllocator creates a vam.Allocator for the provided device and wraps it
// for use by a renderer.
func NewAllocator(logger *slog.Logger, instance core1_0.Instance, physicalDevice core1_0.PhysicalDevice, device core1_0.Device, options AllocatorOptions) (*Allocator, error) {
	vamAllocator, err := vam.New(logger, instance, physicalDevice, device, vam.CreateOptions{
		Flags:                       vam.AllocatorCreateExternallySynchronized,
		PreferredLargeHeapBlockSize: options.PreferredLargeHeapBlockSize,
		VulkanCallbacks:             options.VulkanCallbacks,
		HeapSizeLimits:              options.HeapSizeLimits,
		ExternalMemoryHandleTypes:   options.ExternalMemoryHandleTypes,
	})
	if err != nil {
		return nil, err
	}

	return &Allocator{
		logger:    logger,
		allocator: vamAllocator,
	}, nil
}

func allocationCreateInfo(flags render.AllocationFlags) vam.AllocationCreateInfo {
	o := vam.AllocationCreateInfo{
		Usage: vam.MemoryUsageAuto,
	}

	if flags&render.AllocationDedicated != 0 {
		o.Flags |= vam.AllocationCreateDedicatedMemory
	}
	if flags&render.AllocationHostAccess != 0 {
		o.Flags |= vam.AllocationCreateHostAccessSequentialWrite
	}

	return o
}

// AllocateForImage allocates memory suitable for the provided image. The
// image must have been created by this package's Driver.
func (a *Allocator) AllocateForImage(image render.DriverImage, flags render.AllocationFlags) (render.MemoryBlock, common.VkResult, error) {
	a.logger.Debug("Allocator::AllocateForImage", slog.String("Flags", flags.String()))

	vulkanImage, ok := image.(*Image)
	if !ok {
		panic("the image was not created by this package's Driver")
	}

	block := &MemoryBlock{allocator: a}
	res, err := a.allocator.AllocateMemoryForImage(vulkanImage.image, allocationCreateInfo(flags), &block.allocation)
	if err != nil {
		return nil, res, err
	}

	a.outstandingBlocks++
	return block, res, nil
}

// AllocateForBuffer allocates memory suitable for the provided buffer. The
// buffer must have been created by this package's Driver.
func (a *Allocator) AllocateForBuffer(buffer render.DriverBuffer, flags render.AllocationFlags) (render.MemoryBlock, common.VkResult, error) {
	a.logger.Debug("Allocator::AllocateForBuffer", slog.String("Flags", flags.String()))

	vulkanBuffer, ok := buffer.(*Buffer)
	if !ok {
		panic("the buffer was not created by this package's Driver")
	}

	block := &MemoryBlock{allocator: a}
	res, err := a.allocator.AllocateMemoryForBuffer(vulkanBuffer.buffer, allocationCreateInfo(flags), &block.allocation)
	if err != nil {
		return nil, res, err
	}

	a.outstandingBlocks++
	return block, res, nil
}

// OutstandingBlocks reports how many blocks have been allocated and not yet
// freed.
func (a *Allocator) OutstandingBlocks() int {
	return a.outstandingBlocks
}

// Destroy verifies that no memory blocks remain outstanding. It returns an
// error, and the allocator remains usable, if any block has not been freed.
func (a *Allocator) Destroy() error {
	a.logger.Debug("Allocator::Destroy")

	if a.outstandingBlocks > 0 {
		return errors.Newf("the allocator still has %d memory blocks that have not been freed", a.outstandingBlocks)
	}

	return nil
}

// MemoryBlock implements render.MemoryBlock over a single vam.Allocation.
type MemoryBlock struct {
	allocator  *Allocator
	allocation vam.Allocation
}

// Size reports the block's size in bytes, which may be larger than the size
// requested for the resource it was allocated for.
func (b *MemoryBlock) Size() int {
	return b.allocation.Size()
}

// Map maps the block into host memory and returns a pointer to the start of
// the block. Maps and unmaps are reference-counted by the allocator.
func (b *MemoryBlock) Map() (unsafe.Pointer, common.VkResult, error) {
	return b.allocation.Map()
}

// Unmap releases a mapping created with Map.
func (b *MemoryBlock) Unmap() error {
	return b.allocation.Unmap()
}

// Flush flushes host writes in the provided range to the device. It is a
// no-op for host-coherent memory.
func (b *MemoryBlock) Flush(offset, size int) (common.VkResult, error) {
	return b.allocation.Flush(offset, size)
}

// BindImage binds the block's memory to the provided image.
func (b *MemoryBlock) BindImage(image render.DriverImage) (common.VkResult, error) {
	vulkanImage, ok := image.(*Image)
	if !ok {
		panic("the image was not created by this package's Driver")
	}

	return b.allocation.BindImageMemory(vulkanImage.image)
}

// BindBuffer binds the block's memory to the provided buffer.
func (b *MemoryBlock) BindBuffer(buffer render.DriverBuffer) (common.VkResult, error) {
	vulkanBuffer, ok := buffer.(*Buffer)
	if !ok {
		panic("the buffer was not created by this package's Driver")
	}

	return b.allocation.BindBufferMemory(vulkanBuffer.buffer)
}

// Free returns the block's memory to the allocator. The block must not be
// used afterward.
func (b *MemoryBlock) Free() error {
	err := b.allocation.Free()
	if err != nil {
		return err
	}

	b.allocator.outstandingBlocks--
	return nil
}
