package render

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// FakeGPU bundles a scripted driver, allocator, and timeline sharing one
// event log, for driving a Renderer without a device. Zero values of the
// fakes' Fail fields mean success.
type FakeGPU struct {
	Driver    *FakeDriver
	Allocator *FakeAllocator
	Timeline  *FakeTimeline

	// Events records destruction and free order across the three fakes.
	Events []string
}

// NewFakeGPU creates a fake device stack that supports
// core1_0.FormatB8G8R8A8SRGB images up to 4096x4096 with 1x and 4x sampling.
func NewFakeGPU() *FakeGPU {
	gpu := &FakeGPU{}
	gpu.Driver = &FakeDriver{
		gpu: gpu,
		FormatLimits: map[core1_0.Format]core1_0.ImageFormatProperties{
			core1_0.FormatB8G8R8A8SRGB: {
				MaxExtent:       core1_0.Extent3D{Width: 4096, Height: 4096, Depth: 1},
				MaxMipLevels:    13,
				MaxArrayLayers:  256,
				SampleCounts:    core1_0.Samples1 | core1_0.Samples4,
				MaxResourceSize: 1 << 31,
			},
		},
		ImageMemorySize: 1024,
	}
	gpu.Allocator = &FakeAllocator{gpu: gpu}
	gpu.Timeline = &FakeTimeline{}
	return gpu
}

func (g *FakeGPU) record(event string) {
	g.Events = append(g.Events, event)
}

// FakeDriver implements Driver from a table of per-format capabilities.
type FakeDriver struct {
	gpu *FakeGPU

	// FormatLimits is the capability table consulted by
	// ImageFormatProperties. Formats absent from it are unsupported.
	FormatLimits map[core1_0.Format]core1_0.ImageFormatProperties

	// ImageMemorySize is the memory size every created image reports.
	ImageMemorySize int

	FailCreateImage  common.VkResult
	FailCreateBuffer common.VkResult
	FailCreateView   common.VkResult

	Images  []*FakeImage
	Buffers []*FakeBuffer
}

func (d *FakeDriver) ImageFormatProperties(format core1_0.Format, imageType core1_0.ImageType, tiling core1_0.ImageTiling, usage core1_0.ImageUsageFlags) (core1_0.ImageFormatProperties, common.VkResult, error) {
	limits, ok := d.FormatLimits[format]
	if !ok {
		return core1_0.ImageFormatProperties{}, core1_0.VKErrorFormatNotSupported, core1_0.VKErrorFormatNotSupported.ToError()
	}

	return limits, core1_0.VKSuccess, nil
}

func (d *FakeDriver) CreateImage(o core1_0.ImageCreateInfo) (DriverImage, common.VkResult, error) {
	if d.FailCreateImage != core1_0.VKSuccess {
		return nil, d.FailCreateImage, d.FailCreateImage.ToError()
	}

	image := &FakeImage{
		gpu:            d.gpu,
		Name:           fmt.Sprintf("image%d", len(d.Images)+1),
		CreateInfo:     o,
		MemorySize:     d.ImageMemorySize,
		FailCreateView: d.FailCreateView,
	}
	d.Images = append(d.Images, image)
	return image, core1_0.VKSuccess, nil
}

func (d *FakeDriver) CreateBuffer(o core1_0.BufferCreateInfo) (DriverBuffer, common.VkResult, error) {
	if d.FailCreateBuffer != core1_0.VKSuccess {
		return nil, d.FailCreateBuffer, d.FailCreateBuffer.ToError()
	}

	buffer := &FakeBuffer{
		gpu:        d.gpu,
		Name:       fmt.Sprintf("buffer%d", len(d.Buffers)+1),
		CreateInfo: o,
	}
	d.Buffers = append(d.Buffers, buffer)
	return buffer, core1_0.VKSuccess, nil
}

// FakeImage implements DriverImage and records view creation and destruction.
type FakeImage struct {
	gpu *FakeGPU

	Name       string
	CreateInfo core1_0.ImageCreateInfo
	MemorySize int

	FailCreateView common.VkResult
	ViewCreated    bool
	ViewFormat     core1_0.Format
	Destroyed      bool
}

func (i *FakeImage) MemoryRequirements() core1_0.MemoryRequirements {
	return core1_0.MemoryRequirements{
		Size:           i.MemorySize,
		Alignment:      16,
		MemoryTypeBits: 1,
	}
}

func (i *FakeImage) CreateView(format core1_0.Format) (common.VkResult, error) {
	if i.FailCreateView != core1_0.VKSuccess {
		return i.FailCreateView, i.FailCreateView.ToError()
	}

	i.ViewCreated = true
	i.ViewFormat = format
	return core1_0.VKSuccess, nil
}

func (i *FakeImage) Destroy() {
	if i.ViewCreated {
		i.gpu.record("destroy view " + i.Name)
	}
	i.gpu.record("destroy " + i.Name)
	i.Destroyed = true
}

// FakeBuffer implements DriverBuffer.
type FakeBuffer struct {
	gpu *FakeGPU

	Name       string
	CreateInfo core1_0.BufferCreateInfo
	Destroyed  bool
}

func (b *FakeBuffer) MemoryRequirements() core1_0.MemoryRequirements {
	return core1_0.MemoryRequirements{
		Size:           b.CreateInfo.Size,
		Alignment:      16,
		MemoryTypeBits: 1,
	}
}

func (b *FakeBuffer) Destroy() {
	b.gpu.record("destroy " + b.Name)
	b.Destroyed = true
}

// FakeAllocator implements MemoryAllocator with blocks backed by host byte
// slices.
type FakeAllocator struct {
	gpu *FakeGPU

	FailAllocate common.VkResult
	FailBind     common.VkResult

	Blocks     []*FakeMemoryBlock
	LiveBlocks int
	Destroyed  bool
}

func (a *FakeAllocator) allocate(size int, flags AllocationFlags) (MemoryBlock, common.VkResult, error) {
	if a.FailAllocate != core1_0.VKSuccess {
		return nil, a.FailAllocate, a.FailAllocate.ToError()
	}

	block := &FakeMemoryBlock{
		gpu:      a.gpu,
		Name:     fmt.Sprintf("block%d", len(a.Blocks)+1),
		Bytes:    make([]byte, size),
		Flags:    flags,
		FailBind: a.FailBind,
	}
	a.Blocks = append(a.Blocks, block)
	a.LiveBlocks++
	return block, core1_0.VKSuccess, nil
}

func (a *FakeAllocator) AllocateForImage(image DriverImage, flags AllocationFlags) (MemoryBlock, common.VkResult, error) {
	return a.allocate(image.MemoryRequirements().Size, flags)
}

func (a *FakeAllocator) AllocateForBuffer(buffer DriverBuffer, flags AllocationFlags) (MemoryBlock, common.VkResult, error) {
	return a.allocate(buffer.MemoryRequirements().Size, flags)
}

func (a *FakeAllocator) Destroy() error {
	if a.LiveBlocks > 0 {
		return errors.Newf("attempted to destroy an allocator with %d unfreed memory blocks", a.LiveBlocks)
	}

	a.Destroyed = true
	return nil
}

// FakeMemoryBlock implements MemoryBlock over a host byte slice.
type FakeMemoryBlock struct {
	gpu *FakeGPU

	Name  string
	Bytes []byte
	Flags AllocationFlags

	FailBind common.VkResult

	BoundImage  DriverImage
	BoundBuffer DriverBuffer
	MapCount    int
	Flushes     [][2]int
	Freed       bool
}

func (b *FakeMemoryBlock) Size() int {
	return len(b.Bytes)
}

func (b *FakeMemoryBlock) Map() (unsafe.Pointer, common.VkResult, error) {
	if b.Flags&AllocationHostAccess == 0 {
		return nil, core1_0.VKErrorMemoryMapFailed, errors.New("attempted to map a block that does not permit host access")
	}

	b.MapCount++
	return unsafe.Pointer(&b.Bytes[0]), core1_0.VKSuccess, nil
}

func (b *FakeMemoryBlock) Unmap() error {
	if b.MapCount < 1 {
		return errors.New("attempted to unmap a block that is not mapped")
	}

	b.MapCount--
	return nil
}

func (b *FakeMemoryBlock) Flush(offset, size int) (common.VkResult, error) {
	b.Flushes = append(b.Flushes, [2]int{offset, size})
	return core1_0.VKSuccess, nil
}

func (b *FakeMemoryBlock) BindImage(image DriverImage) (common.VkResult, error) {
	if b.FailBind != core1_0.VKSuccess {
		return b.FailBind, b.FailBind.ToError()
	}

	b.BoundImage = image
	return core1_0.VKSuccess, nil
}

func (b *FakeMemoryBlock) BindBuffer(buffer DriverBuffer) (common.VkResult, error) {
	if b.FailBind != core1_0.VKSuccess {
		return b.FailBind, b.FailBind.ToError()
	}

	b.BoundBuffer = buffer
	return core1_0.VKSuccess, nil
}

func (b *FakeMemoryBlock) Free() error {
	if b.Freed {
		return errors.New("attempted to free a memory block twice")
	}

	b.Freed = true
	b.gpu.record("free " + b.Name)
	b.gpu.Allocator.LiveBlocks--
	return nil
}

// FakeTimeline implements Timeline with a manually-advanced completion
// counter.
type FakeTimeline struct {
	// Completed is the counter value CompletedValue reports. Tests advance
	// it to simulate GPU progress.
	Completed uint64

	// Submissions records the signal value of each successful Submit, and
	// CommandBufferCounts the number of command buffers it carried.
	Submissions         []uint64
	CommandBufferCounts []int

	FailSubmit    common.VkResult
	FailCompleted common.VkResult
	FailWaitIdle  common.VkResult

	CompletedCalls int
	WaitCalls      []uint64
	IdleWaits      int
	Destroyed      bool
}

func (t *FakeTimeline) Submit(commandBuffers []core1_0.CommandBuffer, signalValue uint64) (common.VkResult, error) {
	if t.FailSubmit != core1_0.VKSuccess {
		return t.FailSubmit, t.FailSubmit.ToError()
	}

	t.Submissions = append(t.Submissions, signalValue)
	t.CommandBufferCounts = append(t.CommandBufferCounts, len(commandBuffers))
	return core1_0.VKSuccess, nil
}

func (t *FakeTimeline) CompletedValue() (uint64, common.VkResult, error) {
	t.CompletedCalls++
	if t.FailCompleted != core1_0.VKSuccess {
		return 0, t.FailCompleted, t.FailCompleted.ToError()
	}

	return t.Completed, core1_0.VKSuccess, nil
}

func (t *FakeTimeline) Wait(value uint64, timeout time.Duration) (common.VkResult, error) {
	t.WaitCalls = append(t.WaitCalls, value)
	if value > t.Completed {
		return core1_0.VKTimeout, nil
	}

	return core1_0.VKSuccess, nil
}

func (t *FakeTimeline) WaitIdle() (common.VkResult, error) {
	if t.FailWaitIdle != core1_0.VKSuccess {
		return t.FailWaitIdle, t.FailWaitIdle.ToError()
	}

	t.IdleWaits++
	if count := len(t.Submissions); count > 0 && t.Submissions[count-1] > t.Completed {
		t.Completed = t.Submissions[count-1]
	}

	return core1_0.VKSuccess, nil
}

func (t *FakeTimeline) Destroy() {
	t.Destroyed = true
}
