package render

import (
	"math"
	"math/bits"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/memutils"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

// stagingEntry is one staging-buffer registry slot. The registry owns the
// buffer and its memory until the cleanup pass destroys the entry.
type stagingEntry struct {
	id       StagingID
	buffer   DriverBuffer
	memory   MemoryBlock
	liveness Liveness
	size     int
}

// StagingBuffer is a public handle to a transient host-visible buffer used to
// stage pixel data for upload to or download from device-local memory. Like
// Image handles, it carries a strong liveness marker: a staging buffer
// referenced by a pending submission is not destroyed until that submission
// completes.
type StagingBuffer struct {
	entry *stagingEntry
	alive Alive
}

// ID returns the entry's opaque identifier.
func (s *StagingBuffer) ID() StagingID { return s.entry.id }

// Size returns the buffer's byte size.
func (s *StagingBuffer) Size() int { return s.entry.size }

// Buffer returns the underlying device buffer for the drawing layer to record
// transfer commands against. The returned value is only valid while this
// handle, a clone of it, or a retaining submission keeps the entry alive.
func (s *StagingBuffer) Buffer() DriverBuffer { return s.entry.buffer }

// Alive returns the handle's strong liveness marker, for callers that retain
// resources directly.
func (s *StagingBuffer) Alive() Alive { return s.alive }

// Clone returns an additional handle to the same entry.
func (s *StagingBuffer) Clone() *StagingBuffer {
	return &StagingBuffer{entry: s.entry, alive: s.alive.Clone()}
}

// Release drops this handle's claim on the entry. The handle must not be used
// afterward.
func (s *StagingBuffer) Release() {
	s.alive.Release()
}

// Map exposes the staging memory to the host and returns its base pointer.
func (s *StagingBuffer) Map() (unsafe.Pointer, common.VkResult, error) {
	return s.entry.memory.Map()
}

// Unmap releases a mapping obtained from Map.
func (s *StagingBuffer) Unmap() error {
	return s.entry.memory.Unmap()
}

// Write copies data into the staging buffer at offset and flushes the written
// range, so the device observes the bytes even when the backing memory type
// is not host-coherent.
func (s *StagingBuffer) Write(offset int, data []byte) (common.VkResult, error) {
	if offset < 0 || offset > s.entry.size || len(data) > s.entry.size-offset {
		return core1_0.VKErrorUnknown, errors.Newf(
			"attempted to write %d bytes at offset %d of a %d-byte staging buffer",
			len(data), offset, s.entry.size)
	}
	if len(data) == 0 {
		return core1_0.VKSuccess, nil
	}

	ptr, res, err := s.entry.memory.Map()
	if err != nil {
		return res, err
	}

	mapped := unsafe.Slice((*byte)(ptr), s.entry.size)
	copy(mapped[offset:], data)

	res, err = s.entry.memory.Flush(offset, len(data))
	if err != nil {
		_ = s.entry.memory.Unmap()
		return res, err
	}

	return res, s.entry.memory.Unmap()
}

// CreateStagingBuffer creates a host-visible transfer buffer with bound
// memory, registers it, and returns a handle to it. When a later creation
// step fails, everything created by the earlier steps is destroyed before the
// error is returned.
func (r *Renderer) CreateStagingBuffer(size int) (handle *StagingBuffer, res common.VkResult, err error) {
	r.logger.Debug("Renderer::CreateStagingBuffer", slog.Int("Size", size))

	if r.destroyed {
		panic("attempted to create a staging buffer with a destroyed Renderer")
	}

	if size < 1 {
		return nil, core1_0.VKErrorUnknown, errors.Newf("attempted to create a staging buffer of %d bytes", size)
	}

	buffer, res, err := r.driver.CreateBuffer(core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       core1_0.BufferUsageTransferSrc | core1_0.BufferUsageTransferDst,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, res, err
	}

	var memory MemoryBlock
	defer func() {
		if err != nil {
			buffer.Destroy()
			if memory != nil {
				_ = memory.Free()
			}
		}
	}()

	memory, res, err = r.allocator.AllocateForBuffer(buffer, AllocationHostAccess)
	if err != nil {
		return nil, res, err
	}

	res, err = memory.BindBuffer(buffer)
	if err != nil {
		return nil, res, err
	}

	liveness, alive := NewLiveness()
	entry := &stagingEntry{
		id:       r.allocateStagingID(),
		buffer:   buffer,
		memory:   memory,
		liveness: liveness,
		size:     size,
	}
	r.stagingBuffers.Put(entry.id, entry)

	return &StagingBuffer{entry: entry, alive: alive}, core1_0.VKSuccess, nil
}

// CreateStagingForPixels creates a staging buffer sized for a pixel rectangle
// of width x height texels at bytesPerPixel bytes each. The byte size
// computation is overflow-checked: rectangles whose size cannot be
// represented in the platform's address width fail with SizeOverflowError
// instead of wrapping around.
func (r *Renderer) CreateStagingForPixels(width, height, bytesPerPixel int) (*StagingBuffer, common.VkResult, error) {
	size, err := pixelBufferSize(width, height, bytesPerPixel)
	if err != nil {
		return nil, core1_0.VKErrorUnknown, err
	}

	return r.CreateStagingBuffer(size)
}

// stagingSizeAlignment keeps staged pixel rows addressable with aligned
// transfer copies.
const stagingSizeAlignment = 4

func pixelBufferSize(width, height, bytesPerPixel int) (int, error) {
	if width < 1 || height < 1 {
		return 0, errors.Wrapf(InvalidDimensionsError, "requested pixel rectangle was %dx%d", width, height)
	}
	if bytesPerPixel < 1 {
		return 0, errors.Newf("requested %d bytes per pixel", bytesPerPixel)
	}

	texelsHigh, texels := bits.Mul64(uint64(width), uint64(height))
	bytesHigh, totalBytes := bits.Mul64(texels, uint64(bytesPerPixel))
	if texelsHigh != 0 || bytesHigh != 0 || totalBytes > uint64(math.MaxInt-stagingSizeAlignment) {
		return 0, errors.Wrapf(SizeOverflowError, "%dx%d pixels at %d bytes per pixel", width, height, bytesPerPixel)
	}

	return memutils.AlignUp(int(totalBytes), stagingSizeAlignment), nil
}
