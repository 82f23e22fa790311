package render_test

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/render"
)

func TestCreateStagingBuffer(t *testing.T) {
	gpu := render.NewFakeGPU()
	renderer := newTestRenderer(t, gpu, render.CreateOptions{})

	staging, res, err := renderer.CreateStagingBuffer(256)
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)
	require.Equal(t, render.StagingID(1), staging.ID())
	require.Equal(t, 256, staging.Size())

	require.Len(t, gpu.Driver.Buffers, 1)
	created := gpu.Driver.Buffers[0]
	require.Equal(t, core1_0.BufferCreateInfo{
		Size:        256,
		Usage:       core1_0.BufferUsageTransferSrc | core1_0.BufferUsageTransferDst,
		SharingMode: core1_0.SharingModeExclusive,
	}, created.CreateInfo)
	require.Same(t, created, staging.Buffer())

	require.Len(t, gpu.Allocator.Blocks, 1)
	block := gpu.Allocator.Blocks[0]
	require.Equal(t, render.AllocationHostAccess, block.Flags)
	require.Same(t, created, block.BoundBuffer)
	require.Equal(t, 1, renderer.Statistics().StagingBufferCount)
}

func TestCreateStagingBufferValidation(t *testing.T) {
	gpu := render.NewFakeGPU()
	renderer := newTestRenderer(t, gpu, render.CreateOptions{})

	_, res, err := renderer.CreateStagingBuffer(0)
	require.Error(t, err)
	require.Equal(t, core1_0.VKErrorUnknown, res)

	_, _, err = renderer.CreateStagingBuffer(-16)
	require.Error(t, err)

	require.Empty(t, gpu.Driver.Buffers)
	require.Empty(t, gpu.Allocator.Blocks)
}

func TestCreateStagingBufferRollback(t *testing.T) {
	// an allocation failure destroys the buffer object
	gpu := render.NewFakeGPU()
	renderer := newTestRenderer(t, gpu, render.CreateOptions{})
	gpu.Allocator.FailAllocate = core1_0.VKErrorOutOfHostMemory

	_, res, err := renderer.CreateStagingBuffer(64)
	require.Error(t, err)
	require.Equal(t, core1_0.VKErrorOutOfHostMemory, res)
	require.True(t, gpu.Driver.Buffers[0].Destroyed)
	require.Equal(t, 0, renderer.Statistics().StagingBufferCount)

	// a bind failure destroys the buffer and frees the block
	gpu = render.NewFakeGPU()
	renderer = newTestRenderer(t, gpu, render.CreateOptions{})
	gpu.Allocator.FailBind = core1_0.VKErrorOutOfDeviceMemory

	_, _, err = renderer.CreateStagingBuffer(64)
	require.Error(t, err)
	require.True(t, gpu.Driver.Buffers[0].Destroyed)
	require.True(t, gpu.Allocator.Blocks[0].Freed)
	require.Equal(t, []string{"destroy buffer1", "free block1"}, gpu.Events)
}

func TestStagingBufferWrite(t *testing.T) {
	gpu := render.NewFakeGPU()
	renderer := newTestRenderer(t, gpu, render.CreateOptions{})

	staging, _, err := renderer.CreateStagingBuffer(16)
	require.NoError(t, err)

	res, err := staging.Write(4, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)

	block := gpu.Allocator.Blocks[0]
	require.Equal(t, []byte{1, 2, 3, 4}, block.Bytes[4:8])
	require.Equal(t, [][2]int{{4, 4}}, block.Flushes)
	require.Equal(t, 0, block.MapCount)
}

func TestStagingBufferWriteBounds(t *testing.T) {
	gpu := render.NewFakeGPU()
	renderer := newTestRenderer(t, gpu, render.CreateOptions{})

	staging, _, err := renderer.CreateStagingBuffer(16)
	require.NoError(t, err)

	_, err = staging.Write(-1, []byte{1})
	require.Error(t, err)

	_, err = staging.Write(13, []byte{1, 2, 3, 4})
	require.Error(t, err)

	// a zero-length write is valid at any offset inside the buffer and does
	// not map
	res, err := staging.Write(16, nil)
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)

	block := gpu.Allocator.Blocks[0]
	require.Equal(t, 0, block.MapCount)
	require.Empty(t, block.Flushes)
}

func TestStagingBufferMap(t *testing.T) {
	gpu := render.NewFakeGPU()
	renderer := newTestRenderer(t, gpu, render.CreateOptions{})

	staging, _, err := renderer.CreateStagingBuffer(8)
	require.NoError(t, err)

	ptr, res, err := staging.Map()
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)
	require.NotNil(t, ptr)

	mapped := unsafe.Slice((*byte)(ptr), staging.Size())
	mapped[0] = 42
	require.NoError(t, staging.Unmap())

	require.Equal(t, byte(42), gpu.Allocator.Blocks[0].Bytes[0])
}

func TestCreateStagingForPixels(t *testing.T) {
	gpu := render.NewFakeGPU()
	renderer := newTestRenderer(t, gpu, render.CreateOptions{})

	staging, _, err := renderer.CreateStagingForPixels(64, 64, 4)
	require.NoError(t, err)
	require.Equal(t, 64*64*4, staging.Size())

	// sizes are rounded up to the transfer alignment
	staging, _, err = renderer.CreateStagingForPixels(3, 3, 3)
	require.NoError(t, err)
	require.Equal(t, 28, staging.Size())
}

func TestCreateStagingForPixelsOverflow(t *testing.T) {
	gpu := render.NewFakeGPU()
	renderer := newTestRenderer(t, gpu, render.CreateOptions{})

	_, res, err := renderer.CreateStagingForPixels(math.MaxInt, 2, 4)
	require.ErrorIs(t, err, render.SizeOverflowError)
	require.Equal(t, core1_0.VKErrorUnknown, res)

	_, _, err = renderer.CreateStagingForPixels(math.MaxInt, math.MaxInt, 1)
	require.ErrorIs(t, err, render.SizeOverflowError)

	_, _, err = renderer.CreateStagingForPixels(0, 5, 4)
	require.ErrorIs(t, err, render.InvalidDimensionsError)

	_, _, err = renderer.CreateStagingForPixels(5, 5, 0)
	require.Error(t, err)

	// no request got far enough to create anything
	require.Empty(t, gpu.Driver.Buffers)
	require.Empty(t, gpu.Allocator.Blocks)
}
