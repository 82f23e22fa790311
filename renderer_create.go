package render

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/core/v2/common"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific renderer behaviors to activate or deactivate
type CreateFlags int32

var rendererCreateFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	rendererCreateFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return rendererCreateFlagsMapping.FlagsToString(f)
}

const (
	// RendererCreateDedicatedImages forces every image the renderer creates
	// into its own dedicated allocation instead of a pooled block. This is
	// mainly useful when diagnosing fragmentation or aliasing problems.
	RendererCreateDedicatedImages CreateFlags = 1 << iota
)

func init() {
	RendererCreateDedicatedImages.Register("RendererCreateDedicatedImages")
}

const (
	// DefaultDedicatedImageThreshold is the image memory size at which images
	// receive dedicated allocations when no threshold is provided via
	// CreateOptions. It is equal to 32Mb.
	DefaultDedicatedImageThreshold int = 32 * 1024 * 1024

	registryInitialCapacity = 64
)

// CreateOptions contains optional settings when creating a Renderer
type CreateOptions struct {
	// Flags indicates specific renderer behaviors to activate or deactivate
	Flags CreateFlags
	// DedicatedImageThreshold is the image memory size, in bytes, at or above
	// which the renderer requests a dedicated allocation instead of a pooled
	// block. The device may still promote smaller images when it reports a
	// dedicated-allocation requirement or preference for them.
	DedicatedImageThreshold int
}

// New creates a new Renderer
//
// logger - The logger that diagnostic output will be written to
//
// driver - The device surface that images and buffers are created against
//
// allocator - The memory allocator that backs resource memory
//
// timeline - The submission queue and completion counter used to track GPU progress
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, driver Driver, allocator MemoryAllocator, timeline Timeline, options CreateOptions) (*Renderer, error) {
	if driver == nil {
		return nil, errors.New("attempted to create a Renderer with a nil driver")
	}
	if allocator == nil {
		return nil, errors.New("attempted to create a Renderer with a nil allocator")
	}
	if timeline == nil {
		return nil, errors.New("attempted to create a Renderer with a nil timeline")
	}
	if options.DedicatedImageThreshold < 0 {
		return nil, errors.Newf("attempted to create a Renderer with a negative DedicatedImageThreshold %d", options.DedicatedImageThreshold)
	}

	renderer := &Renderer{
		logger:    logger,
		driver:    driver,
		allocator: allocator,
		timeline:  timeline,

		flags:                   options.Flags,
		dedicatedImageThreshold: options.DedicatedImageThreshold,

		images:         swiss.NewMap[ImageID, *imageEntry](registryInitialCapacity),
		nextImageID:    1,
		stagingBuffers: swiss.NewMap[StagingID, *stagingEntry](registryInitialCapacity),
		nextStagingID:  1,
	}

	if options.DedicatedImageThreshold == 0 {
		renderer.dedicatedImageThreshold = DefaultDedicatedImageThreshold
	}

	return renderer, nil
}
