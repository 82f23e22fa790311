package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

// ImageFlags adjust the behavior of a single CreateImage call.
type ImageFlags int32

var imageFlagsMapping = common.NewFlagStringMapping[ImageFlags]()

func (f ImageFlags) Register(str string) {
	imageFlagsMapping.Register(f, str)
}
func (f ImageFlags) String() string {
	return imageFlagsMapping.FlagsToString(f)
}

const (
	// ImageDedicatedMemory requests a dedicated allocation for this image
	// regardless of the renderer's size threshold.
	ImageDedicatedMemory ImageFlags = 1 << iota
)

func init() {
	ImageDedicatedMemory.Register("ImageDedicatedMemory")
}

// ImageOptions describes the image requested from Renderer.CreateImage.
type ImageOptions struct {
	// Width and Height are the image extent in texels. Both must be at least 1.
	Width  int
	Height int
	// Format is the backing device format.
	Format core1_0.Format
	// Usage is the set of usages the image must support. The renderer
	// validates the format against this usage before creating anything.
	Usage core1_0.ImageUsageFlags
	// Flags adjust the behavior of this creation call
	Flags ImageFlags

	// MipLevels is the length of the image's mip chain. Leaving it 0 creates
	// a single level.
	MipLevels int
	// ArrayLayers is the image's layer count. Leaving it 0 creates one layer.
	ArrayLayers int
	// Samples is the image's sample count. Leaving it 0 creates a
	// single-sampled image.
	Samples core1_0.SampleCountFlags

	// SourcePixelFormat optionally records the pixel format the image's
	// contents originate from, for entries populated from imported pixel
	// data. It is metadata only and never affects the device image.
	SourcePixelFormat core1_0.Format
}

// imageEntry is one image registry slot. The registry owns the image, its
// view, and its memory until the cleanup pass destroys the entry.
type imageEntry struct {
	id       ImageID
	resource DriverImage
	// memory is nil for foreign entries, which never own memory.
	memory   MemoryBlock
	liveness Liveness

	width        int
	height       int
	format       core1_0.Format
	sourceFormat core1_0.Format
	usage        core1_0.ImageUsageFlags
	mipLevels    int
	arrayLayers  int
	samples      core1_0.SampleCountFlags
	foreign      bool
}

// Image is a public handle to an image registry entry, carrying a strong
// liveness marker plus cached metadata. The entry's GPU objects are destroyed
// only after every handle and every retaining submission has released its
// marker and a reclaim pass has observed that.
type Image struct {
	entry *imageEntry
	alive Alive
}

// ID returns the entry's opaque identifier.
func (i *Image) ID() ImageID { return i.entry.id }

// Width returns the image extent's width in texels.
func (i *Image) Width() int { return i.entry.width }

// Height returns the image extent's height in texels.
func (i *Image) Height() int { return i.entry.height }

// Format returns the backing device format.
func (i *Image) Format() core1_0.Format { return i.entry.format }

// SourcePixelFormat returns the pixel format the image contents originate
// from, or 0 when none was recorded.
func (i *Image) SourcePixelFormat() core1_0.Format { return i.entry.sourceFormat }

// Usage returns the usage flags the image was created with.
func (i *Image) Usage() core1_0.ImageUsageFlags { return i.entry.usage }

// MipLevels returns the length of the image's mip chain.
func (i *Image) MipLevels() int { return i.entry.mipLevels }

// ArrayLayers returns the image's layer count.
func (i *Image) ArrayLayers() int { return i.entry.arrayLayers }

// Samples returns the image's sample count.
func (i *Image) Samples() core1_0.SampleCountFlags { return i.entry.samples }

// Foreign returns true when the entry's memory is externally managed and the
// renderer will never deallocate it.
func (i *Image) Foreign() bool { return i.entry.foreign }

// Resource returns the underlying device image for the drawing layer to
// record against. The returned value is only valid while this handle, a clone
// of it, or a retaining submission keeps the entry alive.
func (i *Image) Resource() DriverImage { return i.entry.resource }

// Alive returns the handle's strong liveness marker, for callers that retain
// resources directly.
func (i *Image) Alive() Alive { return i.alive }

// Clone returns an additional handle to the same entry. The underlying GPU
// resource is never duplicated.
func (i *Image) Clone() *Image {
	return &Image{entry: i.entry, alive: i.alive.Clone()}
}

// Release drops this handle's claim on the entry. The handle must not be used
// afterward.
func (i *Image) Release() {
	i.alive.Release()
}

// CreateImage creates a device image with bound memory and a view, registers
// it, and returns a handle to it.
//
// Requests are validated before any device object is created: non-positive
// extents fail with InvalidDimensionsError, format/usage combinations the
// device cannot create fail with UnsupportedFormatError, and requests
// exceeding the device's reported limits fail with DimensionsTooLargeError.
// When a later step fails, everything created by the earlier steps is
// destroyed before the error is returned.
func (r *Renderer) CreateImage(o ImageOptions) (handle *Image, res common.VkResult, err error) {
	r.logger.Debug("Renderer::CreateImage",
		slog.Int("Width", o.Width),
		slog.Int("Height", o.Height),
	)

	if r.destroyed {
		panic("attempted to create an image with a destroyed Renderer")
	}

	mipLevels := o.MipLevels
	if mipLevels == 0 {
		mipLevels = 1
	}
	arrayLayers := o.ArrayLayers
	if arrayLayers == 0 {
		arrayLayers = 1
	}
	samples := o.Samples
	if samples == 0 {
		samples = core1_0.Samples1
	}

	if o.Width < 1 || o.Height < 1 {
		return nil, core1_0.VKErrorUnknown, errors.Wrapf(InvalidDimensionsError, "requested extent was %dx%d", o.Width, o.Height)
	}
	if mipLevels < 0 || arrayLayers < 0 {
		return nil, core1_0.VKErrorUnknown, errors.Wrapf(InvalidDimensionsError, "requested %d mip levels and %d array layers", mipLevels, arrayLayers)
	}

	limits, res, err := r.driver.ImageFormatProperties(o.Format, core1_0.ImageType2D, core1_0.ImageTilingOptimal, o.Usage)
	if err != nil {
		if res == core1_0.VKErrorFormatNotSupported {
			return nil, res, errors.Wrapf(UnsupportedFormatError, "format %v with usage %v", o.Format, o.Usage)
		}

		return nil, res, err
	}

	if o.Width > limits.MaxExtent.Width || o.Height > limits.MaxExtent.Height {
		return nil, core1_0.VKErrorUnknown, errors.Wrapf(DimensionsTooLargeError,
			"requested extent was %dx%d, but the device supports at most %dx%d for this format and usage",
			o.Width, o.Height, limits.MaxExtent.Width, limits.MaxExtent.Height)
	}
	if mipLevels > limits.MaxMipLevels || arrayLayers > limits.MaxArrayLayers {
		return nil, core1_0.VKErrorUnknown, errors.Wrapf(DimensionsTooLargeError,
			"requested %d mip levels and %d array layers, but the device supports at most %d and %d for this format and usage",
			mipLevels, arrayLayers, limits.MaxMipLevels, limits.MaxArrayLayers)
	}
	if samples&limits.SampleCounts != samples {
		return nil, core1_0.VKErrorUnknown, errors.Wrapf(DimensionsTooLargeError,
			"requested sample count %v, but the device supports %v for this format and usage",
			samples, limits.SampleCounts)
	}

	resource, res, err := r.driver.CreateImage(core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Format:    o.Format,
		Extent: core1_0.Extent3D{
			Width:  o.Width,
			Height: o.Height,
			Depth:  1,
		},
		MipLevels:     mipLevels,
		ArrayLayers:   arrayLayers,
		Samples:       samples,
		Tiling:        core1_0.ImageTilingOptimal,
		Usage:         o.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		InitialLayout: core1_0.ImageLayoutUndefined,
	})
	if err != nil {
		return nil, res, err
	}

	var memory MemoryBlock
	defer func() {
		// Roll back in reverse creation order on any late failure: the view
		// (if created) and image go first, then the memory.
		if err != nil {
			resource.Destroy()
			if memory != nil {
				_ = memory.Free()
			}
		}
	}()

	var allocFlags AllocationFlags
	if o.Flags&ImageDedicatedMemory != 0 || r.flags&RendererCreateDedicatedImages != 0 ||
		resource.MemoryRequirements().Size >= r.dedicatedImageThreshold {
		allocFlags |= AllocationDedicated
	}

	memory, res, err = r.allocator.AllocateForImage(resource, allocFlags)
	if err != nil {
		return nil, res, err
	}

	res, err = memory.BindImage(resource)
	if err != nil {
		return nil, res, err
	}

	res, err = resource.CreateView(o.Format)
	if err != nil {
		return nil, res, err
	}

	liveness, alive := NewLiveness()
	entry := &imageEntry{
		id:       r.allocateImageID(),
		resource: resource,
		memory:   memory,
		liveness: liveness,

		width:        o.Width,
		height:       o.Height,
		format:       o.Format,
		sourceFormat: o.SourcePixelFormat,
		usage:        o.Usage,
		mipLevels:    mipLevels,
		arrayLayers:  arrayLayers,
		samples:      samples,
	}
	r.images.Put(entry.id, entry)

	return &Image{entry: entry, alive: alive}, core1_0.VKSuccess, nil
}

// ImportImage registers an externally-allocated image as a foreign entry. The
// registry takes ownership of the image object and its view lifetime, but the
// entry never owns memory: whoever bound the image's memory (an external
// memory import, typically) remains responsible for it, and the cleanup pass
// skips deallocation.
//
// ImageOptions provides the entry's metadata; Usage, Flags, and allocation
// behavior are not consulted.
func (r *Renderer) ImportImage(resource DriverImage, o ImageOptions) (*Image, error) {
	r.logger.Debug("Renderer::ImportImage",
		slog.Int("Width", o.Width),
		slog.Int("Height", o.Height),
	)

	if r.destroyed {
		panic("attempted to import an image with a destroyed Renderer")
	}
	if resource == nil {
		panic("attempted to import a nil image")
	}

	if o.Width < 1 || o.Height < 1 {
		return nil, errors.Wrapf(InvalidDimensionsError, "imported extent was %dx%d", o.Width, o.Height)
	}

	mipLevels := o.MipLevels
	if mipLevels == 0 {
		mipLevels = 1
	}
	arrayLayers := o.ArrayLayers
	if arrayLayers == 0 {
		arrayLayers = 1
	}
	samples := o.Samples
	if samples == 0 {
		samples = core1_0.Samples1
	}

	liveness, alive := NewLiveness()
	entry := &imageEntry{
		id:       r.allocateImageID(),
		resource: resource,
		liveness: liveness,

		width:        o.Width,
		height:       o.Height,
		format:       o.Format,
		sourceFormat: o.SourcePixelFormat,
		usage:        o.Usage,
		mipLevels:    mipLevels,
		arrayLayers:  arrayLayers,
		samples:      samples,
		foreign:      true,
	}
	r.images.Put(entry.id, entry)

	return &Image{entry: entry, alive: alive}, nil
}

// destroyImageEntry destroys an entry's device objects in reverse creation
// order: the view, then the image, then the memory. Only the cleanup pass
// calls it, after liveness and submission completion have both been
// established.
func (r *Renderer) destroyImageEntry(entry *imageEntry) error {
	r.logger.Debug("Renderer::destroyImageEntry", slog.Uint64("ImageID", uint64(entry.id)))

	entry.resource.Destroy()
	if entry.memory != nil {
		return entry.memory.Free()
	}

	return nil
}
