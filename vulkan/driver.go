// Package vulkan provides the production implementations of the render
// package's device-facing interfaces, built on vkngwrapper core types and the
// vam memory allocator.
package vulkan

import (
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
	"github.com/vkngwrapper/render"
	"golang.org/x/exp/slog"
)

// Driver implements render.Driver against a live core1_0.Device. It does not
// own the device: tearing the renderer down leaves the device untouched.
type Driver struct {
	logger         *slog.Logger
	physicalDevice core1_0.PhysicalDevice
	device         core1_0.Device
	callbacks      *driver.AllocationCallbacks
}

// NewDriver creates a Driver for the provided device
//
// physicalDevice - The PhysicalDevice that owns the provided Device
//
// device - The Device that images and buffers will be created against
//
// callbacks - Optional allocation callbacks applied to every object this Driver creates
func NewDriver(logger *slog.Logger, physicalDevice core1_0.PhysicalDevice, device core1_0.Device, callbacks *driver.AllocationCallbacks) *Driver {
	return &Driver{
		logger:         logger,
		physicalDevice: physicalDevice,
		device:         device,
		callbacks:      callbacks,
	}
}

// ImageFormatProperties reports the device's image-creation limits for the
// format/usage combination, or core1_0.VKErrorFormatNotSupported when the
// combination cannot be created.
func (d *Driver) ImageFormatProperties(format core1_0.Format, imageType core1_0.ImageType, tiling core1_0.ImageTiling, usage core1_0.ImageUsageFlags) (core1_0.ImageFormatProperties, common.VkResult, error) {
	properties, res, err := d.physicalDevice.ImageFormatProperties(format, imageType, tiling, usage, 0)
	if err != nil {
		return core1_0.ImageFormatProperties{}, res, err
	}

	return *properties, res, nil
}

// CreateImage creates an image object with no memory bound to it.
func (d *Driver) CreateImage(o core1_0.ImageCreateInfo) (render.DriverImage, common.VkResult, error) {
	d.logger.Debug("Driver::CreateImage")

	image, res, err := d.device.CreateImage(d.callbacks, o)
	if err != nil {
		return nil, res, err
	}

	return &Image{
		driver:      d,
		image:       image,
		mipLevels:   o.MipLevels,
		arrayLayers: o.ArrayLayers,
	}, res, nil
}

// CreateBuffer creates a buffer object with no memory bound to it.
func (d *Driver) CreateBuffer(o core1_0.BufferCreateInfo) (render.DriverBuffer, common.VkResult, error) {
	d.logger.Debug("Driver::CreateBuffer")

	buffer, res, err := d.device.CreateBuffer(d.callbacks, o)
	if err != nil {
		return nil, res, err
	}

	return &Buffer{driver: d, buffer: buffer}, res, nil
}

// Image implements render.DriverImage over a core1_0.Image and the color view
// created for it once memory is bound.
type Image struct {
	driver      *Driver
	image       core1_0.Image
	view        core1_0.ImageView
	mipLevels   int
	arrayLayers int
}

// MemoryRequirements reports the size, alignment, and memory type mask that
// memory bound to this image must satisfy.
func (i *Image) MemoryRequirements() core1_0.MemoryRequirements {
	return *i.image.MemoryRequirements()
}

// CreateView creates a color view spanning the image's full mip chain and
// layer range. Memory must already be bound.
func (i *Image) CreateView(format core1_0.Format) (common.VkResult, error) {
	if i.view != nil {
		panic("attempted to create a second view for the same image")
	}

	viewType := core1_0.ImageViewType2D
	if i.arrayLayers > 1 {
		viewType = core1_0.ImageViewType2DArray
	}

	view, res, err := i.driver.device.CreateImageView(i.driver.callbacks, core1_0.ImageViewCreateInfo{
		Image:    i.image,
		ViewType: viewType,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseMipLevel:   0,
			LevelCount:     i.mipLevels,
			BaseArrayLayer: 0,
			LayerCount:     i.arrayLayers,
		},
	})
	if err != nil {
		return res, err
	}

	i.view = view
	return res, nil
}

// VulkanImage returns the wrapped core1_0.Image.
func (i *Image) VulkanImage() core1_0.Image { return i.image }

// VulkanImageView returns the image's view, or nil before CreateView
// succeeds.
func (i *Image) VulkanImageView() core1_0.ImageView { return i.view }

// Destroy destroys the view, if one was created, and then the image.
func (i *Image) Destroy() {
	if i.view != nil {
		i.view.Destroy(i.driver.callbacks)
		i.view = nil
	}

	i.image.Destroy(i.driver.callbacks)
}

// Buffer implements render.DriverBuffer over a core1_0.Buffer.
type Buffer struct {
	driver *Driver
	buffer core1_0.Buffer
}

// MemoryRequirements reports the size, alignment, and memory type mask that
// memory bound to this buffer must satisfy.
func (b *Buffer) MemoryRequirements() core1_0.MemoryRequirements {
	return *b.buffer.MemoryRequirements()
}

// VulkanBuffer returns the wrapped core1_0.Buffer.
func (b *Buffer) VulkanBuffer() core1_0.Buffer { return b.buffer }

// Destroy destroys the buffer.
func (b *Buffer) Destroy() {
	b.buffer.Destroy(b.driver.callbacks)
}
