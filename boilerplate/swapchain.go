package boilerplate

import (
	"cmp"
	"fmt"
	"math"
	"time"

	vk "github.com/vulkan-go/vulkan"

	"vulkan-renderer/gpu"
	"vulkan-renderer/queues"
	"vulkan-renderer/render"
)

var _ render.Surface = (*Swapchain)(nil)

type swapChainSupportDetails struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

// Swapchain is the window's swapchain together with one color view per image
// and a depth image shared by all of them. It implements render.Surface.
type Swapchain struct {
	ctx *Context

	handle vk.Swapchain
	images []vk.Image
	views  []vk.ImageView
	format vk.Format
	extent vk.Extent2D

	depthFormat vk.Format
	depthImage  vk.Image
	depthMemory vk.DeviceMemory
	depthView   vk.ImageView

	// resized is set by the framebuffer size callback. The next Present
	// reports the swapchain as out of date.
	resized bool
}

func (s *Swapchain) Views() []vk.ImageView   { return s.views }
func (s *Swapchain) DepthView() vk.ImageView { return s.depthView }
func (s *Swapchain) Extent() vk.Extent2D     { return s.extent }
func (s *Swapchain) ColorFormat() vk.Format  { return s.format }
func (s *Swapchain) DepthFormat() vk.Format  { return s.depthFormat }

// AcquireNextImage returns the index of the next image. semaphore is
// signaled once the presentation engine has released it. Waiting longer than
// timeout fails with gpu.ErrTimeout.
func (s *Swapchain) AcquireNextImage(
	semaphore vk.Semaphore,
	timeout time.Duration,
) (uint32, bool, error) {
	var imageIndex uint32
	res := vk.AcquireNextImage(
		s.ctx.device,
		s.handle,
		uint64(timeout.Nanoseconds()),
		semaphore,
		vk.NullFence,
		&imageIndex,
	)
	if res == vk.Suboptimal {
		return imageIndex, true, nil
	}
	if err := gpu.Result(res); err != nil {
		return 0, false, fmt.Errorf("failed to acquire swap chain image: %w", err)
	}

	return imageIndex, false, nil
}

// Present queues the image for presentation. A suboptimal swapchain or a
// resized window is reported as gpu.ErrOutOfDate so the caller recreates it.
func (s *Swapchain) Present(
	queue queues.Queue,
	imageIndex uint32,
	waitSemaphores []vk.Semaphore,
) error {
	swapChains := []vk.Swapchain{
		s.handle,
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waitSemaphores)),
		PWaitSemaphores:    waitSemaphores,
		SwapchainCount:     uint32(len(swapChains)),
		PSwapchains:        swapChains,
		PImageIndices:      []uint32{imageIndex},
	}

	res := vk.QueuePresent(queue.Handle, &presentInfo)
	if res == vk.ErrorOutOfDate || res == vk.Suboptimal || s.resized {
		s.resized = false
		return fmt.Errorf("presenting image %d: %w", imageIndex, gpu.ErrOutOfDate)
	} else if err := gpu.Result(res); err != nil {
		return fmt.Errorf("failed to present swap chain image: %w", err)
	}

	return nil
}

func (s *Swapchain) create() error {
	if err := s.createSwapChain(); err != nil {
		return err
	}

	if err := s.createImageViews(); err != nil {
		return fmt.Errorf("createImageViews: %w", err)
	}

	if err := s.createDepthResources(); err != nil {
		return fmt.Errorf("createDepthResources: %w", err)
	}

	return nil
}

func (s *Swapchain) createSwapChain() error {
	c := s.ctx

	swapChainSupport, err := c.querySwapChainSupport(c.physicalDevice)
	if err != nil {
		return err
	}

	surfaceFormat := chooseSwapSurfaceFormat(swapChainSupport.formats)
	presentMode := chooseSwapPresentMode(swapChainSupport.presentModes, c.cfg.VSync)
	extent := s.chooseSwapExtent(swapChainSupport.capabilities)

	imageCount := swapChainSupport.capabilities.MinImageCount + 1
	if swapChainSupport.capabilities.MaxImageCount > 0 &&
		imageCount > swapChainSupport.capabilities.MaxImageCount {
		imageCount = swapChainSupport.capabilities.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          c.surface,
		MinImageCount:    imageCount,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageFormat:      surfaceFormat.Format,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     swapChainSupport.capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}

	if c.queues.Graphics.Family != c.queues.Present.Family {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{
			c.queues.Graphics.Family,
			c.queues.Present.Family,
		}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapChain vk.Swapchain
	res := vk.CreateSwapchain(c.device, &createInfo, nil, &swapChain)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to create swap chain: %w", err)
	}
	s.handle = swapChain

	var imagesCount uint32
	vk.GetSwapchainImages(c.device, s.handle, &imagesCount, nil)

	images := make([]vk.Image, imagesCount)
	vk.GetSwapchainImages(c.device, s.handle, &imagesCount, images)

	s.images = images
	s.format = surfaceFormat.Format
	s.extent = extent

	return nil
}

func (s *Swapchain) createImageViews() error {
	for i, swapChainImage := range s.images {
		imageView, err := s.createImageView(
			swapChainImage,
			s.format,
			vk.ImageAspectFlags(vk.ImageAspectColorBit),
		)
		if err != nil {
			return fmt.Errorf("failed to create image %d: %w", i, err)
		}

		s.views = append(s.views, imageView)
	}

	return nil
}

func (s *Swapchain) createDepthResources() error {
	depthFormat, err := s.findDepthFormat()
	if err != nil {
		return fmt.Errorf("could not find suitable depth image format: %w", err)
	}
	s.depthFormat = depthFormat

	if err := s.createDepthImage(); err != nil {
		return fmt.Errorf("could not create depth image: %w", err)
	}

	depthImageView, err := s.createImageView(
		s.depthImage,
		depthFormat,
		vk.ImageAspectFlags(vk.ImageAspectDepthBit),
	)
	if err != nil {
		return fmt.Errorf("failed to create depth image view: %w", err)
	}
	s.depthView = depthImageView

	return nil
}

func (s *Swapchain) createDepthImage() error {
	device := s.ctx.device

	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  s.extent.Width,
			Height: s.extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        s.depthFormat,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCount1Bit,
	}

	var image vk.Image
	if err := vk.Error(vk.CreateImage(device, &imageInfo, nil, &image)); err != nil {
		return fmt.Errorf("failed to create an image: %w", err)
	}
	s.depthImage = image

	var memRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, image, &memRequirements)
	memRequirements.Deref()

	memory, err := s.ctx.allocator.AllocateMemory(
		memRequirements,
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
	)
	if err != nil {
		return fmt.Errorf("depth image memory: %w", err)
	}
	s.depthMemory = memory

	if err := vk.Error(vk.BindImageMemory(device, image, memory, 0)); err != nil {
		return fmt.Errorf("failed to bind image memory: %w", err)
	}

	return nil
}

func (s *Swapchain) createImageView(
	image vk.Image,
	format vk.Format,
	aspectFlags vk.ImageAspectFlags,
) (vk.ImageView, error) {
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectFlags,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var imageView vk.ImageView
	res := vk.CreateImageView(s.ctx.device, &createInfo, nil, &imageView)
	if err := vk.Error(res); err != nil {
		return nil, fmt.Errorf("failed to create image view: %w", err)
	}

	return imageView, nil
}

func (s *Swapchain) findDepthFormat() (vk.Format, error) {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	features := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)

	for _, format := range candidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(s.ctx.physicalDevice, format, &props)
		props.Deref()

		if props.OptimalTilingFeatures&features == features {
			return format, nil
		}
	}

	return 0, fmt.Errorf("could not find suitable format")
}

// destroy destroys the depth resources, the views and the swapchain. The
// object can be created again afterwards.
func (s *Swapchain) destroy() {
	device := s.ctx.device

	if s.depthView != vk.NullImageView {
		vk.DestroyImageView(device, s.depthView, nil)
		s.depthView = vk.NullImageView
	}

	if s.depthImage != vk.NullImage {
		vk.DestroyImage(device, s.depthImage, nil)
		s.depthImage = vk.NullImage
	}

	if s.depthMemory != vk.NullDeviceMemory {
		s.ctx.allocator.FreeMemory(s.depthMemory)
		s.depthMemory = vk.NullDeviceMemory
	}

	for _, imageView := range s.views {
		vk.DestroyImageView(device, imageView, nil)
	}

	if s.handle != vk.NullSwapchain {
		vk.DestroySwapchain(device, s.handle, nil)
		s.handle = vk.NullSwapchain
	}

	s.images = nil
	s.views = nil
	s.resized = false
}

func (c *Context) querySwapChainSupport(
	device vk.PhysicalDevice,
) (swapChainSupportDetails, error) {
	details := swapChainSupportDetails{}

	var capabilities vk.SurfaceCapabilities
	res := vk.GetPhysicalDeviceSurfaceCapabilities(device, c.surface, &capabilities)
	if err := vk.Error(res); err != nil {
		return details, fmt.Errorf("failed to query device surface capabilities: %w", err)
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()

	details.capabilities = capabilities

	var formatCount uint32
	res = vk.GetPhysicalDeviceSurfaceFormats(device, c.surface, &formatCount, nil)
	if err := vk.Error(res); err != nil {
		return details, fmt.Errorf("failed to query device surface formats: %w", err)
	}

	if formatCount != 0 {
		formats := make([]vk.SurfaceFormat, formatCount)
		vk.GetPhysicalDeviceSurfaceFormats(device, c.surface, &formatCount, formats)
		for _, format := range formats {
			format.Deref()
			details.formats = append(details.formats, format)
		}
	}

	var presentModeCount uint32
	res = vk.GetPhysicalDeviceSurfacePresentModes(
		device, c.surface, &presentModeCount, nil,
	)
	if err := vk.Error(res); err != nil {
		return details, fmt.Errorf("failed to query device surface present modes: %w", err)
	}

	if presentModeCount != 0 {
		presentModes := make([]vk.PresentMode, presentModeCount)
		vk.GetPhysicalDeviceSurfacePresentModes(
			device, c.surface, &presentModeCount, presentModes,
		)
		details.presentModes = presentModes
	}

	return details, nil
}

func chooseSwapSurfaceFormat(availableFormats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range availableFormats {
		if format.Format == vk.FormatB8g8r8a8Srgb &&
			format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}

	return availableFormats[0]
}

// chooseSwapPresentMode prefers mailbox unless vsync is requested. FIFO is
// always available.
func chooseSwapPresentMode(available []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}

	for _, mode := range available {
		if mode == vk.PresentModeMailbox {
			return mode
		}
	}

	return vk.PresentModeFifo
}

func (s *Swapchain) chooseSwapExtent(capabilities vk.SurfaceCapabilities) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}

	width, height := s.ctx.window.GetFramebufferSize()

	return vk.Extent2D{
		Width: clamp(
			uint32(width),
			capabilities.MinImageExtent.Width,
			capabilities.MaxImageExtent.Width,
		),
		Height: clamp(
			uint32(height),
			capabilities.MinImageExtent.Height,
			capabilities.MaxImageExtent.Height,
		),
	}
}

func clamp[T cmp.Ordered](val, min, max T) T {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
