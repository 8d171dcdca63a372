// Package boilerplate brings up everything the renderer needs but does not
// own: the Vulkan instance, the window surface, the physical and logical
// devices with their queues, and the swapchain with its depth image.
package boilerplate

import (
	"fmt"
	"log"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"

	"vulkan-renderer/gpu"
	"vulkan-renderer/queues"
)

// Config selects how the Vulkan objects are created.
type Config struct {
	// Title is used as the Vulkan application name.
	Title string

	// Debug enables the validation layers and logs the device selection.
	Debug bool

	// VSync selects FIFO presentation. Without it mailbox is preferred when
	// available.
	VSync bool
}

// Context owns the instance, surface, device and swapchain.
type Context struct {
	cfg    Config
	window *glfw.Window

	// validationLayers is the list of layers enabled when cfg.Debug is set.
	validationLayers []string

	// deviceExtensions is the list of device extensions the program requires.
	deviceExtensions []string

	instance       vk.Instance
	surface        vk.Surface
	physicalDevice vk.PhysicalDevice
	device         vk.Device

	families queues.FamilyIndices
	queues   queues.Set

	gpuDevice *gpu.VulkanDevice
	allocator *gpu.MemoryAllocator
	swapchain *Swapchain
}

// New creates the Vulkan objects for window. On failure everything created
// so far is destroyed again.
func New(window *glfw.Window, cfg Config) (*Context, error) {
	c := &Context{
		cfg:    cfg,
		window: window,
		validationLayers: []string{
			"VK_LAYER_KHRONOS_validation\x00",
		},
		deviceExtensions: []string{
			vk.KhrSwapchainExtensionName + "\x00",
		},
		physicalDevice: vk.PhysicalDevice(vk.NullHandle),
		device:         vk.Device(vk.NullHandle),
		surface:        vk.NullSurface,
	}

	if err := c.init(); err != nil {
		c.Destroy()
		return nil, err
	}

	return c, nil
}

func (c *Context) init() error {
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())

	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to init Vulkan Go: %w", err)
	}

	if err := c.createInstance(); err != nil {
		return fmt.Errorf("createInstance: %w", err)
	}

	if err := c.createSurface(); err != nil {
		return fmt.Errorf("createSurface: %w", err)
	}

	if err := c.pickPhysicalDevice(); err != nil {
		return fmt.Errorf("pickPhysicalDevice: %w", err)
	}

	if err := c.createLogicalDevice(); err != nil {
		return fmt.Errorf("createLogicalDevice: %w", err)
	}

	c.gpuDevice = gpu.NewVulkanDevice(c.device)
	c.allocator = gpu.NewMemoryAllocator(c.physicalDevice, c.device, c.families.Unique())

	c.swapchain = &Swapchain{ctx: c}
	if err := c.swapchain.create(); err != nil {
		return fmt.Errorf("createSwapChain: %w", err)
	}

	c.window.SetFramebufferSizeCallback(c.frameBufferResizeCallback)

	if c.cfg.Debug {
		log.Printf("queue families: graphics %d, present %d, transfer %d",
			c.queues.Graphics.Family, c.queues.Present.Family, c.queues.Transfer.Family)
	}

	return nil
}

func (c *Context) frameBufferResizeCallback(w *glfw.Window, width int, height int) {
	if c.swapchain != nil {
		c.swapchain.resized = true
	}
}

func (c *Context) createSurface() error {
	surfacePtr, err := c.window.CreateWindowSurface(c.instance, nil)
	if err != nil {
		return fmt.Errorf("cannot create surface within GLFW window: %w", err)
	}

	c.surface = vk.SurfaceFromPointer(surfacePtr)
	return nil
}

// Device returns the logical device for the renderer.
func (c *Context) Device() *gpu.VulkanDevice {
	return c.gpuDevice
}

// Allocator returns the buffer allocator for the renderer.
func (c *Context) Allocator() *gpu.MemoryAllocator {
	return c.allocator
}

// Queues returns the graphics, present and transfer queues.
func (c *Context) Queues() queues.Set {
	return c.queues
}

// Swapchain returns the swapchain. It stays the same value across
// recreations.
func (c *Context) Swapchain() *Swapchain {
	return c.swapchain
}

// Recreate builds a new swapchain for the current window size. While the
// window is minimized it blocks until it has a visible size again. Every
// framebuffer attaching the old views must have been destroyed already.
func (c *Context) Recreate() error {
	for {
		width, height := c.window.GetFramebufferSize()
		if width != 0 && height != 0 {
			break
		}

		glfw.WaitEvents()
	}

	if err := gpu.Result(vk.DeviceWaitIdle(c.device)); err != nil {
		return fmt.Errorf("waiting for device idle: %w", err)
	}

	c.swapchain.destroy()

	if err := c.swapchain.create(); err != nil {
		return fmt.Errorf("createSwapChain: %w", err)
	}

	if c.cfg.Debug {
		log.Printf("swapchain recreated: %d images, %dx%d", len(c.swapchain.views),
			c.swapchain.extent.Width, c.swapchain.extent.Height)
	}

	return nil
}

// Destroy destroys the swapchain, the device, the surface and the instance.
// Everything the renderer created on the device must be gone by then.
func (c *Context) Destroy() {
	if c.swapchain != nil {
		c.swapchain.destroy()
		c.swapchain = nil
	}

	if c.device != vk.Device(vk.NullHandle) {
		vk.DestroyDevice(c.device, nil)
		c.device = vk.Device(vk.NullHandle)
	}

	if c.surface != vk.NullSurface {
		vk.DestroySurface(c.instance, c.surface, nil)
		c.surface = vk.NullSurface
	}

	if c.instance != nil {
		vk.DestroyInstance(c.instance, nil)
		c.instance = nil
	}
}
