package render

import (
	"time"

	vk "github.com/vulkan-go/vulkan"

	"vulkan-renderer/queues"
)

// Surface is the swapchain the renderer draws into. The renderer never
// creates or destroys any of the views it returns.
type Surface interface {
	// Views returns one color view per swapchain image.
	Views() []vk.ImageView

	// DepthView returns the view of the depth image shared by all targets.
	DepthView() vk.ImageView

	Extent() vk.Extent2D
	ColorFormat() vk.Format
	DepthFormat() vk.Format

	// AcquireNextImage returns the index of the next image and whether the
	// swapchain has become suboptimal. semaphore is signaled once the image
	// can be rendered to. A swapchain which can no longer be used returns an
	// error matching gpu.ErrOutOfDate or ErrSurfaceOutOfDate and does not
	// signal the semaphore. If no image becomes available within timeout an
	// error matching gpu.ErrTimeout is returned.
	AcquireNextImage(semaphore vk.Semaphore, timeout time.Duration) (uint32, bool, error)

	// Present queues the image for presentation after waitSemaphores.
	Present(queue queues.Queue, imageIndex uint32, waitSemaphores []vk.Semaphore) error
}
