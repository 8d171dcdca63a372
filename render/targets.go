package render

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"vulkan-renderer/gpu"
)

// Target is the framebuffer for one swapchain image.
type Target struct {
	Framebuffer vk.Framebuffer
	RenderPass  vk.RenderPass
	Extent      vk.Extent2D
}

// Targets holds one Target per swapchain image, in swapchain order.
type Targets []Target

// BuildTargets creates one framebuffer per color view, each attaching that
// view and the shared depth view to the layout's render pass. If any
// framebuffer cannot be created the ones created before it are destroyed.
func BuildTargets(
	dev gpu.Device,
	layout *Layout,
	views []vk.ImageView,
	depthView vk.ImageView,
	extent vk.Extent2D,
) (Targets, error) {
	if len(views) == 0 {
		return nil, newError(KindDevice, "build targets", errors.New("surface has no images"))
	}

	targets := make(Targets, 0, len(views))

	for i, view := range views {
		attachments := []vk.ImageView{
			ColorAttachment: view,
			DepthAttachment: depthView,
		}

		frameBufferInfo := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      layout.RenderPass,
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
			Width:           extent.Width,
			Height:          extent.Height,
			Layers:          1,
		}

		frameBuffer, err := dev.CreateFramebuffer(&frameBufferInfo)
		if err != nil {
			targets.Destroy(dev)
			return nil, newError(KindDevice, "build targets", errors.Wrapf(err, "target %d", i))
		}

		targets = append(targets, Target{
			Framebuffer: frameBuffer,
			RenderPass:  layout.RenderPass,
			Extent:      extent,
		})
	}

	return targets, nil
}

// Destroy destroys every framebuffer.
func (t Targets) Destroy(dev gpu.Device) {
	for _, target := range t {
		dev.DestroyFramebuffer(target.Framebuffer)
	}
}
