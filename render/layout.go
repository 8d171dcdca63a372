package render

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"vulkan-renderer/gpu"
)

// Attachment indices in the render pass and in every framebuffer.
const (
	ColorAttachment = 0
	DepthAttachment = 1
)

// Subpass references the attachments one subpass writes to.
type Subpass struct {
	Color []vk.AttachmentReference
	Depth *vk.AttachmentReference
}

// Layout describes the render pass every frame target is compatible with.
// It is created once and never changes until it is destroyed.
type Layout struct {
	Attachments  []vk.AttachmentDescription
	Subpasses    []Subpass
	Dependencies []vk.SubpassDependency

	RenderPass vk.RenderPass
}

// describeLayout returns the fixed layout: a cleared color attachment which
// ends up ready for presentation and a cleared depth attachment, written by
// one graphics subpass.
func describeLayout(colorFormat, depthFormat vk.Format) *Layout {
	colorAttachment := vk.AttachmentDescription{
		Format:         colorFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}

	depthAttachment := vk.AttachmentDescription{
		Format:         depthFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpClear,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	subpass := Subpass{
		Color: []vk.AttachmentReference{{
			Attachment: ColorAttachment,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
		Depth: &vk.AttachmentReference{
			Attachment: DepthAttachment,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}

	fragmentTests := vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) |
		vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)

	dependencies := []vk.SubpassDependency{
		{
			SrcSubpass:    vk.SubpassExternal,
			DstSubpass:    0,
			SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			SrcAccessMask: 0,
			DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		},
		{
			SrcSubpass:    vk.SubpassExternal,
			DstSubpass:    0,
			SrcStageMask:  fragmentTests,
			SrcAccessMask: 0,
			DstStageMask:  fragmentTests,
			DstAccessMask: vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
		},
	}

	return &Layout{
		Attachments:  []vk.AttachmentDescription{colorAttachment, depthAttachment},
		Subpasses:    []Subpass{subpass},
		Dependencies: dependencies,
	}
}

// BuildLayout creates the render pass for the given swapchain and depth
// formats.
func BuildLayout(dev gpu.Device, colorFormat, depthFormat vk.Format) (*Layout, error) {
	l := describeLayout(colorFormat, depthFormat)
	if err := l.validate(); err != nil {
		return nil, newError(KindDevice, "build layout", err)
	}

	info := l.createInfo()
	renderPass, err := dev.CreateRenderPass(&info)
	if err != nil {
		return nil, newError(KindDevice, "build layout", err)
	}
	l.RenderPass = renderPass

	return l, nil
}

func (l *Layout) validate() error {
	if len(l.Subpasses) == 0 {
		return errors.New("layout has no subpasses")
	}

	for i, a := range l.Attachments {
		if a.Format == vk.FormatUndefined {
			return errors.Errorf("attachment %d has an undefined format", i)
		}
	}

	checkRef := func(subpass int, ref vk.AttachmentReference) error {
		if int(ref.Attachment) >= len(l.Attachments) {
			return errors.Errorf("subpass %d references attachment %d of %d",
				subpass, ref.Attachment, len(l.Attachments))
		}
		return nil
	}

	for i, s := range l.Subpasses {
		for _, ref := range s.Color {
			if err := checkRef(i, ref); err != nil {
				return err
			}
		}
		if s.Depth != nil {
			if err := checkRef(i, *s.Depth); err != nil {
				return err
			}
		}
	}

	for i, d := range l.Dependencies {
		if d.DstSubpass != vk.SubpassExternal && int(d.DstSubpass) >= len(l.Subpasses) {
			return errors.Errorf("dependency %d targets missing subpass %d", i, d.DstSubpass)
		}
		if d.SrcSubpass != vk.SubpassExternal && int(d.SrcSubpass) >= len(l.Subpasses) {
			return errors.Errorf("dependency %d starts at missing subpass %d", i, d.SrcSubpass)
		}
	}

	return nil
}

func (l *Layout) createInfo() vk.RenderPassCreateInfo {
	subpasses := make([]vk.SubpassDescription, 0, len(l.Subpasses))
	for _, s := range l.Subpasses {
		subpasses = append(subpasses, vk.SubpassDescription{
			PipelineBindPoint:       vk.PipelineBindPointGraphics,
			ColorAttachmentCount:    uint32(len(s.Color)),
			PColorAttachments:       s.Color,
			PDepthStencilAttachment: s.Depth,
		})
	}

	return vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(l.Attachments)),
		PAttachments:    l.Attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(l.Dependencies)),
		PDependencies:   l.Dependencies,
	}
}

// DepthFormat returns the format of the depth attachment.
func (l *Layout) DepthFormat() vk.Format {
	return l.Attachments[DepthAttachment].Format
}

// ColorFormat returns the format of the color attachment.
func (l *Layout) ColorFormat() vk.Format {
	return l.Attachments[ColorAttachment].Format
}

// checkSurface makes sure the surface images can be attached to targets of
// this layout.
func (l *Layout) checkSurface(s Surface) error {
	if s.ColorFormat() != l.ColorFormat() {
		return errors.Errorf("surface color format %d, layout expects %d",
			s.ColorFormat(), l.ColorFormat())
	}
	if s.DepthFormat() != l.DepthFormat() {
		return errors.Errorf("depth image format %d, layout expects %d",
			s.DepthFormat(), l.DepthFormat())
	}
	return nil
}

// Destroy destroys the render pass. Every target built from the layout must
// have been destroyed before.
func (l *Layout) Destroy(dev gpu.Device) {
	dev.DestroyRenderPass(l.RenderPass)
}
