package gpu

import (
	"time"
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// VulkanDevice implements Device on top of a logical vk.Device.
type VulkanDevice struct {
	handle vk.Device
}

// NewVulkanDevice wraps an already created logical device. The caller keeps
// ownership of the device itself.
func NewVulkanDevice(device vk.Device) *VulkanDevice {
	return &VulkanDevice{handle: device}
}

// Handle returns the wrapped logical device.
func (d *VulkanDevice) Handle() vk.Device {
	return d.handle
}

func (d *VulkanDevice) CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	var renderPass vk.RenderPass
	if err := Result(vk.CreateRenderPass(d.handle, info, nil, &renderPass)); err != nil {
		return renderPass, errors.Wrap(err, "failed to create render pass")
	}
	return renderPass, nil
}

func (d *VulkanDevice) DestroyRenderPass(renderPass vk.RenderPass) {
	vk.DestroyRenderPass(d.handle, renderPass, nil)
}

func (d *VulkanDevice) CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	var frameBuffer vk.Framebuffer
	if err := Result(vk.CreateFramebuffer(d.handle, info, nil, &frameBuffer)); err != nil {
		return frameBuffer, errors.Wrap(err, "failed to create frame buffer")
	}
	return frameBuffer, nil
}

func (d *VulkanDevice) DestroyFramebuffer(framebuffer vk.Framebuffer) {
	vk.DestroyFramebuffer(d.handle, framebuffer, nil)
}

func (d *VulkanDevice) CreateShaderModule(code []uint32) (vk.ShaderModule, error) {
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}

	var shaderModule vk.ShaderModule
	if err := Result(vk.CreateShaderModule(d.handle, &createInfo, nil, &shaderModule)); err != nil {
		return shaderModule, errors.Wrap(err, "failed to create shader module")
	}
	return shaderModule, nil
}

func (d *VulkanDevice) DestroyShaderModule(module vk.ShaderModule) {
	vk.DestroyShaderModule(d.handle, module, nil)
}

func (d *VulkanDevice) CreatePipelineLayout(
	info *vk.PipelineLayoutCreateInfo,
) (vk.PipelineLayout, error) {
	var pipelineLayout vk.PipelineLayout
	res := vk.CreatePipelineLayout(d.handle, info, nil, &pipelineLayout)
	if err := Result(res); err != nil {
		return pipelineLayout, errors.Wrap(err, "failed to create pipeline layout")
	}
	return pipelineLayout, nil
}

func (d *VulkanDevice) DestroyPipelineLayout(layout vk.PipelineLayout) {
	vk.DestroyPipelineLayout(d.handle, layout, nil)
}

func (d *VulkanDevice) CreateGraphicsPipeline(
	info *vk.GraphicsPipelineCreateInfo,
) (vk.Pipeline, error) {
	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(
		d.handle,
		vk.PipelineCache(vk.NullHandle),
		1,
		[]vk.GraphicsPipelineCreateInfo{*info},
		nil,
		pipelines,
	)
	if err := Result(res); err != nil {
		return pipelines[0], errors.Wrap(err, "failed to create graphics pipeline")
	}
	return pipelines[0], nil
}

func (d *VulkanDevice) DestroyPipeline(pipeline vk.Pipeline) {
	vk.DestroyPipeline(d.handle, pipeline, nil)
}

func (d *VulkanDevice) CreateSemaphore() (vk.Semaphore, error) {
	semaphoreInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var semaphore vk.Semaphore
	if err := Result(vk.CreateSemaphore(d.handle, &semaphoreInfo, nil, &semaphore)); err != nil {
		return semaphore, errors.Wrap(err, "failed to create semaphore")
	}
	return semaphore, nil
}

func (d *VulkanDevice) DestroySemaphore(semaphore vk.Semaphore) {
	vk.DestroySemaphore(d.handle, semaphore, nil)
}

func (d *VulkanDevice) CreateFence(signaled bool) (vk.Fence, error) {
	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var fence vk.Fence
	if err := Result(vk.CreateFence(d.handle, &fenceInfo, nil, &fence)); err != nil {
		return fence, errors.Wrap(err, "failed to create fence")
	}
	return fence, nil
}

func (d *VulkanDevice) DestroyFence(fence vk.Fence) {
	vk.DestroyFence(d.handle, fence, nil)
}

func (d *VulkanDevice) WaitForFence(fence vk.Fence, timeout time.Duration) error {
	res := vk.WaitForFences(d.handle, 1, []vk.Fence{fence}, vk.True, uint64(timeout.Nanoseconds()))
	return errors.Wrap(Result(res), "waiting for fence")
}

func (d *VulkanDevice) ResetFence(fence vk.Fence) error {
	return errors.Wrap(Result(vk.ResetFences(d.handle, 1, []vk.Fence{fence})), "resetting fence")
}

func (d *VulkanDevice) CreateCommandPool(queueFamily uint32) (vk.CommandPool, error) {
	poolInfo := vk.CommandPoolCreateInfo{
		SType: vk.StructureTypeCommandPoolCreateInfo,
		Flags: vk.CommandPoolCreateFlags(
			vk.CommandPoolCreateResetCommandBufferBit,
		),
		QueueFamilyIndex: queueFamily,
	}

	var commandPool vk.CommandPool
	if err := Result(vk.CreateCommandPool(d.handle, &poolInfo, nil, &commandPool)); err != nil {
		return commandPool, errors.Wrap(err, "failed to create command pool")
	}
	return commandPool, nil
}

func (d *VulkanDevice) DestroyCommandPool(pool vk.CommandPool) {
	vk.DestroyCommandPool(d.handle, pool, nil)
}

func (d *VulkanDevice) AllocateCommandBuffer(pool vk.CommandPool) (vk.CommandBuffer, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}

	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := Result(vk.AllocateCommandBuffers(d.handle, &allocInfo, commandBuffers)); err != nil {
		return nil, errors.Wrap(err, "failed to allocate command buffer")
	}
	return commandBuffers[0], nil
}

func (d *VulkanDevice) ResetCommandBuffer(cmd vk.CommandBuffer) error {
	return errors.Wrap(Result(vk.ResetCommandBuffer(cmd, 0)), "resetting command buffer")
}

func (d *VulkanDevice) BeginCommandBuffer(
	cmd vk.CommandBuffer,
	flags vk.CommandBufferUsageFlags,
) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: flags,
	}

	res := vk.BeginCommandBuffer(cmd, &beginInfo)
	return errors.Wrap(Result(res), "cannot add begin command to the buffer")
}

func (d *VulkanDevice) EndCommandBuffer(cmd vk.CommandBuffer) error {
	return errors.Wrap(Result(vk.EndCommandBuffer(cmd)), "recording commands to buffer failed")
}

func (d *VulkanDevice) CmdBeginRenderPass(cmd vk.CommandBuffer, info *vk.RenderPassBeginInfo) {
	vk.CmdBeginRenderPass(cmd, info, vk.SubpassContentsInline)
}

func (d *VulkanDevice) CmdEndRenderPass(cmd vk.CommandBuffer) {
	vk.CmdEndRenderPass(cmd)
}

func (d *VulkanDevice) CmdBindPipeline(cmd vk.CommandBuffer, pipeline vk.Pipeline) {
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, pipeline)
}

func (d *VulkanDevice) CmdSetViewport(cmd vk.CommandBuffer, viewport vk.Viewport) {
	vk.CmdSetViewport(cmd, 0, 1, []vk.Viewport{viewport})
}

func (d *VulkanDevice) CmdSetScissor(cmd vk.CommandBuffer, scissor vk.Rect2D) {
	vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{scissor})
}

func (d *VulkanDevice) CmdBindVertexBuffers(
	cmd vk.CommandBuffer,
	firstBinding uint32,
	buffers []vk.Buffer,
	offsets []vk.DeviceSize,
) {
	vk.CmdBindVertexBuffers(cmd, firstBinding, uint32(len(buffers)), buffers, offsets)
}

func (d *VulkanDevice) CmdPushConstants(
	cmd vk.CommandBuffer,
	layout vk.PipelineLayout,
	stages vk.ShaderStageFlags,
	offset uint32,
	data []byte,
) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(cmd, layout, stages, offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (d *VulkanDevice) CmdDraw(
	cmd vk.CommandBuffer,
	vertexCount, instanceCount, firstVertex, firstInstance uint32,
) {
	vk.CmdDraw(cmd, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (d *VulkanDevice) CmdCopyBuffer(cmd vk.CommandBuffer, src, dst vk.Buffer, size vk.DeviceSize) {
	copyRegion := vk.BufferCopy{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      size,
	}

	vk.CmdCopyBuffer(cmd, src, dst, 1, []vk.BufferCopy{copyRegion})
}

func (d *VulkanDevice) QueueSubmit(queue vk.Queue, submits []vk.SubmitInfo, fence vk.Fence) error {
	res := vk.QueueSubmit(queue, uint32(len(submits)), submits, fence)
	return errors.Wrap(Result(res), "queue submit error")
}

func (d *VulkanDevice) QueueWaitIdle(queue vk.Queue) error {
	return errors.Wrap(Result(vk.QueueWaitIdle(queue)), "failed to wait on queue idle")
}

func (d *VulkanDevice) WaitIdle() error {
	return errors.Wrap(Result(vk.DeviceWaitIdle(d.handle)), "failed to wait on device idle")
}
