// Package gpu is the narrow slice of the Vulkan API the renderer consumes. The
// Device and Allocator interfaces are implemented over vulkan-go by
// VulkanDevice and MemoryAllocator and by the fake backend in gputest.
package gpu

import (
	"time"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

var (
	// ErrTimeout is returned when a bounded wait on the GPU expires.
	ErrTimeout = errors.New("gpu: wait timed out")

	// ErrOutOfDate is returned by surfaces which can no longer be presented to
	// and must be recreated.
	ErrOutOfDate = errors.New("gpu: surface out of date")

	// ErrDeviceLost is returned once the logical device has been lost.
	ErrDeviceLost = errors.New("gpu: device lost")
)

// Device creates and destroys device objects, records commands and submits
// work. Destroying a null handle is not allowed: callers own every handle they
// create and give it back exactly once.
type Device interface {
	CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error)
	DestroyRenderPass(renderPass vk.RenderPass)

	CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error)
	DestroyFramebuffer(framebuffer vk.Framebuffer)

	CreateShaderModule(code []uint32) (vk.ShaderModule, error)
	DestroyShaderModule(module vk.ShaderModule)

	CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error)
	DestroyPipelineLayout(layout vk.PipelineLayout)

	CreateGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error)
	DestroyPipeline(pipeline vk.Pipeline)

	CreateSemaphore() (vk.Semaphore, error)
	DestroySemaphore(semaphore vk.Semaphore)

	// CreateFence creates a fence, optionally in the signaled state.
	CreateFence(signaled bool) (vk.Fence, error)
	DestroyFence(fence vk.Fence)

	// WaitForFence blocks until the fence is signaled or the timeout expires,
	// in which case ErrTimeout is returned.
	WaitForFence(fence vk.Fence, timeout time.Duration) error
	ResetFence(fence vk.Fence) error

	CreateCommandPool(queueFamily uint32) (vk.CommandPool, error)
	DestroyCommandPool(pool vk.CommandPool)

	// AllocateCommandBuffer allocates one primary command buffer. It is freed
	// together with its pool.
	AllocateCommandBuffer(pool vk.CommandPool) (vk.CommandBuffer, error)
	ResetCommandBuffer(cmd vk.CommandBuffer) error
	BeginCommandBuffer(cmd vk.CommandBuffer, flags vk.CommandBufferUsageFlags) error
	EndCommandBuffer(cmd vk.CommandBuffer) error

	CmdBeginRenderPass(cmd vk.CommandBuffer, info *vk.RenderPassBeginInfo)
	CmdEndRenderPass(cmd vk.CommandBuffer)
	CmdBindPipeline(cmd vk.CommandBuffer, pipeline vk.Pipeline)
	CmdSetViewport(cmd vk.CommandBuffer, viewport vk.Viewport)
	CmdSetScissor(cmd vk.CommandBuffer, scissor vk.Rect2D)
	CmdBindVertexBuffers(cmd vk.CommandBuffer, firstBinding uint32, buffers []vk.Buffer, offsets []vk.DeviceSize)
	CmdPushConstants(cmd vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte)
	CmdDraw(cmd vk.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32)
	CmdCopyBuffer(cmd vk.CommandBuffer, src, dst vk.Buffer, size vk.DeviceSize)

	// QueueSubmit enqueues the batches. A nil fence handle means no fence.
	QueueSubmit(queue vk.Queue, submits []vk.SubmitInfo, fence vk.Fence) error
	QueueWaitIdle(queue vk.Queue) error

	// WaitIdle blocks until the whole device is idle.
	WaitIdle() error
}

// Result converts a Vulkan result into an error. The results the renderer
// reacts to are mapped onto the package sentinels so callers can use
// errors.Is.
func Result(res vk.Result) error {
	switch res {
	case vk.Success, vk.Suboptimal:
		return nil
	case vk.Timeout, vk.NotReady:
		return ErrTimeout
	case vk.ErrorOutOfDate:
		return ErrOutOfDate
	case vk.ErrorDeviceLost:
		return ErrDeviceLost
	}
	return vk.Error(res)
}
